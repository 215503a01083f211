package repo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/klauspost/compress/zlib"
)

const configFile = "config.toml"

// Config stores repository-local settings in .ckusro/config.toml.
type Config struct {
	Core       CoreConfig      `toml:"core"`
	Namespaces NamespaceConfig `toml:"namespaces"`
	Log        LogConfig       `toml:"log"`
}

// CoreConfig controls the object store.
type CoreConfig struct {
	// CompressionLevel is the zlib level for new loose objects, -1 for
	// the library default.
	CompressionLevel int `toml:"compression_level"`
}

// NamespaceConfig controls namespace registration.
type NamespaceConfig struct {
	// RequireObject rejects registrations whose repository object is not
	// in the store.
	RequireObject bool `toml:"require_object"`
}

// LogConfig holds the default log level for the CLI.
type LogConfig struct {
	Level string `toml:"level,omitempty"`
}

// DefaultConfig returns the configuration written by Init.
func DefaultConfig() *Config {
	return &Config{
		Core:       CoreConfig{CompressionLevel: zlib.DefaultCompression},
		Namespaces: NamespaceConfig{RequireObject: true},
		Log:        LogConfig{Level: "warn"},
	}
}

func (c *Config) validate() error {
	if l := c.Core.CompressionLevel; l < zlib.HuffmanOnly || l > zlib.BestCompression {
		return fmt.Errorf("core.compression_level %d out of range", l)
	}
	return nil
}

// readConfig reads config.toml. A missing file yields DefaultConfig.
// Keys absent from the file keep their default values.
func readConfig(dir string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("read config: decode: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("read config: unknown key %q", undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

// writeConfig atomically writes config.toml.
func writeConfig(dir string, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}
	if err := writeFileAtomic(dir, configFile, buf.Bytes()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveConfig writes r.Config back to disk.
func (r *Repo) SaveConfig() error {
	return writeConfig(r.Dir, r.Config)
}

// writeFileAtomic writes data to dir/name via a temp file and rename.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+"-tmp-*")
	if err != nil {
		return fmt.Errorf("tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
