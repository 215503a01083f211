package repo

import (
	"go.uber.org/zap"

	"github.com/tett23/ckusro/pkg/object"
)

// DirName is the name of the repository metadata directory.
const DirName = ".ckusro"

// Repo represents an opened ckusro repository.
type Repo struct {
	RootDir string        // directory containing .ckusro/
	Dir     string        // .ckusro/ directory
	Store   *object.Store // loose-object database
	Config  *Config

	logger *zap.Logger
}

// Option configures Init and Open.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used by the repository. The default discards
// all output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// SetLogger replaces the repository logger. A nil logger discards output.
func (r *Repo) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r.logger = logger.With(zap.String("repo", r.RootDir))
}

func newRepo(root, dir string, cfg *Config, o *options) *Repo {
	return &Repo{
		RootDir: root,
		Dir:     dir,
		Store:   object.NewStore(dir, object.WithCompressionLevel(cfg.Core.CompressionLevel)),
		Config:  cfg,
		logger:  o.logger.With(zap.String("repo", root)),
	}
}
