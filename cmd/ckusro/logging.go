package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tett23/ckusro/pkg/repo"
)

// newLogger returns a console logger writing to w at the given level.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// openRepo opens the repository containing the working directory and
// attaches a logger. The --log-level flag wins over log.level in the
// repository config.
func openRepo(cmd *cobra.Command) (*repo.Repo, error) {
	r, err := repo.Open(".")
	if err != nil {
		return nil, err
	}

	level := r.Config.Log.Level
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Value.String() != "" {
		level = f.Value.String()
	}
	if level == "" {
		return r, nil
	}
	logger, err := newLogger(level, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	r.SetLogger(logger)
	return r, nil
}
