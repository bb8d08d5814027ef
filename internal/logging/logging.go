// Package logging configures the process-wide structured logger: a
// log/slog JSON handler writing to stdout and, when a log file path is
// configured, a size-rotated file via gopkg.in/natefinch/lumberjack.v2.
// Grounded on References/orion-prototipe/cmd/oriond/main.go's
// slog.NewJSONHandler setup.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the process logger's output and verbosity.
type Config struct {
	Debug bool

	// FilePath, if non-empty, adds a rotating file sink alongside stdout.
	FilePath   string
	MaxSizeMB  int // megabytes before rotation; lumberjack default 100 if 0
	MaxBackups int
	MaxAgeDays int
}

// Init builds the process logger per Config and installs it as
// slog.Default. Returns the logger for callers (notably cmd/avstreamd)
// that want to pass it explicitly rather than rely on the package-level
// default.
func Init(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stdout
	if cfg.FilePath != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
