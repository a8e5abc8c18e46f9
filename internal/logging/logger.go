// Package logging configures runtime JSONL logging output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/hoanghero125/visaid/internal/config"
)

// Runtime bundles the configured logger and its output sink lifecycle.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New builds a JSONL logger writing through a rotating sink under the state dir.
func New() (Runtime, error) {
	stateDir, err := config.StateDir()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return Runtime{}, err
	}

	path := filepath.Join(stateDir, "log.jsonl")
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	h := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: slog.LevelInfo})
	return Runtime{Logger: slog.New(h), Path: path, closer: sink}, nil
}
