// Package camera captures still images through the external camera tool.
package camera

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hoanghero125/visaid/internal/config"
)

// runCommand is swapped in tests to avoid invoking real camera binaries.
var runCommand = func(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", name, err, string(output))
	}
	return nil
}

// Capturer invokes the configured camera tool for one JPEG still per session.
type Capturer struct {
	cfg    config.CameraConfig
	dir    string
	logger *slog.Logger
}

// NewCapturer builds a capturer writing JPEGs into dir.
func NewCapturer(cfg config.CameraConfig, dir string, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Capturer{cfg: cfg, dir: dir, logger: logger}
}

// Available reports whether the camera tool is installed.
func (c *Capturer) Available() bool {
	_, err := exec.LookPath(c.cfg.Tool)
	return err == nil
}

// CaptureStill takes one JPEG and returns its path. The subprocess deadline
// is the configured device timeout plus overhead for process startup and
// file writing.
func (c *Capturer) CaptureStill(ctx context.Context) (string, error) {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return "", fmt.Errorf("create pictures dir: %w", err)
	}

	name := fmt.Sprintf("still_%s.jpg", time.Now().Format("20060102_150405.000"))
	path := filepath.Join(c.dir, name)

	deadline := time.Duration(c.cfg.TimeoutMS)*time.Millisecond + 4*time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	args := []string{
		"-o", path,
		"--timeout", strconv.Itoa(c.cfg.TimeoutMS),
		"--quality", strconv.Itoa(c.cfg.Quality),
		"--width", strconv.Itoa(c.cfg.Width),
		"--height", strconv.Itoa(c.cfg.Height),
		"--nopreview",
	}

	if err := runCommand(runCtx, c.cfg.Tool, args...); err != nil {
		return "", fmt.Errorf("capture still image: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("captured image missing at %q: %w", path, err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("captured image %q is empty", path)
	}

	c.logger.Info("image captured", "path", path, "bytes", info.Size())
	return path, nil
}
