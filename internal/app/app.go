// Package app dispatches CLI commands and assembles the daemon runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hoanghero125/visaid/internal/audio"
	"github.com/hoanghero125/visaid/internal/button"
	"github.com/hoanghero125/visaid/internal/camera"
	"github.com/hoanghero125/visaid/internal/cli"
	"github.com/hoanghero125/visaid/internal/config"
	"github.com/hoanghero125/visaid/internal/doctor"
	"github.com/hoanghero125/visaid/internal/indicator"
	"github.com/hoanghero125/visaid/internal/inference"
	"github.com/hoanghero125/visaid/internal/ipc"
	"github.com/hoanghero125/visaid/internal/logging"
	"github.com/hoanghero125/visaid/internal/pipeline"
	"github.com/hoanghero125/visaid/internal/playback"
	"github.com/hoanghero125/visaid/internal/session"
	"github.com/hoanghero125/visaid/internal/telemetry"
	"github.com/hoanghero125/visaid/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("visaid"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("visaid"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandPress:
		return r.forwardOrFail(ctx, "press")
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "stopped")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		fmt.Fprintln(r.Stdout, resp.State)
		return 0
	}

	fmt.Fprintln(r.Stdout, "stopped")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no running visaid daemon\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandRun assembles the daemon and blocks until ctx cancellation. The
// button monitor, LED animator, IPC server, and session loop run as one
// errgroup so a hard failure in any of them tears the daemon down.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: visaid daemon already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	line, err := button.OpenLine(cfg.Button.Chip, cfg.Button.Pin)
	if err != nil {
		logger.Warn("gpio button unavailable, presses accepted via control socket only", "error", err.Error())
		line = nil
	}
	monitor := button.NewMonitor(cfg.Button, line, logger)

	stateDir, err := config.StateDir()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	metrics, metricsShutdown, err := telemetry.Init(stateDir, version.Version, monitor.Dropped, logger)
	if err != nil {
		logger.Warn("telemetry unavailable", "error", err.Error())
		metrics = nil
	}
	if metricsShutdown != nil {
		defer metricsShutdown(context.Background())
	}

	lights, err := indicator.New(cfg.LED, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	recorder := audio.NewRecorder(cfg.Audio, cfg.Storage.RecordingsDir, logger)
	capturer := camera.NewCapturer(cfg.Camera, cfg.Storage.PicturesDir, logger)
	client := inference.NewClient(cfg.API, logger)

	var stageObserver pipeline.StageObserver
	var sessionMeter session.Meter
	if metrics != nil {
		stageObserver = metrics
		sessionMeter = metrics
	}
	executor := pipeline.NewExecutor(client, cfg.Storage.ResponsesDir, logger, stageObserver)
	player := playback.NewPlayer(cfg.Playback, logger)

	controller := session.NewController(
		cfg, logger,
		recorder, capturer, executor, player,
		lights, monitor, sessionMeter,
		monitor.Presses(),
	)

	logger.Info("daemon ready",
		"socket", socketPath,
		"button_available", monitor.Available(),
		"camera_available", capturer.Available(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return monitor.Run(groupCtx) })
	group.Go(func() error { return ipc.Serve(groupCtx, listener, controller) })
	group.Go(func() error { return controller.Run(groupCtx) })
	if animated, ok := lights.(*indicator.Lights); ok {
		group.Go(func() error { return animated.Run(groupCtx) })
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon exited", "error", err.Error())
		return 1
	}

	logger.Info("daemon stopped")
	return 0
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) || isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
