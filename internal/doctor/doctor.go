// Package doctor runs readiness diagnostics for config, hardware nodes,
// external tools, audio, and the inference service.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hoanghero125/visaid/internal/audio"
	"github.com/hoanghero125/visaid/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment, hardware, and service checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkDeviceNode("button.chip", gpioChipPath(cfg.Config.Button.Chip)))
	if cfg.Config.LED.Enable {
		checks = append(checks, checkDeviceNode("led.device", cfg.Config.LED.Device))
	}

	checks = append(checks, checkBinary(cfg.Config.Camera.Tool, "camera capture tool"))
	checks = append(checks, checkBinary(cfg.Config.Playback.Tool, "playback tool"))

	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkAPIReachable(cfg.Config.API))

	return Report{Checks: checks}
}

// gpioChipPath resolves a chip name like "gpiochip0" to its /dev node.
func gpioChipPath(chip string) string {
	chip = strings.TrimSpace(chip)
	if strings.HasPrefix(chip, "/") {
		return chip
	}
	return "/dev/" + chip
}

// checkDeviceNode validates that a device node exists and is not a plain file.
func checkDeviceNode(name string, path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("device node missing: %s", path)}
	}
	if info.Mode()&os.ModeDevice == 0 {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("not a device node: %s", path)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("found %s", path)}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, role string) Check {
	if strings.TrimSpace(bin) == "" {
		return Check{Name: role, Pass: false, Message: "command is empty"}
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, role)}
}

// checkAudioSelection runs live device selection to surface microphone issues.
func checkAudioSelection(cfg config.Config) Check {
	device, err := audio.SelectDevice(context.Background(), cfg.Audio.Input)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	return Check{Name: "audio.device", Pass: true, Message: fmt.Sprintf("selected %q", device.ID)}
}

// checkAPIReachable probes the inference service base URL.
func checkAPIReachable(cfg config.APIConfig) Check {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return Check{Name: "api.base_url", Pass: false, Message: "base_url is empty"}
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	client := http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base)
	if err != nil {
		return Check{Name: "api.base_url", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	// Any HTTP response means the service host answers; the endpoint paths
	// are exercised only by real sessions.
	if resp.StatusCode >= 500 {
		return Check{Name: "api.base_url", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, base)}
	}
	return Check{Name: "api.base_url", Pass: true, Message: fmt.Sprintf("reachable at %s (HTTP %d)", base, resp.StatusCode)}
}
