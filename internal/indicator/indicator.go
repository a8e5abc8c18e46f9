// Package indicator drives the LED status strip that mirrors session state.
package indicator

import (
	"log/slog"

	"github.com/hoanghero125/visaid/internal/config"
)

// Controller is the session-facing status signaling contract.
type Controller interface {
	ShowIdle()
	ShowRecording()
	ShowCapturing()
	ShowProcessing()
	ShowSpeaking()
	ShowError()
	Off()
}

// Noop satisfies Controller without hardware. It is the fallback when the
// strip is disabled or the SPI device cannot be opened.
type Noop struct{}

func (Noop) ShowIdle()       {}
func (Noop) ShowRecording()  {}
func (Noop) ShowCapturing()  {}
func (Noop) ShowProcessing() {}
func (Noop) ShowSpeaking()   {}
func (Noop) ShowError()      {}
func (Noop) Off()            {}

// New builds the configured controller. A disabled strip or an unopenable
// SPI device degrades to Noop; the daemon runs without status lights.
func New(cfg config.LEDConfig, logger *slog.Logger) (Controller, error) {
	if !cfg.Enable {
		return Noop{}, nil
	}
	strip, err := OpenAPA102(cfg.Device, cfg.Count)
	if err != nil {
		if logger != nil {
			logger.Warn("led strip unavailable", "device", cfg.Device, "error", err.Error())
		}
		return Noop{}, nil
	}
	return NewLights(cfg, strip, logger), nil
}
