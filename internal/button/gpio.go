package button

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// gpioLine reads the physical button through the Linux GPIO character device.
// The button wiring is pull-up, so a press pulls the line low.
type gpioLine struct {
	line *gpiocdev.Line
}

// OpenLine requests the configured GPIO line as a pulled-up input.
func OpenLine(chip string, pin int) (Line, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request gpio line %s:%d: %w", chip, pin, err)
	}
	return &gpioLine{line: line}, nil
}

func (g *gpioLine) Pressed() (bool, error) {
	value, err := g.line.Value()
	if err != nil {
		return false, fmt.Errorf("read gpio line: %w", err)
	}
	return value == 0, nil
}

func (g *gpioLine) Close() error {
	return g.line.Close()
}
