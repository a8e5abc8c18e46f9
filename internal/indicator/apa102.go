package indicator

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Color is one RGB pixel on the strip.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// Strip renders full frames to an LED device.
type Strip interface {
	Render(frame []Color, brightness uint8) error
	Close() error
}

const (
	spiIOCWrMode        = 0x40016b01
	spiIOCWrBitsPerWord = 0x40016b03
	spiIOCWrMaxSpeedHz  = 0x40046b04

	apa102SpeedHz = 8000000
)

// APA102 drives an APA102/SK9822 strip over a Linux spidev node. The chip
// needs no chip-select handshake; frames are plain SPI writes.
type APA102 struct {
	file  *os.File
	count int
	buf   []byte
}

// OpenAPA102 opens the spidev node and configures SPI mode 0, 8-bit words.
func OpenAPA102(device string, count int) (*APA102, error) {
	if count <= 0 {
		return nil, fmt.Errorf("led count must be positive, got %d", count)
	}
	file, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open spi device: %w", err)
	}

	fd := file.Fd()
	mode := uint8(0)
	bits := uint8(8)
	speed := uint32(apa102SpeedHz)
	for _, ctl := range []struct {
		req uintptr
		arg unsafe.Pointer
	}{
		{spiIOCWrMode, unsafe.Pointer(&mode)},
		{spiIOCWrBitsPerWord, unsafe.Pointer(&bits)},
		{spiIOCWrMaxSpeedHz, unsafe.Pointer(&speed)},
	} {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, ctl.req, uintptr(ctl.arg)); errno != 0 {
			file.Close()
			return nil, fmt.Errorf("configure spi device: %w", errno)
		}
	}

	return &APA102{
		file:  file,
		count: count,
		buf:   make([]byte, frameBytes(count)),
	}, nil
}

// Render clocks one full frame out to the strip. Brightness is the APA102
// 5-bit global level (0-31); frames shorter than the strip leave the
// remaining pixels dark.
func (a *APA102) Render(frame []Color, brightness uint8) error {
	if brightness > 31 {
		brightness = 31
	}

	buf := a.buf[:0]
	buf = append(buf, 0x00, 0x00, 0x00, 0x00)
	for i := 0; i < a.count; i++ {
		var c Color
		if i < len(frame) {
			c = frame[i]
		}
		buf = append(buf, 0xE0|brightness, c.B, c.G, c.R)
	}
	for i := 0; i < endFrameBytes(a.count); i++ {
		buf = append(buf, 0x00)
	}

	if _, err := a.file.Write(buf); err != nil {
		return fmt.Errorf("write led frame: %w", err)
	}
	return nil
}

// Close blanks the strip and releases the spidev node.
func (a *APA102) Close() error {
	renderErr := a.Render(nil, 0)
	closeErr := a.file.Close()
	if renderErr != nil {
		return renderErr
	}
	return closeErr
}

// frameBytes is the full wire size: start frame, 4 bytes per LED, end clock.
func frameBytes(count int) int {
	return 4 + count*4 + endFrameBytes(count)
}

// endFrameBytes supplies the extra clock edges the APA102 protocol needs to
// latch the final pixels: at least count/2 bits.
func endFrameBytes(count int) int {
	n := (count + 15) / 16
	if n < 1 {
		n = 1
	}
	return n
}
