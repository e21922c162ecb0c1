//go:build linux

package main

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOReader decodes the slider position from two active-low hall sensor
// lines, one at each end of the slider travel.
type GPIOReader struct {
	chip   *gpiocdev.Chip
	top    *gpiocdev.Line
	bottom *gpiocdev.Line
}

// NewGPIOReader requests the two sensor lines as pulled-up inputs.
func NewGPIOReader(chipName string, topLine, bottomLine int) (*GPIOReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	top, err := chip.RequestLine(topLine, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request top line %d: %w", topLine, err)
	}

	bottom, err := chip.RequestLine(bottomLine, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		top.Close()
		chip.Close()
		return nil, fmt.Errorf("request bottom line %d: %w", bottomLine, err)
	}

	return &GPIOReader{chip: chip, top: top, bottom: bottom}, nil
}

// Read samples both lines and decodes the position.
func (r *GPIOReader) Read() (SliderPosition, error) {
	topRaw, err := r.top.Value()
	if err != nil {
		return 0, fmt.Errorf("%w: read top line: %v", ErrHardware, err)
	}
	bottomRaw, err := r.bottom.Value()
	if err != nil {
		return 0, fmt.Errorf("%w: read bottom line: %v", ErrHardware, err)
	}
	return decodeHallLines(topRaw == 0, bottomRaw == 0)
}

// Close releases the GPIO lines.
func (r *GPIOReader) Close() error {
	var errs []error
	if r.top != nil {
		if err := r.top.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close top line: %w", err))
		}
	}
	if r.bottom != nil {
		if err := r.bottom.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bottom line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
