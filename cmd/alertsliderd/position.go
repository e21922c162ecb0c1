package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// SliderPosition is the physical state of the alert slider.
type SliderPosition int

const (
	PositionTop SliderPosition = iota + 1
	PositionMiddle
	PositionBottom
)

func (p SliderPosition) String() string {
	switch p {
	case PositionTop:
		return "top"
	case PositionMiddle:
		return "middle"
	case PositionBottom:
		return "bottom"
	default:
		return fmt.Sprintf("position(%d)", int(p))
	}
}

// Valid reports whether p is one of the three physical positions.
func (p SliderPosition) Valid() bool {
	return p >= PositionTop && p <= PositionBottom
}

// ParsePosition accepts the names used on the wire ("top", "middle",
// "bottom") as well as the raw status values ("1", "2", "3").
func ParsePosition(s string) (SliderPosition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "top":
		return PositionTop, nil
	case "2", "middle":
		return PositionMiddle, nil
	case "3", "bottom":
		return PositionBottom, nil
	default:
		return 0, fmt.Errorf("%w: unknown slider position %q", ErrHardware, s)
	}
}

// ErrHardware means the slider position could not be determined.
// The current event is treated as not applicable.
var ErrHardware = errors.New("slider hardware error")

// PositionReader obtains the current slider position from hardware.
type PositionReader interface {
	Read() (SliderPosition, error)
}

// FileReader reads the position from a single-value status file.
type FileReader struct {
	Path string
}

// NewFileReader returns a FileReader for path.
func NewFileReader(path string) *FileReader {
	return &FileReader{Path: path}
}

// Read returns the slider position. Any value other than 1, 2 or 3 is an
// ErrHardware.
func (r *FileReader) Read() (SliderPosition, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrHardware, r.Path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, fmt.Errorf("%w: read %s: %v", ErrHardware, r.Path, err)
		}
		return 0, fmt.Errorf("%w: %s is empty", ErrHardware, r.Path)
	}

	switch strings.TrimSpace(sc.Text()) {
	case "1":
		return PositionTop, nil
	case "2":
		return PositionMiddle, nil
	case "3":
		return PositionBottom, nil
	default:
		return 0, fmt.Errorf("%w: unexpected status %q in %s", ErrHardware, sc.Text(), r.Path)
	}
}
