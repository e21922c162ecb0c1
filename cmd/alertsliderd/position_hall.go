package main

import "fmt"

// decodeHallLines maps the two end-stop sensors onto a slider position.
// Neither sensor active means the slider rests in the middle detent.
func decodeHallLines(topActive, bottomActive bool) (SliderPosition, error) {
	switch {
	case topActive && bottomActive:
		return 0, fmt.Errorf("%w: both hall sensors active", ErrHardware)
	case topActive:
		return PositionTop, nil
	case bottomActive:
		return PositionBottom, nil
	default:
		return PositionMiddle, nil
	}
}
