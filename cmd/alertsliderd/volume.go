package main

import "math"

// VolumeMemory remembers the media level across a silence/un-silence cycle.
// The level is kept as a percentage of the platform maximum so it survives
// a change of the volume index range.
type VolumeMemory struct {
	prefs *Preferences
}

// NewVolumeMemory persists through prefs.
func NewVolumeMemory(prefs *Preferences) *VolumeMemory {
	return &VolumeMemory{prefs: prefs}
}

// Capture stores percent, clamped to [0,100].
func (v *VolumeMemory) Capture(percent int) error {
	return v.prefs.SetMediaLevelPercent(percent)
}

// Retrieve returns the last captured percent, or 50 if none was captured.
func (v *VolumeMemory) Retrieve() (int, error) {
	return v.prefs.MediaLevelPercent()
}

// percentOfMax converts an absolute volume index to a rounded percentage.
func percentOfMax(index, max int) int {
	if max <= 0 {
		return 0
	}
	return clampPercent(int(math.Round(float64(index) * 100 / float64(max))))
}

// indexFromPercent converts a percentage back to an absolute volume index.
func indexFromPercent(percent, max int) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(float64(max) * float64(clampPercent(percent)) / 100))
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
