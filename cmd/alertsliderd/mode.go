package main

import (
	"fmt"
	"strconv"
	"strings"
)

// LogicalMode is the user-assigned meaning of a slider position.
type LogicalMode int

// Values double as the preference encoding ("0".."4").
const (
	ModeSilent LogicalMode = iota
	ModeVibrate
	ModeNormal
	ModePriorityOnly
	ModeTotalSilence
)

// allModes lists every LogicalMode; the policy table is checked against it.
var allModes = []LogicalMode{
	ModeSilent,
	ModeVibrate,
	ModeNormal,
	ModePriorityOnly,
	ModeTotalSilence,
}

func (m LogicalMode) String() string {
	switch m {
	case ModeSilent:
		return "silent"
	case ModeVibrate:
		return "vibrate"
	case ModeNormal:
		return "normal"
	case ModePriorityOnly:
		return "priority_only"
	case ModeTotalSilence:
		return "total_silence"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is a declared mode.
func (m LogicalMode) Valid() bool {
	return m >= ModeSilent && m <= ModeTotalSilence
}

// ParseLogicalMode decodes either the stored integer form or a mode name.
func ParseLogicalMode(s string) (LogicalMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		m := LogicalMode(n)
		if !m.Valid() {
			return 0, fmt.Errorf("mode %d out of range", n)
		}
		return m, nil
	}
	for _, m := range allModes {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Settings is the user configuration read from the preference store for
// one event. PositionModes holds the raw stored values; decoding (and the
// fallback for corrupt values) happens in ResolveMode.
type Settings struct {
	PositionModes map[SliderPosition]string

	MuteMediaOnSilent         bool
	ShowTransientNotification bool
	PreserveZenOnExitSilent   bool
}

// DefaultModeFor is the mapping used when the stored value for a position
// is missing or unparseable: top silent, middle vibrate, bottom normal.
func DefaultModeFor(p SliderPosition) LogicalMode {
	switch p {
	case PositionTop:
		return ModeSilent
	case PositionMiddle:
		return ModeVibrate
	default:
		return ModeNormal
	}
}

// ResolveMode maps a position through the user's settings. It never fails:
// a missing or corrupt entry resolves to DefaultModeFor(p).
func ResolveMode(p SliderPosition, s Settings) LogicalMode {
	raw, ok := s.PositionModes[p]
	if !ok {
		return DefaultModeFor(p)
	}
	m, err := ParseLogicalMode(raw)
	if err != nil {
		return DefaultModeFor(p)
	}
	return m
}
