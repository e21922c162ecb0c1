package main

import (
	"errors"
	"fmt"
)

// RingerMode is the platform audio output policy.
type RingerMode int

const (
	RingerSilent RingerMode = iota
	RingerVibrate
	RingerNormal
)

func (r RingerMode) String() string {
	switch r {
	case RingerSilent:
		return "silent"
	case RingerVibrate:
		return "vibrate"
	case RingerNormal:
		return "normal"
	default:
		return fmt.Sprintf("ringer(%d)", int(r))
	}
}

// ParseRingerMode is the inverse of RingerMode.String.
func ParseRingerMode(s string) (RingerMode, error) {
	for _, r := range []RingerMode{RingerSilent, RingerVibrate, RingerNormal} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown ringer mode %q", s)
}

// ZenMode is the platform notification interruption policy.
// Values are ordered by restrictiveness.
type ZenMode int

const (
	ZenOff ZenMode = iota
	ZenImportantInterruptions
	ZenAlarms
	ZenNoInterruptions
)

func (z ZenMode) String() string {
	switch z {
	case ZenOff:
		return "off"
	case ZenImportantInterruptions:
		return "important_interruptions"
	case ZenAlarms:
		return "alarms"
	case ZenNoInterruptions:
		return "no_interruptions"
	default:
		return fmt.Sprintf("zen(%d)", int(z))
	}
}

// ParseZenMode is the inverse of ZenMode.String.
func ParseZenMode(s string) (ZenMode, error) {
	for _, z := range []ZenMode{ZenOff, ZenImportantInterruptions, ZenAlarms, ZenNoInterruptions} {
		if z.String() == s {
			return z, nil
		}
	}
	return 0, fmt.Errorf("unknown zen mode %q", s)
}

// Restrictive reports whether z blocks any interruptions.
func (z ZenMode) Restrictive() bool { return z != ZenOff }

// HapticPattern names a platform vibration effect.
type HapticPattern string

const (
	HapticNone        HapticPattern = ""
	HapticClick       HapticPattern = "click"
	HapticDoubleClick HapticPattern = "double_click"
	HapticHeavyClick  HapticPattern = "heavy_click"
	HapticThud        HapticPattern = "thud"
)

// PolicyTriple is the target platform state for one logical mode.
// Haptic is HapticNone when no confirmation is played.
type PolicyTriple struct {
	Ringer RingerMode
	Zen    ZenMode
	Haptic HapticPattern
}

// ErrUnknownMode is returned for a mode with no policy table entry.
var ErrUnknownMode = errors.New("unknown logical mode")

var policyTable = mustPolicyTable(map[LogicalMode]PolicyTriple{
	ModeNormal:       {Ringer: RingerNormal, Zen: ZenOff, Haptic: HapticNone},
	ModeVibrate:      {Ringer: RingerVibrate, Zen: ZenOff, Haptic: HapticHeavyClick},
	ModeSilent:       {Ringer: RingerSilent, Zen: ZenOff, Haptic: HapticDoubleClick},
	ModePriorityOnly: {Ringer: RingerVibrate, Zen: ZenImportantInterruptions, Haptic: HapticClick},
	ModeTotalSilence: {Ringer: RingerSilent, Zen: ZenNoInterruptions, Haptic: HapticThud},
})

// mustPolicyTable panics at start-up if a declared mode has no entry.
func mustPolicyTable(t map[LogicalMode]PolicyTriple) map[LogicalMode]PolicyTriple {
	for _, m := range allModes {
		if _, ok := t[m]; !ok {
			panic(fmt.Sprintf("policy table has no entry for %s", m))
		}
	}
	return t
}

// PolicyFor returns the target triple for mode.
func PolicyFor(mode LogicalMode) (PolicyTriple, error) {
	p, ok := policyTable[mode]
	if !ok {
		return PolicyTriple{}, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	return p, nil
}
