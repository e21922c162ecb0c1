package main

import (
	"fmt"
	"log/slog"
	"time"
)

// ZenPreserveRule selects when an enabled "preserve zen" preference keeps
// the current zen mode instead of writing the target.
type ZenPreserveRule string

const (
	// ZenPreservePermissiveOnly keeps a restrictive zen mode only when the
	// target would turn zen off.
	ZenPreservePermissiveOnly ZenPreserveRule = "permissive-only"
	// ZenPreserveAnyRelaxation keeps the current zen mode whenever the
	// target is less restrictive than it.
	ZenPreserveAnyRelaxation ZenPreserveRule = "any-relaxation"
)

// Valid reports whether r is a known rule.
func (r ZenPreserveRule) Valid() bool {
	return r == ZenPreservePermissiveOnly || r == ZenPreserveAnyRelaxation
}

// ReconcilerState is the state the reconciler keeps between events.
type ReconcilerState struct {
	// PreviousMode is the last mode that was fully applied.
	PreviousMode LogicalMode

	LastPosition  SliderPosition
	LastAppliedAt time.Time
	Applied       uint64
}

// NewReconcilerState returns the boot state. The reconciler assumes the
// device starts in normal mode.
func NewReconcilerState() *ReconcilerState {
	return &ReconcilerState{PreviousMode: ModeNormal}
}

// SliderChange is one resolved slider transition to apply.
type SliderChange struct {
	Position SliderPosition
	Mode     LogicalMode
	Settings Settings
	At       time.Time
}

// ReconcilerConfig holds the tunables.
type ReconcilerConfig struct {
	RecheckDelay time.Duration
	ZenRule      ZenPreserveRule
}

// Reconciler drives ringer, zen and haptic state to match a logical mode.
// It is owned by the daemon loop and is not safe for concurrent use.
type Reconciler struct {
	cfg      ReconcilerConfig
	state    *ReconcilerState
	audio    AudioService
	zen      NotificationPolicy
	haptics  Haptics
	notifier Notifier
	volume   *VolumeMemory
	debounce *Debouncer
	metrics  *Metrics
	logger   *slog.Logger
}

// ReconcilerDeps groups the ports a Reconciler drives.
type ReconcilerDeps struct {
	Audio    AudioService
	Zen      NotificationPolicy
	Haptics  Haptics
	Notifier Notifier
	Volume   *VolumeMemory
	Debounce *Debouncer
	Metrics  *Metrics
}

// NewReconciler builds a Reconciler starting from state.
func NewReconciler(cfg ReconcilerConfig, state *ReconcilerState, deps ReconcilerDeps, logger *slog.Logger) *Reconciler {
	if cfg.RecheckDelay <= 0 {
		cfg.RecheckDelay = defaultRecheckDelay
	}
	if !cfg.ZenRule.Valid() {
		cfg.ZenRule = ZenPreservePermissiveOnly
	}
	return &Reconciler{
		cfg:      cfg,
		state:    state,
		audio:    deps.Audio,
		zen:      deps.Zen,
		haptics:  deps.Haptics,
		notifier: deps.Notifier,
		volume:   deps.Volume,
		debounce: deps.Debounce,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// Apply reconciles platform state to ch.Mode.
//
// On error the transition is abandoned part way and PreviousMode is left
// unchanged, so the next event is computed against the last mode that was
// fully applied.
func (r *Reconciler) Apply(ch SliderChange) error {
	start := time.Now()

	// Any earlier re-check is obsolete the moment a new event arrives.
	r.debounce.CancelAll()

	target, err := PolicyFor(ch.Mode)
	if err != nil {
		r.metrics.applyError("policy")
		return err
	}

	prev := r.state.PreviousMode
	log := r.logger.With("from", prev.String(), "to", ch.Mode.String(), "position", ch.Position.String())

	if prev == ModeTotalSilence && ch.Mode != ModeTotalSilence {
		// Leaving total silence: zen must be relaxed before the ringer is
		// written, otherwise the platform pins the ringer to silent.
		if err := r.writeZen(target.Zen, log); err != nil {
			r.metrics.applyError("zen")
			return err
		}
		if err := r.writeRinger(target.Ringer); err != nil {
			r.metrics.applyError("ringer")
			return err
		}
		r.playHaptic(target.Haptic, log)
		r.scheduleRecheck(target.Ringer, log)
	} else {
		r.playHaptic(target.Haptic, log)
		if err := r.writeRinger(target.Ringer); err != nil {
			r.metrics.applyError("ringer")
			return err
		}
		skip, err := r.preserveZen(ch.Settings, target.Zen)
		if err != nil {
			r.metrics.applyError("zen")
			return err
		}
		if skip {
			log.Debug("keeping current zen mode", "target_zen", target.Zen.String())
		} else if err := r.writeZen(target.Zen, log); err != nil {
			r.metrics.applyError("zen")
			return err
		}
	}

	if ch.Settings.MuteMediaOnSilent {
		if err := r.syncMediaMute(prev, ch.Mode, log); err != nil {
			r.metrics.applyError("volume")
			return err
		}
	}

	at := ch.At
	if at.IsZero() {
		at = start
	}
	if ch.Settings.ShowTransientNotification && r.notifier != nil {
		r.notifier.SliderUpdated(SliderUpdate{Position: ch.Position, Mode: ch.Mode, At: at})
	}

	r.state.PreviousMode = ch.Mode
	r.state.LastPosition = ch.Position
	r.state.LastAppliedAt = at
	r.state.Applied++

	r.metrics.transition(prev, ch.Mode, time.Since(start))
	log.Info("slider mode applied",
		"ringer", target.Ringer.String(),
		"zen", target.Zen.String(),
	)
	return nil
}

// HandleRecheck runs the pending re-check if tok is still current.
func (r *Reconciler) HandleRecheck(tok RecheckToken) error {
	fired, err := r.debounce.Fire(tok)
	if !fired {
		r.metrics.recheck("superseded")
		r.logger.Debug("stale re-check ignored", "token", uint64(tok))
		return nil
	}
	if err != nil {
		r.metrics.recheck("failed")
		return err
	}
	return nil
}

// Snapshot returns the externally visible state.
func (r *Reconciler) Snapshot() StateSnapshot {
	s := StateSnapshot{
		Mode:           r.state.PreviousMode.String(),
		RecheckPending: r.debounce.Pending(),
		Applied:        r.state.Applied,
		AppliedAt:      r.state.LastAppliedAt,
	}
	if r.state.LastPosition.Valid() {
		s.Position = r.state.LastPosition.String()
	}
	return s
}

func (r *Reconciler) writeRinger(mode RingerMode) error {
	if err := r.audio.SetRingerMode(mode); err != nil {
		return fmt.Errorf("set ringer mode %s: %w", mode, err)
	}
	return nil
}

// writeZen sets the zen mode unless it already matches.
func (r *Reconciler) writeZen(target ZenMode, log *slog.Logger) error {
	cur, err := r.zen.ZenMode()
	if err != nil {
		return fmt.Errorf("read zen mode: %w", err)
	}
	if cur == target {
		log.Debug("zen mode already set", "zen", target.String())
		return nil
	}
	if err := r.zen.SetZenMode(target, zenTag); err != nil {
		return fmt.Errorf("set zen mode %s: %w", target, err)
	}
	return nil
}

// preserveZen reports whether the zen write should be skipped.
func (r *Reconciler) preserveZen(s Settings, target ZenMode) (bool, error) {
	if !s.PreserveZenOnExitSilent {
		return false, nil
	}
	cur, err := r.zen.ZenMode()
	if err != nil {
		return false, fmt.Errorf("read zen mode: %w", err)
	}
	switch r.cfg.ZenRule {
	case ZenPreserveAnyRelaxation:
		return target < cur, nil
	default:
		return cur.Restrictive() && target == ZenOff, nil
	}
}

// playHaptic is best effort; failures are logged and never abort Apply.
func (r *Reconciler) playHaptic(p HapticPattern, log *slog.Logger) {
	if p == HapticNone {
		return
	}
	if r.haptics == nil || !r.haptics.HasVibrator() {
		r.metrics.hapticSkipped("no_vibrator")
		return
	}
	if err := r.haptics.Vibrate(p); err != nil {
		r.metrics.hapticSkipped("error")
		log.Warn("haptic feedback failed", "pattern", string(p), "error", err)
	}
}

func (r *Reconciler) scheduleRecheck(want RingerMode, log *slog.Logger) {
	tok := r.debounce.Schedule(r.cfg.RecheckDelay, func() error {
		cur, err := r.audio.RingerMode()
		if err != nil {
			return fmt.Errorf("re-check ringer mode: %w", err)
		}
		if cur == want {
			r.metrics.recheck("in_sync")
			return nil
		}
		r.logger.Info("ringer mode drifted after leaving total silence, re-applying",
			"want", want.String(), "got", cur.String())
		if err := r.writeRinger(want); err != nil {
			return err
		}
		r.metrics.recheck("reasserted")
		return nil
	})
	log.Debug("ringer re-check scheduled", "token", uint64(tok), "delay", r.cfg.RecheckDelay)
}

// syncMediaMute saves and zeroes the media volume on entering silent, and
// puts it back on leaving silent if nothing else has raised it meanwhile.
func (r *Reconciler) syncMediaMute(prev, next LogicalMode, log *slog.Logger) error {
	switch {
	case next == ModeSilent && prev != ModeSilent:
		cur, err := r.audio.MediaVolume()
		if err != nil {
			return fmt.Errorf("read media volume: %w", err)
		}
		maxIdx, err := r.audio.MediaMaxVolume()
		if err != nil {
			return fmt.Errorf("read media max volume: %w", err)
		}
		pct := percentOfMax(cur, maxIdx)
		if err := r.volume.Capture(pct); err != nil {
			return err
		}
		if err := r.audio.SetMediaVolume(0); err != nil {
			return fmt.Errorf("mute media: %w", err)
		}
		log.Debug("media muted", "saved_percent", pct)

	case prev == ModeSilent && next != ModeSilent:
		cur, err := r.audio.MediaVolume()
		if err != nil {
			return fmt.Errorf("read media volume: %w", err)
		}
		if cur != 0 {
			log.Debug("media volume changed while silent, not restoring", "index", cur)
			return nil
		}
		maxIdx, err := r.audio.MediaMaxVolume()
		if err != nil {
			return fmt.Errorf("read media max volume: %w", err)
		}
		pct, err := r.volume.Retrieve()
		if err != nil {
			return err
		}
		idx := indexFromPercent(pct, maxIdx)
		if err := r.audio.SetMediaVolume(idx); err != nil {
			return fmt.Errorf("restore media volume: %w", err)
		}
		log.Debug("media volume restored", "percent", pct, "index", idx)
	}
	return nil
}
