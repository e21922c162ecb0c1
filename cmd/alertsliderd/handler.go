package main

import (
	"fmt"
	"log/slog"
)

// KeyFilter decides which key events belong to the slider.
type KeyFilter struct {
	// Sources lists accepted device names.
	Sources []string
	// Code restricts the key code; 0 accepts any code.
	Code uint16
}

func (f KeyFilter) match(ev KeyEvent) bool {
	// Code 0 is KEY_RESERVED; only synthetic events carry it.
	if f.Code != 0 && ev.Code != 0 && ev.Code != f.Code {
		return false
	}
	for _, s := range f.Sources {
		if s == ev.Source {
			return true
		}
	}
	return false
}

// KeyHandler is the entry point for raw key events. Events that are not a
// slider release are passed through untouched.
type KeyHandler struct {
	filter     KeyFilter
	reader     PositionReader
	prefs      *Preferences
	reconciler *Reconciler
	metrics    *Metrics
	logger     *slog.Logger
}

// NewKeyHandler wires a handler.
func NewKeyHandler(filter KeyFilter, reader PositionReader, prefs *Preferences, rec *Reconciler, metrics *Metrics, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		filter:     filter,
		reader:     reader,
		prefs:      prefs,
		reconciler: rec,
		metrics:    metrics,
		logger:     logger,
	}
}

// HandleKey reports whether ev was consumed. A consumed event may still
// return an error when the reconciliation itself failed.
func (h *KeyHandler) HandleKey(ev KeyEvent) (bool, error) {
	if ev.Phase != KeyPhaseUp || !h.filter.match(ev) {
		h.metrics.keyEvent("passthrough")
		return false, nil
	}

	ready, err := h.ready()
	if !ready {
		h.metrics.keyEvent("passthrough")
		return false, err
	}

	pos, err := h.reader.Read()
	if err != nil {
		// Unreadable or mid-travel: let the event go, the next release will
		// carry a settled position.
		h.metrics.keyEvent("unreadable")
		h.logger.Debug("slider position unavailable", "source", ev.Source, "error", err)
		return false, nil
	}

	return true, h.apply(pos, ev)
}

// ApplyPosition runs the reconciler for pos without consulting the
// position reader. A closed setup gate is reported as ErrSetupIncomplete.
func (h *KeyHandler) ApplyPosition(pos SliderPosition) (bool, error) {
	if !pos.Valid() {
		return false, fmt.Errorf("%w: position %d", ErrHardware, int(pos))
	}
	ready, err := h.ready()
	if err != nil {
		return false, err
	}
	if !ready {
		return false, ErrSetupIncomplete
	}
	return true, h.apply(pos, KeyEvent{Source: "simulated"})
}

func (h *KeyHandler) ready() (bool, error) {
	ok, err := h.prefs.SetupComplete()
	if err != nil {
		return false, err
	}
	if !ok {
		h.logger.Debug("ignoring slider event before setup completes")
		return false, nil
	}
	return true, nil
}

func (h *KeyHandler) apply(pos SliderPosition, ev KeyEvent) error {
	h.metrics.keyEvent("consumed")

	settings, err := h.prefs.Settings()
	if err != nil {
		return err
	}
	mode := ResolveMode(pos, settings)

	return h.reconciler.Apply(SliderChange{
		Position: pos,
		Mode:     mode,
		Settings: settings,
		At:       ev.At,
	})
}
