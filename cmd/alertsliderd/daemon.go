package main

import (
	"context"
	"fmt"
	"log/slog"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// Every event source posts into one channel; this goroutine is the only
// one that reads preferences, calls the reconciler or touches the
// debouncer. Re-check timers post RecheckDue back into the same channel,
// so a re-check can never interleave with a key event.
//
// ============================================================================

// runDaemon consumes events until ctx is canceled or events is closed.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	handler *KeyHandler,
	rec *Reconciler,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			dispatch(ev, handler, rec, logger)
		}
	}
}

func dispatch(ev Event, handler *KeyHandler, rec *Reconciler, logger *slog.Logger) {
	switch e := ev.(type) {
	case KeyInput:
		consumed, err := handler.HandleKey(e.Key)
		if err != nil {
			logger.Warn("slider event failed",
				"source", e.Key.Source, "consumed", consumed, "error", err)
			return
		}
		if consumed {
			logger.Debug("slider event consumed", "source", e.Key.Source, "code", e.Key.Code)
		}

	case RecheckDue:
		if err := rec.HandleRecheck(e.Token); err != nil {
			logger.Warn("ringer re-check failed", "error", err)
		}

	case SimulatePosition:
		if err := simulatePosition(handler, e.Position); err != nil {
			logger.Warn("simulated slider event failed", "position", e.Position, "error", err)
		}

	case positionRequest:
		err := simulatePosition(handler, e.position)
		if err != nil {
			logger.Warn("simulated slider event failed", "position", e.position, "error", err)
		}
		// reply is buffered by the requester.
		select {
		case e.reply <- err:
		default:
		}

	case stateRequest:
		// reply is buffered by the requester.
		select {
		case e.reply <- rec.Snapshot():
		default:
		}

	case GetState:
		// Only meaningful with a reply channel; see stateRequest.

	default:
		logger.Debug("unhandled event", "type", fmt.Sprintf("%T", ev))
	}
}

func simulatePosition(handler *KeyHandler, position string) error {
	pos, err := ParsePosition(position)
	if err != nil {
		return err
	}
	_, err = handler.ApplyPosition(pos)
	return err
}

// poster returns a function that posts into events without outliving ctx.
// It is handed to timer goroutines and input readers.
func poster(ctx context.Context, events chan<- Event) func(Event) {
	return func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
}
