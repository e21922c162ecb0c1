package main

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func newManualDebouncer() (*Debouncer, *manualClock, *[]Event) {
	clock := &manualClock{}
	var posted []Event
	d := NewDebouncer(func(ev Event) { posted = append(posted, ev) })
	d.afterFunc = clock.afterFunc
	return d, clock, &posted
}

func TestDebouncer_FiresCurrentToken(t *testing.T) {
	d, clock, posted := newManualDebouncer()

	ran := 0
	tok := d.Schedule(50*time.Millisecond, func() error { ran++; return nil })
	if !d.Pending() {
		t.Fatal("expected pending action")
	}
	if len(clock.timers) != 1 || clock.timers[0].delay != 50*time.Millisecond {
		t.Fatalf("timers = %+v", clock.timers)
	}

	clock.timers[0].fn()
	if len(*posted) != 1 || (*posted)[0] != (RecheckDue{Token: tok}) {
		t.Fatalf("posted = %+v", *posted)
	}

	fired, err := d.Fire(tok)
	if !fired || err != nil {
		t.Fatalf("Fire = %v, %v", fired, err)
	}
	if ran != 1 {
		t.Errorf("action ran %d times", ran)
	}
	if d.Pending() {
		t.Error("nothing should be pending after Fire")
	}

	// A duplicate delivery is a no-op.
	if fired, _ := d.Fire(tok); fired {
		t.Error("second Fire with the same token ran again")
	}
}

func TestDebouncer_ScheduleSupersedes(t *testing.T) {
	d, clock, _ := newManualDebouncer()

	var ran []string
	first := d.Schedule(time.Second, func() error { ran = append(ran, "first"); return nil })
	second := d.Schedule(time.Second, func() error { ran = append(ran, "second"); return nil })

	if second <= first {
		t.Fatalf("tokens not increasing: %d then %d", first, second)
	}
	if !clock.timers[0].stopped {
		t.Error("first timer should be stopped")
	}
	if fired, _ := d.Fire(first); fired {
		t.Error("stale token fired")
	}
	if fired, _ := d.Fire(second); !fired {
		t.Error("current token did not fire")
	}
	if len(ran) != 1 || ran[0] != "second" {
		t.Errorf("ran = %v", ran)
	}
}

func TestDebouncer_CancelAll(t *testing.T) {
	d, clock, _ := newManualDebouncer()

	tok := d.Schedule(time.Second, func() error { t.Error("cancelled action ran"); return nil })
	d.CancelAll()

	if d.Pending() {
		t.Error("pending after CancelAll")
	}
	if !clock.timers[0].stopped {
		t.Error("timer not stopped")
	}
	if fired, _ := d.Fire(tok); fired {
		t.Error("cancelled token fired")
	}
}

func TestDebouncer_ActionError(t *testing.T) {
	d, _, _ := newManualDebouncer()
	want := errors.New("boom")

	tok := d.Schedule(time.Second, func() error { return want })
	fired, err := d.Fire(tok)
	if !fired || !errors.Is(err, want) {
		t.Fatalf("Fire = %v, %v", fired, err)
	}
}

func TestDebouncer_RealTimer(t *testing.T) {
	defer goleak.VerifyNone(t)

	posted := make(chan Event, 1)
	d := NewDebouncer(func(ev Event) { posted <- ev })

	tok := d.Schedule(10*time.Millisecond, func() error { return nil })

	select {
	case ev := <-posted:
		due, ok := ev.(RecheckDue)
		if !ok || due.Token != tok {
			t.Fatalf("posted %+v, want token %d", ev, tok)
		}
		if fired, err := d.Fire(due.Token); !fired || err != nil {
			t.Fatalf("Fire = %v, %v", fired, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never posted")
	}
}

func TestDebouncer_RealTimerCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	posted := make(chan Event, 1)
	d := NewDebouncer(func(ev Event) { posted <- ev })

	d.Schedule(20*time.Millisecond, func() error { return nil })
	d.CancelAll()

	select {
	case ev := <-posted:
		t.Fatalf("cancelled timer posted %+v", ev)
	case <-time.After(60 * time.Millisecond):
	}
}
