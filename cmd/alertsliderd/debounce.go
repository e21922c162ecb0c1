package main

import "time"

// RecheckToken identifies one scheduled re-check. Tokens increase
// monotonically; only the most recently issued one can still fire.
type RecheckToken uint64

// stopper is the part of *time.Timer the debouncer needs.
type stopper interface {
	Stop() bool
}

// Debouncer holds at most one pending delayed action.
//
// The timer never runs the action itself: it posts RecheckDue into the
// daemon loop, and the loop calls Fire. This keeps the action on the same
// serialized sequence as key events. Not safe for concurrent use; only the
// daemon goroutine calls Schedule, CancelAll and Fire.
type Debouncer struct {
	post      func(Event)
	afterFunc func(time.Duration, func()) stopper

	current RecheckToken
	timer   stopper
	action  func() error
}

// NewDebouncer returns a debouncer that delivers RecheckDue events via post.
// post is called from a timer goroutine.
func NewDebouncer(post func(Event)) *Debouncer {
	return &Debouncer{
		post: post,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Schedule cancels anything pending and arranges for action to run after
// delay. The returned token is the only one Fire will honour.
func (d *Debouncer) Schedule(delay time.Duration, action func() error) RecheckToken {
	d.CancelAll()

	tok := d.current
	d.action = action
	d.timer = d.afterFunc(delay, func() {
		d.post(RecheckDue{Token: tok})
	})
	return tok
}

// CancelAll invalidates every issued token and stops the pending timer.
func (d *Debouncer) CancelAll() {
	d.current++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.action = nil
}

// Fire runs the pending action if tok is still current. A stale token is a
// no-op and reports false.
func (d *Debouncer) Fire(tok RecheckToken) (bool, error) {
	if tok != d.current || d.action == nil {
		return false, nil
	}
	action := d.action
	d.action = nil
	d.timer = nil
	return true, action()
}

// Pending reports whether an action is waiting to fire.
func (d *Debouncer) Pending() bool {
	return d.action != nil
}
