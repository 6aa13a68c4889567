package service

import (
	"context"
	"time"

	"github.com/stemsi/exstem-prep/internal/model"
)

// TimerEvent is emitted on every tick. Result is set on the tick that
// auto-submitted the session; Err when that submission failed. Ended marks the
// last event for a session that was abandoned elsewhere.
type TimerEvent struct {
	Timer  model.TimerView
	Result *model.ExamResult
	Err    error
	Ended  bool
}

// SessionClock is the part of a controller a ticker drives.
type SessionClock interface {
	Timer(now time.Time) model.TimerView
	Expire(ctx context.Context, now time.Time) (*model.ExamResult, error)
	State() model.SessionState
	Abandoned() bool
}

// RunTicker recomputes the timer of ctrl every interval and sends it on out
// until ctx is done or the session is submitted or abandoned. Expiry of a timed session
// triggers the auto-submission, which the controller guards to run once.
func RunTicker(ctx context.Context, ctrl SessionClock, interval time.Duration, clock Clock, out chan<- TimerEvent) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if !emitTick(ctx, ctrl, clock.Now(), out) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// emitTick sends one event and reports whether ticking should continue.
func emitTick(ctx context.Context, ctrl SessionClock, now time.Time, out chan<- TimerEvent) bool {
	if ctrl.Abandoned() {
		select {
		case out <- TimerEvent{Ended: true}:
		case <-ctx.Done():
		}
		return false
	}

	ev := TimerEvent{Timer: ctrl.Timer(now)}
	if ev.Timer.Expired {
		ev.Result, ev.Err = ctrl.Expire(ctx, now)
	}

	select {
	case out <- ev:
	case <-ctx.Done():
		return false
	}
	return ctrl.State() != model.SessionStateSubmitted
}
