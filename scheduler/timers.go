package scheduler

import (
	"sync"
	"time"

	"github.com/MKuranowski/go-extra-lib/clock"
)

// Handle cancels a pending timer. Cancel is idempotent and safe for
// concurrent use; a nil Handle is a no-op.
type Handle struct {
	once sync.Once
	stop func()
}

// Cancel stops the timer. Callbacks already running are not interrupted.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(h.stop)
}

// After fires fn once after d.
func After(d time.Duration, fn func()) *Handle {
	t := time.AfterFunc(d, fn)
	return &Handle{stop: func() { t.Stop() }}
}

// Every fires fn on a fixed interval until cancelled.
func Every(d time.Duration, fn func()) *Handle {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	return &Handle{stop: func() { close(done) }}
}

// DayClock is a fixed local wall-clock trigger time.
type DayClock struct {
	Hour   int
	Minute int
}

// DailyAt fires fn every day at the given local wall-clock time until
// cancelled. The time until the next occurrence is computed from clk, so a
// pinned clock moves the trigger deterministically.
func DailyAt(clk clock.Interface, loc *time.Location, at DayClock, fn func(now time.Time)) *Handle {
	done := make(chan struct{})
	go func() {
		for {
			now := clk.Now().In(loc)
			next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, 0, 0, loc)
			if !next.After(now) {
				next = next.AddDate(0, 0, 1)
			}
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-timer.C:
				fn(clk.Now())
			case <-done:
				timer.Stop()
				return
			}
		}
	}()
	return &Handle{stop: func() { close(done) }}
}
