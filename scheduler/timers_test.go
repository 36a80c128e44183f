package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandleCancelIsNilSafeAndIdempotent(t *testing.T) {
	var h *Handle
	h.Cancel()

	var stops atomic.Int32
	h = &Handle{stop: func() { stops.Add(1) }}
	h.Cancel()
	h.Cancel()
	assert.Equal(t, int32(1), stops.Load())
}

func TestAfterFiresOnce(t *testing.T) {
	var fired atomic.Int32
	After(5*time.Millisecond, func() { fired.Add(1) })
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestAfterCancelPreventsFiring(t *testing.T) {
	var fired atomic.Int32
	h := After(20*time.Millisecond, func() { fired.Add(1) })
	h.Cancel()
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestEveryStopsAfterCancel(t *testing.T) {
	var fired atomic.Int32
	h := Every(5*time.Millisecond, func() { fired.Add(1) })
	assert.Eventually(t, func() bool { return fired.Load() >= 2 }, time.Second, time.Millisecond)
	h.Cancel()
	time.Sleep(20 * time.Millisecond)
	n := fired.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, fired.Load())
}

func TestDailyAtFiresAtNextOccurrence(t *testing.T) {
	// pinned just before the trigger so the real timer expires almost
	// immediately
	clk := &fakeClock{now: time.Date(2025, 1, 15, 10, 29, 59, int(950*time.Millisecond), time.UTC)}
	var fired atomic.Int32
	h := DailyAt(clk, time.UTC, DayClock{Hour: 10, Minute: 30}, func(time.Time) { fired.Add(1) })
	defer h.Cancel()
	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestDailyAtCancelPreventsFiring(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
	var fired atomic.Int32
	h := DailyAt(clk, time.UTC, DayClock{Hour: 10, Minute: 30}, func(time.Time) { fired.Add(1) })
	h.Cancel()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, fired.Load())
}
