package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transit-panel/ztm-departures/timetable"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func snapshotWith(clocks ...string) *timetable.Snapshot {
	readings := make([]timetable.Reading, 0, len(clocks))
	for _, c := range clocks {
		readings = append(readings, timetable.Reading{Headsign: "Centrum", Clock: c, Route: "some route"})
	}
	return &timetable.Snapshot{Readings: readings, FetchedAt: time.Now()}
}

// newTestScheduler wires a scheduler with deterministic jitter and no real
// sleeping so tests stay fast.
func newTestScheduler(t *testing.T, fetch FetchFunc, cfg Config) *Scheduler {
	t.Helper()
	if cfg.Clock == nil {
		cfg.Clock = &fakeClock{now: time.Date(2025, 1, 15, 22, 30, 0, 0, time.UTC)}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	s := New(fetch, cfg)
	s.jitter = func() time.Duration { return 0 }
	s.sleep = func(time.Duration) {}
	return s
}

func TestInitialRefreshPopulatesSnapshot(t *testing.T) {
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		return snapshotWith("22:45:00", "23:10:00"), nil
	}, Config{Name: "line_520_from_7009_01"})
	s.Start(context.Background())
	defer s.Shutdown()

	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.Len(t, snap.Readings, 2)

	_, ok = s.LastSuccess()
	assert.True(t, ok)
}

func TestFailedInitialFetchDoesNotBlockStartup(t *testing.T) {
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		return timetable.Empty(nil, time.Now()), errors.New("upstream down")
	}, Config{})
	s.Start(context.Background())
	defer s.Shutdown()

	snap, ok := s.Snapshot()
	assert.False(t, ok)
	assert.Nil(t, snap)
}

func TestEmptySnapshotIsNotAbsence(t *testing.T) {
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		return timetable.Empty(nil, time.Now()), nil
	}, Config{})
	s.Start(context.Background())
	defer s.Shutdown()

	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.Empty(t, snap.Readings)
}

func TestStaleSnapshotRetainedAcrossFailures(t *testing.T) {
	var calls atomic.Int32
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		if calls.Add(1) == 1 {
			return snapshotWith("22:45:00"), nil
		}
		return timetable.Empty(nil, time.Now()), errors.New("upstream down")
	}, Config{})
	s.Start(context.Background())
	defer s.Shutdown()

	s.refresh("interval")
	s.refresh("interval")

	snap, ok := s.Snapshot()
	require.True(t, ok)
	require.Len(t, snap.Readings, 1)
	assert.Equal(t, "22:45:00", snap.Readings[0].Clock)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestDailyRefreshFailureArmsRetry(t *testing.T) {
	var calls atomic.Int32
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		if calls.Add(1) == 1 {
			return snapshotWith("22:45:00"), nil
		}
		return timetable.Empty(nil, time.Now()), errors.New("upstream down")
	}, Config{RetryDelay: 10 * time.Millisecond})
	s.Start(context.Background())
	defer s.Shutdown()

	s.dailyRefresh(time.Now())

	s.mu.Lock()
	armed := s.retry != nil
	s.mu.Unlock()
	assert.True(t, armed)

	// the one-off retry fires and also fails; it must not reschedule
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSuccessfulRefreshClearsPendingRetry(t *testing.T) {
	var calls atomic.Int32
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		if calls.Add(1) == 2 {
			return timetable.Empty(nil, time.Now()), errors.New("upstream down")
		}
		return snapshotWith("22:45:00"), nil
	}, Config{RetryDelay: time.Hour})
	s.Start(context.Background())
	defer s.Shutdown()

	s.dailyRefresh(time.Now()) // call 2, fails, arms retry
	s.refresh("interval")      // call 3, succeeds

	s.mu.Lock()
	armed := s.retry != nil
	s.mu.Unlock()
	assert.False(t, armed)
}

func TestShutdownCancelsPendingRetry(t *testing.T) {
	var calls atomic.Int32
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		if calls.Add(1) == 1 {
			return snapshotWith("22:45:00"), nil
		}
		return timetable.Empty(nil, time.Now()), errors.New("upstream down")
	}, Config{RetryDelay: 20 * time.Millisecond})
	s.Start(context.Background())

	s.dailyRefresh(time.Now())
	before := calls.Load()
	s.Shutdown()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, calls.Load(), "retry fetch ran after shutdown")

	_, ok := s.Snapshot()
	assert.False(t, ok, "snapshot survived shutdown")
}

func TestShutdownDiscardsInFlightResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return snapshotWith("22:45:00"), nil
	}, Config{})

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()
	<-started
	s.Shutdown()
	close(release)
	<-done

	_, ok := s.Snapshot()
	assert.False(t, ok)
}

// stepClock replays a fixed sequence of instants, then repeats the last one.
type stepClock struct {
	mu    sync.Mutex
	times []time.Time
	idx   int
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.idx
	if i >= len(c.times) {
		i = len(c.times) - 1
	}
	c.idx++
	return c.times[i]
}

func TestDayChangeGuardSchedulesRefetch(t *testing.T) {
	// first Now() records the initial success just before midnight, the
	// second one (Start's day check) lands on the next calendar day
	clk := &stepClock{times: []time.Time{
		time.Date(2025, 1, 15, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 1, 16, 0, 0, 1, 0, time.UTC),
	}}
	var calls atomic.Int32
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		calls.Add(1)
		return snapshotWith("22:45:00"), nil
	}, Config{Clock: clk})
	s.Start(context.Background())
	defer s.Shutdown()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestForceRefreshFallsBackToStale(t *testing.T) {
	var calls atomic.Int32
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		if calls.Add(1) == 1 {
			return snapshotWith("22:45:00"), nil
		}
		return timetable.Empty(nil, time.Now()), errors.New("upstream down")
	}, Config{})
	s.Start(context.Background())
	defer s.Shutdown()

	snap, err := s.ForceRefresh()
	require.NoError(t, err)
	assert.Len(t, snap.Readings, 1)
}

func TestForceRefreshWithoutAnyDataReturnsError(t *testing.T) {
	s := newTestScheduler(t, func(ctx context.Context) (*timetable.Snapshot, error) {
		return timetable.Empty(nil, time.Now()), errors.New("upstream down")
	}, Config{})
	s.Start(context.Background())
	defer s.Shutdown()

	_, err := s.ForceRefresh()
	assert.Error(t, err)
}
