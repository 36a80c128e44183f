package scheduler

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/MKuranowski/go-extra-lib/clock"

	"github.com/transit-panel/ztm-departures/timetable"
)

// FetchFunc retrieves a fresh snapshot. Implementations must return a
// non-nil snapshot even on failure; a non-nil error marks the fetch as
// failed.
type FetchFunc func(ctx context.Context) (*timetable.Snapshot, error)

const (
	defaultInterval   = time.Hour
	defaultJitterMax  = 45 * time.Second
	defaultRetryDelay = 120 * time.Second

	dateLayout = "2006-01-02"
)

// defaultDailyTriggers bracket the upstream schedule publication around
// 02:10 local, plus a just-past-midnight refresh for the new service day.
var defaultDailyTriggers = []DayClock{{Hour: 0, Minute: 3}, {Hour: 2, Minute: 30}}

// Config tunes one subscription's refresh behavior. Zero values fall back
// to production defaults.
type Config struct {
	Name          string
	Interval      time.Duration
	DailyTriggers []DayClock
	JitterMax     time.Duration
	RetryDelay    time.Duration
	Location      *time.Location // required
	Clock         clock.Interface
}

// Scheduler drives the refresh state machine for one subscription.
type Scheduler struct {
	name          string
	fetch         FetchFunc
	interval      time.Duration
	dailyTriggers []DayClock
	jitterMax     time.Duration
	retryDelay    time.Duration
	loc           *time.Location
	clk           clock.Interface
	sleep         func(time.Duration)
	jitter        func() time.Duration

	// fetchMu guarantees at most one in-flight fetch per subscription.
	fetchMu sync.Mutex

	mu             sync.Mutex
	snapshot       *timetable.Snapshot
	lastSuccess    time.Time // UTC
	lastSuccessDay string    // local calendar date
	retry          *Handle
	daily          []*Handle
	ticker         *Handle
	shutdown       bool
	ctx            context.Context
	cancel         context.CancelFunc
}

// New creates a Scheduler; Start must be called before it does anything.
func New(fetch FetchFunc, cfg Config) *Scheduler {
	s := &Scheduler{
		name:          cfg.Name,
		fetch:         fetch,
		interval:      cfg.Interval,
		dailyTriggers: cfg.DailyTriggers,
		jitterMax:     cfg.JitterMax,
		retryDelay:    cfg.RetryDelay,
		loc:           cfg.Location,
		clk:           cfg.Clock,
		sleep:         time.Sleep,
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.dailyTriggers == nil {
		s.dailyTriggers = defaultDailyTriggers
	}
	if s.jitterMax <= 0 {
		s.jitterMax = defaultJitterMax
	}
	if s.retryDelay <= 0 {
		s.retryDelay = defaultRetryDelay
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.clk == nil {
		s.clk = clock.System
	}
	s.jitter = func() time.Duration {
		return time.Duration(rand.Int63n(int64(s.jitterMax) + 1))
	}
	return s
}

// Start performs the initial synchronous refresh and installs the periodic
// and daily triggers. A failed first fetch does not block startup. If the
// last successful fetch happened on an earlier local calendar day, a
// near-immediate jittered re-fetch is scheduled instead of waiting for the
// next trigger.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.refresh("initial")

	today := s.clk.Now().In(s.loc).Format(dateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return
	}

	if s.lastSuccessDay != "" && s.lastSuccessDay != today {
		jitter := s.jitter()
		log.Printf("scheduler [%s]: last data is from %s, refreshing in %s", s.name, s.lastSuccessDay, jitter)
		s.retry = After(jitter, func() { s.refresh("day-change") })
	}

	for _, at := range s.dailyTriggers {
		s.daily = append(s.daily, DailyAt(s.clk, s.loc, at, s.dailyRefresh))
	}
	s.ticker = Every(s.interval, func() { s.refresh("interval") })
	log.Printf("scheduler [%s]: refresh every %s plus %d daily trigger(s)", s.name, s.interval, len(s.dailyTriggers))
}

// dailyRefresh applies jitter, refreshes, and arms the one-off retry when
// the refresh failed. A previously pending retry is always replaced.
func (s *Scheduler) dailyRefresh(now time.Time) {
	jitter := s.jitter()
	log.Printf("scheduler [%s]: daily refresh at %s, jitter %s", s.name, now.In(s.loc).Format("15:04:05"), jitter)
	s.sleep(jitter)

	if s.refresh("daily") {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return
	}
	if s.retry != nil {
		s.retry.Cancel()
	}
	log.Printf("scheduler [%s]: daily refresh failed, retrying in %s", s.name, s.retryDelay)
	s.retry = After(s.retryDelay, func() { s.refresh("retry") })
}

// refresh runs one fetch under the single-flight guard and records the
// outcome. The result of a fetch that finished after shutdown is discarded.
func (s *Scheduler) refresh(reason string) bool {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	s.mu.Lock()
	if s.shutdown || s.ctx == nil {
		s.mu.Unlock()
		return false
	}
	ctx := s.ctx
	s.mu.Unlock()

	snap, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	if err != nil || snap == nil {
		if s.snapshot != nil {
			log.Printf("scheduler [%s]: %s refresh failed, serving previous data: %v", s.name, reason, err)
		} else {
			log.Printf("scheduler [%s]: %s refresh failed, no data yet: %v", s.name, reason, err)
		}
		return false
	}

	s.logChanges(snap)
	s.snapshot = snap
	now := s.clk.Now()
	s.lastSuccess = now.UTC()
	s.lastSuccessDay = now.In(s.loc).Format(dateLayout)
	if s.retry != nil {
		s.retry.Cancel()
		s.retry = nil
	}
	return true
}

// logChanges mirrors the departure-set diffing of the original coordinator:
// count changes and time changes are worth an INFO-level line.
func (s *Scheduler) logChanges(next *timetable.Snapshot) {
	prev := s.snapshot
	switch {
	case prev == nil:
		log.Printf("scheduler [%s]: first data load, %d departures", s.name, len(next.Readings))
	case len(prev.Readings) != len(next.Readings):
		log.Printf("scheduler [%s]: departure count changed: %d -> %d", s.name, len(prev.Readings), len(next.Readings))
	default:
		for i := range prev.Readings {
			if prev.Readings[i].Clock != next.Readings[i].Clock {
				log.Printf("scheduler [%s]: departure times changed", s.name)
				return
			}
		}
	}
}

// Snapshot returns the most recent successful snapshot. ok is false when no
// fetch has succeeded yet; callers must not conflate that with an empty
// timetable.
func (s *Scheduler) Snapshot() (*timetable.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.snapshot != nil
}

// LastSuccess returns the UTC instant of the last successful fetch.
func (s *Scheduler) LastSuccess() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccess, !s.lastSuccess.IsZero()
}

// ForceRefresh runs one immediate fetch and returns the freshest snapshot
// available, falling back to the previous one when the fetch failed.
func (s *Scheduler) ForceRefresh() (*timetable.Snapshot, error) {
	s.refresh("manual")
	if snap, ok := s.Snapshot(); ok {
		return snap, nil
	}
	return nil, errors.New("no data available")
}

// Shutdown cancels every pending timer and drops the snapshot reference. A
// fetch already in flight is allowed to complete; its result is discarded.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	if s.retry != nil {
		s.retry.Cancel()
		s.retry = nil
	}
	for _, h := range s.daily {
		h.Cancel()
	}
	s.daily = nil
	if s.ticker != nil {
		s.ticker.Cancel()
		s.ticker = nil
	}
	s.snapshot = nil
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Printf("scheduler [%s]: shutdown complete", s.name)
}
