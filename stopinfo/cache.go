package stopinfo

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/MKuranowski/go-extra-lib/clock"
	"github.com/bluele/gcache"

	"github.com/transit-panel/ztm-departures/timetable"
)

// Stop-info entry field names of the dbstore_get endpoint.
const (
	keyStopGroupID   = "zespol"
	keyStopPost      = "slupek"
	keyStopGroupName = "nazwa_zespolu"

	// StopNameAlias mirrors the group name under a stable-English key so
	// consumers do not need to know the upstream field naming.
	StopNameAlias = "stop_name"
)

const (
	attemptCeiling         = 3
	stringResultRetryDelay = 800 * time.Millisecond
	cacheSize              = 8
)

// retryBackoff is the escalating wait between failed attempts; the last
// entry repeats for any further attempt before the ceiling.
var retryBackoff = []time.Duration{2 * time.Hour, 6 * time.Hour}

// FetchFunc issues one GET against the stop-info endpoint and returns the
// decoded JSON payload. A nil map is the failure sentinel; implementations
// must not return an error.
type FetchFunc func(ctx context.Context) map[string]any

// Cache holds stop metadata for a single (stop id, post number) pair.
type Cache struct {
	stopID string
	stopNr string
	fetch  FetchFunc

	clk   clock.Interface
	sleep func(time.Duration)

	mu               sync.Mutex
	store            gcache.Cache
	ttl              time.Duration
	attempts         int
	nextAttempt      time.Time
	permanentMissing bool
}

// New creates a cache for the given stop. ttl of zero means a cached value
// never expires.
func New(stopID, stopNr string, ttl time.Duration, fetch FetchFunc) *Cache {
	return newCache(stopID, stopNr, ttl, fetch, clock.System, time.Sleep)
}

func newCache(stopID, stopNr string, ttl time.Duration, fetch FetchFunc, clk clock.Interface, sleep func(time.Duration)) *Cache {
	builder := gcache.New(cacheSize).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &Cache{
		stopID: stopID,
		stopNr: stopNr,
		ttl:    ttl,
		fetch:  fetch,
		clk:    clk,
		sleep:  sleep,
		store:  builder.Build(),
	}
}

func (c *Cache) key() string { return c.stopID + "/" + c.stopNr }

// Metadata returns the stop metadata, fetching it at most once per backoff
// window. It returns nil when no metadata is available: cache empty and
// permanently missing, still inside a backoff window, or the fetch failed.
func (c *Cache) Metadata(ctx context.Context) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, err := c.store.Get(c.key()); err == nil {
		if meta, ok := v.(map[string]string); ok {
			return meta
		}
	}
	if c.permanentMissing {
		return nil
	}
	now := c.clk.Now()
	if !c.nextAttempt.IsZero() && now.Before(c.nextAttempt) {
		return nil
	}

	meta, ok := c.lookup(ctx)
	if !ok {
		c.recordFailure(now)
		return nil
	}
	c.attempts = 0
	c.nextAttempt = time.Time{}
	c.permanentMissing = false
	_ = c.store.Set(c.key(), meta)
	return meta
}

// PermanentMissing reports whether the cache has given up on this stop.
func (c *Cache) PermanentMissing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permanentMissing
}

// Reset clears the cached value and all failure state, re-enabling network
// attempts. Called on integration reload.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(c.key())
	c.attempts = 0
	c.nextAttempt = time.Time{}
	c.permanentMissing = false
}

func (c *Cache) recordFailure(now time.Time) {
	c.attempts++
	if c.attempts >= attemptCeiling {
		c.permanentMissing = true
		c.nextAttempt = time.Time{}
		log.Printf("stop info [%s/%s]: giving up after %d attempts", c.stopID, c.stopNr, c.attempts)
		return
	}
	idx := c.attempts - 1
	if idx >= len(retryBackoff) {
		idx = len(retryBackoff) - 1
	}
	c.nextAttempt = now.Add(retryBackoff[idx])
	log.Printf("stop info [%s/%s]: attempt %d failed, next try after %s", c.stopID, c.stopNr, c.attempts, retryBackoff[idx])
}

// lookup performs one network round and extracts the matching entry.
func (c *Cache) lookup(ctx context.Context) (map[string]string, bool) {
	payload := c.fetch(ctx)
	if payload == nil {
		return nil, false
	}

	result, present := payload["result"]
	if !present || result == nil {
		log.Printf("stop info [%s/%s]: empty result", c.stopID, c.stopNr)
		return nil, false
	}

	// ZTM sometimes returns a localized string message instead of a list;
	// treat any string result as transient and retry once after a short
	// delay before giving up on this attempt.
	if _, isString := result.(string); isString {
		c.sleep(stringResultRetryDelay)
		retry := c.fetch(ctx)
		if retry == nil {
			return nil, false
		}
		result = retry["result"]
	}

	entries, ok := result.([]any)
	if !ok {
		log.Printf("stop info [%s/%s]: unexpected result type %T", c.stopID, c.stopNr, result)
		return nil, false
	}

	var fallback map[string]string
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		values, ok := obj["values"].([]any)
		if !ok {
			continue
		}
		kv := timetable.FlattenPairs(values)
		if kv[keyStopGroupID] != c.stopID {
			continue
		}
		if kv[keyStopPost] == c.stopNr {
			return metadataFrom(kv), true
		}
		if fallback == nil {
			fallback = metadataFrom(kv)
		}
	}
	if fallback != nil {
		return fallback, true
	}

	log.Printf("stop info [%s/%s]: no matching entry", c.stopID, c.stopNr)
	return nil, false
}

// metadataFrom strips the lookup keys and adds the stop_name alias.
func metadataFrom(kv map[string]string) map[string]string {
	meta := make(map[string]string, len(kv))
	for k, v := range kv {
		if k == keyStopGroupID || k == keyStopPost {
			continue
		}
		meta[k] = v
	}
	if name, ok := meta[keyStopGroupName]; ok {
		meta[StopNameAlias] = name
	}
	return meta
}
