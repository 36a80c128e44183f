package stopinfo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func pair(k, v string) map[string]any {
	return map[string]any{"key": k, "value": v}
}

func stopEntry(groupID, post, name string) map[string]any {
	return map[string]any{"values": []any{
		pair("zespol", groupID),
		pair("slupek", post),
		pair("nazwa_zespolu", name),
		pair("ulica_id", "1203"),
	}}
}

func payloadWith(entries ...any) map[string]any {
	return map[string]any{"result": entries}
}

// countingFetch returns payloads in sequence and counts calls.
type countingFetch struct {
	payloads []map[string]any
	calls    int
}

func (c *countingFetch) fetch(_ context.Context) map[string]any {
	c.calls++
	if len(c.payloads) == 0 {
		return nil
	}
	p := c.payloads[0]
	if len(c.payloads) > 1 {
		c.payloads = c.payloads[1:]
	}
	return p
}

func newTestCache(fetch FetchFunc, clk *fakeClock) *Cache {
	return newCache("7009", "01", 0, fetch, clk, func(time.Duration) {})
}

func TestMetadataExactMatch(t *testing.T) {
	f := &countingFetch{payloads: []map[string]any{payloadWith(
		stopEntry("7009", "02", "Marszałkowska"),
		stopEntry("7009", "01", "Marszałkowska"),
		stopEntry("7010", "01", "Politechnika"),
	)}}
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	c := newTestCache(f.fetch, clk)

	meta := c.Metadata(context.Background())
	require.NotNil(t, meta)
	assert.Equal(t, "Marszałkowska", meta[StopNameAlias])
	assert.Equal(t, "1203", meta["ulica_id"])
	assert.NotContains(t, meta, "zespol")
	assert.NotContains(t, meta, "slupek")

	// Second call is served from memory.
	c.Metadata(context.Background())
	assert.Equal(t, 1, f.calls)
}

func TestMetadataFallbackToGroupMatch(t *testing.T) {
	f := &countingFetch{payloads: []map[string]any{payloadWith(
		stopEntry("7009", "05", "Marszałkowska"),
	)}}
	c := newTestCache(f.fetch, &fakeClock{now: time.Unix(1700000000, 0)})

	meta := c.Metadata(context.Background())
	require.NotNil(t, meta)
	assert.Equal(t, "Marszałkowska", meta[StopNameAlias])
}

func TestPermanentMissingAfterThreeFailures(t *testing.T) {
	f := &countingFetch{} // always nil payload
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	c := newTestCache(f.fetch, clk)

	for i := 0; i < 3; i++ {
		assert.Nil(t, c.Metadata(context.Background()))
		clk.now = clk.now.Add(7 * time.Hour) // step past every backoff window
	}
	require.True(t, c.PermanentMissing())
	assert.Equal(t, 3, f.calls)

	// Once permanently missing, no amount of calls reaches the network.
	for i := 0; i < 1000; i++ {
		assert.Nil(t, c.Metadata(context.Background()))
	}
	assert.Equal(t, 3, f.calls)
}

func TestBackoffWindowSuppressesFetch(t *testing.T) {
	f := &countingFetch{}
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	c := newTestCache(f.fetch, clk)

	c.Metadata(context.Background())
	assert.Equal(t, 1, f.calls)

	// Inside the first (2h) window nothing happens.
	clk.now = clk.now.Add(time.Hour)
	c.Metadata(context.Background())
	assert.Equal(t, 1, f.calls)

	// Past the window the next attempt goes out.
	clk.now = clk.now.Add(90 * time.Minute)
	c.Metadata(context.Background())
	assert.Equal(t, 2, f.calls)
}

func TestStringResultRetriesOnce(t *testing.T) {
	var slept []time.Duration
	f := &countingFetch{payloads: []map[string]any{
		{"result": "Bramka błędu"},
		payloadWith(stopEntry("7009", "01", "Marszałkowska")),
	}}
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	c := newCache("7009", "01", 0, f.fetch, clk, func(d time.Duration) { slept = append(slept, d) })

	meta := c.Metadata(context.Background())
	require.NotNil(t, meta)
	assert.Equal(t, 2, f.calls)
	require.Len(t, slept, 1)
	assert.Equal(t, stringResultRetryDelay, slept[0])
}

func TestStringResultPersistingIsAFailure(t *testing.T) {
	f := &countingFetch{payloads: []map[string]any{
		{"result": "false"},
	}}
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	c := newTestCache(f.fetch, clk)

	assert.Nil(t, c.Metadata(context.Background()))
	assert.Equal(t, 2, f.calls) // original call plus the one transient retry
}

func TestResetReenablesFetching(t *testing.T) {
	f := &countingFetch{}
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	c := newTestCache(f.fetch, clk)

	for i := 0; i < 3; i++ {
		c.Metadata(context.Background())
		clk.now = clk.now.Add(7 * time.Hour)
	}
	require.True(t, c.PermanentMissing())

	c.Reset()
	require.False(t, c.PermanentMissing())

	f.payloads = []map[string]any{payloadWith(stopEntry("7009", "01", "Marszałkowska"))}
	meta := c.Metadata(context.Background())
	assert.NotNil(t, meta)
}
