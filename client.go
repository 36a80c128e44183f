package ztmdepartures

import (
	"context"
	"time"

	"github.com/transit-panel/ztm-departures/scheduler"
	"github.com/transit-panel/ztm-departures/timetable"
	"github.com/transit-panel/ztm-departures/ztmapi"
)

// Options bundles per-subscription tuning for Configure.
type Options struct {
	API       ztmapi.Options
	Scheduler scheduler.Config
}

// ClientHandle is one running stop/line subscription: the API client plus
// the scheduler that keeps its snapshot fresh.
type ClientHandle struct {
	line   string
	stopID string
	stopNr string
	label  string

	client *ztmapi.Client
	sched  *scheduler.Scheduler
}

// Configure builds a subscription and starts its refresh loop. The initial
// fetch happens synchronously; a failed first fetch does not fail
// Configure. Callers must Shutdown the handle when done.
func Configure(ctx context.Context, apiKey, stopID, stopNr, line string, opts Options) (*ClientHandle, error) {
	client, err := ztmapi.New(apiKey, stopID, stopNr, line, opts.API)
	if err != nil {
		return nil, err
	}

	sc := opts.Scheduler
	if sc.Name == "" {
		sc.Name = client.Name()
	}
	if sc.Location == nil {
		sc.Location = client.Location()
	}

	h := &ClientHandle{
		line:   line,
		stopID: stopID,
		stopNr: stopNr,
		label:  sc.Name,
		client: client,
		sched:  scheduler.New(client.Fetch, sc),
	}
	h.sched.Start(ctx)
	return h, nil
}

// Name returns the subscription identifier, e.g. "line_520_from_7009_01".
func (h *ClientHandle) Name() string { return h.label }

// Line returns the subscribed line designator.
func (h *ClientHandle) Line() string { return h.line }

// Stop returns the subscribed stop complex id and post number.
func (h *ClientHandle) Stop() (stopID, stopNr string) { return h.stopID, h.stopNr }

// Location returns the timezone departures are resolved in.
func (h *ClientHandle) Location() *time.Location { return h.client.Location() }

// Snapshot returns the last successful snapshot without touching the
// network. ok is false when no fetch has succeeded yet.
func (h *ClientHandle) Snapshot() (*timetable.Snapshot, bool) {
	return h.sched.Snapshot()
}

// LastSuccess returns the UTC instant of the last successful fetch.
func (h *ClientHandle) LastSuccess() (time.Time, bool) {
	return h.sched.LastSuccess()
}

// Fetch forces an immediate refresh and returns the freshest snapshot
// available. When the refresh fails but an older snapshot exists, that
// snapshot is returned instead of an error.
func (h *ClientHandle) Fetch() (*timetable.Snapshot, error) {
	return h.sched.ForceRefresh()
}

// Validate checks the subscription against the live API: key acceptance,
// stop existence and usable departure times.
func (h *ClientHandle) Validate(ctx context.Context) ztmapi.ValidationStatus {
	return h.client.Validate(ctx)
}

// Shutdown stops the refresh loop and releases the snapshot.
func (h *ClientHandle) Shutdown() {
	h.sched.Shutdown()
}
