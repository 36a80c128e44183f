package timetable

import "time"

// Reading is one parsed departure row for a stop/line pair.
type Reading struct {
	Headsign string
	Clock    string // "HH:MM:SS"; hour may be 24-27 for post-midnight runs
	Route    string
	Brigade  string
	Symbol1  string
	Symbol2  string
}

// Snapshot is the full result of one fetch cycle. It is immutable once
// returned and superseded wholesale by the next fetch; there is no
// incremental merge.
type Snapshot struct {
	Readings  []Reading
	StopInfo  map[string]string
	FetchedAt time.Time
}

// Empty returns a structurally valid snapshot with no readings. An empty
// snapshot means "no departures"; the absence of any snapshot means "no data
// fetched yet" — callers must not conflate the two.
func Empty(stopInfo map[string]string, fetchedAt time.Time) *Snapshot {
	return &Snapshot{Readings: []Reading{}, StopInfo: stopInfo, FetchedAt: fetchedAt}
}
