package ztmdepartures

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/transit-panel/ztm-departures/config"
	"github.com/transit-panel/ztm-departures/lines"
	"github.com/transit-panel/ztm-departures/stopinfo"
)

type departureJSON struct {
	Time      string `json:"time"`
	Headsign  string `json:"headsign"`
	Route     string `json:"route,omitempty"`
	Brigade   string `json:"brigade,omitempty"`
	Night     bool   `json:"night"`
	Departure string `json:"departure"`
	InMinutes int    `json:"in_minutes"`
}

type departuresResponse struct {
	Line        string            `json:"line"`
	LineType    string            `json:"line_type"`
	StopID      string            `json:"stop_id"`
	StopNr      string            `json:"stop_nr"`
	StopName    string            `json:"stop_name,omitempty"`
	GeneratedAt string            `json:"generated_at"`
	FetchedAt   string            `json:"fetched_at"`
	Departures  []departureJSON   `json:"departures"`
	StopInfo    map[string]string `json:"stop_info,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code})
}

// handleDeparturesJSON serves the current snapshot for one subscription,
// selected by the "stop" query parameter (subscription name; the first
// configured one when absent). A subscription that has never fetched
// successfully answers 503; a successfully fetched empty timetable answers
// 200 with an empty departures list.
func handleDeparturesJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	handle := findHandle(r.URL.Query().Get("stop"))
	if handle == nil {
		writeError(w, http.StatusNotFound, "unknown_stop")
		return
	}

	snap, ok := handle.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no_data")
		return
	}

	loc := handle.Location()
	now := time.Now().In(loc)
	stopID, stopNr := handle.Stop()
	resp := departuresResponse{
		Line:        handle.Line(),
		LineType:    lines.TypeOf(handle.Line()),
		StopID:      stopID,
		StopNr:      stopNr,
		StopName:    snap.StopInfo[stopinfo.StopNameAlias],
		GeneratedAt: now.Format(time.RFC3339),
		FetchedAt:   snap.FetchedAt.In(loc).Format(time.RFC3339),
		Departures:  []departureJSON{},
		StopInfo:    snap.StopInfo,
	}

	limit := config.Config.Display.MaxDepartures
	for _, reading := range snap.Readings {
		if limit > 0 && len(resp.Departures) >= limit {
			break
		}
		when, ok := reading.DepartureTime(now, loc)
		if !ok {
			continue
		}
		resp.Departures = append(resp.Departures, departureJSON{
			Time:      reading.Clock,
			Headsign:  reading.Headsign,
			Route:     reading.Route,
			Brigade:   reading.Brigade,
			Night:     reading.NightService(),
			Departure: when.Format(time.RFC3339),
			InMinutes: reading.MinutesToDepart(now, loc),
		})
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// findHandle selects a subscription by name; empty name means the first one.
func findHandle(name string) *ClientHandle {
	if name == "" {
		if len(registry) > 0 {
			return registry[0]
		}
		return nil
	}
	for _, h := range registry {
		if h.Name() == name {
			return h
		}
	}
	return nil
}
