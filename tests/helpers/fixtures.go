// Package helpers builds wire-level fixtures for the open-data API used in
// integration tests.
package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
)

// Row is one timetable entry in flattened form; the fixture expands it to
// the key/value pair list the API actually sends.
type Row map[string]string

// pairList converts a flat map into the API's list-of-pairs row shape.
func pairList(row Row) []map[string]any {
	pairs := make([]map[string]any, 0, len(row))
	for k, v := range row {
		pairs = append(pairs, map[string]any{"key": k, "value": v})
	}
	return pairs
}

// TimetableResult wraps rows into a {"result": [...]} payload.
func TimetableResult(rows ...Row) []byte {
	result := make([]any, 0, len(rows))
	for _, row := range rows {
		result = append(result, pairList(row))
	}
	data, _ := json.Marshal(map[string]any{"result": result})
	return data
}

// Departure builds a typical timetable row for the given clock value.
func Departure(clock, headsign string) Row {
	return Row{
		"czas":      clock,
		"kierunek":  headsign,
		"trasa":     "TP-OST",
		"brygada":   "012",
		"symbol_1":  "null",
		"symbol_2":  "null",
	}
}

// StopInfoResult wraps stop entries into a {"result": [...]} payload. The
// dbstore endpoint nests each entry's pair list under a "values" field.
func StopInfoResult(entries ...Row) []byte {
	result := make([]any, 0, len(entries))
	for _, e := range entries {
		result = append(result, map[string]any{"values": pairList(e)})
	}
	data, _ := json.Marshal(map[string]any{"result": result})
	return data
}

// StopEntry builds a stop-metadata row for the given complex/post pair.
func StopEntry(stopID, stopNr, name string) Row {
	return Row{
		"zespol":        stopID,
		"slupek":        stopNr,
		"nazwa_zespolu": name,
		"id_ulicy":      "2201",
		"obowiazuje_od": "2024-01-01 00:00:00.0",
	}
}

// APIStub emulates both open-data endpoints on one httptest server,
// dispatching on the resource id parameter.
type APIStub struct {
	Server *httptest.Server

	// Timetable, StopInfo and LineCheck are the raw response bodies; set
	// them before issuing requests.
	Timetable []byte
	StopInfo  []byte
	LineCheck []byte

	// Requests records the query values of every call in order.
	Requests []url.Values
}

// Resource ids the stub dispatches on; anything else is treated as a
// stop-info lookup.
const (
	timetableResourceID = "e923fa0e-d96c-43f9-ae6e-60518c9f3238"
	lineCheckResourceID = "88cd555f-6f31-43ca-9de4-66c479ad5942"
)

// LinesResult builds a line-check payload listing the given lines.
func LinesResult(lines ...string) []byte {
	result := make([]any, 0, len(lines))
	for _, l := range lines {
		result = append(result, map[string]any{"values": pairList(Row{"linia": l})})
	}
	data, _ := json.Marshal(map[string]any{"result": result})
	return data
}

// NewAPIStub starts the stub server. Callers own the returned stub and must
// Close it.
func NewAPIStub() *APIStub {
	s := &APIStub{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.Requests = append(s.Requests, q)
		w.Header().Set("Content-Type", "application/json")
		switch q.Get("id") {
		case timetableResourceID:
			_, _ = w.Write(s.Timetable)
		case lineCheckResourceID:
			_, _ = w.Write(s.LineCheck)
		default:
			_, _ = w.Write(s.StopInfo)
		}
	}))
	return s
}

// Close shuts the stub server down.
func (s *APIStub) Close() { s.Server.Close() }

// URL returns the stub's base URL, usable for both endpoint overrides.
func (s *APIStub) URL() string { return s.Server.URL }
