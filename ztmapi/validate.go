package ztmapi

import (
	"context"

	"github.com/transit-panel/ztm-departures/timetable"
)

// ValidationStatus classifies a one-shot configuration check.
type ValidationStatus int

const (
	StatusOK ValidationStatus = iota
	StatusUnavailable
	StatusInvalidKey
	StatusLineCheckFailed
	StatusLineNotFound
	StatusNoDepartures
	StatusNoValidTimes
)

func (s ValidationStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "api_connection_error"
	case StatusInvalidKey:
		return "invalid_api_key"
	case StatusLineCheckFailed:
		return "line_check_failed"
	case StatusLineNotFound:
		return "line_not_found"
	case StatusNoDepartures:
		return "no_departures"
	case StatusNoValidTimes:
		return "no_valid_times"
	}
	return "unknown"
}

// ValidStopNumber reports whether a post number has the required two-digit
// form ("01" .. "99").
func ValidStopNumber(nr string) bool {
	if len(nr) != 2 {
		return false
	}
	for _, r := range nr {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Validate checks the configured key, stop and line against the live API so
// a host can reject bad configuration up front. The line-list resource is
// probed first: it confirms the stop exists and serves the requested line.
// Then the timetable itself is checked for usable departure times. An
// upstream string result means the API key was rejected; a null timetable
// result means the stop/line pair exists but has no departures.
func (c *Client) Validate(ctx context.Context) ValidationStatus {
	if status := c.checkLine(ctx); status != StatusOK {
		return status
	}

	payload := c.getJSON(ctx, c.endpoint, c.timetableParams())
	if payload == nil {
		return StatusUnavailable
	}

	result, present := payload["result"]
	if !present || result == nil {
		return StatusNoDepartures
	}
	if _, isString := result.(string); isString {
		return StatusInvalidKey
	}
	rows, ok := result.([]any)
	if !ok {
		return StatusUnavailable
	}

	for _, row := range rows {
		entries, ok := row.([]any)
		if !ok {
			continue
		}
		kv := timetable.FlattenPairs(entries)
		if kv["czas"] == "" {
			continue
		}
		if _, err := timetable.ParseRow(kv); err == nil {
			return StatusOK
		}
	}
	return StatusNoValidTimes
}

// checkLine queries the line-list resource for the configured stop and
// verifies the subscribed line is among the "linia" values it serves.
func (c *Client) checkLine(ctx context.Context) ValidationStatus {
	payload := c.getJSON(ctx, c.endpoint, c.lineCheckParams())
	if payload == nil {
		return StatusUnavailable
	}

	result, present := payload["result"]
	if _, isString := result.(string); isString {
		return StatusInvalidKey
	}
	if !present || result == nil {
		return StatusLineCheckFailed
	}
	entries, ok := result.([]any)
	if !ok {
		return StatusLineCheckFailed
	}

	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		values, ok := obj["values"].([]any)
		if !ok {
			continue
		}
		if timetable.FlattenPairs(values)["linia"] == c.line {
			return StatusOK
		}
	}
	return StatusLineNotFound
}
