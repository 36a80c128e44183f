package timetable

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Source field names used by the dbtimetable_get endpoint.
const (
	keyClock    = "czas"
	keyHeadsign = "kierunek"
	keyRoute    = "trasa"
	keyBrigade  = "brygada"
	keySymbol1  = "symbol_1"
	keySymbol2  = "symbol_2"
)

var clockPattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)

// FlattenPairs converts the API's list-of-{key,value} representation into a
// plain mapping. Entries that are not objects or lack either field are
// skipped; null values flatten to the empty string.
func FlattenPairs(entries []any) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		k, kok := obj["key"].(string)
		v, vok := obj["value"]
		if !kok || !vok {
			continue
		}
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// ParseRow builds a Reading from a flattened key/value row. A missing clock
// defaults to "00:00:00"; a clock that does not match HH:MM:SS rejects the
// row. Rejection is per-row, never fatal to a batch.
func ParseRow(row map[string]string) (Reading, error) {
	r := Reading{
		Headsign: row[keyHeadsign],
		Clock:    row[keyClock],
		Route:    row[keyRoute],
		Brigade:  row[keyBrigade],
		Symbol1:  row[keySymbol1],
		Symbol2:  row[keySymbol2],
	}
	if r.Headsign == "" {
		r.Headsign = "unknown"
	}
	if r.Clock == "" {
		r.Clock = "00:00:00"
	}
	if !clockPattern.MatchString(r.Clock) {
		return Reading{}, fmt.Errorf("malformed clock %q", r.Clock)
	}
	return r, nil
}

// clockParts splits Clock into hour and minute. The seconds field is parsed
// away on purpose: the today-or-tomorrow decision works on hours and minutes
// only. Minutes above 59 make the reading unresolvable.
func (r Reading) clockParts() (hour, minute int, ok bool) {
	parts := strings.Split(r.Clock, ":")
	if len(parts) != 3 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// NightService reports whether the clock belongs to a post-midnight run of
// the previous service day (hour 24 or above).
func (r Reading) NightService() bool {
	hour, _, ok := r.clockParts()
	return ok && hour >= 24
}

// DepartureTime resolves the scheduled clock into an absolute UTC instant
// relative to now. Hours 24-27 normalize to 0-3. If the normalized hh:mm is
// strictly ahead of now's local hh:mm the departure is today, otherwise
// tomorrow; a clock equal to the current minute therefore rolls over. The
// rule intentionally ignores seconds and any service-day anchor.
func (r Reading) DepartureTime(now time.Time, loc *time.Location) (time.Time, bool) {
	hour, minute, ok := r.clockParts()
	if !ok {
		return time.Time{}, false
	}
	dtHour := hour % 24

	local := now.In(loc)
	target := local
	if !(dtHour > local.Hour() || (dtHour == local.Hour() && minute > local.Minute())) {
		target = local.AddDate(0, 0, 1)
	}
	dep := time.Date(target.Year(), target.Month(), target.Day(), dtHour, minute, 0, 0, loc)
	return dep.UTC(), true
}

// MinutesToDepart returns whole minutes until departure, floored and clamped
// at zero. Unresolvable readings return -1.
func (r Reading) MinutesToDepart(now time.Time, loc *time.Location) int {
	dep, ok := r.DepartureTime(now, loc)
	if !ok {
		return -1
	}
	minutes := int(dep.Sub(now.UTC()) / time.Minute)
	if minutes < 0 {
		return 0
	}
	return minutes
}

// SortReadings drops unresolvable readings and orders the rest ascending by
// absolute departure. This is the production policy for scheduling-sensitive
// views.
func SortReadings(rs []Reading, now time.Time, loc *time.Location) []Reading {
	type resolved struct {
		r  Reading
		at time.Time
	}
	kept := make([]resolved, 0, len(rs))
	for _, r := range rs {
		if at, ok := r.DepartureTime(now, loc); ok {
			kept = append(kept, resolved{r: r, at: at})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].at.Before(kept[j].at) })
	out := make([]Reading, len(kept))
	for i, k := range kept {
		out[i] = k.r
	}
	return out
}

// SortKeepUnresolvable orders resolvable readings ascending by departure and
// places unresolvable ones last, preserving their relative order. Intended
// for diagnostic views.
func SortKeepUnresolvable(rs []Reading, now time.Time, loc *time.Location) []Reading {
	out := make([]Reading, 0, len(rs))
	out = append(out, SortReadings(rs, now, loc)...)
	for _, r := range rs {
		if _, ok := r.DepartureTime(now, loc); !ok {
			out = append(out, r)
		}
	}
	return out
}
