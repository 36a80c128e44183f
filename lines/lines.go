// Package lines classifies Warsaw public transport line designators.
//
// The network encodes the service kind in the line number itself: one and
// two digit numbers are trams, three digit numbers are buses with the first
// digit naming the bus category, and letter prefixes mark night, suburban,
// cemetery, express and replacement services.
package lines

import (
	"regexp"
	"strings"
)

// Kind is a coarse vehicle category, useful for grouping and display.
type Kind string

const (
	KindTram      Kind = "tram"
	KindBus       Kind = "bus"
	KindMetro     Kind = "metro"
	KindUrbanRail Kind = "urban_rail"
	KindUnknown   Kind = "unknown"
)

var (
	tramPattern      = regexp.MustCompile(`^[1-9]\d?$`)
	metroPattern     = regexp.MustCompile(`^(?i:M)\d$`)
	urbanRailPattern = regexp.MustCompile(`^(?i:S)\d{1,2}$`)
)

// typeByPrefix names the bus category by the first character of the line
// number. Single and double digit numbers never reach this table, those are
// trams.
var typeByPrefix = map[string]string{
	"1": "Normal bus",
	"2": "Normal bus",
	"3": "Normal periodic bus",
	"4": "Fast periodic bus",
	"5": "Fast bus",
	"6": "Unknown bus",
	"7": "Zone normal bus",
	"8": "Zone periodic bus",
	"9": "Special bus",
	"C": "Cemetery bus",
	"E": "Express periodic bus",
	"L": "Local suburban bus",
	"N": "Night bus",
	"Z": "Replacement line",
	"T": "Tram line",
	"M": "Metro line",
	"S": "Urban rail",
}

// TypeOf returns the human-friendly service type of a line, e.g. "Fast bus"
// for "520" or "Night bus" for "N02". Unrecognized designators yield
// "unknown".
func TypeOf(line string) string {
	if tramPattern.MatchString(line) {
		return "Tram line"
	}
	if metroPattern.MatchString(line) {
		return "Metro line"
	}
	if urbanRailPattern.MatchString(line) {
		return "Urban rail"
	}
	if line == "" {
		return "unknown"
	}
	if t, ok := typeByPrefix[strings.ToUpper(line[:1])]; ok {
		return t
	}
	return "unknown"
}

// KindOf maps a line designator to its coarse vehicle category.
func KindOf(line string) Kind {
	switch {
	case tramPattern.MatchString(line):
		return KindTram
	case metroPattern.MatchString(line):
		return KindMetro
	case urbanRailPattern.MatchString(line):
		return KindUrbanRail
	case line == "":
		return KindUnknown
	}
	if _, ok := typeByPrefix[strings.ToUpper(line[:1])]; ok {
		return KindBus
	}
	return KindUnknown
}
