// Package timetable parses raw dbtimetable_get rows into typed departure
// readings and resolves their wall clocks into absolute instants.
//
// ZTM publishes departures as a local "HH:MM:SS" clock where the hour may
// run up to 27: values of 24 and above denote post-midnight runs that still
// belong to the previous service day. Resolution against a reference "now"
// decides whether a clock means today or tomorrow using hours and minutes
// only; the seconds field is deliberately ignored.
package timetable
