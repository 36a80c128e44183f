// Package ztmapi talks to the api.um.warszawa.pl open-data endpoints for a
// single stop/line pair.
//
// The GET primitive retries timeouts and 5xx responses with a small linear
// backoff and signals terminal failure via a nil payload instead of an
// error, so callers cannot forget to handle it. Fetch always returns a
// structurally valid snapshot; an empty timetable and a failed fetch are
// distinguishable states.
package ztmapi
