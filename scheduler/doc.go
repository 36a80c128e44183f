// Package scheduler decides when to re-poll the timetable for one
// stop/line subscription.
//
// A subscription refreshes on a fixed interval and at fixed local
// wall-clock times aligned with the upstream schedule-publication cadence,
// with a small random jitter so many subscriptions do not hit the API at
// the same second. Failed daily refreshes get exactly one one-off retry.
// While fetches keep failing the previous snapshot is served stale rather
// than surfacing an error; failure is only visible upstream when no
// snapshot exists at all.
package scheduler
