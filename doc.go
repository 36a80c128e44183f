// Package ztmdepartures polls the Warsaw public transport open-data API
// for scheduled departures of one line from one stop post and serves the
// freshest known timetable over HTTP.
//
// A ClientHandle ties together the upstream API client, the stop-metadata
// cache and the refresh scheduler for a single subscription. The HTTP
// server exposes the current snapshot of every configured subscription.
package ztmdepartures
