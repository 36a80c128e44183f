// Package stopinfo caches stop metadata (name, coordinates, street id) from
// the dbstore_get endpoint.
//
// Stop metadata changes rarely, so a successfully cached value is never
// re-fetched unless a TTL is configured. Failures escalate through a fixed
// backoff table and, after three attempts, flip a permanent-missing flag
// that suppresses all further network calls until the cache is reset.
package stopinfo
