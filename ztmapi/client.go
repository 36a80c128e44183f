package ztmapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/MKuranowski/go-extra-lib/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/transit-panel/ztm-departures/stopinfo"
	"github.com/transit-panel/ztm-departures/timetable"
)

// Production endpoints and open-data resource ids of api.um.warszawa.pl.
const (
	DefaultTimetableEndpoint = "https://api.um.warszawa.pl/api/action/dbtimetable_get/"
	DefaultStopInfoEndpoint  = "https://api.um.warszawa.pl/api/action/dbstore_get/"

	timetableResourceID = "e923fa0e-d96c-43f9-ae6e-60518c9f3238"
	stopInfoResourceID  = "ab75c33d-3a26-4342-b36a-6e5fef0a3ac3"
	lineCheckResourceID = "88cd555f-6f31-43ca-9de4-66c479ad5942"
)

const (
	defaultTimeout   = 20 * time.Second
	maxRetries       = 1
	retryBackoffBase = 1500 * time.Millisecond
)

// Options tune a Client beyond the required stop/line identity.
type Options struct {
	// Timeout is the per-request budget; defaults to 20s.
	Timeout time.Duration
	// StopInfoTTL re-fetches stop metadata after this long; zero caches
	// it for the process lifetime.
	StopInfoTTL time.Duration
	// HTTPClient may be shared between subscriptions; defaults to a
	// dedicated client.
	HTTPClient *http.Client
	// TimetableEndpoint and StopInfoEndpoint override the production
	// endpoints, mainly for tests.
	TimetableEndpoint string
	StopInfoEndpoint  string
	// Clock overrides the time source; defaults to the system clock.
	Clock clock.Interface
	// Location overrides the service time zone; defaults to Europe/Warsaw.
	Location *time.Location
}

// Client fetches timetable departures for one stop/line pair.
type Client struct {
	httpClient       *http.Client
	endpoint         string
	stopInfoEndpoint string

	apiKey string
	stopID string
	stopNr string
	line   string

	timeout     time.Duration
	backoffBase time.Duration
	clk         clock.Interface
	loc         *time.Location
	stopInfo    *stopinfo.Cache
}

// New creates a Client. The API key is never logged.
func New(apiKey, stopID, stopNr, line string, opts Options) (*Client, error) {
	c := &Client{
		httpClient:       opts.HTTPClient,
		endpoint:         opts.TimetableEndpoint,
		stopInfoEndpoint: opts.StopInfoEndpoint,
		apiKey:           apiKey,
		stopID:           stopID,
		stopNr:           stopNr,
		line:             line,
		timeout:          opts.Timeout,
		backoffBase:      retryBackoffBase,
		clk:              opts.Clock,
		loc:              opts.Location,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.endpoint == "" {
		c.endpoint = DefaultTimetableEndpoint
	}
	if c.stopInfoEndpoint == "" {
		c.stopInfoEndpoint = DefaultStopInfoEndpoint
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.clk == nil {
		c.clk = clock.System
	}
	if c.loc == nil {
		loc, err := time.LoadLocation("Europe/Warsaw")
		if err != nil {
			return nil, fmt.Errorf("failed to load Europe/Warsaw timezone: %w", err)
		}
		c.loc = loc
	}
	c.stopInfo = stopinfo.New(stopID, stopNr, opts.StopInfoTTL, c.fetchStopInfoPayload)
	return c, nil
}

// Name identifies the subscription in log lines.
func (c *Client) Name() string {
	return fmt.Sprintf("line_%s_from_%s_%s", c.line, c.stopID, c.stopNr)
}

// Location returns the service time zone.
func (c *Client) Location() *time.Location { return c.loc }

// StopInfo exposes the metadata cache so a host can reset it on reload.
func (c *Client) StopInfo() *stopinfo.Cache { return c.stopInfo }

// linearBackOff waits base, 2*base, 3*base, ... between attempts.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return time.Duration(l.attempt) * l.base
}

func (l *linearBackOff) Reset() { l.attempt = 0 }

// getJSON performs one GET with the per-request timeout, retrying timeouts
// and 5xx responses up to the retry budget. Every terminal failure collapses
// to a nil payload; this primitive never returns an error to its caller.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values) map[string]any {
	op := func() (map[string]any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.URL.RawQuery = params.Encode()

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if isTimeout(err) {
				return nil, fmt.Errorf("timeout talking to %s: %w", endpoint, err)
			}
			return nil, backoff.Permanent(fmt.Errorf("network error for %s: %w", endpoint, err))
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to read body from %s: %w", endpoint, err))
		}
		if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
			return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, endpoint)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("HTTP %d from %s", resp.StatusCode, endpoint))
		}

		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("invalid JSON from %s", endpoint))
		}
		return payload, nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: c.backoffBase}, maxRetries),
		ctx,
	)
	payload, err := backoff.RetryNotifyWithData(op, b, func(err error, d time.Duration) {
		log.Printf("ztm api [%s]: %v; retrying in %s", c.Name(), err, d)
	})
	if err != nil {
		log.Printf("ztm api [%s]: %v", c.Name(), err)
		return nil
	}
	return payload
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) timetableParams() url.Values {
	return url.Values{
		"id":        {timetableResourceID},
		"apikey":    {c.apiKey},
		"busstopId": {c.stopID},
		"busstopNr": {c.stopNr},
		"line":      {c.line},
	}
}

func (c *Client) lineCheckParams() url.Values {
	return url.Values{
		"id":        {lineCheckResourceID},
		"apikey":    {c.apiKey},
		"busstopId": {c.stopID},
		"busstopNr": {c.stopNr},
	}
}

func (c *Client) fetchStopInfoPayload(ctx context.Context) map[string]any {
	params := url.Values{
		"id":     {stopInfoResourceID},
		"apikey": {c.apiKey},
	}
	return c.getJSON(ctx, c.stopInfoEndpoint, params)
}

// Fetch retrieves the timetable and produces a snapshot. The snapshot is
// always structurally valid, possibly empty. The error is non-nil only when
// no well-formed payload could be obtained at all, so callers can tell
// "fetch failed" apart from "no departures". A result of null or the string
// "false" is the latter.
func (c *Client) Fetch(ctx context.Context) (snap *timetable.Snapshot, err error) {
	now := c.clk.Now()
	stopMeta := c.stopInfo.Metadata(ctx)

	// A decode defect must never escape the fetch boundary.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ztm api [%s]: unexpected error in timetable fetch: %v", c.Name(), r)
			snap, err = timetable.Empty(stopMeta, now), nil
		}
	}()

	payload := c.getJSON(ctx, c.endpoint, c.timetableParams())
	if payload == nil {
		return timetable.Empty(stopMeta, now), fmt.Errorf("timetable fetch failed for %s", c.Name())
	}

	result := payload["result"]
	rows, ok := result.([]any)
	if !ok {
		if s, isString := result.(string); isString {
			log.Printf("ztm api [%s]: upstream error result %q (check the API key)", c.Name(), s)
		}
		return timetable.Empty(stopMeta, now), nil
	}

	readings := make([]timetable.Reading, 0, len(rows))
	for _, row := range rows {
		entries, ok := row.([]any)
		if !ok {
			log.Printf("ztm api [%s]: unexpected entry format in result", c.Name())
			continue
		}
		r, err := timetable.ParseRow(timetable.FlattenPairs(entries))
		if err != nil {
			log.Printf("ztm api [%s]: invalid reading skipped: %v", c.Name(), err)
			continue
		}
		if _, resolvable := r.DepartureTime(now, c.loc); !resolvable {
			continue
		}
		readings = append(readings, r)
	}
	readings = timetable.SortReadings(readings, now, c.loc)

	return &timetable.Snapshot{Readings: readings, StopInfo: stopMeta, FetchedAt: now}, nil
}
