// Package geocode resolves free-text addresses to coordinates and back.
// Checkout requires coordinates before payment is enabled; lookups are
// debounced and gated on a minimum address length so keystrokes do not
// hammer the external geocoder.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	// MinQueryLength gates lookups: shorter inputs are still being typed.
	MinQueryLength = 10

	// DebounceInterval is how long after the last address edit a lookup fires.
	DebounceInterval = time.Second

	defaultTimeout = 10 * time.Second
)

// ErrQueryTooShort rejects lookups below MinQueryLength.
var ErrQueryTooShort = errors.New("address query too short")

// ErrNoResults indicates the geocoder found nothing for the query.
var ErrNoResults = errors.New("no geocoding results")

// Coordinates is a resolved lat/lon pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Address is the structured result of a reverse lookup, used to pre-fill
// billing fields.
type Address struct {
	Road    string `json:"road"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"postcode"`
}

// Client is a thin wrapper over a Nominatim-style geocoder.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a geocoder client for baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Forward resolves a free-text address to coordinates. Queries shorter
// than MinQueryLength return ErrQueryTooShort without a network call.
func (c *Client) Forward(ctx context.Context, query string) (Coordinates, error) {
	if len(query) < MinQueryLength {
		return Coordinates{}, ErrQueryTooShort
	}

	u := fmt.Sprintf("%s/search?format=json&limit=1&q=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Coordinates{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("geocode status %d", resp.StatusCode)
	}

	// the geocoder returns coordinates as strings
	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Coordinates{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return Coordinates{}, ErrNoResults
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parse lat: %w", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parse lon: %w", err)
	}
	return Coordinates{Lat: lat, Lon: lon}, nil
}

// Reverse resolves coordinates to structured address fields.
func (c *Client) Reverse(ctx context.Context, coords Coordinates) (Address, error) {
	u := fmt.Sprintf("%s/reverse?format=json&lat=%f&lon=%f", c.baseURL, coords.Lat, coords.Lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Address{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Address{}, fmt.Errorf("reverse geocode status %d", resp.StatusCode)
	}

	var result struct {
		Address Address `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Address{}, fmt.Errorf("decode reverse response: %w", err)
	}
	return result.Address, nil
}

// Debouncer coalesces rapid lookups: each Schedule resets the timer, and
// only the last scheduled function runs once the interval elapses. Stop
// tears the pending call down when a session ends. Safe for concurrent
// use; callers reschedule from request goroutines while the timer fires
// on its own.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
}

// NewDebouncer returns a Debouncer with the given interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Schedule queues fn to run after the interval, cancelling any pending fn.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

// Stop cancels the pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
