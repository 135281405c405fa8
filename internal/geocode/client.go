// Package geocode resolves coordinates to postal codes through a
// reverse-geocoding service.
//
// NominatimClient speaks the Nominatim /reverse API. Resolver wraps any
// ReverseGeocoder with the call discipline the imputer relies on: a minimum
// delay between calls, a per-call timeout, no retries, and failures
// reported as "no result".
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNoResult is returned when the service has no address for a coordinate
var ErrNoResult = errors.New("geocode: no result")

// Address is the subset of a reverse-geocoding response the pipeline reads
type Address struct {
	Postcode    string `json:"postcode"`
	Road        string `json:"road,omitempty"`
	Suburb      string `json:"suburb,omitempty"`
	City        string `json:"city,omitempty"`
	County      string `json:"county,omitempty"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	DisplayName string `json:"-"`
}

// ReverseGeocoder resolves a coordinate to an address
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*Address, error)
}

// ClientConfig configures a NominatimClient
type ClientConfig struct {
	BaseURL   string
	UserAgent string
	// Email is sent with each request as Nominatim's usage policy asks
	Email      string
	HTTPClient *http.Client
}

// NominatimClient calls a Nominatim-compatible /reverse endpoint
type NominatimClient struct {
	baseURL    string
	userAgent  string
	email      string
	httpClient *http.Client
}

// NewNominatimClient creates a client. Without an HTTP client a default one
// with a 30s timeout is used; per-call deadlines come from the context.
func NewNominatimClient(cfg ClientConfig) *NominatimClient {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &NominatimClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		email:      cfg.Email,
		httpClient: client,
	}
}

type reverseResponse struct {
	DisplayName string   `json:"display_name"`
	Address     *Address `json:"address"`
	Error       string   `json:"error"`
}

// Reverse looks up the address at lat/lon
func (c *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")
	if c.email != "" {
		q.Set("email", c.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrNoResult, out.Error)
	}
	if out.Address == nil {
		return nil, ErrNoResult
	}

	out.Address.DisplayName = out.DisplayName
	return out.Address, nil
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("geocoder returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("geocoder returned status %d: %s", e.StatusCode, e.Body)
}
