package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default third-party lookup endpoints
const (
	DefaultIPLookupURL  = "https://api.ipify.org?format=json"
	DefaultGeoLookupURL = "https://ipapi.co/json/"
)

// DeviceKey is the geo key device-reported coordinates are merged under
const DeviceKey = "device"

// maxResponseSize bounds lookup response reads
const maxResponseSize = 1 << 20

// ErrUnavailable is returned by a Locator when the host has no geolocation
var ErrUnavailable = errors.New("geolocation unavailable")

// IPInfo is the public IP lookup result
type IPInfo struct {
	IP string `json:"ip"`
}

// Position is a device-reported location
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Locator asks the host for device coordinates. It may prompt the user and
// may fail; failure is never fatal.
type Locator interface {
	Locate(ctx context.Context) (Position, error)
}

// Result is the enrichment cache read by the assembler. Geo is never nil.
type Result struct {
	IP  IPInfo
	Geo map[string]any
}

// Fetcher performs the enrichment lookups for one flush
type Fetcher struct {
	client           *http.Client
	ipURL            string
	geoURL           string
	geolocateTimeout time.Duration
}

// NewFetcher creates a fetcher. Empty URLs fall back to the defaults;
// geolocateTimeout of zero leaves the device request bounded only by ctx.
func NewFetcher(client *http.Client, ipURL, geoURL string, geolocateTimeout time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ipURL == "" {
		ipURL = DefaultIPLookupURL
	}
	if geoURL == "" {
		geoURL = DefaultGeoLookupURL
	}
	return &Fetcher{
		client:           client,
		ipURL:            ipURL,
		geoURL:           geoURL,
		geolocateTimeout: geolocateTimeout,
	}
}

// Fetch resolves IP and geo info, then asks locator (if any) for device
// coordinates. It never fails: lookups that fail leave empty records.
func (f *Fetcher) Fetch(ctx context.Context, locator Locator) Result {
	result := f.lookup(ctx)

	if locator == nil {
		return result
	}

	locateCtx := ctx
	if f.geolocateTimeout > 0 {
		var cancel context.CancelFunc
		locateCtx, cancel = context.WithTimeout(ctx, f.geolocateTimeout)
		defer cancel()
	}

	position, err := locator.Locate(locateCtx)
	if err != nil {
		log.Printf("📍 Device geolocation not available: %v", err)
		return result
	}

	result.Geo[DeviceKey] = map[string]any{
		"latitude":  position.Latitude,
		"longitude": position.Longitude,
		"accuracy":  position.Accuracy,
	}
	return result
}

// lookup runs both network calls together; if either fails both results are
// dropped
func (f *Fetcher) lookup(ctx context.Context) Result {
	var ipInfo IPInfo
	var geoInfo map[string]any

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.getJSON(gctx, f.ipURL, &ipInfo)
	})
	g.Go(func() error {
		return f.getJSON(gctx, f.geoURL, &geoInfo)
	})

	if err := g.Wait(); err != nil {
		log.Printf("⚠️ IP/geo enrichment failed: %v", err)
		return Result{Geo: map[string]any{}}
	}

	if geoInfo == nil {
		geoInfo = map[string]any{}
	}
	return Result{IP: ipInfo, Geo: geoInfo}
}

func (f *Fetcher) getJSON(ctx context.Context, url string, v any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := f.client.Do(request)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("request to %s returned %s", url, response.Status)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON from %s: %w", url, err)
	}
	return nil
}
