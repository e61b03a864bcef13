package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubLocator struct {
	position Position
	err      error
	calls    int
}

func (s *stubLocator) Locate(ctx context.Context) (Position, error) {
	s.calls++
	return s.position, s.err
}

type blockingLocator struct{}

func (blockingLocator) Locate(ctx context.Context) (Position, error) {
	<-ctx.Done()
	return Position{}, ctx.Err()
}

func jsonServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchSuccess(t *testing.T) {
	ipServer := jsonServer(t, http.StatusOK, `{"ip":"203.0.113.7"}`)
	geoServer := jsonServer(t, http.StatusOK, `{"country_name":"Portugal","region":"Lisbon","city":"Lisbon","latitude":38.72,"longitude":-9.14,"asn":"AS3243"}`)

	fetcher := NewFetcher(ipServer.Client(), ipServer.URL, geoServer.URL, 0)
	result := fetcher.Fetch(context.Background(), nil)

	if result.IP.IP != "203.0.113.7" {
		t.Errorf("Expected IP 203.0.113.7, got %q", result.IP.IP)
	}
	if result.Geo["city"] != "Lisbon" {
		t.Errorf("Expected city Lisbon, got %v", result.Geo["city"])
	}
	if result.Geo["asn"] != "AS3243" {
		t.Errorf("Expected extra fields kept, got %v", result.Geo)
	}
}

func TestFetchFailureEmptiesBothRecords(t *testing.T) {
	ipServer := jsonServer(t, http.StatusOK, `{"ip":"203.0.113.7"}`)
	tests := []struct {
		name   string
		ipURL  string
		geoURL string
	}{
		{name: "geo returns 429", ipURL: ipServer.URL, geoURL: jsonServer(t, http.StatusTooManyRequests, `{}`).URL},
		{name: "geo returns garbage", ipURL: ipServer.URL, geoURL: jsonServer(t, http.StatusOK, `<html>`).URL},
		{name: "both unreachable", ipURL: "http://127.0.0.1:1/ip", geoURL: "http://127.0.0.1:1/geo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := NewFetcher(&http.Client{Timeout: 2 * time.Second}, tt.ipURL, tt.geoURL, 0)
			result := fetcher.Fetch(context.Background(), nil)

			if result.IP.IP != "" {
				t.Errorf("Expected empty IP record, got %q", result.IP.IP)
			}
			if result.Geo == nil || len(result.Geo) != 0 {
				t.Errorf("Expected empty geo record, got %v", result.Geo)
			}
		})
	}
}

func TestDeviceCoordinatesMergedUnderDeviceKey(t *testing.T) {
	ipServer := jsonServer(t, http.StatusOK, `{"ip":"203.0.113.7"}`)
	geoServer := jsonServer(t, http.StatusOK, `{"city":"Lisbon","latitude":38.72,"longitude":-9.14}`)

	locator := &stubLocator{position: Position{Latitude: 38.7071, Longitude: -9.1355, Accuracy: 12}}
	result := NewFetcher(nil, ipServer.URL, geoServer.URL, 0).Fetch(context.Background(), locator)

	if locator.calls != 1 {
		t.Fatalf("Expected one geolocation request, got %d", locator.calls)
	}
	if result.Geo["latitude"] != 38.72 {
		t.Errorf("IP-based latitude was overwritten: %v", result.Geo["latitude"])
	}
	device, ok := result.Geo[DeviceKey].(map[string]any)
	if !ok {
		t.Fatalf("Expected device record, got %#v", result.Geo[DeviceKey])
	}
	if device["latitude"] != 38.7071 || device["accuracy"] != 12.0 {
		t.Errorf("Unexpected device record %v", device)
	}
}

func TestDeviceCoordinatesWithoutIPGeo(t *testing.T) {
	locator := &stubLocator{position: Position{Latitude: 1, Longitude: 2, Accuracy: 3}}
	result := NewFetcher(nil, "http://127.0.0.1:1/ip", "http://127.0.0.1:1/geo", 0).Fetch(context.Background(), locator)

	if len(result.Geo) != 1 {
		t.Fatalf("Expected only the device record, got %v", result.Geo)
	}
	if _, ok := result.Geo[DeviceKey]; !ok {
		t.Error("Expected device record present")
	}
}

func TestDeniedGeolocationIsEmpty(t *testing.T) {
	ipServer := jsonServer(t, http.StatusOK, `{"ip":"203.0.113.7"}`)
	geoServer := jsonServer(t, http.StatusOK, `{"city":"Lisbon"}`)

	result := NewFetcher(nil, ipServer.URL, geoServer.URL, 0).Fetch(context.Background(), &stubLocator{err: ErrUnavailable})

	if _, ok := result.Geo[DeviceKey]; ok {
		t.Error("Denied geolocation must not add a device record")
	}
	if result.IP.IP != "203.0.113.7" {
		t.Errorf("IP lookup should be unaffected, got %q", result.IP.IP)
	}
}

func TestGeolocateTimeout(t *testing.T) {
	ipServer := jsonServer(t, http.StatusOK, `{"ip":"203.0.113.7"}`)
	geoServer := jsonServer(t, http.StatusOK, `{}`)

	fetcher := NewFetcher(nil, ipServer.URL, geoServer.URL, 50*time.Millisecond)

	done := make(chan Result, 1)
	go func() { done <- fetcher.Fetch(context.Background(), blockingLocator{}) }()

	select {
	case result := <-done:
		if _, ok := result.Geo[DeviceKey]; ok {
			t.Error("Timed out request must not add a device record")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not honour the geolocation timeout")
	}
}
