package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend-fleettrack/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		ServerPort:           ":0",
		JWTSecret:            "test-secret",
		RetentionWindowHours: 24,
		SweepIntervalMinutes: 60,
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil)

	resp, err := srv.App.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil)

	paths := []string{"/trip/start", "/fleet/logout"}
	for _, path := range paths {
		resp, err := srv.App.Test(httptest.NewRequest(http.MethodPost, path, nil))
		if err != nil {
			t.Fatalf("request error for %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %d", path, resp.StatusCode)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil)

	resp, err := srv.App.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
