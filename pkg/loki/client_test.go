package loki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleetdebugger/pkg/anomaly"
	"fleetdebugger/pkg/engine"
	"fleetdebugger/pkg/types"
)

var at = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testEntries() []engine.LogEntry {
	ev := &types.NormalizedEvent{
		Timestamp: at.Format(time.RFC3339),
		Date:      at,
		APIType:   types.APIUpdateVehicle,
	}
	return []engine.LogEntry{
		{Timestamp: ev.Timestamp, Date: at, APIType: types.APIUpdateVehicle, Event: ev},
		{
			Timestamp:     ev.Timestamp,
			Date:          at.Add(time.Minute),
			APIType:       types.APIMissingUpdate,
			MissingUpdate: &anomaly.MissingUpdate{Interval: 5 * time.Minute},
		},
		{
			Timestamp:    ev.Timestamp,
			Date:         at.Add(2 * time.Minute),
			APIType:      types.APIHighVelocityJump,
			VelocityJump: &anomaly.VelocityJump{Velocity: 210},
		},
		{
			Timestamp:     ev.Timestamp,
			Date:          at.Add(3 * time.Minute),
			APIType:       types.APIMissingUpdate,
			MissingUpdate: &anomaly.MissingUpdate{Interval: 90 * time.Second},
		},
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:3100", "user", "pass")

	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.baseURL != "http://localhost:3100" {
		t.Errorf("baseURL = %q, want %q", client.baseURL, "http://localhost:3100")
	}
	if client.username != "user" || client.password != "pass" {
		t.Errorf("credentials = %q/%q", client.username, client.password)
	}
}

func TestSendAnnotations_MockServer(t *testing.T) {
	var receivedBody []byte
	var receivedHeaders http.Header
	var receivedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedHeaders = r.Header
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")
	if err := client.SendAnnotations(context.Background(), "run-1", testEntries()); err != nil {
		t.Fatalf("SendAnnotations failed: %v", err)
	}

	if receivedPath != "/loki/api/v1/push" {
		t.Errorf("Expected path /loki/api/v1/push, got %s", receivedPath)
	}
	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", receivedHeaders.Get("Content-Type"))
	}
	if !strings.HasPrefix(receivedHeaders.Get("User-Agent"), "fleetdebugger/") {
		t.Errorf("unexpected User-Agent %q", receivedHeaders.Get("User-Agent"))
	}

	var pushReq PushRequest
	if err := json.Unmarshal(receivedBody, &pushReq); err != nil {
		t.Fatalf("Failed to parse request body: %v", err)
	}

	// one stream per kind, sorted by kind
	if len(pushReq.Streams) != 2 {
		t.Fatalf("Expected 2 streams, got %d", len(pushReq.Streams))
	}
	wantKinds := []string{string(types.APIHighVelocityJump), string(types.APIMissingUpdate)}
	wantLines := []int{1, 2}
	for i, stream := range pushReq.Streams {
		if stream.Stream["kind"] != wantKinds[i] {
			t.Errorf("stream %d kind = %q, want %q", i, stream.Stream["kind"], wantKinds[i])
		}
		if stream.Stream["run_id"] != "run-1" || stream.Stream["job"] != "fleetdebugger" {
			t.Errorf("stream %d labels = %v", i, stream.Stream)
		}
		if len(stream.Values) != wantLines[i] {
			t.Errorf("stream %d has %d lines, want %d", i, len(stream.Values), wantLines[i])
		}
	}

	entry := pushReq.Streams[1].Values[0]
	if entry[0] != "1709287260000000000" {
		t.Errorf("timestamp = %s, want the annotation date in nanoseconds", entry[0])
	}
	var line map[string]interface{}
	if err := json.Unmarshal([]byte(entry[1]), &line); err != nil {
		t.Fatalf("Failed to parse log line: %v", err)
	}
	if line["@type"] != string(types.APIMissingUpdate) {
		t.Errorf("@type = %v", line["@type"])
	}
	if _, ok := line["missing_update"]; !ok {
		t.Error("expected missing_update in log line")
	}
}

func TestSendAnnotations_NothingToSend(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")
	if err := client.SendAnnotations(context.Background(), "run-1", testEntries()[:1]); err != nil {
		t.Fatalf("SendAnnotations failed: %v", err)
	}
	if called {
		t.Error("no request expected without annotations")
	}
}

func TestSendAnnotations_Authentication(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		wantAuth bool
	}{
		{"with credentials", "testuser", "testpass", true},
		{"without credentials", "", "", false},
		{"password missing", "testuser", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var authHeader string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				authHeader = r.Header.Get("Authorization")
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			client := NewClient(server.URL, tt.username, tt.password)
			if err := client.SendAnnotations(context.Background(), "run-1", testEntries()); err != nil {
				t.Fatalf("SendAnnotations failed: %v", err)
			}
			if got := strings.HasPrefix(authHeader, "Basic "); got != tt.wantAuth {
				t.Errorf("Authorization = %q, want basic auth %v", authHeader, tt.wantAuth)
			}
		})
	}
}

func TestSendAnnotations_ErrorOnNon2xx(t *testing.T) {
	tests := []struct {
		statusCode int
		expectErr  bool
	}{
		{http.StatusOK, false},
		{http.StatusNoContent, false},
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			err := NewClient(server.URL, "", "").SendAnnotations(context.Background(), "run-1", testEntries())
			if tt.expectErr && err == nil {
				t.Errorf("Expected error for status %d, got nil", tt.statusCode)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected error for status %d: %v", tt.statusCode, err)
			}
		})
	}
}

func TestSendAnnotations_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewClient(server.URL, "", "").SendAnnotations(ctx, "run-1", testEntries()); err == nil {
		t.Error("Expected error when context is cancelled, got nil")
	}
}

const queryRangeBody = `{
  "status": "success",
  "data": {
    "resultType": "streams",
    "result": [
      {
        "stream": {"job": "fleet-engine"},
        "values": [
          ["1709287200000000000", "{\"timestamp\": \"2024-03-01T10:00:00Z\", \"jsonPayload\": {\"@type\": \"UpdateVehicleLog\"}}"],
          ["1709287210000000000", "{\"jsonPayload\": {\"@type\": \"UpdateTripLog\"}}"],
          ["1709287220000000000", "level=info msg=not-json"]
        ]
      }
    ]
  }
}`

func TestQueryRange_MockServer(t *testing.T) {
	var query map[string][]string
	var receivedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(queryRangeBody))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")
	records, err := client.QueryRange(context.Background(), `{job="fleet-engine"}`, at, at.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("QueryRange failed: %v", err)
	}

	if receivedPath != "/loki/api/v1/query_range" {
		t.Errorf("Expected path /loki/api/v1/query_range, got %s", receivedPath)
	}
	if query["query"][0] != `{job="fleet-engine"}` {
		t.Errorf("query = %q", query["query"][0])
	}
	if query["start"][0] != "1709287200000000000" || query["direction"][0] != "forward" {
		t.Errorf("unexpected parameters %v", query)
	}
	if query["limit"][0] != "5000" {
		t.Errorf("limit = %s, want the default", query["limit"][0])
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0]["timestamp"] != "2024-03-01T10:00:00Z" {
		t.Errorf("timestamp = %v, want the line's own timestamp", records[0]["timestamp"])
	}
	if records[1]["timestamp"] != "2024-03-01T10:00:10Z" {
		t.Errorf("timestamp = %v, want the entry timestamp", records[1]["timestamp"])
	}
}

func TestQueryRange_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad query", http.StatusBadRequest, "parse error"},
		{"server error", http.StatusInternalServerError, ""},
		{"garbage body", http.StatusOK, "not json"},
		{"metric query", http.StatusOK, `{"status": "success", "data": {"resultType": "matrix", "result": []}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, "", "").QueryRange(context.Background(), `{job="x"}`, at, at.Add(time.Hour), 10)
			if err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestQueryRange_ServerUnavailable(t *testing.T) {
	client := NewClient("http://127.0.0.1:59999", "", "")
	if _, err := client.QueryRange(context.Background(), `{job="x"}`, at, at.Add(time.Hour), 10); err == nil {
		t.Error("Expected error when server is unavailable, got nil")
	}
}
