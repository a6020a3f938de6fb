package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleetdebugger/pkg/types"
)

const sampleRecords = `[
	{"timestamp": "2024-03-01T10:00:00Z", "jsonPayload": {"@type": "UpdateVehicleLog", "response": {}}},
	{"timestamp": "2024-03-01T10:00:10Z", "jsonPayload": {"@type": "UpdateVehicleLog", "response": {}}}
]`

func TestParse(t *testing.T) {
	tests := []struct {
		name             string
		input            string
		wantRecords      int
		wantSolutionType types.SolutionType
		wantErr          bool
	}{
		{name: "bare array", input: sampleRecords, wantRecords: 2},
		{
			name:             "envelope",
			input:            `{"solutionType": "LMFS", "rawLogs": ` + sampleRecords + `}`,
			wantRecords:      2,
			wantSolutionType: types.SolutionLMFS,
		},
		{
			name:        "envelope matches keys case-insensitively",
			input:       `{"RAWLOGS": []}`,
			wantRecords: 0,
		},
		{name: "envelope without rawLogs", input: `{"solutionType": "ODRD"}`, wantErr: true},
		{name: "unknown solution type", input: `{"solutionType": "XYZ", "rawLogs": []}`, wantErr: true},
		{name: "scalar", input: `42`, wantErr: true},
		{name: "empty", input: "  ", wantErr: true},
		{name: "truncated", input: `[{"timestamp": `, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Parse([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDataset) {
					t.Fatalf("Parse() error = %v, want ErrInvalidDataset", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(ds.Records) != tt.wantRecords {
				t.Errorf("len(Records) = %d, want %d", len(ds.Records), tt.wantRecords)
			}
			if ds.SolutionType != tt.wantSolutionType {
				t.Errorf("SolutionType = %q, want %q", ds.SolutionType, tt.wantSolutionType)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jump-demo.json")
	if err := os.WriteFile(path, []byte(sampleRecords), 0o600); err != nil {
		t.Fatal(err)
	}

	ds, err := LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(ds.Records) != 2 {
		t.Errorf("len(Records) = %d, want 2", len(ds.Records))
	}
	if _, ok := ds.Records[0]["jsonPayload"]; !ok {
		t.Error("record keys should be preserved as written")
	}

	if _, err := LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadFile() on a missing file should fail")
	}
}

func TestClientFetch_MockServer(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"solutionType": "ODRD", "rawLogs": ` + sampleRecords + `}`))
	}))
	defer server.Close()

	client := NewClient("secret", 5*time.Second)
	ds, err := client.Load(context.Background(), server.URL+"/datasets/jump-demo")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(ds.Records) != 2 || ds.SolutionType != types.SolutionODRD {
		t.Errorf("got %d records of %q", len(ds.Records), ds.SolutionType)
	}
}

func TestClientFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		invalid bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "not found", status: http.StatusNotFound, body: "no such dataset"},
		{name: "not a dataset", status: http.StatusOK, body: "<html></html>", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient("", time.Second).Fetch(context.Background(), server.URL)
			if err == nil {
				t.Fatal("Fetch() should fail")
			}
			if errors.Is(err, ErrInvalidDataset) != tt.invalid {
				t.Errorf("errors.Is(err, ErrInvalidDataset) = %v, want %v (err = %v)", !tt.invalid, tt.invalid, err)
			}
		})
	}
}
