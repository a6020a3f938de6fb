package otel

import "testing"

func TestParseHTTPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     httpTarget
		wantErr  bool
	}{
		{"host and port", "http://localhost:4318", httpTarget{host: "localhost:4318"}, false},
		{"with path", "https://otlp.example.com/otlp/v1/traces", httpTarget{host: "otlp.example.com", path: "/otlp/v1/traces"}, false},
		{"no scheme", "localhost:4318", httpTarget{}, true},
		{"unparseable", "http://[::1", httpTarget{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHTTPEndpoint(tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHTTPEndpoint(%q) error = %v, wantErr %v", tt.endpoint, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseHTTPEndpoint(%q) = %+v, want %+v", tt.endpoint, got, tt.want)
			}
		})
	}
}
