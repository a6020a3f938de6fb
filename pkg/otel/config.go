package otel

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Protocol is an OTLP transport.
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	ProtocolHTTPJSON     Protocol = "http/json"
)

// SignalType is the OTEL signal an exporter carries.
type SignalType string

const (
	SignalTraces  SignalType = "traces"
	SignalMetrics SignalType = "metrics"
)

// ExporterConfig holds parsed OTLP exporter configuration for a signal
type ExporterConfig struct {
	Endpoint    string
	Protocol    Protocol
	Headers     map[string]string
	Timeout     time.Duration
	Insecure    bool
	Compression string
}

// IsTracingEnabled reports whether OTEL_TRACING_ENABLED is set.
func IsTracingEnabled() bool {
	return isTrue(os.Getenv("OTEL_TRACING_ENABLED"))
}

// IsMetricsEnabled reports whether OTEL_METRICS_ENABLED is set.
func IsMetricsEnabled() bool {
	return isTrue(os.Getenv("OTEL_METRICS_ENABLED"))
}

// signalEnv resolves OTEL_EXPORTER_OTLP_<SIGNAL>_<NAME>, then
// OTEL_EXPORTER_OTLP_<NAME>.
type signalEnv string

func (s signalEnv) get(name, defaultValue string) string {
	upper := strings.ToUpper(string(s))
	for _, key := range []string{
		"OTEL_EXPORTER_OTLP_" + upper + "_" + name,
		"OTEL_EXPORTER_OTLP_" + name,
	} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return defaultValue
}

// GetExporterConfig returns the exporter configuration for a signal from the
// standard OTEL_EXPORTER_OTLP_* environment variables.
func GetExporterConfig(signal SignalType) ExporterConfig {
	env := signalEnv(signal)

	cfg := ExporterConfig{
		Protocol:    parseProtocol(env.get("PROTOCOL", string(ProtocolHTTPProtobuf))),
		Headers:     parseHeaders(env.get("HEADERS", "")),
		Timeout:     parseDuration(env.get("TIMEOUT", ""), 10*time.Second),
		Compression: env.get("COMPRESSION", ""),
	}
	cfg.Endpoint = resolveEndpoint(signal, cfg.Protocol)

	if v := env.get("INSECURE", ""); v != "" {
		cfg.Insecure = isTrue(v)
	} else {
		cfg.Insecure = strings.HasPrefix(cfg.Endpoint, "http://")
	}
	return cfg
}

func parseProtocol(s string) Protocol {
	switch Protocol(strings.ToLower(s)) {
	case ProtocolGRPC:
		return ProtocolGRPC
	case ProtocolHTTPJSON:
		return ProtocolHTTPJSON
	default:
		return ProtocolHTTPProtobuf
	}
}

// resolveEndpoint uses a signal-specific endpoint as-is and appends the
// signal path to a base endpoint.
func resolveEndpoint(signal SignalType, protocol Protocol) string {
	upper := strings.ToUpper(string(signal))
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_" + upper + "_ENDPOINT"); ep != "" {
		return normalizeEndpoint(ep, protocol)
	}
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		return withSignalPath(normalizeEndpoint(ep, protocol), signal, protocol)
	}
	if protocol == ProtocolGRPC {
		return "localhost:4317"
	}
	return "http://localhost:4318/v1/" + string(signal)
}

// normalizeEndpoint reduces gRPC endpoints to host:port and gives HTTP
// endpoints a scheme.
func normalizeEndpoint(endpoint string, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
		if idx := strings.Index(endpoint, "/"); idx != -1 {
			endpoint = endpoint[:idx]
		}
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return "https://" + endpoint
	}
	return endpoint
}

func withSignalPath(endpoint string, signal SignalType, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		return endpoint
	}
	signalPath := "/v1/" + string(signal)

	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + signalPath
	}
	if strings.HasSuffix(u.Path, signalPath) {
		return endpoint
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + signalPath
	return u.String()
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// parseHeaders parses "key1=value1,key2=value2". Values keep everything
// after the first '=' so base64 credentials survive.
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(headerStr, ",") {
		pair = strings.TrimSpace(pair)
		idx := strings.Index(pair, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(pair[:idx])
		headers[key] = pair[idx+1:]
		slog.Debug("Parsed OTEL header", "key", key, "value_length", len(pair)-idx-1)
	}
	return headers
}

// parseDuration accepts Go durations ("10s") and OTEL millisecond integers.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}
