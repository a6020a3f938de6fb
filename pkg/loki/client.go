package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"fleetdebugger/pkg/engine"
	"fleetdebugger/pkg/metrics"
	fdotel "fleetdebugger/pkg/otel"
	"fleetdebugger/pkg/types"

	"github.com/clbanning/mxj/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultQueryLimit caps the lines returned by one query_range call.
const DefaultQueryLimit = 5000

type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	tracer     trace.Tracer
}

type PushRequest struct {
	Streams []Stream `json:"streams"`
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

type queryRangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string   `json:"resultType"`
		Result     []Stream `json:"result"`
	} `json:"data"`
}

func NewClient(baseURL, username, password string) *Client {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}

	return &Client{
		httpClient: client,
		baseURL:    baseURL,
		username:   username,
		password:   password,
		tracer:     otel.Tracer("loki-client"),
	}
}

// QueryRange reads raw fleet log records from Loki. Each log line must be a
// JSON object; lines without a timestamp field take the entry timestamp.
func (c *Client) QueryRange(ctx context.Context, query string, start, end time.Time, limit int) ([]types.RawEvent, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	ctx, span := c.tracer.Start(ctx, "loki.query_range",
		trace.WithAttributes(
			attribute.String("loki.query", query),
			attribute.String("loki.start", start.Format(time.RFC3339)),
			attribute.String("loki.end", end.Format(time.RFC3339)),
			attribute.Int("loki.limit", limit),
		),
	)
	defer span.End()

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.FormatInt(start.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(end.UnixNano(), 10))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("direction", "forward")

	reqURL := fmt.Sprintf("%s/loki/api/v1/query_range?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		fdotel.RecordError(span, err, fdotel.ErrorTypeValidation, false)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.decorate(req, span)

	begin := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordLokiRequest(ctx, "query_range", "error", time.Since(begin), 0)
		fdotel.RecordError(span, err, fdotel.ErrorTypeNetwork, true)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordLokiRequest(ctx, "query_range", "error", time.Since(begin), 0)
		fdotel.RecordError(span, err, fdotel.ErrorTypeNetwork, true)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.RecordLokiRequest(ctx, "query_range", strconv.Itoa(resp.StatusCode), time.Since(begin), 0)
		err := fmt.Errorf("Loki returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		fdotel.RecordError(span, err, fdotel.ErrorTypeHTTP, resp.StatusCode >= 500)
		return nil, err
	}

	var qr queryRangeResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		metrics.RecordLokiRequest(ctx, "query_range", "error", time.Since(begin), 0)
		fdotel.RecordError(span, err, fdotel.ErrorTypeParse, false)
		return nil, fmt.Errorf("failed to parse query_range response: %w", err)
	}
	if qr.Data.ResultType != "" && qr.Data.ResultType != "streams" {
		err := fmt.Errorf("unsupported result type %q, expected a log query", qr.Data.ResultType)
		fdotel.RecordError(span, err, fdotel.ErrorTypeValidation, false)
		return nil, err
	}

	var records []types.RawEvent
	skipped := 0
	for _, stream := range qr.Data.Result {
		for _, value := range stream.Values {
			rec, ok := decodeLine(value)
			if !ok {
				skipped++
				continue
			}
			records = append(records, rec)
		}
	}
	if skipped > 0 {
		slog.Warn("skipped non-JSON log lines", "query", query, "count", skipped)
	}

	metrics.RecordLokiRequest(ctx, "query_range", "200", time.Since(begin), len(records))
	span.SetAttributes(
		attribute.Int("loki.records", len(records)),
		attribute.Int("loki.skipped_lines", skipped),
	)
	fdotel.SetSpanOk(span)
	return records, nil
}

// decodeLine turns a [nanoseconds, line] pair into a raw record.
func decodeLine(value []string) (types.RawEvent, bool) {
	if len(value) != 2 {
		return nil, false
	}
	m, err := mxj.NewMapJson([]byte(value[1]))
	if err != nil {
		return nil, false
	}
	if _, ok := m["timestamp"]; !ok {
		ns, err := strconv.ParseInt(value[0], 10, 64)
		if err != nil {
			return nil, false
		}
		m["timestamp"] = time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
	}
	return types.RawEvent(m), true
}

// SendAnnotations pushes the anomaly annotations among entries, one stream
// per annotation kind labelled with runID. Other entries are ignored.
func (c *Client) SendAnnotations(ctx context.Context, runID string, entries []engine.LogEntry) error {
	ctx, span := c.tracer.Start(ctx, "loki.send_annotations",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("entries_count", len(entries)),
		),
	)
	defer span.End()

	byKind := map[types.APIType][][]string{}
	lines := 0
	for _, entry := range entries {
		if !entry.APIType.IsAnnotation() {
			continue
		}
		line, err := json.Marshal(entry)
		if err != nil {
			fdotel.RecordError(span, err, fdotel.ErrorTypeParse, false)
			return fmt.Errorf("failed to marshal annotation: %w", err)
		}
		byKind[entry.APIType] = append(byKind[entry.APIType], []string{
			strconv.FormatInt(entry.Date.UnixNano(), 10),
			string(line),
		})
		lines++
	}

	if lines == 0 {
		span.SetAttributes(attribute.Int("log_lines_count", 0))
		fdotel.SetSpanOk(span)
		return nil
	}

	kinds := make([]string, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	lokiReq := PushRequest{}
	for _, kind := range kinds {
		lokiReq.Streams = append(lokiReq.Streams, Stream{
			Stream: map[string]string{
				"job":     fdotel.ServiceName,
				"service": "fleet-debugger",
				"kind":    kind,
				"run_id":  runID,
			},
			Values: byKind[types.APIType(kind)],
		})
	}

	reqBody, err := json.Marshal(lokiReq)
	if err != nil {
		fdotel.RecordError(span, err, fdotel.ErrorTypeParse, false)
		return fmt.Errorf("failed to marshal Loki request: %w", err)
	}

	pushURL := fmt.Sprintf("%s/loki/api/v1/push", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushURL, bytes.NewReader(reqBody))
	if err != nil {
		fdotel.RecordError(span, err, fdotel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(req, span)

	span.SetAttributes(
		attribute.String("http.url", pushURL),
		attribute.String("http.method", http.MethodPost),
		attribute.Int("request.size_bytes", len(reqBody)),
		attribute.Int("log_lines_count", lines),
	)

	begin := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordLokiRequest(ctx, "push", "error", time.Since(begin), 0)
		fdotel.RecordError(span, err, fdotel.ErrorTypeNetwork, true)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordLokiRequest(ctx, "push", strconv.Itoa(resp.StatusCode), time.Since(begin), 0)
		err := fmt.Errorf("Loki returned status %d", resp.StatusCode)
		fdotel.RecordError(span, err, fdotel.ErrorTypeHTTP, resp.StatusCode >= 500)
		return err
	}

	metrics.RecordLokiRequest(ctx, "push", strconv.Itoa(resp.StatusCode), time.Since(begin), lines)
	fdotel.SetSpanOk(span)
	return nil
}

// decorate sets headers shared by every Loki request.
func (c *Client) decorate(req *http.Request, span trace.Span) {
	req.Header.Set("User-Agent", "fleetdebugger/"+fdotel.Version)

	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
		span.SetAttributes(
			attribute.Bool("auth.enabled", true),
			attribute.String("auth.username", c.username),
		)
	} else {
		span.SetAttributes(attribute.Bool("auth.enabled", false))
	}
}
