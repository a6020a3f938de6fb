package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fleetdebugger/pkg/metrics"
	fdotel "fleetdebugger/pkg/otel"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxDatasetSize bounds a downloaded dataset.
const maxDatasetSize = 512 << 20

type Client struct {
	httpClient *http.Client
	token      string
	tracer     trace.Tracer
}

// NewClient returns a client that sends token as a bearer token when it is
// not empty.
func NewClient(token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		token:  token,
		tracer: otel.Tracer("dataset-client"),
	}
}

// Load fetches http(s) sources and reads anything else from disk.
func (c *Client) Load(ctx context.Context, source string) (*Dataset, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return c.Fetch(ctx, source)
	}
	return LoadFile(ctx, source)
}

// Fetch downloads and parses a dataset.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Dataset, error) {
	ctx, span := c.tracer.Start(ctx, "dataset.fetch",
		trace.WithAttributes(
			attribute.String("http.url", rawURL),
			attribute.String("http.method", http.MethodGet),
		),
	)
	defer span.End()

	start := time.Now()
	ds, err := c.fetch(ctx, span, rawURL)
	records := 0
	if ds != nil {
		records = len(ds.Records)
	}
	metrics.RecordDatasetFetch(ctx, "url", records, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("dataset.records", records),
		attribute.String("dataset.solution_type", string(ds.SolutionType)),
	)
	fdotel.SetSpanOk(span)
	return ds, nil
}

func (c *Client) fetch(ctx context.Context, span trace.Span, rawURL string) (*Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		fdotel.RecordError(span, err, fdotel.ErrorTypeValidation, false)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "fleetdebugger/"+fdotel.Version)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		fdotel.RecordError(span, err, fdotel.ErrorTypeNetwork, true)
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("http.response.content_type", resp.Header.Get("Content-Type")),
	)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDatasetSize))
	metrics.RecordHTTPRequest(ctx, http.MethodGet, hostOf(rawURL), resp.StatusCode, int64(len(body)), time.Since(start))
	if err != nil {
		fdotel.RecordError(span, err, fdotel.ErrorTypeNetwork, true)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("dataset server returned status %d: %s", resp.StatusCode, truncate(string(body), 512))
		fdotel.RecordError(span, err, fdotel.ErrorTypeHTTP, resp.StatusCode >= 500)
		return nil, err
	}

	ds, err := Parse(body)
	if err != nil {
		fdotel.RecordError(span, err, fdotel.ErrorTypeParse, false)
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	return ds, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
