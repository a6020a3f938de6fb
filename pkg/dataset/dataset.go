// Package dataset loads raw fleet log datasets from JSON files or URLs.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"fleetdebugger/pkg/metrics"
	"fleetdebugger/pkg/types"
)

// ErrInvalidDataset is returned for input that is neither a JSON array of
// records nor an object with a rawLogs array.
var ErrInvalidDataset = errors.New("invalid dataset")

// Dataset is a batch of raw records and the solution type it declares, if
// any.
type Dataset struct {
	SolutionType types.SolutionType
	Records      []types.RawEvent
}

// exported datasets wrap the records; field matching is case-insensitive
type envelope struct {
	SolutionType string                   `json:"solutionType"`
	RawLogs      []map[string]interface{} `json:"rawLogs"`
}

// Parse accepts a bare JSON array of records or an object of the form
// {"solutionType": "LMFS", "rawLogs": [...]}.
func Parse(data []byte) (*Dataset, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidDataset)
	}

	switch data[0] {
	case '[':
		var records []map[string]interface{}
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
		}
		return &Dataset{Records: toRawEvents(records)}, nil

	case '{':
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
		}
		if env.RawLogs == nil {
			return nil, fmt.Errorf("%w: object has no rawLogs array", ErrInvalidDataset)
		}
		ds := &Dataset{Records: toRawEvents(env.RawLogs)}
		if env.SolutionType != "" {
			st, err := types.ParseSolutionType(env.SolutionType)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
			}
			ds.SolutionType = st
		}
		return ds, nil

	default:
		return nil, fmt.Errorf("%w: expected a JSON array or object", ErrInvalidDataset)
	}
}

func toRawEvents(records []map[string]interface{}) []types.RawEvent {
	out := make([]types.RawEvent, len(records))
	for i, r := range records {
		out[i] = types.RawEvent(r)
	}
	return out
}

// LoadFile reads and parses a dataset file.
func LoadFile(ctx context.Context, path string) (*Dataset, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read dataset file: %w", err)
		metrics.RecordDatasetFetch(ctx, "file", 0, err, time.Since(start))
		return nil, err
	}

	ds, err := Parse(data)
	if err != nil {
		metrics.RecordDatasetFetch(ctx, "file", 0, err, time.Since(start))
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	metrics.RecordDatasetFetch(ctx, "file", len(ds.Records), nil, time.Since(start))
	return ds, nil
}
