package normalizer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fleetdebugger/pkg/types"

	"github.com/clbanning/mxj/v2"
)

// ErrUnrecognizedRecord is returned by Decode for records that match none of
// the lifecycle APIs.
var ErrUnrecognizedRecord = errors.New("unrecognized record")

// Decoded is a raw record resolved to one of the lifecycle API variants.
type Decoded struct {
	APIType  types.APIType
	Request  mxj.Map
	Response mxj.Map
	Error    mxj.Map
}

// Decode resolves the API that produced a lower-cased record and extracts
// its payload. The type marker is looked up in jsonpayload["@type"], then in
// a top-level "@type" or "type" tag, then as a uniquely named top-level key.
func Decode(record mxj.Map) (Decoded, error) {
	api, payload, err := resolveMarker(record)
	if err != nil {
		return Decoded{}, err
	}

	d := Decoded{APIType: api}
	d.Request, _ = types.AsMap(payload["request"])
	d.Response, _ = types.AsMap(payload["response"])
	if e, ok := types.AsMap(payload["error"]); ok {
		d.Error = e
	} else if e, ok := types.AsMap(payload["errorresponse"]); ok {
		d.Error = e
	}
	return d, nil
}

func resolveMarker(record mxj.Map) (types.APIType, mxj.Map, error) {
	if payload, ok := types.AsMap(record["jsonpayload"]); ok {
		if tag, ok := payload["@type"].(string); ok {
			if api, ok := types.LookupAPIType(tag); ok {
				return api, payload, nil
			}
			return "", nil, fmt.Errorf("%w: type %q", ErrUnrecognizedRecord, tag)
		}
	}

	for _, key := range []string{"@type", "type"} {
		tag, ok := record[key].(string)
		if !ok {
			continue
		}
		if api, ok := types.LookupAPIType(tag); ok {
			if payload, ok := types.AsMap(record["jsonpayload"]); ok {
				return api, payload, nil
			}
			return api, record, nil
		}
	}

	var matches []string
	for key, v := range record {
		if _, ok := types.LookupAPIType(key); !ok {
			continue
		}
		if _, ok := types.AsMap(v); ok {
			matches = append(matches, key)
		}
	}
	switch len(matches) {
	case 1:
		api, _ := types.LookupAPIType(matches[0])
		payload, _ := types.AsMap(record[matches[0]])
		return api, payload, nil
	case 0:
		return "", nil, ErrUnrecognizedRecord
	default:
		sort.Strings(matches)
		return "", nil, fmt.Errorf("%w: ambiguous keys %s", ErrUnrecognizedRecord, strings.Join(matches, ","))
	}
}

// LowerKeys returns a deep copy of v with every object key lower-cased.
// Nested objects are returned as map[string]interface{} so that mxj path
// lookups can walk them.
func LowerKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case mxj.Map:
		return lowerMap(t)
	case map[string]interface{}:
		return lowerMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = LowerKeys(item)
		}
		return out
	default:
		return v
	}
}

func lowerMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = LowerKeys(v)
	}
	return out
}

// recordTime extracts the record timestamp, falling back to servertime.
func recordTime(record mxj.Map) (string, time.Time, bool) {
	for _, key := range []string{"timestamp", "servertime"} {
		v, ok := record[key]
		if !ok || v == nil {
			continue
		}
		if ts, date, ok := parseTime(v); ok {
			return ts, date, true
		}
	}
	return "", time.Time{}, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05.999999999 MST",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(v interface{}) (string, time.Time, bool) {
	switch t := v.(type) {
	case string:
		for _, layout := range timeLayouts {
			if d, err := time.Parse(layout, t); err == nil {
				return t, d.UTC(), true
			}
		}
	case float64:
		// epoch milliseconds
		d := time.UnixMilli(int64(t)).UTC()
		return d.Format(time.RFC3339Nano), d, true
	}
	return "", time.Time{}, false
}
