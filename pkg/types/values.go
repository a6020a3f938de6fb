package types

import (
	"strconv"

	"github.com/clbanning/mxj/v2"
)

// Lookup returns the value at a dotted path. A nil map or a missing path
// reports false.
func Lookup(m mxj.Map, path string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	v, err := m.ValueForPath(path)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// List returns the members of the list at path. mxj expands list values
// while walking a path, so both the expanded and the wrapped forms are
// accepted.
func List(m mxj.Map, path string) []interface{} {
	if m == nil {
		return nil
	}
	vals, err := m.ValuesForPath(path)
	if err != nil || len(vals) == 0 {
		return nil
	}
	if len(vals) == 1 {
		if inner, ok := vals[0].([]interface{}); ok {
			return inner
		}
	}
	return vals
}

// AsMap converts a decoded JSON object to an mxj.Map.
func AsMap(v interface{}) (mxj.Map, bool) {
	switch m := v.(type) {
	case mxj.Map:
		return m, true
	case map[string]interface{}:
		return mxj.Map(m), true
	default:
		return nil, false
	}
}

// ToFloat converts JSON numbers and numeric strings.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToLatLng reads a {latitude, longitude} object. Both fields are required.
func ToLatLng(v interface{}) (*LatLng, bool) {
	m, ok := AsMap(v)
	if !ok {
		return nil, false
	}
	lat, okLat := ToFloat(m["latitude"])
	lng, okLng := ToFloat(m["longitude"])
	if !okLat || !okLng {
		return nil, false
	}
	return &LatLng{Latitude: lat, Longitude: lng}, true
}

// LatLngAt reads a coordinate at a dotted path.
func LatLngAt(m mxj.Map, path string) (*LatLng, bool) {
	v, ok := Lookup(m, path)
	if !ok {
		return nil, false
	}
	return ToLatLng(v)
}
