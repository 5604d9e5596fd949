package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Record is one decoded JSON object from the glider API. Numbers are either
// float64 or json.Number depending on how the decoder was configured.
type Record map[string]any

// MissingFieldError reports a required field that is absent or null.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// InvalidFieldError reports a required field whose value has the wrong type.
type InvalidFieldError struct {
	Field string
	Value any
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("field %q has unexpected value %v (%T)", e.Field, e.Value, e.Value)
}

func (r Record) value(key string) (any, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Float returns a required numeric field.
func (r Record) Float(key string) (float64, error) {
	v, ok := r.value(key)
	if !ok {
		return 0, &MissingFieldError{Field: key}
	}
	f, ok := numberValue(v)
	if !ok {
		return 0, &InvalidFieldError{Field: key, Value: v}
	}
	return f, nil
}

// Int returns a required integer field. Fractional values are truncated.
func (r Record) Int(key string) (int64, error) {
	v, ok := r.value(key)
	if !ok {
		return 0, &MissingFieldError{Field: key}
	}
	n, ok := intValue(v)
	if !ok {
		return 0, &InvalidFieldError{Field: key, Value: v}
	}
	return n, nil
}

// String returns a required scalar field rendered as text.
func (r Record) String(key string) (string, error) {
	v, ok := r.value(key)
	if !ok {
		return "", &MissingFieldError{Field: key}
	}
	s, ok := stringValue(v)
	if !ok {
		return "", &InvalidFieldError{Field: key, Value: v}
	}
	return s, nil
}

// OptionalFloat returns nil when the field is absent, null or not a number.
func (r Record) OptionalFloat(key string) *float64 {
	v, ok := r.value(key)
	if !ok {
		return nil
	}
	f, ok := numberValue(v)
	if !ok {
		return nil
	}
	return &f
}

// OptionalInt returns nil when the field is absent, null or not a number.
func (r Record) OptionalInt(key string) *int64 {
	v, ok := r.value(key)
	if !ok {
		return nil
	}
	n, ok := intValue(v)
	if !ok {
		return nil
	}
	return &n
}

// OptionalString returns nil when the field is absent or null.
func (r Record) OptionalString(key string) *string {
	v, ok := r.value(key)
	if !ok {
		return nil
	}
	s, ok := stringValue(v)
	if !ok {
		return nil
	}
	return &s
}

// numberValue accepts the numeric kinds encoding/json produces. Strings are
// not parsed, so a quoted coordinate is non-numeric.
func numberValue(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func intValue(v any) (int64, bool) {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := numberValue(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
