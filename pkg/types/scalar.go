package types

import (
	"encoding/json"
	"fmt"
)

// Scalar is a caller-supplied metadata value. Metadata in this system is
// intentionally flat: nested objects and arrays are rejected at the
// storage boundary so every backend can persist metadata the same way
// (a JSON object of string keys to primitive values) without needing a
// general-purpose document model.
type Scalar struct {
	// Exactly one of these is meaningful; Kind says which.
	Kind ScalarKind
	Str  string
	Num  float64
	Bool bool
}

// ScalarKind identifies which field of a Scalar holds the value.
type ScalarKind int

const (
	ScalarNull ScalarKind = iota
	ScalarBool
	ScalarInt
	ScalarFloat
	ScalarText
)

// Metadata is the caller-supplied annotation map attached to a Memory.
type Metadata map[string]Scalar

func NewNullScalar() Scalar       { return Scalar{Kind: ScalarNull} }
func NewBoolScalar(b bool) Scalar { return Scalar{Kind: ScalarBool, Bool: b} }
func NewIntScalar(n int64) Scalar { return Scalar{Kind: ScalarInt, Num: float64(n)} }
func NewFloatScalar(f float64) Scalar {
	return Scalar{Kind: ScalarFloat, Num: f}
}
func NewTextScalar(s string) Scalar { return Scalar{Kind: ScalarText, Str: s} }

// MarshalJSON renders the Scalar as the bare JSON value it represents,
// not as a tagged struct — callers see plain JSON (string/number/bool/null).
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case ScalarNull:
		return []byte("null"), nil
	case ScalarBool:
		return json.Marshal(s.Bool)
	case ScalarInt:
		return json.Marshal(int64(s.Num))
	case ScalarFloat:
		return json.Marshal(s.Num)
	case ScalarText:
		return json.Marshal(s.Str)
	default:
		return nil, fmt.Errorf("types: unknown scalar kind %d", s.Kind)
	}
}

// UnmarshalJSON accepts a bare JSON scalar and classifies it. Nested
// objects and arrays are rejected — callers at the storage boundary must
// flatten metadata before it reaches a Memory.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	scalar, err := ScalarFromAny(raw)
	if err != nil {
		return err
	}
	*s = scalar
	return nil
}

// ScalarFromAny converts a decoded JSON value (string/float64/bool/nil) into
// a Scalar, rejecting maps and slices.
func ScalarFromAny(v interface{}) (Scalar, error) {
	switch val := v.(type) {
	case nil:
		return NewNullScalar(), nil
	case bool:
		return NewBoolScalar(val), nil
	case float64:
		return NewFloatScalar(val), nil
	case string:
		return NewTextScalar(val), nil
	default:
		return Scalar{}, fmt.Errorf("types: metadata value must be a string, number, bool, or null, got %T", v)
	}
}

// Any returns the Scalar as a plain Go value, suitable for re-exporting to
// JSON via the standard encoder.
func (s Scalar) Any() interface{} {
	switch s.Kind {
	case ScalarNull:
		return nil
	case ScalarBool:
		return s.Bool
	case ScalarInt, ScalarFloat:
		return s.Num
	case ScalarText:
		return s.Str
	default:
		return nil
	}
}

// MetadataFromMap builds a Metadata from a generic map, as decoded from an
// MCP tool call or HTTP request body. Returns an error naming the first
// offending key if any value is not a flat scalar.
func MetadataFromMap(m map[string]interface{}) (Metadata, error) {
	if m == nil {
		return nil, nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		scalar, err := ScalarFromAny(v)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		out[k] = scalar
	}
	return out, nil
}

// ToMap renders Metadata back into a generic map for JSON export or
// protocol responses.
func (m Metadata) ToMap() map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v.Any()
	}
	return out
}
