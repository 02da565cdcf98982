// Package schema implements the structural learning, comparison, and
// generation engine that backs each endpoint's response_schema and
// request_schema: a tree of tagged nodes (object / array / primitive),
// each carrying a field descriptor of observed JSON types.
package schema

import (
	"encoding/json"
	"time"
)

// Node is one position in a learned schema tree. It is either an object
// node (non-nil Children), an array node (non-nil Items), or a primitive
// leaf (neither) — the Meta descriptor is always populated.
type Node struct {
	Meta     FieldDescriptor  `json:"meta"`
	Children map[string]*Node `json:"children,omitempty"`
	Items    *Node            `json:"items,omitempty"`
}

// FieldDescriptor tracks everything observed about the values that have
// passed through one schema position.
type FieldDescriptor struct {
	TypesSeen   []string  `json:"types_seen"`
	Nullable    bool      `json:"nullable"`
	Occurrences int       `json:"occurrences"`
	LastSeen    time.Time `json:"last_seen"`
	Example     any       `json:"example,omitempty"`
}

// typePreference is the fixed preference order used to pick the dominant
// type when more than one has been observed at the same position.
var typePreference = []string{"object", "array", "string", "integer", "number", "boolean"}

// Observe merges one concrete value into the descriptor. A nil value marks
// the position nullable without touching types_seen, per §3's rule that
// null is never itself a type.
func (d *FieldDescriptor) Observe(value any) {
	d.Occurrences++
	d.LastSeen = time.Now().UTC()
	if value == nil {
		d.Nullable = true
		return
	}
	t := jsonTypeName(value)
	if !d.hasType(t) {
		d.TypesSeen = append(d.TypesSeen, t)
	}
	d.Example = value
}

func (d *FieldDescriptor) hasType(t string) bool {
	for _, s := range d.TypesSeen {
		if s == t {
			return true
		}
	}
	return false
}

// PrimaryType returns the dominant observed type using the fixed preference
// order, or "" if nothing has been observed yet.
func (d *FieldDescriptor) PrimaryType() string {
	for _, pref := range typePreference {
		if d.hasType(pref) {
			return pref
		}
	}
	if len(d.TypesSeen) > 0 {
		return d.TypesSeen[0]
	}
	return ""
}

// jsonTypeName classifies a decoded JSON value (as produced by a
// json.Decoder configured with UseNumber) into one of the six JSON type
// names used throughout this package. json.Number is split into "integer"
// and "number" based on whether its literal text carries a fractional or
// exponent part — mirroring how a dynamically typed source would see
// int vs float at decode time.
func jsonTypeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		s := string(x)
		for _, c := range s {
			if c == '.' || c == 'e' || c == 'E' {
				return "number"
			}
		}
		return "integer"
	case float64:
		if x == float64(int64(x)) {
			return "integer"
		}
		return "number"
	case string:
		return "string"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "string"
	}
}
