// Package dispatch translates externally arriving requests into
// validated calls on the engine and the stores, and serves the event
// surface to attached observers.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/arlens/burrow/internal/pathguard"
)

// SchemaKind tags one validation variant. The set is closed; every
// request argument is described by exactly one of these.
type SchemaKind string

const (
	KindString SchemaKind = "string"
	KindNumber SchemaKind = "number"
	KindBool   SchemaKind = "boolean"
	KindEnum   SchemaKind = "enum"
	KindArray  SchemaKind = "array"
	KindTuple  SchemaKind = "tuple"
	KindRecord SchemaKind = "record"
	KindObject SchemaKind = "object"
)

// Schema describes one argument. Flags apply to the kind that reads
// them and are ignored elsewhere.
type Schema struct {
	Kind     SchemaKind
	Optional bool

	// string flags
	NonEmpty    bool
	NoTraversal bool
	SecurePath  bool

	// number bounds
	Min *float64
	Max *float64

	// enum values
	Values []string

	// array element / record value schema
	Items *Schema

	// tuple element schemas
	Tuple []*Schema

	// object properties
	Props        map[string]*Schema
	AllowUnknown bool
}

// String builds a string schema.
func String() *Schema { return &Schema{Kind: KindString} }

// Number builds a number schema.
func Number() *Schema { return &Schema{Kind: KindNumber} }

// Bool builds a boolean schema.
func Bool() *Schema { return &Schema{Kind: KindBool} }

// Enum builds an enum schema over the given values.
func Enum(values ...string) *Schema { return &Schema{Kind: KindEnum, Values: values} }

// Array builds an array schema with a per-element schema.
func Array(items *Schema) *Schema { return &Schema{Kind: KindArray, Items: items} }

// Tuple builds a fixed-length positional schema.
func Tuple(items ...*Schema) *Schema { return &Schema{Kind: KindTuple, Tuple: items} }

// Record builds an open string-keyed record schema; values is optional.
func Record(values *Schema) *Schema { return &Schema{Kind: KindRecord, Items: values} }

// Object builds a closed record schema with named properties.
func Object(props map[string]*Schema) *Schema { return &Schema{Kind: KindObject, Props: props} }

func (s *Schema) WithOptional() *Schema    { s.Optional = true; return s }
func (s *Schema) WithNonEmpty() *Schema    { s.NonEmpty = true; return s }
func (s *Schema) WithNoTraversal() *Schema { s.NoTraversal = true; return s }
func (s *Schema) WithSecurePath() *Schema  { s.SecurePath = true; return s }
func (s *Schema) WithMin(v float64) *Schema {
	s.Min = &v
	return s
}
func (s *Schema) WithMax(v float64) *Schema {
	s.Max = &v
	return s
}
func (s *Schema) WithAllowUnknown() *Schema { s.AllowUnknown = true; return s }

// Validate checks a decoded JSON value against the schema and returns
// human-readable failure details. An empty slice means the value
// passed.
func (s *Schema) Validate(name string, v any) []string {
	if v == nil {
		if s.Optional {
			return nil
		}
		return []string{fmt.Sprintf("%s: required value is missing", name)}
	}

	switch s.Kind {
	case KindString:
		str, ok := v.(string)
		if !ok {
			return []string{fmt.Sprintf("%s: expected a string", name)}
		}
		return s.validateString(name, str)

	case KindNumber:
		num, ok := v.(float64)
		if !ok {
			return []string{fmt.Sprintf("%s: expected a number", name)}
		}
		if s.Min != nil && num < *s.Min {
			return []string{fmt.Sprintf("%s: %v is below the minimum %v", name, num, *s.Min)}
		}
		if s.Max != nil && num > *s.Max {
			return []string{fmt.Sprintf("%s: %v is above the maximum %v", name, num, *s.Max)}
		}
		return nil

	case KindBool:
		if _, ok := v.(bool); !ok {
			return []string{fmt.Sprintf("%s: expected a boolean", name)}
		}
		return nil

	case KindEnum:
		str, ok := v.(string)
		if !ok {
			return []string{fmt.Sprintf("%s: expected one of %v", name, s.Values)}
		}
		for _, allowed := range s.Values {
			if str == allowed {
				return nil
			}
		}
		return []string{fmt.Sprintf("%s: %q is not one of %v", name, str, s.Values)}

	case KindArray:
		arr, ok := v.([]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected an array", name)}
		}
		var details []string
		for i, item := range arr {
			details = append(details, s.Items.Validate(fmt.Sprintf("%s[%d]", name, i), item)...)
		}
		return details

	case KindTuple:
		arr, ok := v.([]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected a tuple", name)}
		}
		if len(arr) > len(s.Tuple) {
			return []string{fmt.Sprintf("%s: expected at most %d elements, got %d", name, len(s.Tuple), len(arr))}
		}
		var details []string
		for i, item := range s.Tuple {
			var elem any
			if i < len(arr) {
				elem = arr[i]
			}
			details = append(details, item.Validate(fmt.Sprintf("%s[%d]", name, i), elem)...)
		}
		return details

	case KindRecord:
		rec, ok := v.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected a record", name)}
		}
		if s.Items == nil {
			return nil
		}
		var details []string
		for k, item := range rec {
			details = append(details, s.Items.Validate(fmt.Sprintf("%s.%s", name, k), item)...)
		}
		return details

	case KindObject:
		rec, ok := v.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected an object", name)}
		}
		var details []string
		for k, prop := range s.Props {
			details = append(details, prop.Validate(fmt.Sprintf("%s.%s", name, k), rec[k])...)
		}
		if !s.AllowUnknown {
			for k := range rec {
				if _, known := s.Props[k]; !known {
					details = append(details, fmt.Sprintf("%s: unknown key %q", name, k))
				}
			}
		}
		return details
	}

	return []string{fmt.Sprintf("%s: unsupported schema kind %q", name, s.Kind)}
}

func (s *Schema) validateString(name, str string) []string {
	if s.NonEmpty && strings.TrimSpace(str) == "" {
		return []string{fmt.Sprintf("%s: must be a non-empty string", name)}
	}
	if s.NoTraversal && containsTraversal(str) {
		return []string{fmt.Sprintf("%s: path traversal is not allowed", name)}
	}
	if s.SecurePath && !pathguard.SafePath(str, ".") {
		return []string{fmt.Sprintf("%s: unsafe path", name)}
	}
	return nil
}

func containsTraversal(s string) bool {
	slashed := strings.ReplaceAll(s, "\\", "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
