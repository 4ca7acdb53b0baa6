// Package config implements the Configuration Manager (spec §4.4): typed
// schema declaration per module, ordered loaders, type coercion, and
// change notification over a frozen two-level ResolvedConfig map.
//
// This package knows nothing about the kernel's module-wiring types by
// design — it is imported by the root kernel package, not the other way
// around, so it declares its own Spec/Schema/Type and the root package
// type-aliases them onto its public ConfigSpec/ConfigSchema/ConfigType
// names.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type enumerates the primitive shapes a config value may take (§3).
type Type int

const (
	TypeString Type = iota
	TypeNumber
	TypeBoolean
	TypeStringSlice
	TypeRecord
	TypeInternal
)

// Spec describes a single configuration key within a module's schema.
type Spec struct {
	Type        Type
	Default     any
	Enum        []string // advisory only; string specs, not presently enforced
	Required    bool
	Description string
}

// Schema maps a config key to its Spec.
type Schema map[string]Spec

// ParseConfig coerces rawString into spec's declared type (§4.4). It is
// total over strings: no input causes it to return an error for
// number/boolean coercion — a non-numeric string becomes NaN, an
// unrecognised boolean string becomes false. string[]/record/internal are
// parsed as JSON and passed through; a JSON parse failure here *is*
// reported, since those types have no total fallback the way NaN/false do.
func ParseConfig(spec Spec, rawString string) (any, error) {
	switch spec.Type {
	case TypeString:
		return rawString, nil
	case TypeNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(rawString), 64)
		if err != nil {
			return math.NaN(), nil
		}
		return f, nil
	case TypeBoolean:
		return parseBool(rawString), nil
	case TypeStringSlice, TypeRecord, TypeInternal:
		var value any
		if err := json.Unmarshal([]byte(rawString), &value); err != nil {
			return nil, fmt.Errorf("parse config as JSON: %w", err)
		}
		return value, nil
	default:
		return nil, fmt.Errorf("unknown config type %v", spec.Type)
	}
}

// parseBool implements a literal truth table: true for true/y/1/on
// (case-insensitive), false for everything else, including
// false/n/0/off. This diverges from strconv.ParseBool and from
// github.com/golobby/cast's own boolean rules, so it is not delegated to
// either: unrecognised strings coerce to false rather than erroring.
func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "y", "1", "on":
		return true
	default:
		return false
	}
}

// IsTyped reports whether value already has the Go type ParseConfig would
// have produced for spec — used to make ParseConfig idempotent on
// already-typed inputs (§8 law 7) when callers feed it a native value
// rather than a raw string (e.g. a merged BootstrapOptions.Configuration
// value, or a JSON-decoded file value).
func IsTyped(spec Spec, value any) bool {
	switch spec.Type {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeStringSlice:
		_, ok := value.([]string)
		if ok {
			return true
		}
		if arr, ok := value.([]any); ok {
			for _, v := range arr {
				if _, ok := v.(string); !ok {
					return false
				}
			}
			return true
		}
		return false
	case TypeRecord, TypeInternal:
		return true // anything is a valid record/internal payload
	default:
		return false
	}
}

// Coerce normalizes value into spec's declared type, applying ParseConfig
// only when value is a raw string and IsTyped reports it isn't already in
// the target shape (idempotence, §8 law 7).
func Coerce(spec Spec, value any) (any, error) {
	if IsTyped(spec, value) {
		return value, nil
	}
	if s, ok := value.(string); ok {
		return ParseConfig(spec, s)
	}
	// A typed-but-mismatched value (e.g. an int16 or uint where a number
	// wants float64) is coerced through JSON round-tripping rather than
	// rejected outright, keeping Coerce total the way ParseConfig is.
	raw, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	var f float64
	if spec.Type == TypeNumber && json.Unmarshal(raw, &f) == nil {
		return f, nil
	}
	return value, nil
}
