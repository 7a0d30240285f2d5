package lobby

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind is the declared type of one remote-call parameter.
type Kind string

// Parameter kinds.
const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInteger, KindNumber, KindBoolean:
		return true
	}
	return false
}

// Param declares one named parameter of a remote call.
type Param struct {
	Name     string
	Kind     Kind
	Optional bool
}

// HandlerFunc applies a remote call for caller against the locked session state.
// A returned error is reported to the caller and the state is rolled back.
type HandlerFunc func(st *State, caller ClientID, args Args) error

// Call is one entry of the remote-call table.
type Call struct {
	// Name is the remote-call name clients send.
	Name string
	// Params is the argument schema. Fields not listed here are rejected.
	Params []Param
	// Handler applies the call once its arguments have been validated.
	Handler HandlerFunc
}

// Args holds validated call arguments. Values are string, int, float64 or bool
// according to the declared Kind.
type Args map[string]any

// String returns the string argument name, or "" if absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns the integer argument name, or 0 if absent.
func (a Args) Int(name string) int {
	n, _ := a[name].(int)
	return n
}

// Float returns the number argument name, or 0 if absent.
func (a Args) Float(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

// Bool returns the boolean argument name, or false if absent.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Has reports whether name was supplied.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Validate checks payload against the call's schema and returns typed arguments.
//
// Postcondition: On mismatch returns an ErrValidationFailed error whose message
// starts with "Parameter validation failed" and lists every offending field.
func (c *Call) Validate(payload map[string]any) (Args, error) {
	args := make(Args, len(c.Params))
	var problems []string

	declared := make(map[string]bool, len(c.Params))
	for _, p := range c.Params {
		declared[p.Name] = true
		raw, ok := payload[p.Name]
		if !ok || raw == nil {
			if !p.Optional {
				problems = append(problems, fmt.Sprintf("%s: field required", p.Name))
			}
			continue
		}
		v, err := coerce(p.Kind, raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", p.Name, err))
			continue
		}
		args[p.Name] = v
	}

	var extra []string
	for name := range payload {
		if !declared[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		problems = append(problems, fmt.Sprintf("%s: unexpected field", name))
	}

	if len(problems) > 0 {
		return nil, errors.Mark(
			errors.Newf("Parameter validation failed for %s: %s", c.Name, strings.Join(problems, "; ")),
			ErrValidationFailed,
		)
	}
	return args, nil
}

func coerce(kind Kind, raw any) (any, error) {
	switch kind {
	case KindString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	case KindBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case KindInteger:
		if n, ok := toInt(raw); ok {
			return n, nil
		}
	case KindNumber:
		if f, ok := toFloat(raw); ok {
			return f, nil
		}
	default:
		return nil, errors.Newf("unknown parameter kind %q", kind)
	}
	return nil, errors.Newf("expected %s, got %s", kind, describe(raw))
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint:
		if v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case uint64:
		if v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
		if f, err := v.Float64(); err == nil {
			return floatToInt(f)
		}
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int(f), true
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	if n, ok := toInt(raw); ok {
		return float64(n), true
	}
	return 0, false
}

func describe(raw any) string {
	switch raw.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float32, float64:
		return "number"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", raw)
}
