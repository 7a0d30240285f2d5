package lobby

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
)

// CallRegistry maps remote-call names to Call descriptors. It is built once and
// read-only afterwards, so it may be shared by every session.
type CallRegistry struct {
	calls map[string]*Call
}

// NewCallRegistry creates a CallRegistry holding calls.
//
// Precondition: No two calls may share a name; every call needs a non-empty name,
// a handler, valid parameter kinds and unique parameter names.
// Postcondition: Returns a CallRegistry or an error describing the first conflict.
func NewCallRegistry(calls []Call) (*CallRegistry, error) {
	r := &CallRegistry{calls: make(map[string]*Call, len(calls))}
	for i := range calls {
		c := calls[i]
		if c.Name == "" {
			return nil, errors.Newf("call at index %d has an empty name", i)
		}
		if c.Handler == nil {
			return nil, errors.Newf("call %q has no handler", c.Name)
		}
		if _, exists := r.calls[c.Name]; exists {
			return nil, errors.Newf("duplicate call name: %q", c.Name)
		}
		seen := make(map[string]bool, len(c.Params))
		for _, p := range c.Params {
			if p.Name == "" {
				return nil, errors.Newf("call %q has a parameter with an empty name", c.Name)
			}
			if seen[p.Name] {
				return nil, errors.Newf("call %q declares parameter %q twice", c.Name, p.Name)
			}
			if !p.Kind.Valid() {
				return nil, errors.Newf("call %q parameter %q has unknown kind %q", c.Name, p.Name, p.Kind)
			}
			seen[p.Name] = true
		}
		c.Params = append([]Param(nil), c.Params...)
		r.calls[c.Name] = &c
	}
	return r, nil
}

// DefaultCallRegistry creates a CallRegistry with the built-in calls only.
func DefaultCallRegistry() *CallRegistry {
	r, err := NewCallRegistry(BuiltinCalls())
	if err != nil {
		panic(fmt.Sprintf("building default call registry: %v", err))
	}
	return r
}

// WithBuiltins creates a CallRegistry holding the built-in calls plus extra.
//
// Postcondition: Returns an error if any extra call clashes with a built-in or
// with another extra call.
func WithBuiltins(extra ...Call) (*CallRegistry, error) {
	return NewCallRegistry(append(BuiltinCalls(), extra...))
}

// Resolve looks up a call by name.
func (r *CallRegistry) Resolve(name string) (*Call, bool) {
	c, ok := r.calls[name]
	return c, ok
}

// Names returns every registered call name, sorted.
func (r *CallRegistry) Names() []string {
	names := make([]string, 0, len(r.calls))
	for name := range r.calls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
