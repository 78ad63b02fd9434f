// Package fields allocates the field identifiers that encoded results refer to.
package fields

import (
	"errors"
	"fmt"
	"sync"

	"vtgofer/internal/codec"
)

var (
	ErrRegistryFull   = errors.New("field registry full")
	ErrDuplicateField = errors.New("field already registered")
)

// Kind describes how the enclosing service indexes a field
type Kind string

const (
	KindInteger     Kind = "integer"
	KindTermField   Kind = "termfield"
	KindLoTermField Kind = "lotermfield"
)

// Spec is the human-readable description supplied when registering a field
type Spec struct {
	Field    string // expression name, e.g. virustotal.hits
	DB       string // storage name
	Kind     Kind
	Friendly string
	Help     string
	Count    bool
}

// Registry hands out field identifiers. IDs are opaque to callers and stay
// valid for the life of the process.
type Registry interface {
	AddField(spec Spec) (codec.FieldID, error)
}

// MemoryRegistry allocates sequential identifiers in process
type MemoryRegistry struct {
	specs  []Spec
	byName map[string]codec.FieldID
	mu     sync.RWMutex
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byName: make(map[string]codec.FieldID),
	}
}

// AddField registers spec and returns its identifier
func (r *MemoryRegistry) AddField(spec Spec) (codec.FieldID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[spec.Field]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateField, spec.Field)
	}
	if len(r.specs) > codec.MaxFieldID {
		return 0, fmt.Errorf("%w: %d fields", ErrRegistryFull, len(r.specs))
	}

	id := codec.FieldID(len(r.specs))
	r.specs = append(r.specs, spec)
	r.byName[spec.Field] = id
	return id, nil
}

// Lookup returns the spec registered under id
func (r *MemoryRegistry) Lookup(id codec.FieldID) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id < 0 || int(id) >= len(r.specs) {
		return Spec{}, false
	}
	return r.specs[id], true
}

// Len returns the number of registered fields
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}
