// Package serial converts values into transportable {id, value}
// envelopes and back. Definitions map a stable string id to a concrete
// type and its codec; the registry is an explicit object handed to
// whoever needs to (de)serialize, never a process-global.
package serial

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrSerialization is the family error; the specific sentinels wrap it.
var (
	ErrSerialization       = errors.New("serial: serialization error")
	ErrDuplicateDefinition = fmt.Errorf("%w: already defined", ErrSerialization)
	ErrUnknownDefinition   = fmt.Errorf("%w: no definition", ErrSerialization)
	ErrBadEnvelope         = fmt.Errorf("%w: malformed envelope", ErrSerialization)
	ErrBadDefinition       = fmt.Errorf("%w: invalid definition", ErrSerialization)
)

// Envelope wraps a serialized payload with the id identifying how to
// decode it.
type Envelope struct {
	ID    string `json:"id" toml:"id"`
	Value any    `json:"value" toml:"value"`
}

// Codec encodes values of one defined type into envelope payloads and
// back. Decode receives a hint carrying receiver-side context (for node
// references, the endpoint node rehydrating the value).
type Codec interface {
	Encode(v any) (any, error)
	Decode(value, hint any) (any, error)
}

// Funcs adapts two functions into a Codec.
type Funcs struct {
	EncodeFunc func(v any) (any, error)
	DecodeFunc func(value, hint any) (any, error)
}

func (f Funcs) Encode(v any) (any, error)           { return f.EncodeFunc(v) }
func (f Funcs) Decode(value, hint any) (any, error) { return f.DecodeFunc(value, hint) }

// Marked is implemented by values that carry their definition id,
// letting a definition with subtype matching claim values whose
// concrete type differs from the defined prototype.
type Marked interface {
	SerialID() string
}

type definition struct {
	id       string
	typ      reflect.Type
	codec    Codec
	subtypes bool
	aliases  []string
}

// Option configures a definition.
type Option func(*definition)

// WithAliases registers extra ids resolving to the same definition.
func WithAliases(names ...string) Option {
	return func(d *definition) { d.aliases = append(d.aliases, names...) }
}

// AllowSubtypes lets the definition claim any Marked value whose
// SerialID matches, regardless of concrete type.
func AllowSubtypes() Option {
	return func(d *definition) { d.subtypes = true }
}

// Registry holds serialization definitions.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*definition
	byType map[reflect.Type]*definition
}

// NewRegistry returns an empty serialization registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*definition),
		byType: make(map[reflect.Type]*definition),
	}
}

// Define maps id to the concrete type of prototype with the given
// codec. Ids, aliases, and types may be defined only once.
func (r *Registry) Define(id string, prototype any, codec Codec, opts ...Option) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrBadDefinition)
	}
	if codec == nil {
		return fmt.Errorf("%w: nil codec for %q", ErrBadDefinition, id)
	}
	typ := reflect.TypeOf(prototype)
	if typ == nil {
		return fmt.Errorf("%w: nil prototype for %q", ErrBadDefinition, id)
	}
	d := &definition{id: id, typ: typ, codec: codec}
	for _, opt := range opts {
		opt(d)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: id %q", ErrDuplicateDefinition, id)
	}
	if _, ok := r.byType[typ]; ok {
		return fmt.Errorf("%w: type %v", ErrDuplicateDefinition, typ)
	}
	for _, alias := range d.aliases {
		if _, ok := r.byID[alias]; ok {
			return fmt.Errorf("%w: alias %q", ErrDuplicateDefinition, alias)
		}
	}
	r.byID[id] = d
	for _, alias := range d.aliases {
		r.byID[alias] = d
	}
	r.byType[typ] = d
	return nil
}

// Serialize resolves the definition for v, by exact type first and then
// by subtype marker, and wraps the encoded payload in an envelope.
func (r *Registry) Serialize(v any) (Envelope, error) {
	d := r.definitionFor(v)
	if d == nil {
		return Envelope{}, fmt.Errorf("%w for %T", ErrUnknownDefinition, v)
	}
	payload, err := d.codec.Encode(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: d.id, Value: payload}, nil
}

func (r *Registry) definitionFor(v any) *definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byType[reflect.TypeOf(v)]; ok {
		return d
	}
	if m, ok := v.(Marked); ok {
		if d, ok := r.byID[m.SerialID()]; ok && d.subtypes {
			return d
		}
	}
	return nil
}

// Deserialize decodes an envelope, resolving its id (or alias) and
// passing hint through to the codec.
func (r *Registry) Deserialize(env Envelope, hint any) (any, error) {
	if env.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrBadEnvelope)
	}
	r.mu.RLock()
	d, ok := r.byID[env.ID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: id %q", ErrUnknownDefinition, env.ID)
	}
	return d.codec.Decode(env.Value, hint)
}

// EnvelopeFrom rebuilds an Envelope from a decoded wire value, which
// must be a map with "id" and "value" entries.
func EnvelopeFrom(v any) (Envelope, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %T", ErrBadEnvelope, v)
	}
	id, ok := m["id"].(string)
	if !ok || id == "" {
		return Envelope{}, fmt.Errorf("%w: missing id", ErrBadEnvelope)
	}
	value, ok := m["value"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing value", ErrBadEnvelope)
	}
	return Envelope{ID: id, Value: value}, nil
}
