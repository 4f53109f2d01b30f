// Package flow binds the entities of a machining job (tools, processes,
// bounds, models and tasks) and drives toolpath generation from them.
//
// Entities are built from loosely typed attribute maps. Each kind declares
// which keys it converts and which defaults it supplies; everything else is
// kept verbatim. References to other entities are stored as ids and
// resolved through the registry whenever they are read.
package flow

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/go-viper/mapstructure/v2"

	"github.com/zjrosen/millflow/internal/registry"
)

// ErrEmptyID is returned when an entity is built without an id.
var ErrEmptyID = errors.New("entity id must not be empty")

// schema is the static description of one entity kind.
type schema struct {
	kind       registry.Kind
	converters map[string]Converter
	defaults   map[string]any
	// refs are the keys that hold ids of other entities.
	refs []string
}

type getOptions struct {
	def        any
	hasDefault bool
	optional   bool
}

// GetOption adjusts a single Get call.
type GetOption func(*getOptions)

// WithDefault supplies a fallback used after the kind's own default.
func WithDefault(v any) GetOption {
	return func(o *getOptions) {
		o.def = v
		o.hasDefault = true
	}
}

// Optional makes a missing attribute return (nil, nil).
func Optional() GetOption {
	return func(o *getOptions) { o.optional = true }
}

// Entity is the attribute store shared by every entity kind.
type Entity struct {
	schema   *schema
	reg      *registry.Registry
	id       string
	attrs    map[string]any
	revision uint64
}

func (e *Entity) init(reg *registry.Registry, s *schema, id string, attrs map[string]any) error {
	if id == "" {
		return fmt.Errorf("%s: %w", s.kind, ErrEmptyID)
	}
	e.schema = s
	e.reg = reg
	e.id = id
	e.attrs = deepCopyMap(attrs)
	return nil
}

// Kind returns the registry kind of the entity.
func (e *Entity) Kind() registry.Kind { return e.schema.kind }

// ID returns the id the entity is registered under.
func (e *Entity) ID() string { return e.id }

// Registry returns the registry references are resolved through.
func (e *Entity) Registry() *registry.Registry { return e.reg }

// Revision increases with every Set.
func (e *Entity) Revision() uint64 { return e.revision }

// Has reports whether the attribute is stored (defaults do not count).
func (e *Entity) Has(key string) bool {
	_, ok := e.attrs[key]
	return ok
}

// Get returns the attribute, looking at the stored value, the kind's
// default and finally an explicit default. A converter registered for the
// key is applied to whichever value is found.
func (e *Entity) Get(key string, opts ...GetOption) (any, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	raw, ok := e.attrs[key]
	if !ok {
		raw, ok = e.schema.defaults[key]
	}
	if !ok && o.hasDefault {
		raw, ok = o.def, true
	}
	if !ok {
		if o.optional {
			return nil, nil
		}
		return nil, &MissingAttributeError{Kind: e.Kind(), ID: e.id, Key: key}
	}

	conv, ok := e.schema.converters[key]
	if !ok {
		return deepCopy(raw), nil
	}
	v, err := conv(e.reg, raw)
	if err != nil {
		return nil, fmt.Errorf("%s %q attribute %q: %w", e.Kind(), e.id, key, err)
	}
	return v, nil
}

// Set stores a raw value. Conversion happens on the next Get.
func (e *Entity) Set(key string, value any) {
	e.attrs[key] = deepCopy(value)
	e.revision++
}

// Export returns a copy of the stored attributes.
func (e *Entity) Export() map[string]any {
	return deepCopyMap(e.attrs)
}

// keys returns stored and defaulted keys in sorted order.
func (e *Entity) keys() []string {
	set := make(map[string]struct{}, len(e.attrs)+len(e.schema.defaults))
	for k := range e.attrs {
		set[k] = struct{}{}
	}
	for k := range e.schema.defaults {
		set[k] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// validateAttributes converts every present attribute and reports all
// failures together.
func (e *Entity) validateAttributes() error {
	var errs []error
	for _, key := range e.keys() {
		if _, ok := e.schema.converters[key]; !ok {
			continue
		}
		if _, err := e.Get(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkRefs reports every id under key that the registry does not bind.
func (e *Entity) checkRefs(key string, kind registry.Kind) error {
	raw, ok := e.attrs[key]
	if !ok {
		return nil
	}
	ids, err := toIDs(raw)
	if err != nil {
		return fmt.Errorf("%s %q attribute %q: %w", e.Kind(), e.id, key, err)
	}
	var errs []error
	for _, id := range ids {
		if _, ok := e.reg.Lookup(kind, id); !ok {
			errs = append(errs, fmt.Errorf("%s %q attribute %q: %w", e.Kind(), e.id, key, &UnresolvedReferenceError{Kind: kind, ID: id}))
		}
	}
	return errors.Join(errs...)
}

// Decode converts every attribute and decodes the result into out, a
// pointer to a settings struct. References decode as ids. Keys the struct
// does not name land in a field tagged `mapstructure:",remain"`.
func (e *Entity) Decode(out any) error {
	values := make(map[string]any)
	var errs []error
	for _, key := range e.keys() {
		if slices.Contains(e.schema.refs, key) {
			raw := e.attrs[key]
			if raw == nil {
				raw = e.schema.defaults[key]
			}
			values[key] = deepCopy(raw)
			continue
		}
		v, err := e.Get(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values[key] = v
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(values); err != nil {
		return fmt.Errorf("decode %s %q: %w", e.Kind(), e.id, err)
	}
	return nil
}

// getAs reads an attribute and asserts its converted type. An optional
// missing attribute yields the zero value.
func getAs[T any](e *Entity, key string, opts ...GetOption) (T, error) {
	var zero T
	v, err := e.Get(key, opts...)
	if err != nil || v == nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s %q attribute %q: %w", e.Kind(), e.id, key,
			&InvalidDataError{Value: v, Reason: fmt.Sprintf("expected %T", zero)})
	}
	return typed, nil
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		return slices.Clone(t)
	case []float64:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	default:
		return v
	}
}
