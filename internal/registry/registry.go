// Package registry holds the live entities of a machining job, one keyed
// collection per entity kind. Cross-references between entities are plain ids
// that are resolved through a Registry at the moment of use, so replacing an
// entity is visible to every later lookup.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zjrosen/millflow/internal/log"
)

// Kind names an entity collection.
type Kind string

const (
	KindTool    Kind = "tool"
	KindProcess Kind = "process"
	KindTask    Kind = "task"
	KindBounds  Kind = "bounds"
	KindModel   Kind = "model"
)

// Kinds lists every collection in a stable order.
var Kinds = []Kind{KindTool, KindProcess, KindBounds, KindModel, KindTask}

// ErrNotFound is returned by Resolve when no entity is bound to an id.
var ErrNotFound = errors.New("entity not found")

// Entity is anything that can be stored in a Registry.
type Entity interface {
	Kind() Kind
	ID() string
}

// Registry maps (kind, id) to the live entity bound there.
// A Registry is owned by whoever builds the job; there is no process-wide
// instance.
type Registry struct {
	mu          sync.RWMutex
	collections map[Kind]map[string]Entity
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{collections: make(map[Kind]map[string]Entity)}
}

// Register binds e under its kind and id. An existing binding for the same id
// is replaced; the previous entity stays usable by anyone holding it.
func (r *Registry) Register(e Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	collection, ok := r.collections[e.Kind()]
	if !ok {
		collection = make(map[string]Entity)
		r.collections[e.Kind()] = collection
	}
	if _, replaced := collection[e.ID()]; replaced {
		log.Debug(log.CatRegistry, "replacing entity", "kind", e.Kind(), "id", e.ID())
	}
	collection[e.ID()] = e
}

// Lookup returns the entity bound to (kind, id).
func (r *Registry) Lookup(kind Kind, id string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.collections[kind][id]
	return e, ok
}

// LookupMany resolves ids in order. If any id is unbound the result is empty:
// callers never see a partial list.
func (r *Registry) LookupMany(kind Kind, ids []string) []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collection := r.collections[kind]
	result := make([]Entity, 0, len(ids))
	for _, id := range ids {
		e, ok := collection[id]
		if !ok {
			log.Debug(log.CatRegistry, "unresolved id in list", "kind", kind, "id", id)
			return []Entity{}
		}
		result = append(result, e)
	}
	return result
}

// Deregister removes e only when the registry still binds its id to e itself.
// It reports whether a binding was removed.
func (r *Registry) Deregister(e Entity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	collection := r.collections[e.Kind()]
	current, ok := collection[e.ID()]
	if !ok || current != e {
		return false
	}
	delete(collection, e.ID())
	return true
}

// List returns the entities of one kind sorted by id.
func (r *Registry) List(kind Kind) []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collection := r.collections[kind]
	ids := make([]string, 0, len(collection))
	for id := range collection {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	result := make([]Entity, 0, len(ids))
	for _, id := range ids {
		result = append(result, collection[id])
	}
	return result
}

// Len returns the number of entities of one kind.
func (r *Registry) Len(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.collections[kind])
}

// Resolve looks up (kind, id) and asserts the entity's concrete type.
func Resolve[T Entity](r *Registry, kind Kind, id string) (T, error) {
	var zero T
	e, ok := r.Lookup(kind, id)
	if !ok {
		return zero, fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	typed, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("%s %q has unexpected type %T", kind, id, e)
	}
	return typed, nil
}
