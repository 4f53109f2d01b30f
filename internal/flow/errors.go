package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zjrosen/millflow/internal/registry"
)

// Sentinel errors for errors.Is checks.
var (
	ErrMissingAttribute    = errors.New("missing attribute")
	ErrInvalidData         = errors.New("invalid data")
	ErrInvalidKey          = errors.New("invalid key")
	ErrUnresolvedReference = errors.New("unresolved reference")
)

// MissingAttributeError reports a required attribute with no value and no
// default.
type MissingAttributeError struct {
	Kind registry.Kind
	ID   string
	Key  string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("the attribute %q is missing in %s %q", e.Key, e.Kind, e.ID)
}

func (e *MissingAttributeError) Is(target error) bool { return target == ErrMissingAttribute }

// InvalidDataError reports a value of the wrong type or format.
type InvalidDataError struct {
	Value  any
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid value %#v: %s", e.Value, e.Reason)
}

func (e *InvalidDataError) Is(target error) bool { return target == ErrInvalidData }

// InvalidKeyError reports a value outside an enumeration. It also matches
// ErrInvalidData.
type InvalidKeyError struct {
	Enum  string
	Value any
	Legal []string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("unknown %s: %v (should be one of: %s)", e.Enum, e.Value, strings.Join(e.Legal, ", "))
}

func (e *InvalidKeyError) Is(target error) bool {
	return target == ErrInvalidKey || target == ErrInvalidData
}

// UnresolvedReferenceError reports a single reference whose id is not bound
// in the registry.
type UnresolvedReferenceError struct {
	Kind registry.Kind
	ID   string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s %q is not registered", e.Kind, e.ID)
}

func (e *UnresolvedReferenceError) Is(target error) bool {
	return target == ErrUnresolvedReference || target == registry.ErrNotFound
}
