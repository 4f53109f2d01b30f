package flow

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/registry"
)

// BoundsSpecification selects how lower and upper are read.
type BoundsSpecification string

const (
	// BoundsMargins treats lower and upper as outward margins around the
	// models.
	BoundsMargins BoundsSpecification = "margins"
	// BoundsAbsolute treats lower and upper as the volume corners.
	BoundsAbsolute BoundsSpecification = "absolute"
)

// BoundsSpecifications lists the legal specifications.
var BoundsSpecifications = []BoundsSpecification{BoundsMargins, BoundsAbsolute}

var boundsSchema = &schema{
	kind: registry.KindBounds,
	converters: map[string]Converter{
		"specification": enumConverter("bounds specification", BoundsSpecifications),
		"lower":         vectorConverter,
		"upper":         vectorConverter,
	},
	defaults: map[string]any{
		"specification": string(BoundsMargins),
		"lower":         r3.Vec{},
		"upper":         r3.Vec{},
	},
}

// Bounds computes the working volume of a task.
type Bounds struct {
	Entity
}

// NewBounds builds bounds and registers them.
func NewBounds(reg *registry.Registry, id string, attrs map[string]any) (*Bounds, error) {
	b := &Bounds{}
	if err := b.init(reg, boundsSchema, id, attrs); err != nil {
		return nil, err
	}
	reg.Register(b)
	return b, nil
}

// Close removes the bounds from their registry if still bound there.
func (b *Bounds) Close() bool { return b.reg.Deregister(b) }

// Specification reports whether lower and upper are margins or corners.
func (b *Bounds) Specification() (BoundsSpecification, error) {
	return getAs[BoundsSpecification](&b.Entity, "specification")
}

// AbsoluteLimits returns the working volume for a tool of the given radius.
// The volume is grown by the radius in X and Y so the cutter centre can
// reach every edge; Z is left alone. Without usable geometry the result is
// the zero box at the origin.
func (b *Bounds) AbsoluteLimits(toolRadius float64, models []geometry.Model) (r3.Box, error) {
	spec, err := b.Specification()
	if err != nil {
		return r3.Box{}, err
	}
	lower, err := getAs[r3.Vec](&b.Entity, "lower")
	if err != nil {
		return r3.Box{}, err
	}
	upper, err := getAs[r3.Vec](&b.Entity, "upper")
	if err != nil {
		return r3.Box{}, err
	}

	var box r3.Box
	switch spec {
	case BoundsMargins:
		extent, ok := geometry.CombinedBounds(models)
		if !ok {
			log.Debug(log.CatFlow, "no geometry for bounds, using minimal volume", "bounds", b.id)
			return r3.Box{}, nil
		}
		box = geometry.Expand(extent, lower, upper)
	case BoundsAbsolute:
		box = r3.Box{Min: lower, Max: upper}
	default:
		return r3.Box{}, invalidKey("bounds specification", spec, BoundsSpecifications)
	}

	if !geometry.HasExtent(box) {
		log.Debug(log.CatFlow, "inverted bounds, using minimal volume", "bounds", b.id)
		return r3.Box{}, nil
	}
	clearance := r3.Vec{X: toolRadius, Y: toolRadius}
	return geometry.Expand(box, clearance, clearance), nil
}

// Validate checks every attribute.
func (b *Bounds) Validate() error {
	return b.validateAttributes()
}
