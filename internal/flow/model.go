package flow

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/registry"
)

// ModelType selects the kind of reference geometry.
type ModelType string

const (
	ModelBlock   ModelType = "block"
	ModelPolygon ModelType = "polygon"
)

// ModelTypes lists the legal model types.
var ModelTypes = []ModelType{ModelBlock, ModelPolygon}

var modelSchema = &schema{
	kind: registry.KindModel,
	converters: map[string]Converter{
		"type":   enumConverter("model type", ModelTypes),
		"lower":  vectorConverter,
		"upper":  vectorConverter,
		"points": vectorListConverter,
		"z":      floatConverter,
	},
	defaults: map[string]any{
		"z": 0.0,
	},
}

// Model is a piece of reference geometry: a solid block or a flat polygon.
type Model struct {
	Entity
	// instance separates models that reuse an id.
	instance string
}

// NewModel builds a model and registers it.
func NewModel(reg *registry.Registry, id string, attrs map[string]any) (*Model, error) {
	m := &Model{instance: uuid.NewString()}
	if err := m.init(reg, modelSchema, id, attrs); err != nil {
		return nil, err
	}
	reg.Register(m)
	return m, nil
}

// Close removes the model from its registry if it is still bound there.
func (m *Model) Close() bool { return m.reg.Deregister(m) }

// Type returns the kind of geometry the model describes.
func (m *Model) Type() (ModelType, error) { return getAs[ModelType](&m.Entity, "type") }

// Geometry builds the model's shape. Polygons lie at height z; the Z of
// their points is ignored.
func (m *Model) Geometry() (geometry.Model, error) {
	kind, err := m.Type()
	if err != nil {
		return nil, err
	}
	switch kind {
	case ModelBlock:
		lower, err := getAs[r3.Vec](&m.Entity, "lower")
		if err != nil {
			return nil, err
		}
		upper, err := getAs[r3.Vec](&m.Entity, "upper")
		if err != nil {
			return nil, err
		}
		return geometry.NewBlock(lower, upper), nil
	case ModelPolygon:
		points, err := getAs[[]r3.Vec](&m.Entity, "points")
		if err != nil {
			return nil, err
		}
		z, err := getAs[float64](&m.Entity, "z")
		if err != nil {
			return nil, err
		}
		flat := make([]r3.Vec, len(points))
		for i, p := range points {
			flat[i] = r3.Vec{X: p.X, Y: p.Y, Z: z}
		}
		poly, err := geometry.NewPolygon(flat)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", m.id, err)
		}
		return poly, nil
	default:
		return nil, invalidKey("model type", kind, ModelTypes)
	}
}

// Trace returns the model as flat geometry for engraving.
func (m *Model) Trace() (geometry.Trace, error) {
	g, err := m.Geometry()
	if err != nil {
		return nil, err
	}
	trace, ok := g.(geometry.Trace)
	if !ok {
		return nil, fmt.Errorf("model %q: %w", m.id, &InvalidDataError{Value: m.Export()["type"], Reason: "not a 2D trace model"})
	}
	return trace, nil
}

// cacheKey identifies derived geometry of this exact model state.
func (m *Model) cacheKey(radius float64) string {
	return fmt.Sprintf("%s/%d/%g", m.instance, m.revision, radius)
}

// Validate checks every attribute and that the geometry can be built.
func (m *Model) Validate() error {
	if err := m.validateAttributes(); err != nil {
		return err
	}
	_, err := m.Geometry()
	return err
}

// models asserts that resolved entities are models.
func models(entities []registry.Entity) ([]*Model, error) {
	out := make([]*Model, 0, len(entities))
	for _, e := range entities {
		m, ok := e.(*Model)
		if !ok {
			return nil, fmt.Errorf("%s %q is not a model", e.Kind(), e.ID())
		}
		out = append(out, m)
	}
	return out, nil
}

func geometries(ms []*Model) ([]geometry.Model, error) {
	out := make([]geometry.Model, 0, len(ms))
	for _, m := range ms {
		g, err := m.Geometry()
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
