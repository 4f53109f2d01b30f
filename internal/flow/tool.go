package flow

import (
	"fmt"

	"github.com/zjrosen/millflow/internal/cutter"
	"github.com/zjrosen/millflow/internal/registry"
	"github.com/zjrosen/millflow/internal/toolpath"
)

// ToolShape is the cutter profile.
type ToolShape string

const (
	ShapeFlatBottom ToolShape = "flat_bottom"
	ShapeBallNose   ToolShape = "ball_nose"
	ShapeTorus      ToolShape = "torus"
)

// ToolShapes lists the legal shapes.
var ToolShapes = []ToolShape{ShapeFlatBottom, ShapeBallNose, ShapeTorus}

// Machine setting keys attached to every toolpath.
const (
	SettingFeedrate     = "feedrate"
	SettingSpindleSpeed = "spindle_speed"
)

var toolSchema = &schema{
	kind: registry.KindTool,
	converters: map[string]Converter{
		"shape":         enumConverter("tool shape", ToolShapes),
		"radius":        floatConverter,
		"diameter":      floatConverter,
		"toroid_radius": floatConverter,
		"height":        floatConverter,
		"feed":          floatConverter,
		"speed":         floatConverter,
	},
	defaults: map[string]any{
		"height": 10.0,
		"feed":   300.0,
		"speed":  1000.0,
	},
}

// Tool describes a cutter and the machine settings it runs with.
type Tool struct {
	Entity
}

// NewTool builds a tool and registers it.
func NewTool(reg *registry.Registry, id string, attrs map[string]any) (*Tool, error) {
	t := &Tool{}
	if err := t.init(reg, toolSchema, id, attrs); err != nil {
		return nil, err
	}
	reg.Register(t)
	return t, nil
}

// Close removes the tool from its registry if it is still bound there.
func (t *Tool) Close() bool { return t.reg.Deregister(t) }

// Shape returns the cutter shape.
func (t *Tool) Shape() (ToolShape, error) { return getAs[ToolShape](&t.Entity, "shape") }

// Height returns the cutting length of the tool.
func (t *Tool) Height() (float64, error) { return getAs[float64](&t.Entity, "height") }

// Feed returns the feedrate.
func (t *Tool) Feed() (float64, error) { return getAs[float64](&t.Entity, "feed") }

// Speed returns the spindle speed.
func (t *Tool) Speed() (float64, error) { return getAs[float64](&t.Entity, "speed") }

// Radius reads radius, falling back to half the diameter.
func (t *Tool) Radius() (float64, error) {
	switch {
	case t.Has("radius"):
		return getAs[float64](&t.Entity, "radius")
	case t.Has("diameter"):
		d, err := getAs[float64](&t.Entity, "diameter")
		return d / 2, err
	default:
		return 0, &MissingAttributeError{Kind: t.Kind(), ID: t.id, Key: "radius"}
	}
}

// Diameter is twice the radius.
func (t *Tool) Diameter() (float64, error) {
	r, err := t.Radius()
	return 2 * r, err
}

// Geometry builds the cutter shape for path generation.
func (t *Tool) Geometry() (cutter.Geometry, error) {
	shape, err := t.Shape()
	if err != nil {
		return nil, err
	}
	radius, err := t.Radius()
	if err != nil {
		return nil, err
	}
	height, err := t.Height()
	if err != nil {
		return nil, err
	}

	var g cutter.Geometry
	switch shape {
	case ShapeFlatBottom:
		g, err = cutter.NewCylindrical(radius, height)
	case ShapeBallNose:
		g, err = cutter.NewSpherical(radius, height)
	case ShapeTorus:
		var minor float64
		if minor, err = getAs[float64](&t.Entity, "toroid_radius"); err != nil {
			return nil, err
		}
		g, err = cutter.NewToroidal(radius, minor, height)
	default:
		return nil, invalidKey("tool shape", shape, ToolShapes)
	}
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", t.id, err)
	}
	return g, nil
}

// MachineSettings returns the feedrate and spindle speed filters, in that
// order.
func (t *Tool) MachineSettings() ([]toolpath.MachineSetting, error) {
	feed, err := t.Feed()
	if err != nil {
		return nil, err
	}
	speed, err := t.Speed()
	if err != nil {
		return nil, err
	}
	return []toolpath.MachineSetting{
		{Key: SettingFeedrate, Value: feed},
		{Key: SettingSpindleSpeed, Value: speed},
	}, nil
}

// Validate checks every attribute and that a cutter can be built.
func (t *Tool) Validate() error {
	if err := t.validateAttributes(); err != nil {
		return err
	}
	_, err := t.Geometry()
	return err
}
