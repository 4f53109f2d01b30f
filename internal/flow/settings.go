package flow

import "gonum.org/v1/gonum/spatial/r3"

// Typed views of entity attributes, filled by Entity.Decode. References are
// kept as ids. Keys without a field end up in Extra.

type ToolSettings struct {
	Shape        ToolShape      `mapstructure:"shape"`
	Radius       float64        `mapstructure:"radius"`
	Diameter     float64        `mapstructure:"diameter"`
	ToroidRadius float64        `mapstructure:"toroid_radius"`
	Height       float64        `mapstructure:"height"`
	Feed         float64        `mapstructure:"feed"`
	Speed        float64        `mapstructure:"speed"`
	Extra        map[string]any `mapstructure:",remain"`
}

type ProcessSettings struct {
	Strategy           Strategy       `mapstructure:"strategy"`
	Overlap            float64        `mapstructure:"overlap"`
	StepDown           float64        `mapstructure:"step_down"`
	MillingStyle       string         `mapstructure:"milling_style"`
	PathPattern        PathPattern    `mapstructure:"path_pattern"`
	GridDirection      string         `mapstructure:"grid_direction"`
	SpiralDirection    string         `mapstructure:"spiral_direction"`
	PocketingType      string         `mapstructure:"pocketing_type"`
	RoundedCorners     bool           `mapstructure:"rounded_corners"`
	RadiusCompensation bool           `mapstructure:"radius_compensation"`
	TraceModels        []string       `mapstructure:"trace_models"`
	MaterialAllowance  float64        `mapstructure:"material_allowance"`
	Extra              map[string]any `mapstructure:",remain"`
}

type BoundsSettings struct {
	Specification BoundsSpecification `mapstructure:"specification"`
	Lower         r3.Vec              `mapstructure:"lower"`
	Upper         r3.Vec              `mapstructure:"upper"`
	Extra         map[string]any      `mapstructure:",remain"`
}

type ModelSettings struct {
	Type   ModelType      `mapstructure:"type"`
	Lower  r3.Vec         `mapstructure:"lower"`
	Upper  r3.Vec         `mapstructure:"upper"`
	Points []r3.Vec       `mapstructure:"points"`
	Z      float64        `mapstructure:"z"`
	Extra  map[string]any `mapstructure:",remain"`
}

type TaskSettings struct {
	Type            TaskType       `mapstructure:"type"`
	Process         string         `mapstructure:"process"`
	Tool            string         `mapstructure:"tool"`
	Bounds          string         `mapstructure:"bounds"`
	CollisionModels []string       `mapstructure:"collision_models"`
	SafetyHeight    float64        `mapstructure:"safety_height"`
	Unit            string         `mapstructure:"unit"`
	Extra           map[string]any `mapstructure:",remain"`
}
