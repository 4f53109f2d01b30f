package flow

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/motiongrid"
	"github.com/zjrosen/millflow/internal/pathgen"
	"github.com/zjrosen/millflow/internal/progress"
	"github.com/zjrosen/millflow/internal/registry"
	"github.com/zjrosen/millflow/internal/tracing"
)

// Strategy is the machining approach of a process.
type Strategy string

const (
	StrategySlice   Strategy = "slice"
	StrategyContour Strategy = "contour"
	StrategySurface Strategy = "surface"
	StrategyEngrave Strategy = "engrave"
)

// Strategies lists the legal strategies.
var Strategies = []Strategy{StrategySlice, StrategyContour, StrategySurface, StrategyEngrave}

// PathPattern is the surface finishing pattern.
type PathPattern string

const (
	PathSpiral PathPattern = "spiral"
	PathGrid   PathPattern = "grid"
)

// PathPatterns lists the legal path patterns.
var PathPatterns = []PathPattern{PathSpiral, PathGrid}

const (
	// surfaceStepFactor divides the tool radius into the point spacing of
	// finishing passes.
	surfaceStepFactor = 4.0
	// engraveLineFactor scales the tool radius into the pocketing line
	// distance of engraving.
	engraveLineFactor = 1.8
)

var processSchema = &schema{
	kind: registry.KindProcess,
	converters: map[string]Converter{
		"strategy":            enumConverter("strategy", Strategies),
		"overlap":             floatConverter,
		"step_down":           floatConverter,
		"milling_style":       enumConverter("milling style", motiongrid.MillingStyles),
		"path_pattern":        enumConverter("path pattern", PathPatterns),
		"grid_direction":      enumConverter("grid direction", motiongrid.GridDirections),
		"spiral_direction":    enumConverter("spiral direction", motiongrid.SpiralDirections),
		"pocketing_type":      enumConverter("pocketing type", motiongrid.PocketingTypes),
		"rounded_corners":     boolConverter,
		"radius_compensation": boolConverter,
		"trace_models":        refListConverter(registry.KindModel),
		"material_allowance":  floatConverter,
	},
	defaults: map[string]any{
		"overlap":             0.0,
		"milling_style":       string(motiongrid.MillingIgnore),
		"path_pattern":        string(PathGrid),
		"grid_direction":      string(motiongrid.DirectionX),
		"spiral_direction":    string(motiongrid.SpiralOut),
		"pocketing_type":      string(motiongrid.PocketingNone),
		"rounded_corners":     true,
		"radius_compensation": false,
		"trace_models":        []any{},
		"material_allowance":  0.0,
	},
	refs: []string{"trace_models"},
}

// Process describes how material is removed.
type Process struct {
	Entity
}

// NewProcess builds a process and registers it.
func NewProcess(reg *registry.Registry, id string, attrs map[string]any) (*Process, error) {
	p := &Process{}
	if err := p.init(reg, processSchema, id, attrs); err != nil {
		return nil, err
	}
	reg.Register(p)
	return p, nil
}

// Close removes the process from its registry if it is still bound there.
func (p *Process) Close() bool { return p.reg.Deregister(p) }

// Strategy returns the machining strategy.
func (p *Process) Strategy() (Strategy, error) { return getAs[Strategy](&p.Entity, "strategy") }

// MaterialAllowance returns the material left on the part.
func (p *Process) MaterialAllowance() (float64, error) {
	return getAs[float64](&p.Entity, "material_allowance")
}

// TraceModels resolves the trace model ids. Any unknown id gives an empty
// list.
func (p *Process) TraceModels() ([]*Model, error) {
	entities, err := getAs[[]registry.Entity](&p.Entity, "trace_models")
	if err != nil {
		return nil, err
	}
	return models(entities)
}

// SelectPathGenerator maps the strategy to a generator.
func (p *Process) SelectPathGenerator() (pathgen.Spec, error) {
	strategy, err := p.Strategy()
	if err != nil {
		return pathgen.Spec{}, err
	}
	switch strategy {
	case StrategySlice:
		return pathgen.Spec{Kind: pathgen.KindPush, Waterlines: false}, nil
	case StrategyContour:
		return pathgen.Spec{Kind: pathgen.KindPush, Waterlines: true}, nil
	case StrategySurface:
		return pathgen.Spec{Kind: pathgen.KindDrop}, nil
	case StrategyEngrave:
		return pathgen.Spec{Kind: pathgen.KindEngrave}, nil
	default:
		return pathgen.Spec{}, invalidKey("strategy", strategy, Strategies)
	}
}

// LineDistance is the spacing of neighbouring passes: 2·r·(1 − overlap).
func (p *Process) LineDistance(toolRadius float64) (float64, error) {
	overlap, err := getAs[float64](&p.Entity, "overlap")
	if err != nil {
		return 0, err
	}
	return 2 * toolRadius * (1 - overlap), nil
}

// GridRequest derives the motion grid recipe for this process. It returns
// (nil, nil) when no grid can be built, after logging why. For engraving with
// radius compensation the trace models are offset here, reporting progress
// to env's sink.
func (p *Process) GridRequest(ctx context.Context, toolRadius float64, volume r3.Box, env *Environment) (*motiongrid.Request, error) {
	strategy, err := p.Strategy()
	if err != nil {
		return nil, err
	}
	lineDistance, err := p.LineDistance(toolRadius)
	if err != nil {
		return nil, err
	}
	millingStyle, err := getAs[motiongrid.MillingStyle](&p.Entity, "milling_style")
	if err != nil {
		return nil, err
	}

	switch strategy {
	case StrategySlice, StrategyContour:
		stepDown, err := getAs[float64](&p.Entity, "step_down")
		if err != nil {
			return nil, err
		}
		return &motiongrid.Request{
			Pattern:       motiongrid.PatternFixed,
			Volume:        volume,
			LayerDistance: stepDown,
			LineDistance:  lineDistance,
			GridDirection: motiongrid.DirectionX,
			MillingStyle:  millingStyle,
		}, nil

	case StrategySurface:
		return p.surfaceRequest(toolRadius, volume, lineDistance, millingStyle)

	case StrategyEngrave:
		return p.engraveRequest(ctx, toolRadius, volume, millingStyle, env)

	default:
		return nil, invalidKey("strategy", strategy, Strategies)
	}
}

func (p *Process) surfaceRequest(toolRadius float64, volume r3.Box, lineDistance float64, style motiongrid.MillingStyle) (*motiongrid.Request, error) {
	pattern, err := getAs[PathPattern](&p.Entity, "path_pattern")
	if err != nil {
		return nil, err
	}
	gridDirection, err := getAs[motiongrid.GridDirection](&p.Entity, "grid_direction")
	if err != nil {
		return nil, err
	}
	spiralDirection, err := getAs[motiongrid.SpiralDirection](&p.Entity, "spiral_direction")
	if err != nil {
		return nil, err
	}
	rounded, err := getAs[bool](&p.Entity, "rounded_corners")
	if err != nil {
		return nil, err
	}

	req := &motiongrid.Request{
		Volume:          volume,
		LineDistance:    lineDistance,
		StepWidth:       toolRadius / surfaceStepFactor,
		GridDirection:   gridDirection,
		MillingStyle:    style,
		SpiralDirection: spiralDirection,
		RoundedCorners:  rounded,
	}
	switch pattern {
	case PathSpiral:
		req.Pattern = motiongrid.PatternSpiral
	case PathGrid:
		req.Pattern = motiongrid.PatternFixed
	default:
		return nil, invalidKey("path pattern", pattern, PathPatterns)
	}
	return req, nil
}

func (p *Process) engraveRequest(ctx context.Context, toolRadius float64, volume r3.Box, style motiongrid.MillingStyle, env *Environment) (*motiongrid.Request, error) {
	traceModels, err := p.TraceModels()
	if err != nil {
		return nil, err
	}
	if len(traceModels) == 0 {
		log.Error(log.CatFlow, "no trace models given: assign a 2D model to the engraving process", "process", p.id)
		return nil, nil
	}
	stepDown, err := getAs[float64](&p.Entity, "step_down")
	if err != nil {
		return nil, err
	}
	pocketing, err := getAs[motiongrid.PocketingType](&p.Entity, "pocketing_type")
	if err != nil {
		return nil, err
	}
	compensate, err := getAs[bool](&p.Entity, "radius_compensation")
	if err != nil {
		return nil, err
	}

	traces := make([]geometry.Trace, 0, len(traceModels))
	if compensate {
		sink := env.sink()
		sink.Update("Offsetting models")
		sink.SetMultiple(len(traceModels), "Model")
		for _, m := range traceModels {
			offset, err := env.offsets().Offset(ctx, m, toolRadius, progress.Callback(sink))
			if err != nil {
				sink.Finish()
				return nil, fmt.Errorf("offset trace model %q: %w", m.ID(), err)
			}
			traces = append(traces, offset)
			sink.UpdateMultiple()
		}
		sink.Finish()
	} else {
		for _, m := range traceModels {
			tr, err := m.Trace()
			if err != nil {
				return nil, err
			}
			traces = append(traces, tr)
		}
	}

	return &motiongrid.Request{
		Pattern:        motiongrid.PatternLines,
		Volume:         volume,
		LayerDistance:  stepDown,
		LineDistance:   engraveLineFactor * toolRadius,
		StepWidth:      toolRadius / surfaceStepFactor,
		MillingStyle:   style,
		PocketingType:  pocketing,
		SkipFirstLayer: true,
		Traces:         traces,
	}, nil
}

// BuildMotionGrid derives and synthesizes the motion grid. ok is false when
// no grid applies (already logged).
func (p *Process) BuildMotionGrid(ctx context.Context, toolRadius float64, volume r3.Box, env *Environment) (grid motiongrid.Grid, ok bool, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, tracing.SpanBuildMotionGrid,
		trace.WithAttributes(attribute.String(tracing.AttrProcessID, p.id)))
	defer span.End()

	req, err := p.GridRequest(ctx, toolRadius, volume, env)
	if err != nil {
		span.RecordError(err)
		return motiongrid.Grid{}, false, err
	}
	if req == nil {
		return motiongrid.Grid{}, false, nil
	}
	span.SetAttributes(
		attribute.String(tracing.AttrGridPattern, string(req.Pattern)),
		attribute.Float64(tracing.AttrGridLineDistance, req.LineDistance),
	)

	var report func(string)
	if req.Pattern == motiongrid.PatternLines {
		sink := env.sink()
		sink.Update("Calculating moves")
		defer sink.Finish()
		report = progress.Callback(sink)
	}

	grid, err = env.grids().Synthesize(ctx, *req, report)
	if err != nil {
		span.RecordError(err)
		return motiongrid.Grid{}, false, fmt.Errorf("process %q motion grid: %w", p.id, err)
	}
	span.SetAttributes(attribute.Int(tracing.AttrGridLayers, len(grid.Layers)))
	return grid, true, nil
}

// Validate checks every attribute and the strategy-specific requirements.
func (p *Process) Validate() error {
	if err := errors.Join(p.validateAttributes(), p.checkRefs("trace_models", registry.KindModel)); err != nil {
		return err
	}
	strategy, err := p.Strategy()
	if err != nil {
		return err
	}
	switch strategy {
	case StrategySlice, StrategyContour, StrategyEngrave:
		if _, err := getAs[float64](&p.Entity, "step_down"); err != nil {
			return err
		}
	}
	return nil
}
