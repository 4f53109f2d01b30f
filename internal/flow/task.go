package flow

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/pathgen"
	"github.com/zjrosen/millflow/internal/registry"
	"github.com/zjrosen/millflow/internal/toolpath"
	"github.com/zjrosen/millflow/internal/tracing"
)

const tracerName = "github.com/zjrosen/millflow/internal/flow"

// TaskType is the kind of work a task performs.
type TaskType string

const TaskMilling TaskType = "milling"

// TaskTypes lists the legal task types.
var TaskTypes = []TaskType{TaskMilling}

// TaskState is how far the last generation got.
type TaskState string

const (
	StateUnresolved TaskState = "unresolved"
	StateBounded    TaskState = "bounded"
	StateGenerating TaskState = "generating"
	StateDone       TaskState = "done"
	// StateSkipped is a soft failure: no toolpath and no error.
	StateSkipped TaskState = "skipped"
	StateFailed  TaskState = "failed"
)

var taskSchema = &schema{
	kind: registry.KindTask,
	converters: map[string]Converter{
		"type":             enumConverter("task type", TaskTypes),
		"process":          refConverter(registry.KindProcess),
		"tool":             refConverter(registry.KindTool),
		"bounds":           refConverter(registry.KindBounds),
		"collision_models": refListConverter(registry.KindModel),
		"safety_height":    floatConverter,
		"unit":             enumConverter("unit", toolpath.Units),
	},
	defaults: map[string]any{
		"type":             string(TaskMilling),
		"collision_models": []any{},
		"safety_height":    25.0,
		"unit":             string(toolpath.UnitMM),
	},
	refs: []string{"process", "tool", "bounds", "collision_models"},
}

// Task binds a process, a tool, bounds and collision models, and generates
// the toolpath from them.
type Task struct {
	Entity
	state TaskState
}

// NewTask builds a task and registers it. References are not checked here;
// they resolve when generation reads them.
func NewTask(reg *registry.Registry, id string, attrs map[string]any) (*Task, error) {
	t := &Task{state: StateUnresolved}
	if err := t.init(reg, taskSchema, id, attrs); err != nil {
		return nil, err
	}
	reg.Register(t)
	return t, nil
}

// Close removes the task from its registry if it is still bound there.
func (t *Task) Close() bool { return t.reg.Deregister(t) }

// State returns the state reached by the last GenerateToolpath call.
func (t *Task) State() TaskState { return t.state }

// Type returns the task type. Only milling is supported.
func (t *Task) Type() (TaskType, error) { return getAs[TaskType](&t.Entity, "type") }

// Process, Tool and Bounds resolve the task's references at call time.
func (t *Task) Process() (*Process, error) { return resolveRef[*Process](&t.Entity, "process") }
func (t *Task) Tool() (*Tool, error)       { return resolveRef[*Tool](&t.Entity, "tool") }
func (t *Task) Bounds() (*Bounds, error)   { return resolveRef[*Bounds](&t.Entity, "bounds") }

// CollisionModels resolves the collision model ids. Any unknown id gives an
// empty list.
func (t *Task) CollisionModels() ([]*Model, error) {
	entities, err := getAs[[]registry.Entity](&t.Entity, "collision_models")
	if err != nil {
		return nil, err
	}
	return models(entities)
}

func resolveRef[T registry.Entity](e *Entity, key string) (T, error) {
	var zero T
	v, err := getAs[registry.Entity](e, key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s %q attribute %q: %w", e.Kind(), e.id, key,
			&InvalidDataError{Value: v.ID(), Reason: fmt.Sprintf("expected %T", zero)})
	}
	return typed, nil
}

// GenerateToolpath runs the whole pipeline. A nil toolpath with a nil error
// means nothing could or needed to be generated; the reason has been logged.
// draw, if set, sees every move as it is produced. ctx is checked between
// layers.
func (t *Task) GenerateToolpath(ctx context.Context, env *Environment, draw pathgen.DrawFunc) (tp *toolpath.Toolpath, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, tracing.SpanGenerateToolpath,
		trace.WithAttributes(attribute.String(tracing.AttrTaskID, t.id)))
	defer func() {
		switch {
		case err != nil:
			t.state = StateFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case tp == nil:
			t.state = StateSkipped
		default:
			t.state = StateDone
			span.SetAttributes(attribute.Int(tracing.AttrToolpathMoves, tp.Len()))
		}
		span.SetAttributes(attribute.String(tracing.AttrTaskState, string(t.state)))
		span.End()
	}()
	t.state = StateUnresolved

	process, err := t.Process()
	if err != nil {
		return nil, err
	}
	bounds, err := t.Bounds()
	if err != nil {
		return nil, err
	}
	taskType, err := t.Type()
	if err != nil {
		return nil, err
	}
	if taskType != TaskMilling {
		return nil, invalidKey("task type", taskType, TaskTypes)
	}
	tool, err := t.Tool()
	if err != nil {
		return nil, err
	}
	collisionModels, err := t.CollisionModels()
	if err != nil {
		return nil, err
	}
	radius, err := tool.Radius()
	if err != nil {
		return nil, err
	}
	shapes, err := geometries(collisionModels)
	if err != nil {
		return nil, err
	}

	box, err := bounds.AbsoluteLimits(radius, shapes)
	if err != nil {
		return nil, err
	}
	t.state = StateBounded

	spec, err := process.SelectPathGenerator()
	if err != nil {
		return nil, err
	}
	generator, err := env.generators().New(spec)
	if err != nil {
		return nil, err
	}
	if generator == nil {
		log.Warn(log.CatFlow, "no path generator available", "task", t.id, "generator", spec)
		return nil, nil
	}

	grid, ok, err := process.BuildMotionGrid(ctx, radius, box, env)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if len(shapes) == 0 {
		log.Warn(log.CatFlow, "no collision model was selected; this can be intentional, but maybe you simply forgot it", "task", t.id)
	}

	cutterShape, err := tool.Geometry()
	if err != nil {
		return nil, err
	}

	t.state = StateGenerating
	log.Info(log.CatFlow, "generating toolpath", "task", t.id, "generator", spec, "layers", len(grid.Layers))
	moves, err := t.runGenerator(ctx, generator, pathgen.Input{
		Tool:   cutterShape,
		Models: shapes,
		Grid:   grid,
		MinZ:   box.Min.Z,
		MaxZ:   box.Max.Z,
	}, spec, draw)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", t.id, err)
	}
	if len(moves) == 0 {
		log.Info(log.CatFlow, "no valid moves found", "task", t.id)
		return nil, nil
	}

	return t.assemble(moves, tool, process)
}

func (t *Task) runGenerator(ctx context.Context, g pathgen.Generator, in pathgen.Input, spec pathgen.Spec, draw pathgen.DrawFunc) ([]toolpath.Move, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, tracing.SpanGenerateMoves,
		trace.WithAttributes(attribute.String(tracing.AttrGenerator, spec.String())))
	defer span.End()

	moves, err := g.Generate(ctx, in, draw)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int(tracing.AttrGeneratorMoves, len(moves)))
	return moves, nil
}

func (t *Task) assemble(moves []toolpath.Move, tool *Tool, process *Process) (*toolpath.Toolpath, error) {
	filters, err := tool.MachineSettings()
	if err != nil {
		return nil, err
	}
	allowance, err := process.MaterialAllowance()
	if err != nil {
		return nil, err
	}
	safety, err := getAs[float64](&t.Entity, "safety_height")
	if err != nil {
		return nil, err
	}
	unit, err := getAs[toolpath.Unit](&t.Entity, "unit")
	if err != nil {
		return nil, err
	}
	return toolpath.New(moves, toolpath.Metadata{
		Name:              t.id,
		ToolID:            tool.ID(),
		Speed:             settingValue(filters, SettingSpindleSpeed),
		Feedrate:          settingValue(filters, SettingFeedrate),
		MaterialAllowance: allowance,
		SafetyHeight:      safety,
		Unit:              unit,
		Filters:           filters,
	})
}

// settingValue returns the value of key in settings, or zero.
func settingValue(settings []toolpath.MachineSetting, key string) float64 {
	for _, s := range settings {
		if s.Key == key {
			return s.Value
		}
	}
	return 0
}

// Validate checks every attribute, that the single references are present
// and that every collision model id resolves.
func (t *Task) Validate() error {
	errs := []error{t.validateAttributes(), t.checkRefs("collision_models", registry.KindModel)}
	for _, key := range []string{"process", "tool", "bounds"} {
		if !t.Has(key) {
			errs = append(errs, &MissingAttributeError{Kind: t.Kind(), ID: t.id, Key: key})
		}
	}
	return errors.Join(errs...)
}
