package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys shared by the generation pipeline.
const (
	AttrTaskID    = "task.id"
	AttrTaskState = "task.state"
	AttrProcessID = "process.id"
	AttrStrategy  = "process.strategy"

	AttrGridPattern      = "grid.pattern"
	AttrGridLineDistance = "grid.line_distance"
	AttrGridLayers       = "grid.layers"

	AttrGenerator      = "pathgen.kind"
	AttrGeneratorMoves = "pathgen.moves"
	AttrToolpathMoves  = "toolpath.moves"
)

// Span names.
const (
	SpanGenerateToolpath = "flow.generate_toolpath"
	SpanBuildMotionGrid  = "flow.build_motion_grid"
	SpanGenerateMoves    = "pathgen.generate"
	SpanStoreSave        = "store.save"
)

// TraceID returns the hex trace id of the span in ctx, or "" when ctx
// carries no recording span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
