package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"pgregory.net/rapid"

	"github.com/zjrosen/millflow/internal/cachemanager"
	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/motiongrid"
	"github.com/zjrosen/millflow/internal/pathgen"
	"github.com/zjrosen/millflow/internal/progress"
	"github.com/zjrosen/millflow/internal/registry"
)

var workVolume = r3.Box{Min: r3.Vec{X: -3, Y: -3, Z: 0}, Max: r3.Vec{X: 13, Y: 13, Z: 10}}

func newProcess(t *testing.T, reg *registry.Registry, id string, attrs map[string]any) *Process {
	t.Helper()
	p, err := NewProcess(reg, id, attrs)
	require.NoError(t, err)
	return p
}

func square(t *testing.T, reg *registry.Registry, id string) *Model {
	t.Helper()
	m, err := NewModel(reg, id, map[string]any{
		"type":   "polygon",
		"points": []any{[]any{0, 0}, []any{10, 0}, []any{10, 10}, []any{0, 10}},
	})
	require.NoError(t, err)
	return m
}

func TestProcess_SelectPathGenerator(t *testing.T) {
	reg := registry.New()
	tests := map[Strategy]pathgen.Spec{
		StrategySlice:   {Kind: pathgen.KindPush, Waterlines: false},
		StrategyContour: {Kind: pathgen.KindPush, Waterlines: true},
		StrategySurface: {Kind: pathgen.KindDrop},
		StrategyEngrave: {Kind: pathgen.KindEngrave},
	}
	for strategy, want := range tests {
		p := newProcess(t, reg, string(strategy), map[string]any{"strategy": string(strategy)})
		got, err := p.SelectPathGenerator()
		require.NoError(t, err)
		require.Equal(t, want, got, strategy)
	}

	unknown := newProcess(t, reg, "drill", map[string]any{"strategy": "drill"})
	_, err := unknown.SelectPathGenerator()
	require.ErrorIs(t, err, ErrInvalidKey)
	for _, s := range Strategies {
		require.Contains(t, err.Error(), string(s))
	}
}

func TestProcess_LineDistance(t *testing.T) {
	reg := registry.New()

	p := newProcess(t, reg, "p", map[string]any{"strategy": "slice", "overlap": 0.4, "step_down": 1})
	req, err := p.GridRequest(context.Background(), 5, workVolume, nil)
	require.NoError(t, err)
	require.InDelta(t, 6.0, req.LineDistance, 1e-9)

	full := newProcess(t, reg, "full", map[string]any{"strategy": "slice", "overlap": 1.0, "step_down": 1})
	req, err = full.GridRequest(context.Background(), 5, workVolume, nil)
	require.NoError(t, err)
	require.Zero(t, req.LineDistance)

	_, ok, err := full.BuildMotionGrid(context.Background(), 5, workVolume, nil)
	require.ErrorIs(t, err, motiongrid.ErrLineDistance)
	require.False(t, ok)
}

func TestProcess_LineDistanceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := rapid.Float64Range(0.1, 100).Draw(t, "radius")
		overlap := rapid.Float64Range(0, 1).Draw(t, "overlap")
		p, err := NewProcess(registry.New(), "p", map[string]any{"strategy": "surface", "overlap": overlap})
		if err != nil {
			t.Fatal(err)
		}
		got, err := p.LineDistance(r)
		if err != nil {
			t.Fatal(err)
		}
		if want := 2 * r * (1 - overlap); got != want {
			t.Fatalf("line distance %v, want %v", got, want)
		}
		if got < 0 || got > 2*r {
			t.Fatalf("line distance %v outside [0, %v]", got, 2*r)
		}
	})
}

func TestProcess_SliceAndContourShareTheGrid(t *testing.T) {
	reg := registry.New()
	attrs := map[string]any{"step_down": 2, "overlap": 0.25, "milling_style": "climb"}

	attrs["strategy"] = "slice"
	slice := newProcess(t, reg, "slice", attrs)
	attrs["strategy"] = "contour"
	contour := newProcess(t, reg, "contour", attrs)

	sliceGrid, ok, err := slice.BuildMotionGrid(context.Background(), 3, workVolume, nil)
	require.NoError(t, err)
	require.True(t, ok)
	contourGrid, ok, err := contour.BuildMotionGrid(context.Background(), 3, workVolume, nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, sliceGrid, contourGrid)
	require.Equal(t, []float64{8, 6, 4, 2, 0}, sliceGrid.Heights())
}

func TestProcess_SliceRequiresStepDown(t *testing.T) {
	p := newProcess(t, registry.New(), "p", map[string]any{"strategy": "slice"})
	_, err := p.GridRequest(context.Background(), 3, workVolume, nil)
	require.ErrorIs(t, err, ErrMissingAttribute)
	require.ErrorIs(t, p.Validate(), ErrMissingAttribute)
}

func TestProcess_SurfaceRequest(t *testing.T) {
	reg := registry.New()

	spiral := newProcess(t, reg, "spiral", map[string]any{
		"strategy": "surface", "path_pattern": "spiral", "spiral_direction": "in", "milling_style": "conventional",
	})
	req, err := spiral.GridRequest(context.Background(), 2, workVolume, nil)
	require.NoError(t, err)
	require.Equal(t, motiongrid.PatternSpiral, req.Pattern)
	require.Equal(t, 0.5, req.StepWidth)
	require.Equal(t, 4.0, req.LineDistance)
	require.Equal(t, motiongrid.SpiralIn, req.SpiralDirection)
	require.Equal(t, motiongrid.MillingConventional, req.MillingStyle)

	grid := newProcess(t, reg, "grid", map[string]any{
		"strategy": "surface", "grid_direction": "xy", "rounded_corners": "off",
	})
	req, err = grid.GridRequest(context.Background(), 2, workVolume, nil)
	require.NoError(t, err)
	require.Equal(t, motiongrid.PatternFixed, req.Pattern)
	require.Equal(t, motiongrid.DirectionXY, req.GridDirection)
	require.Equal(t, motiongrid.SpiralOut, req.SpiralDirection)
	require.False(t, req.RoundedCorners)

	zigzag := newProcess(t, reg, "zigzag", map[string]any{"strategy": "surface", "path_pattern": "zigzag"})
	_, err = zigzag.GridRequest(context.Background(), 2, workVolume, nil)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestProcess_EngraveWithoutTracesIsSoft(t *testing.T) {
	buf := captureLog(t)
	sink := &progress.Recorder{}
	p := newProcess(t, registry.New(), "engrave", map[string]any{"strategy": "engrave", "step_down": 1})

	grid, ok, err := p.BuildMotionGrid(context.Background(), 1, workVolume, &Environment{Progress: sink})
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, grid.Layers)
	require.Empty(t, sink.Calls())
	require.Contains(t, buf.String(), "[ERROR] [flow] no trace models given")
}

func TestProcess_EngraveUnresolvedTracesIsSoft(t *testing.T) {
	reg := registry.New()
	square(t, reg, "outline")
	p := newProcess(t, reg, "engrave", map[string]any{
		"strategy": "engrave", "step_down": 1, "trace_models": []any{"outline", "gone"},
	})

	req, err := p.GridRequest(context.Background(), 1, workVolume, nil)
	require.NoError(t, err)
	require.Nil(t, req)
	require.ErrorIs(t, p.Validate(), ErrUnresolvedReference)
}

func TestProcess_EngraveRequest(t *testing.T) {
	reg := registry.New()
	square(t, reg, "outline")
	p := newProcess(t, reg, "engrave", map[string]any{
		"strategy": "engrave", "step_down": 2, "trace_models": []any{"outline"}, "pocketing_type": "material",
	})

	req, err := p.GridRequest(context.Background(), 1, workVolume, nil)
	require.NoError(t, err)
	require.Equal(t, motiongrid.PatternLines, req.Pattern)
	require.InDelta(t, 1.8, req.LineDistance, 1e-12)
	require.Equal(t, 0.25, req.StepWidth)
	require.Equal(t, 2.0, req.LayerDistance)
	require.Equal(t, motiongrid.PocketingMaterial, req.PocketingType)
	require.True(t, req.SkipFirstLayer)
	require.Len(t, req.Traces, 1)
	require.Equal(t, 0.0, req.Traces[0].Bounds().Min.X, "no compensation keeps the outline")
}

func TestProcess_EngraveCompensationReportsProgress(t *testing.T) {
	reg := registry.New()
	square(t, reg, "a")
	square(t, reg, "b")
	p := newProcess(t, reg, "engrave", map[string]any{
		"strategy": "engrave", "step_down": 2, "trace_models": []any{"a", "b"}, "radius_compensation": "yes",
	})
	sink := &progress.Recorder{}
	env := &Environment{Progress: sink}

	volume := r3.Box{Min: r3.Vec{X: -5, Y: -5, Z: -4}, Max: r3.Vec{X: 15, Y: 15, Z: 0}}
	grid, ok, err := p.BuildMotionGrid(context.Background(), 1, volume, env)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float64{-2, -4}, grid.Heights(), "the top layer is skipped")
	for _, layer := range grid.Layers {
		require.Len(t, layer.Lines, 2)
		outline := geometry.BoundsOf(layer.Lines[0])
		require.InDelta(t, -1, outline.Min.X, 1e-9, "outlines grow by the radius")
		require.InDelta(t, 11, outline.Max.Y, 1e-9)
	}

	calls := sink.Calls()
	require.Equal(t, []string{"update", "set_multiple:Model"}, calls[:2])
	require.Equal(t, 2, sink.Count("update_multiple"))
	require.Equal(t, 2, sink.Count("finish"), "offsetting and grid synthesis each finish")
	require.Equal(t, "finish", calls[len(calls)-1])
}

func TestProcess_EngraveOffsetsAreCached(t *testing.T) {
	reg := registry.New()
	m := square(t, reg, "outline")
	p := newProcess(t, reg, "engrave", map[string]any{
		"strategy": "engrave", "step_down": 2, "trace_models": []any{"outline"}, "radius_compensation": true,
	})
	manager := cachemanager.NewInMemoryCacheManager[string, geometry.Trace]("offsets", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	env := &Environment{Offsets: NewOffsetCache(manager)}

	for range 2 {
		_, err := p.GridRequest(context.Background(), 1, workVolume, env)
		require.NoError(t, err)
	}
	hits, misses := manager.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)

	m.Set("z", 1)
	_, err := p.GridRequest(context.Background(), 1, workVolume, env)
	require.NoError(t, err)
	_, misses = manager.Stats()
	require.Equal(t, int64(2), misses, "a changed model is offset again")
}

func TestProcess_BuildMotionGridHonoursContext(t *testing.T) {
	p := newProcess(t, registry.New(), "p", map[string]any{"strategy": "slice", "step_down": 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := p.BuildMotionGrid(ctx, 3, workVolume, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ok)
}
