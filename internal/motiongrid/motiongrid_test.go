package motiongrid

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"pgregory.net/rapid"

	"github.com/zjrosen/millflow/internal/geometry"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func box(x0, y0, z0, x1, y1, z1 float64) r3.Box {
	return r3.Box{Min: r3.Vec{X: x0, Y: y0, Z: z0}, Max: r3.Vec{X: x1, Y: y1, Z: z1}}
}

func TestLayerHeights(t *testing.T) {
	if diff := cmp.Diff([]float64{8, 6, 4, 2, 0}, LayerHeights(0, 10, 2), approx); diff != "" {
		t.Errorf("LayerHeights mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{7, 4, 1, 0}, LayerHeights(0, 10, 3), approx); diff != "" {
		t.Errorf("uneven step mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []float64{3}, LayerHeights(3, 3, 1))
	require.Equal(t, []float64{0}, LayerHeights(0, 10, 0))
}

func TestLayerHeights_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lower := rapid.Float64Range(-50, 50).Draw(t, "lower")
		height := rapid.Float64Range(0.01, 100).Draw(t, "height")
		step := rapid.Float64Range(0.1, 20).Draw(t, "step")

		heights := LayerHeights(lower, lower+height, step)
		if heights[len(heights)-1] != lower {
			t.Fatalf("last layer %g, want %g", heights[len(heights)-1], lower)
		}
		for i := 1; i < len(heights); i++ {
			if heights[i] >= heights[i-1] {
				t.Fatalf("heights not descending: %v", heights)
			}
		}
		if heights[0] >= lower+height {
			t.Fatalf("top %g is not below the volume top", heights[0])
		}
	})
}

func TestFixedGrid_Zigzag(t *testing.T) {
	grid, err := Default{}.Synthesize(context.Background(), Request{
		Pattern:       PatternFixed,
		Volume:        box(0, 0, 0, 10, 4, 4),
		LayerDistance: 2,
		LineDistance:  2,
		GridDirection: DirectionX,
		MillingStyle:  MillingIgnore,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 0}, grid.Heights())

	want := []Line{
		{{X: 0, Y: 0, Z: 2}, {X: 10, Y: 0, Z: 2}},
		{{X: 10, Y: 2, Z: 2}, {X: 0, Y: 2, Z: 2}},
		{{X: 0, Y: 4, Z: 2}, {X: 10, Y: 4, Z: 2}},
	}
	if diff := cmp.Diff(want, grid.Layers[0].Lines, approx); diff != "" {
		t.Errorf("first layer mismatch (-want +got):\n%s", diff)
	}
}

func TestFixedGrid_StylesAndDirections(t *testing.T) {
	base := Request{Pattern: PatternFixed, Volume: box(0, 0, 0, 4, 4, 0), LineDistance: 2}

	climb := base
	climb.MillingStyle = MillingClimb
	grid, err := Default{}.Synthesize(context.Background(), climb, nil)
	require.NoError(t, err)
	for _, line := range grid.Layers[0].Lines {
		require.Equal(t, 4.0, line[0].X, "climb runs every line backwards")
	}

	xy := base
	xy.GridDirection = DirectionXY
	grid, err = Default{}.Synthesize(context.Background(), xy, nil)
	require.NoError(t, err)
	require.Len(t, grid.Layers[0].Lines, 6)

	stepped := base
	stepped.GridDirection = DirectionY
	stepped.StepWidth = 1
	grid, err = Default{}.Synthesize(context.Background(), stepped, nil)
	require.NoError(t, err)
	require.Len(t, grid.Layers[0].Lines[0], 5)
	require.Equal(t, 0.0, grid.Layers[0].Lines[0][0].X)
}

func TestSynthesize_Errors(t *testing.T) {
	_, err := Default{}.Synthesize(context.Background(), Request{Pattern: PatternFixed, Volume: box(0, 0, 0, 1, 1, 1)}, nil)
	require.True(t, errors.Is(err, ErrLineDistance))

	_, err = Default{}.Synthesize(context.Background(), Request{Pattern: PatternFixed, Volume: geometry.NoExtent(), LineDistance: 1}, nil)
	require.True(t, errors.Is(err, ErrNoVolume))

	_, err = Default{}.Synthesize(context.Background(), Request{Pattern: "zigzag", Volume: box(0, 0, 0, 1, 1, 1)}, nil)
	require.True(t, errors.Is(err, ErrUnknownPattern))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Default{}.Synthesize(ctx, Request{Pattern: PatternFixed, Volume: box(0, 0, 0, 1, 1, 1), LineDistance: 1}, nil)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestSpiralGrid(t *testing.T) {
	req := Request{
		Pattern:         PatternSpiral,
		Volume:          box(0, 0, 0, 8, 8, 0),
		LineDistance:    2,
		SpiralDirection: SpiralIn,
	}
	grid, err := Default{}.Synthesize(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, grid.Layers, 1)
	require.Len(t, grid.Layers[0].Lines, 1)

	line := grid.Layers[0].Lines[0]
	require.Equal(t, r3.Vec{}, line[0], "inward spiral starts at the outer corner")
	require.Equal(t, r3.Vec{X: 8}, line[1])
	require.Equal(t, r3.Vec{X: 4, Y: 4}, line[len(line)-1])

	req.SpiralDirection = SpiralOut
	grid, err = Default{}.Synthesize(context.Background(), req, nil)
	require.NoError(t, err)
	out := grid.Layers[0].Lines[0]
	require.Equal(t, r3.Vec{X: 4, Y: 4}, out[0])
	require.Equal(t, r3.Vec{}, out[len(out)-1])

	req.GridDirection = DirectionY
	req.SpiralDirection = SpiralIn
	grid, err = Default{}.Synthesize(context.Background(), req, nil)
	require.NoError(t, err)
	require.Equal(t, r3.Vec{Y: 8}, grid.Layers[0].Lines[0][1], "first leg runs along Y")
}

func TestSpiralGrid_RoundedCorners(t *testing.T) {
	req := Request{Pattern: PatternSpiral, Volume: box(0, 0, 0, 8, 8, 0), LineDistance: 2}
	sharp, err := Default{}.Synthesize(context.Background(), req, nil)
	require.NoError(t, err)

	req.RoundedCorners = true
	rounded, err := Default{}.Synthesize(context.Background(), req, nil)
	require.NoError(t, err)

	sharpLine := sharp.Layers[0].Lines[0]
	roundLine := rounded.Layers[0].Lines[0]
	require.Greater(t, len(roundLine), len(sharpLine))
	for _, p := range roundLine {
		require.NotEqual(t, r3.Vec{X: 8}, p, "corner is cut by the arc")
	}
	require.Equal(t, sharpLine[0], roundLine[0])
}

func TestLinesGrid(t *testing.T) {
	square, err := geometry.NewPolygon([]r3.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}})
	require.NoError(t, err)

	var calls int
	req := Request{
		Pattern:        PatternLines,
		Volume:         box(0, 0, 0, 10, 10, 0),
		LineDistance:   3,
		SkipFirstLayer: true,
		Traces:         []geometry.Trace{square},
	}
	grid, err := Default{}.Synthesize(context.Background(), req, func(string) { calls++ })
	require.NoError(t, err)
	require.Equal(t, []float64{0}, grid.Heights(), "skipping the top leaves the single flat layer")
	require.Len(t, grid.Layers[0].Lines, 1)
	require.Len(t, grid.Layers[0].Lines[0], 5)
	require.Equal(t, 1, calls)

	req.SkipFirstLayer = false
	req.Volume = box(0, 0, 0, 10, 10, 4)
	req.LayerDistance = 2
	grid, err = Default{}.Synthesize(context.Background(), req, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{4, 2, 0}, grid.Heights())
	require.Equal(t, 2.0, grid.Layers[1].Lines[0][0].Z)
}

func TestLinesGrid_Pocketing(t *testing.T) {
	material, err := geometry.NewPolygon([]r3.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}})
	require.NoError(t, err)
	hole, err := geometry.NewPolygon([]r3.Vec{{X: 20, Y: 0}, {X: 20, Y: 10}, {X: 30, Y: 10}, {X: 30, Y: 0}})
	require.NoError(t, err)

	req := Request{
		Pattern:        PatternLines,
		Volume:         box(0, 0, 0, 30, 10, 0),
		LineDistance:   2,
		SkipFirstLayer: true,
		PocketingType:  PocketingMaterial,
		Traces:         []geometry.Trace{material, hole},
	}
	grid, err := Default{}.Synthesize(context.Background(), req, nil)
	require.NoError(t, err)
	// Two outlines plus rings inset by 2 and 4 in the material square.
	require.Len(t, grid.Layers[0].Lines, 4)

	req.PocketingType = PocketingHoles
	grid, err = Default{}.Synthesize(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, grid.Layers[0].Lines, 4)
	require.Equal(t, 22.0, grid.Layers[0].Lines[2][0].X, "rings belong to the hole")

	req.LineDistance = 0
	_, err = Default{}.Synthesize(context.Background(), req, nil)
	require.True(t, errors.Is(err, ErrLineDistance))
}
