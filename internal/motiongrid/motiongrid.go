// Package motiongrid builds the layered sequences of planned tool positions
// that path generators refine into toolpaths.
package motiongrid

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/log"
)

const (
	epsilon = 1e-9
	// maxSteps bounds every generated sequence.
	maxSteps = 1_000_000
)

var (
	// ErrLineDistance is returned when a pattern needs a positive line distance.
	ErrLineDistance = errors.New("line distance must be positive")
	// ErrNoVolume is returned for a volume without extent.
	ErrNoVolume = errors.New("motion grid volume has no extent")
	// ErrUnknownPattern is returned for an unsupported pattern.
	ErrUnknownPattern = errors.New("unknown motion grid pattern")
)

// Line is an ordered run of planned positions.
type Line []r3.Vec

// Layer is every line planned at one height.
type Layer struct {
	Z     float64
	Lines []Line
}

// Grid is the layered plan, top layer first.
type Grid struct {
	Layers []Layer
}

// Heights returns the layer heights in order.
func (g Grid) Heights() []float64 {
	heights := make([]float64, len(g.Layers))
	for i, l := range g.Layers {
		heights[i] = l.Z
	}
	return heights
}

// LineCount counts lines across all layers.
func (g Grid) LineCount() int {
	n := 0
	for _, l := range g.Layers {
		n += len(l.Lines)
	}
	return n
}

// Request describes the grid to build.
type Request struct {
	Pattern Pattern
	// Volume is the space to cover. Lines grids take their heights from it.
	Volume r3.Box
	// LayerDistance is the vertical step. Zero means a single layer.
	LayerDistance float64
	// LineDistance is the spacing between neighbouring lines.
	LineDistance float64
	// StepWidth is the spacing of points along a line. Zero keeps only
	// corner points.
	StepWidth       float64
	GridDirection   GridDirection
	MillingStyle    MillingStyle
	SpiralDirection SpiralDirection
	RoundedCorners  bool
	PocketingType   PocketingType
	// SkipFirstLayer drops the topmost height of a lines grid.
	SkipFirstLayer bool
	Traces         []geometry.Trace
}

// Synthesizer turns a request into a grid.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request, progress func(string)) (Grid, error)
}

// Default is the built-in synthesizer.
type Default struct{}

var _ Synthesizer = Default{}

// Synthesize builds the grid for req. progress is called once per layer and
// may be nil.
func (Default) Synthesize(ctx context.Context, req Request, progress func(string)) (Grid, error) {
	if progress == nil {
		progress = func(string) {}
	}
	if !geometry.HasExtent(req.Volume) {
		return Grid{}, ErrNoVolume
	}

	var (
		grid Grid
		err  error
	)
	switch req.Pattern {
	case PatternFixed:
		grid, err = fixedGrid(ctx, req, progress)
	case PatternSpiral:
		grid, err = spiralGrid(ctx, req, progress)
	case PatternLines:
		grid, err = linesGrid(ctx, req, progress)
	default:
		return Grid{}, fmt.Errorf("%w: %q", ErrUnknownPattern, req.Pattern)
	}
	if err != nil {
		return Grid{}, err
	}
	log.Debug(log.CatGrid, "motion grid built", "pattern", req.Pattern, "layers", len(grid.Layers), "lines", grid.LineCount())
	return grid, nil
}

// LayerHeights steps down from upper by step. The top itself is not a layer;
// the last layer is exactly lower. A non-positive step or a flat range gives
// the single layer lower.
func LayerHeights(lower, upper, step float64) []float64 {
	if step <= 0 || upper-lower <= epsilon {
		return []float64{lower}
	}
	var heights []float64
	for k := 1; k <= maxSteps; k++ {
		z := upper - float64(k)*step
		if z <= lower+epsilon {
			break
		}
		heights = append(heights, z)
	}
	return append(heights, lower)
}

// positions spaces values from lower to upper by step, always ending at upper.
func positions(lower, upper, step float64) []float64 {
	if upper-lower <= epsilon {
		return []float64{lower}
	}
	var values []float64
	for k := 0; k < maxSteps; k++ {
		v := lower + float64(k)*step
		if v >= upper-epsilon {
			break
		}
		values = append(values, v)
	}
	return append(values, upper)
}

// resample inserts points so that no gap exceeds step.
func resample(points []r3.Vec, step float64) Line {
	if step <= 0 || len(points) < 2 {
		return append(Line(nil), points...)
	}
	out := Line{points[0]}
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		length := r3.Norm(r3.Sub(b, a))
		n := int(math.Ceil(length/step - epsilon))
		n = max(1, min(n, maxSteps))
		for k := 1; k <= n; k++ {
			t := float64(k) / float64(n)
			out = append(out, r3.Add(a, r3.Scale(t, r3.Sub(b, a))))
		}
	}
	return out
}

func reversed(line Line) Line {
	out := make(Line, len(line))
	for i, p := range line {
		out[len(line)-1-i] = p
	}
	return out
}

// orient applies the milling style to the index-th line of a run.
func orient(line Line, style MillingStyle, index int) Line {
	switch style {
	case MillingClimb:
		return reversed(line)
	case MillingConventional:
		return line
	default:
		if index%2 == 1 {
			return reversed(line)
		}
		return line
	}
}

func fixedGrid(ctx context.Context, req Request, progress func(string)) (Grid, error) {
	if req.LineDistance <= 0 {
		return Grid{}, ErrLineDistance
	}
	box := req.Volume
	heights := LayerHeights(box.Min.Z, box.Max.Z, req.LayerDistance)

	grid := Grid{Layers: make([]Layer, 0, len(heights))}
	for i, z := range heights {
		if err := ctx.Err(); err != nil {
			return Grid{}, err
		}
		var lines []Line
		index := 0
		if req.GridDirection != DirectionY {
			for _, y := range positions(box.Min.Y, box.Max.Y, req.LineDistance) {
				line := resample([]r3.Vec{{X: box.Min.X, Y: y, Z: z}, {X: box.Max.X, Y: y, Z: z}}, req.StepWidth)
				lines = append(lines, orient(line, req.MillingStyle, index))
				index++
			}
		}
		if req.GridDirection == DirectionY || req.GridDirection == DirectionXY {
			for _, x := range positions(box.Min.X, box.Max.X, req.LineDistance) {
				line := resample([]r3.Vec{{X: x, Y: box.Min.Y, Z: z}, {X: x, Y: box.Max.Y, Z: z}}, req.StepWidth)
				lines = append(lines, orient(line, req.MillingStyle, index))
				index++
			}
		}
		grid.Layers = append(grid.Layers, Layer{Z: z, Lines: lines})
		progress(fmt.Sprintf("layer %d/%d", i+1, len(heights)))
	}
	return grid, nil
}
