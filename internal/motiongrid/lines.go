package motiongrid

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/geometry"
)

func linesGrid(ctx context.Context, req Request, progress func(string)) (Grid, error) {
	pocketing := req.PocketingType != "" && req.PocketingType != PocketingNone
	if pocketing && req.LineDistance <= 0 {
		return Grid{}, ErrLineDistance
	}

	var outlines []Line
	for _, trace := range req.Traces {
		for _, pl := range trace.Polylines() {
			outlines = append(outlines, Line(pl))
		}
		if !pocketing {
			continue
		}
		poly, ok := trace.(*geometry.Polygon)
		if !ok || !pockets(req.PocketingType, poly) {
			continue
		}
		outlines = append(outlines, pocketRings(poly, req.LineDistance)...)
	}

	box := req.Volume
	heights := append([]float64{box.Max.Z}, LayerHeights(box.Min.Z, box.Max.Z, req.LayerDistance)...)
	if req.SkipFirstLayer {
		heights = heights[1:]
	}

	grid := Grid{Layers: make([]Layer, 0, len(heights))}
	for i, z := range heights {
		if err := ctx.Err(); err != nil {
			return Grid{}, err
		}
		lines := make([]Line, 0, len(outlines))
		for _, outline := range outlines {
			lines = append(lines, orient(resample(atHeight(outline, z), req.StepWidth), req.MillingStyle, 0))
		}
		grid.Layers = append(grid.Layers, Layer{Z: z, Lines: lines})
		progress(fmt.Sprintf("layer %d/%d", i+1, len(heights)))
	}
	return grid, nil
}

func pockets(kind PocketingType, poly *geometry.Polygon) bool {
	switch kind {
	case PocketingHoles:
		return poly.IsHole()
	case PocketingMaterial:
		return !poly.IsHole()
	default:
		return false
	}
}

// pocketRings shrinks the outline by d until it collapses.
func pocketRings(poly *geometry.Polygon, d float64) []Line {
	size := poly.Bounds().Size()
	limit := int(max(size.X, size.Y)/d) + 1

	var rings []Line
	for k := 1; k <= limit; k++ {
		inner, err := poly.Offset(-float64(k)*d, nil)
		if err != nil {
			break
		}
		for _, pl := range inner.Polylines() {
			rings = append(rings, Line(pl))
		}
	}
	return rings
}

func atHeight(line Line, z float64) Line {
	out := make(Line, len(line))
	for i, p := range line {
		out[i] = r3.Vec{X: p.X, Y: p.Y, Z: z}
	}
	return out
}
