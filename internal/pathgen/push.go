package pathgen

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/toolpath"
)

// PushCutter moves the tool horizontally at each layer height and lifts it
// wherever it would enter material.
type PushCutter struct {
	Waterlines bool
}

func (p *PushCutter) Generate(ctx context.Context, in Input, draw DrawFunc) ([]toolpath.Move, error) {
	out := &emitter{draw: draw}
	blockers := solids(in.Models)
	radius := in.Tool.Radius()

	for _, layer := range in.Grid.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if layer.Z < in.MinZ {
			continue
		}
		if p.Waterlines {
			for _, s := range blockers {
				for _, loop := range s.Waterline(layer.Z, radius) {
					out.run(loop, in.MaxZ)
				}
			}
			continue
		}
		for _, line := range layer.Lines {
			for _, segment := range freeSegments(densify(line, radius/2), radius, blockers) {
				out.run(segment, in.MaxZ)
			}
		}
	}
	name := "push"
	if p.Waterlines {
		name = "push-waterlines"
	}
	return finish(name, out.moves), nil
}

// freeSegments splits points into maximal runs where no solid is hit.
func freeSegments(points []r3.Vec, radius float64, blockers []geometry.Solid) [][]r3.Vec {
	var (
		segments [][]r3.Vec
		current  []r3.Vec
	)
	for _, pt := range points {
		if collides(pt, radius, blockers) {
			if len(current) > 0 {
				segments = append(segments, current)
				current = nil
			}
			continue
		}
		current = append(current, pt)
	}
	if len(current) > 0 {
		segments = append(segments, current)
	}
	return segments
}

func collides(p r3.Vec, radius float64, blockers []geometry.Solid) bool {
	for _, s := range blockers {
		if s.Collides(p, radius) {
			return true
		}
	}
	return false
}

// densify inserts points so that consecutive points are at most step apart.
func densify(line []r3.Vec, step float64) []r3.Vec {
	if len(line) < 2 || step <= 0 {
		return line
	}
	out := []r3.Vec{line[0]}
	for i := 1; i < len(line); i++ {
		a, b := line[i-1], line[i]
		n := int(math.Ceil(r3.Norm(r3.Sub(b, a)) / step))
		n = max(1, min(n, 100_000))
		for k := 1; k <= n; k++ {
			out = append(out, r3.Add(a, r3.Scale(float64(k)/float64(n), r3.Sub(b, a))))
		}
	}
	return out
}
