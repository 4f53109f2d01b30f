package pathgen

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/toolpath"
)

// DropCutter lowers the tool onto the surface at every grid point.
type DropCutter struct{}

func (d *DropCutter) Generate(ctx context.Context, in Input, draw DrawFunc) ([]toolpath.Move, error) {
	out := &emitter{draw: draw}
	blockers := solids(in.Models)

	for _, layer := range in.Grid.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, line := range layer.Lines {
			points := make([]r3.Vec, 0, len(line))
			for _, pt := range line {
				z := in.MinZ
				for _, s := range blockers {
					if h, ok := s.HeightAt(pt.X, pt.Y, in.Tool); ok {
						z = math.Max(z, h)
					}
				}
				points = append(points, r3.Vec{X: pt.X, Y: pt.Y, Z: math.Min(z, in.MaxZ)})
			}
			out.run(points, in.MaxZ)
		}
	}
	return finish("drop", out.moves), nil
}
