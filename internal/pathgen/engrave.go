package pathgen

import (
	"context"

	"github.com/zjrosen/millflow/internal/toolpath"
)

// EngraveCutter follows every grid line at its layer height.
type EngraveCutter struct{}

func (e *EngraveCutter) Generate(ctx context.Context, in Input, draw DrawFunc) ([]toolpath.Move, error) {
	out := &emitter{draw: draw}
	for _, layer := range in.Grid.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if layer.Z < in.MinZ {
			continue
		}
		for _, line := range layer.Lines {
			out.run(line, in.MaxZ)
		}
	}
	return finish("engrave", out.moves), nil
}
