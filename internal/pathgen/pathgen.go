// Package pathgen turns motion grids into concrete machine moves. Each
// generator refines the planned positions against the reference geometry:
// the push cutter slices horizontally, the drop cutter follows the surface
// and the engrave cutter follows outlines verbatim.
package pathgen

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/cutter"
	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/motiongrid"
	"github.com/zjrosen/millflow/internal/toolpath"
)

// ErrUnknownKind is returned by the factory for an unsupported generator.
var ErrUnknownKind = errors.New("unknown path generator")

// Kind names a path generator family.
type Kind string

const (
	KindPush    Kind = "push"
	KindDrop    Kind = "drop"
	KindEngrave Kind = "engrave"
)

// Spec selects a path generator and its options.
type Spec struct {
	Kind Kind
	// Waterlines makes the push cutter follow model contours at each layer
	// instead of the grid lines. Ignored by other kinds.
	Waterlines bool
}

func (s Spec) String() string {
	if s.Kind == KindPush && s.Waterlines {
		return "push (waterlines)"
	}
	return string(s.Kind)
}

// DrawFunc observes every move as it is produced. It may be nil.
type DrawFunc func(toolpath.Move)

// Input is everything a generator works from.
type Input struct {
	Tool   cutter.Geometry
	Models []geometry.Model
	Grid   motiongrid.Grid
	// MinZ is the lowest height the tool may reach; MaxZ is the retract
	// height between cuts.
	MinZ, MaxZ float64
}

// Generator refines a motion grid into moves.
type Generator interface {
	Generate(ctx context.Context, in Input, draw DrawFunc) ([]toolpath.Move, error)
}

// Factory builds generators. A nil generator with a nil error means the spec
// has no generator available.
type Factory interface {
	New(spec Spec) (Generator, error)
}

// DefaultFactory builds the built-in generators.
type DefaultFactory struct{}

var _ Factory = DefaultFactory{}

func (DefaultFactory) New(spec Spec) (Generator, error) {
	switch spec.Kind {
	case KindPush:
		return &PushCutter{Waterlines: spec.Waterlines}, nil
	case KindDrop:
		return &DropCutter{}, nil
	case KindEngrave:
		return &EngraveCutter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}

// emitter collects moves and mirrors them to a draw callback.
type emitter struct {
	moves []toolpath.Move
	draw  DrawFunc
}

func (e *emitter) emit(m toolpath.Move) {
	e.moves = append(e.moves, m)
	if e.draw != nil {
		e.draw(m)
	}
}

// run cuts along points, entering from and leaving to the retract height.
func (e *emitter) run(points []r3.Vec, retract float64) {
	if len(points) == 0 {
		return
	}
	first, last := points[0], points[len(points)-1]
	e.emit(toolpath.Rapid(r3.Vec{X: first.X, Y: first.Y, Z: retract}))
	for _, p := range points {
		e.emit(toolpath.Cut(p))
	}
	e.emit(toolpath.Rapid(r3.Vec{X: last.X, Y: last.Y, Z: retract}))
}

func solids(models []geometry.Model) []geometry.Solid {
	var out []geometry.Solid
	for _, m := range models {
		if s, ok := m.(geometry.Solid); ok {
			out = append(out, s)
		}
	}
	return out
}

func finish(kind string, moves []toolpath.Move) []toolpath.Move {
	log.Debug(log.CatPathgen, "path generated", "generator", kind, "moves", len(moves))
	return moves
}
