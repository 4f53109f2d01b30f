package pathgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/cutter"
	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/motiongrid"
	"github.com/zjrosen/millflow/internal/toolpath"
)

func flatTool(t *testing.T, radius float64) cutter.Geometry {
	t.Helper()
	tool, err := cutter.NewCylindrical(radius, 10)
	require.NoError(t, err)
	return tool
}

func line(z float64, xs ...float64) motiongrid.Line {
	var l motiongrid.Line
	for _, x := range xs {
		l = append(l, r3.Vec{X: x, Y: 5, Z: z})
	}
	return l
}

func cutPoints(moves []toolpath.Move) []r3.Vec {
	var pts []r3.Vec
	for _, m := range moves {
		if m.Kind == toolpath.MoveCut {
			pts = append(pts, m.Position)
		}
	}
	return pts
}

func TestDefaultFactory(t *testing.T) {
	f := DefaultFactory{}
	g, err := f.New(Spec{Kind: KindPush, Waterlines: true})
	require.NoError(t, err)
	require.True(t, g.(*PushCutter).Waterlines)

	g, err = f.New(Spec{Kind: KindDrop})
	require.NoError(t, err)
	require.IsType(t, &DropCutter{}, g)

	_, err = f.New(Spec{Kind: "laser"})
	require.True(t, errors.Is(err, ErrUnknownKind))

	require.Equal(t, "push (waterlines)", Spec{Kind: KindPush, Waterlines: true}.String())
}

func TestPushCutter_SplitsAroundSolids(t *testing.T) {
	block := geometry.NewBlock(r3.Vec{X: 4, Y: 0, Z: 0}, r3.Vec{X: 6, Y: 10, Z: 10})
	in := Input{
		Tool:   flatTool(t, 1),
		Models: []geometry.Model{block},
		Grid:   motiongrid.Grid{Layers: []motiongrid.Layer{{Z: 5, Lines: []motiongrid.Line{line(5, 0, 10)}}}},
		MaxZ:   20,
	}

	var drawn []toolpath.Move
	moves, err := (&PushCutter{}).Generate(context.Background(), in, func(m toolpath.Move) { drawn = append(drawn, m) })
	require.NoError(t, err)
	require.Equal(t, moves, drawn, "every move is drawn")

	for _, p := range cutPoints(moves) {
		require.False(t, block.Collides(p, 1), "cut at %v enters the block", p)
		require.Equal(t, 5.0, p.Z)
	}
	var rapids int
	for _, m := range moves {
		if m.Kind == toolpath.MoveRapid {
			rapids++
			require.Equal(t, 20.0, m.Position.Z)
		}
	}
	require.Equal(t, 4, rapids, "two free segments, each entered and left at the retract height")
}

func TestPushCutter_Waterlines(t *testing.T) {
	block := geometry.NewBlock(r3.Vec{}, r3.Vec{X: 10, Y: 10, Z: 10})
	in := Input{
		Tool:   flatTool(t, 1),
		Models: []geometry.Model{block},
		Grid: motiongrid.Grid{Layers: []motiongrid.Layer{
			{Z: 8, Lines: []motiongrid.Line{line(8, 0, 10)}},
			{Z: 12},
		}},
		MaxZ: 25,
	}
	moves, err := (&PushCutter{Waterlines: true}).Generate(context.Background(), in, nil)
	require.NoError(t, err)

	cuts := cutPoints(moves)
	require.Len(t, cuts, 5, "one closed contour at z=8, none above the block")
	require.Equal(t, r3.Vec{X: -1, Y: -1, Z: 8}, cuts[0])
}

func TestDropCutter_FollowsSurface(t *testing.T) {
	block := geometry.NewBlock(r3.Vec{X: 4, Y: 0, Z: 0}, r3.Vec{X: 6, Y: 10, Z: 3})
	in := Input{
		Tool:   flatTool(t, 0.5),
		Models: []geometry.Model{block},
		Grid:   motiongrid.Grid{Layers: []motiongrid.Layer{{Z: 0, Lines: []motiongrid.Line{line(0, 0, 5, 10)}}}},
		MinZ:   0,
		MaxZ:   2,
	}
	moves, err := (&DropCutter{}).Generate(context.Background(), in, nil)
	require.NoError(t, err)

	cuts := cutPoints(moves)
	require.Equal(t, []r3.Vec{{X: 0, Y: 5}, {X: 5, Y: 5, Z: 2}, {X: 10, Y: 5}}, cuts, "heights clamp to the retract height")
}

func TestEngraveCutter(t *testing.T) {
	in := Input{
		Tool: flatTool(t, 1),
		Grid: motiongrid.Grid{Layers: []motiongrid.Layer{
			{Z: 0, Lines: []motiongrid.Line{line(0, 0, 3, 6), line(0, 8, 9)}},
		}},
		MaxZ: 5,
	}
	moves, err := (&EngraveCutter{}).Generate(context.Background(), in, nil)
	require.NoError(t, err)
	require.Len(t, moves, 3+2+2+2)
	require.Equal(t, toolpath.Rapid(r3.Vec{X: 0, Y: 5, Z: 5}), moves[0])
}

func TestGenerators_StopOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := Input{
		Tool: flatTool(t, 1),
		Grid: motiongrid.Grid{Layers: []motiongrid.Layer{{Z: 0, Lines: []motiongrid.Line{line(0, 0, 1)}}}},
	}
	for _, g := range []Generator{&PushCutter{}, &DropCutter{}, &EngraveCutter{}} {
		_, err := g.Generate(ctx, in, nil)
		require.True(t, errors.Is(err, context.Canceled))
	}
}
