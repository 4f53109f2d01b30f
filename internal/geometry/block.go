package geometry

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Block is an axis-aligned solid.
type Block struct {
	box r3.Box
}

var _ Solid = (*Block)(nil)

// NewBlock returns the solid spanned by two opposite corners.
func NewBlock(a, b r3.Vec) *Block {
	return &Block{box: r3.NewBox(a.X, a.Y, a.Z, b.X, b.Y, b.Z)}
}

// Bounds returns the block's extent.
func (b *Block) Bounds() r3.Box { return b.box }

// HeightAt rests the cutter on the top face, or on its edge when the
// footprint only overhangs the block.
func (b *Block) HeightAt(x, y float64, c Cutter) (float64, bool) {
	if !circleOverlapsRect(x, y, c.Radius(), b.box) {
		return 0, false
	}
	return b.box.Max.Z - c.TipHeight(distanceToRect(x, y, b.box)), true
}

// Collides reports whether the cutter footprint at height p.Z overlaps the
// block. The top face itself is free.
func (b *Block) Collides(p r3.Vec, radius float64) bool {
	if p.Z < b.box.Min.Z || p.Z >= b.box.Max.Z {
		return false
	}
	return circleOverlapsRect(p.X, p.Y, radius, b.box)
}

// Waterline returns the block outline grown by radius, counter-clockwise,
// when z cuts through the block.
func (b *Block) Waterline(z, radius float64) []Polyline {
	if z < b.box.Min.Z || z >= b.box.Max.Z {
		return nil
	}
	lo := r3.Vec{X: b.box.Min.X - radius, Y: b.box.Min.Y - radius, Z: z}
	hi := r3.Vec{X: b.box.Max.X + radius, Y: b.box.Max.Y + radius, Z: z}
	return []Polyline{{
		lo,
		{X: hi.X, Y: lo.Y, Z: z},
		hi,
		{X: lo.X, Y: hi.Y, Z: z},
		lo,
	}}
}
