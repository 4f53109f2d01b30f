// Package geometry holds the reference geometry a machining job works
// against: solid models that the cutter must avoid and flat traces that it
// follows. Coordinates use gonum's r3 vectors throughout.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Polyline is an ordered list of points. Closed outlines repeat their first
// point at the end.
type Polyline []r3.Vec

// Model is any reference geometry with a spatial extent.
type Model interface {
	// Bounds returns the axis-aligned extent. A model without geometry
	// returns NoExtent().
	Bounds() r3.Box
}

// Cutter is the part of a tool shape that contact calculations need.
type Cutter interface {
	Radius() float64
	// TipHeight is the rise of the cutter surface above its tip at
	// horizontal distance d from the axis.
	TipHeight(d float64) float64
}

// Solid is a model with material the cutter must not enter.
type Solid interface {
	Model
	// HeightAt returns the lowest tip height at which the cutter centred at
	// (x, y) rests on the material, and false when it misses the solid.
	HeightAt(x, y float64, c Cutter) (float64, bool)
	// Collides reports whether a cutter of the given radius with its tip
	// at p intersects material.
	Collides(p r3.Vec, radius float64) bool
	// Waterline returns the closed outlines a cutter centre follows around
	// the material at height z.
	Waterline(z, radius float64) []Polyline
}

// Trace is flat reference geometry followed by engraving.
type Trace interface {
	Model
	Polylines() []Polyline
	// Offset returns the trace grown outward by distance (inward when
	// negative). progress is called as work proceeds and may be nil.
	Offset(distance float64, progress func(string)) (Trace, error)
}

// NoExtent returns the inverted box used for "no geometry".
func NoExtent() r3.Box {
	inf := math.Inf(1)
	return r3.Box{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

// HasExtent reports whether b describes real geometry. Flat boxes (zero
// thickness on an axis) count; inverted or non-finite boxes do not.
func HasExtent(b r3.Box) bool {
	for _, pair := range [][2]float64{{b.Min.X, b.Max.X}, {b.Min.Y, b.Max.Y}, {b.Min.Z, b.Max.Z}} {
		if math.IsInf(pair[0], 0) || math.IsInf(pair[1], 0) || math.IsNaN(pair[0]) || math.IsNaN(pair[1]) {
			return false
		}
		if pair[0] > pair[1] {
			return false
		}
	}
	return true
}

// Include grows b to contain other. Unlike r3.Box.Union it keeps flat boxes.
func Include(b, other r3.Box) r3.Box {
	if !HasExtent(other) {
		return b
	}
	if !HasExtent(b) {
		return other
	}
	return r3.Box{
		Min: r3.Vec{X: math.Min(b.Min.X, other.Min.X), Y: math.Min(b.Min.Y, other.Min.Y), Z: math.Min(b.Min.Z, other.Min.Z)},
		Max: r3.Vec{X: math.Max(b.Max.X, other.Max.X), Y: math.Max(b.Max.Y, other.Max.Y), Z: math.Max(b.Max.Z, other.Max.Z)},
	}
}

// CombinedBounds returns the extent enclosing every model and whether any
// model contributed geometry.
func CombinedBounds(models []Model) (r3.Box, bool) {
	box := NoExtent()
	for _, m := range models {
		if m == nil {
			continue
		}
		box = Include(box, m.Bounds())
	}
	return box, HasExtent(box)
}

// Expand moves every face of b outward: lower by lower, upper by upper.
func Expand(b r3.Box, lower, upper r3.Vec) r3.Box {
	return r3.Box{Min: r3.Sub(b.Min, lower), Max: r3.Add(b.Max, upper)}
}

// BoundsOf returns the extent of a point set.
func BoundsOf(points []r3.Vec) r3.Box {
	box := NoExtent()
	for _, p := range points {
		box = Include(box, r3.Box{Min: p, Max: p})
	}
	return box
}

// distanceToRect returns the XY distance from (x, y) to the rectangle of b.
func distanceToRect(x, y float64, b r3.Box) float64 {
	dx := math.Max(b.Min.X-x, math.Max(0, x-b.Max.X))
	dy := math.Max(b.Min.Y-y, math.Max(0, y-b.Max.Y))
	return math.Hypot(dx, dy)
}

// circleOverlapsRect reports whether the disc at (cx, cy) with radius r
// touches the XY rectangle of b.
func circleOverlapsRect(cx, cy, r float64, b r3.Box) bool {
	dx := math.Max(b.Min.X-cx, math.Max(0, cx-b.Max.X))
	dy := math.Max(b.Min.Y-cy, math.Max(0, cy-b.Max.Y))
	return dx*dx+dy*dy < r*r || (dx == 0 && dy == 0)
}
