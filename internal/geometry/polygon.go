package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegeneratePolygon is returned when a polygon has too few distinct
// points or collapses while offsetting.
var ErrDegeneratePolygon = errors.New("degenerate polygon")

// maxMiter caps how far a sharp vertex may travel relative to the offset
// distance.
const maxMiter = 4.0

// Polygon is a closed flat outline at a fixed height. Counter-clockwise
// outlines are material, clockwise outlines are holes.
type Polygon struct {
	points []r3.Vec
}

var _ Trace = (*Polygon)(nil)

// NewPolygon builds a polygon from its vertices. A repeated closing vertex is
// dropped.
func NewPolygon(points []r3.Vec) (*Polygon, error) {
	pts := make([]r3.Vec, 0, len(points))
	for _, p := range points {
		if len(pts) > 0 && pts[len(pts)-1] == p {
			continue
		}
		pts = append(pts, p)
	}
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return nil, fmt.Errorf("%w: %d distinct points", ErrDegeneratePolygon, len(pts))
	}
	return &Polygon{points: pts}, nil
}

// Points returns a copy of the vertices.
func (p *Polygon) Points() []r3.Vec {
	return append([]r3.Vec(nil), p.points...)
}

// Bounds returns the polygon's flat extent.
func (p *Polygon) Bounds() r3.Box { return BoundsOf(p.points) }

// Area returns the signed XY area; positive for counter-clockwise outlines.
func (p *Polygon) Area() float64 {
	var sum float64
	for i, a := range p.points {
		b := p.points[(i+1)%len(p.points)]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// IsHole reports whether the outline runs clockwise.
func (p *Polygon) IsHole() bool { return p.Area() < 0 }

// Polylines returns the closed outline.
func (p *Polygon) Polylines() []Polyline {
	line := make(Polyline, 0, len(p.points)+1)
	line = append(line, p.points...)
	line = append(line, p.points[0])
	return []Polyline{line}
}

// Offset moves every edge away from the enclosed area by distance along its
// normal. A result that flips orientation has collapsed and is reported as
// ErrDegeneratePolygon.
func (p *Polygon) Offset(distance float64, progress func(string)) (Trace, error) {
	if distance == 0 {
		return &Polygon{points: p.Points()}, nil
	}
	area := p.Area()
	if area == 0 {
		return nil, ErrDegeneratePolygon
	}
	// Outward normals of a counter-clockwise outline point right of each edge.
	orientation := 1.0
	if area < 0 {
		orientation = -1.0
	}

	n := len(p.points)
	out := make([]r3.Vec, n)
	for i := range p.points {
		prev := p.points[(i+n-1)%n]
		cur := p.points[i]
		next := p.points[(i+1)%n]

		n1 := edgeNormal(prev, cur, orientation)
		n2 := edgeNormal(cur, next, orientation)
		bisector := r3.Add(n1, n2)
		if r3.Norm(bisector) == 0 {
			bisector = n1
		} else {
			bisector = r3.Unit(bisector)
		}
		cos := r3.Dot(bisector, n1)
		length := distance
		if cos > 0 {
			length = distance / math.Max(cos, 1/maxMiter)
		}
		out[i] = r3.Add(cur, r3.Scale(length, bisector))
		if progress != nil {
			progress("")
		}
	}

	// An edge that reverses direction has been offset past its opposite side.
	for i := range out {
		j := (i + 1) % n
		if r3.Dot(r3.Sub(out[j], out[i]), r3.Sub(p.points[j], p.points[i])) <= 0 {
			return nil, fmt.Errorf("%w: offset %g collapses outline", ErrDegeneratePolygon, distance)
		}
	}
	result, err := NewPolygon(out)
	if err != nil {
		return nil, err
	}
	if newArea := result.Area(); newArea == 0 || math.Signbit(newArea) != math.Signbit(area) {
		return nil, fmt.Errorf("%w: offset %g collapses outline", ErrDegeneratePolygon, distance)
	}
	return result, nil
}

func edgeNormal(a, b r3.Vec, orientation float64) r3.Vec {
	d := r3.Sub(b, a)
	normal := r3.Vec{X: d.Y * orientation, Y: -d.X * orientation}
	if r3.Norm(normal) == 0 {
		return normal
	}
	return r3.Unit(normal)
}
