package motiongrid

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// arcSegments is the number of segments approximating a rounded corner.
const arcSegments = 4

func spiralGrid(ctx context.Context, req Request, progress func(string)) (Grid, error) {
	if req.LineDistance <= 0 {
		return Grid{}, ErrLineDistance
	}
	box := req.Volume
	heights := LayerHeights(box.Min.Z, box.Max.Z, req.LayerDistance)

	// The first leg runs along X unless Y is requested; climb milling mirrors
	// the turn direction.
	yFirst := req.GridDirection == DirectionY
	if req.MillingStyle == MillingClimb {
		yFirst = !yFirst
	}

	grid := Grid{Layers: make([]Layer, 0, len(heights))}
	for i, z := range heights {
		if err := ctx.Err(); err != nil {
			return Grid{}, err
		}
		points := spiralPoints(box, req.LineDistance, z, yFirst)
		if req.RoundedCorners {
			points = roundCorners(points, req.LineDistance/2)
		}
		if req.SpiralDirection == SpiralOut {
			points = reversed(points)
		}
		grid.Layers = append(grid.Layers, Layer{Z: z, Lines: []Line{resample(points, req.StepWidth)}})
		progress(fmt.Sprintf("layer %d/%d", i+1, len(heights)))
	}
	return grid, nil
}

// spiralPoints walks concentric rectangles from the outside in, stepping
// inward by d after each ring.
func spiralPoints(box r3.Box, d, z float64, yFirst bool) Line {
	x0, x1 := box.Min.X, box.Max.X
	y0, y1 := box.Min.Y, box.Max.Y

	var pts Line
	for k := 0; k < maxSteps; k++ {
		if x1-x0 < -epsilon || y1-y0 < -epsilon {
			break
		}
		if x1-x0 <= epsilon || y1-y0 <= epsilon {
			pts = append(pts, r3.Vec{X: x0, Y: y0, Z: z}, r3.Vec{X: x1, Y: y1, Z: z})
			break
		}
		if yFirst {
			pts = append(pts,
				r3.Vec{X: x0, Y: y0, Z: z},
				r3.Vec{X: x0, Y: y1, Z: z},
				r3.Vec{X: x1, Y: y1, Z: z},
				r3.Vec{X: x1, Y: y0, Z: z},
				r3.Vec{X: math.Min(x0+d, x1), Y: y0, Z: z},
			)
		} else {
			pts = append(pts,
				r3.Vec{X: x0, Y: y0, Z: z},
				r3.Vec{X: x1, Y: y0, Z: z},
				r3.Vec{X: x1, Y: y1, Z: z},
				r3.Vec{X: x0, Y: y1, Z: z},
				r3.Vec{X: x0, Y: math.Min(y0+d, y1), Z: z},
			)
		}
		x0, x1, y0, y1 = x0+d, x1-d, y0+d, y1-d
	}
	return dedupe(pts)
}

func dedupe(pts Line) Line {
	out := make(Line, 0, len(pts))
	for _, p := range pts {
		if len(out) > 0 && r3.Norm(r3.Sub(out[len(out)-1], p)) <= epsilon {
			continue
		}
		out = append(out, p)
	}
	return out
}

// roundCorners replaces every interior right-angle turn by a quarter arc of
// at most radius r.
func roundCorners(pts Line, r float64) Line {
	if len(pts) < 3 || r <= epsilon {
		return pts
	}
	out := Line{pts[0]}
	for i := 1; i < len(pts)-1; i++ {
		prev, c, next := pts[i-1], pts[i], pts[i+1]
		in, outLeg := r3.Sub(prev, c), r3.Sub(next, c)
		radius := math.Min(r, math.Min(r3.Norm(in), r3.Norm(outLeg))/2)
		u1, u2 := r3.Unit(in), r3.Unit(outLeg)
		if radius <= epsilon || math.Abs(r3.Dot(u1, u2)) > epsilon {
			out = append(out, c)
			continue
		}
		center := r3.Add(c, r3.Add(r3.Scale(radius, u1), r3.Scale(radius, u2)))
		a := r3.Scale(-radius, u2)
		b := r3.Scale(-radius, u1)
		for s := 0; s <= arcSegments; s++ {
			theta := float64(s) / arcSegments * math.Pi / 2
			out = append(out, r3.Add(center, r3.Add(r3.Scale(math.Cos(theta), a), r3.Scale(math.Sin(theta), b))))
		}
	}
	return append(out, pts[len(pts)-1])
}
