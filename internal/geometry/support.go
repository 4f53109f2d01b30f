package geometry

import "math"

// SupportGrid describes the bridge lines that keep a part attached to its
// stock.
type SupportGrid struct {
	DistanceX, DistanceY float64
	OffsetX, OffsetY     float64
	// AdjustmentsX and AdjustmentsY shift individual lines, in order.
	AdjustmentsX, AdjustmentsY []float64
}

// SupportGridMargin is how far support bounds reach past the models in X
// and Y.
const SupportGridMargin = 5.0

// SupportGridBounds returns the area covered by a support grid: the models'
// extent widened by SupportGridMargin in X and Y. Without geometry the
// result is the zero box.
func SupportGridBounds(models []Model) (lowerX, upperX, lowerY, upperY float64) {
	box, ok := CombinedBounds(models)
	if !ok {
		return 0, 0, 0, 0
	}
	return box.Min.X - SupportGridMargin, box.Max.X + SupportGridMargin,
		box.Min.Y - SupportGridMargin, box.Max.Y + SupportGridMargin
}

// MaxSupportLines caps the number of lines placed along one axis.
const MaxSupportLines = 10_000

// Locations returns the X and Y positions of the bridge lines inside the
// given range. Lines sit on the lattice centre + k·distance, where centre is
// the middle of the range plus the offset, and only lines strictly inside
// the range are kept. An offset that is a whole multiple of the distance
// therefore places the same lines as no offset. Adjustments then shift the
// lines in order.
func (g SupportGrid) Locations(minX, maxX, minY, maxY float64) (xs, ys []float64) {
	xs = gridLines((minX+maxX)/2+g.OffsetX, g.DistanceX, minX, maxX)
	ys = gridLines((minY+maxY)/2+g.OffsetY, g.DistanceY, minY, maxY)
	for i := 0; i < len(xs) && i < len(g.AdjustmentsX); i++ {
		xs[i] += g.AdjustmentsX[i]
	}
	for i := 0; i < len(ys) && i < len(g.AdjustmentsY); i++ {
		ys[i] += g.AdjustmentsY[i]
	}
	return xs, ys
}

func gridLines(center, dist, lower, upper float64) []float64 {
	if dist <= 0 || !(lower < upper) {
		return []float64{}
	}
	// One step of slack on each side; rounding is settled by the range check.
	first := math.Floor((lower-center)/dist) - 1
	last := math.Ceil((upper-center)/dist) + 1
	// Beyond 2^53 the lattice index can no longer be stepped exactly.
	if !(math.Abs(first) < 1<<53 && math.Abs(last) < 1<<53) {
		return []float64{}
	}

	lines := []float64{}
	for k := first; k <= last && k-first < MaxSupportLines+3 && len(lines) < MaxSupportLines; k++ {
		if v := center + k*dist; lower < v && v < upper {
			lines = append(lines, v)
		}
	}
	return lines
}
