// Package cutter describes the physical shape of milling tools.
package cutter

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidDimension is returned for non-positive or inconsistent sizes.
var ErrInvalidDimension = errors.New("invalid cutter dimension")

// Geometry is the shape a path generator simulates.
type Geometry interface {
	// Radius is the radius of the cutting circle.
	Radius() float64
	// Height is the usable cutting length.
	Height() float64
	// TipHeight returns how far the cutter surface rises above its tip at
	// horizontal distance d from the axis.
	TipHeight(d float64) float64
	fmt.Stringer
}

// Cylindrical is a flat end mill.
type Cylindrical struct {
	radius, height float64
}

// NewCylindrical returns a flat end mill.
func NewCylindrical(radius, height float64) (*Cylindrical, error) {
	if err := checkPositive(radius, height); err != nil {
		return nil, err
	}
	return &Cylindrical{radius: radius, height: height}, nil
}

func (c *Cylindrical) Radius() float64           { return c.radius }
func (c *Cylindrical) Height() float64           { return c.height }
func (c *Cylindrical) TipHeight(float64) float64 { return 0 }
func (c *Cylindrical) String() string {
	return fmt.Sprintf("flat r=%g h=%g", c.radius, c.height)
}

// Spherical is a ball nose cutter.
type Spherical struct {
	radius, height float64
}

// NewSpherical returns a ball nose cutter.
func NewSpherical(radius, height float64) (*Spherical, error) {
	if err := checkPositive(radius, height); err != nil {
		return nil, err
	}
	return &Spherical{radius: radius, height: height}, nil
}

func (s *Spherical) Radius() float64 { return s.radius }
func (s *Spherical) Height() float64 { return s.height }

// TipHeight follows the ball: r - sqrt(r² - d²).
func (s *Spherical) TipHeight(d float64) float64 {
	d = math.Min(math.Abs(d), s.radius)
	return s.radius - math.Sqrt(s.radius*s.radius-d*d)
}

func (s *Spherical) String() string {
	return fmt.Sprintf("ball r=%g h=%g", s.radius, s.height)
}

// Toroidal is a bull nose cutter: a flat bottom with rounded edges of the
// minor radius.
type Toroidal struct {
	radius, minorRadius, height float64
}

// NewToroidal returns a bull nose cutter. The minor radius must not exceed
// the radius.
func NewToroidal(radius, minorRadius, height float64) (*Toroidal, error) {
	if err := checkPositive(radius, minorRadius, height); err != nil {
		return nil, err
	}
	if minorRadius > radius {
		return nil, fmt.Errorf("%w: toroid radius %g exceeds radius %g", ErrInvalidDimension, minorRadius, radius)
	}
	return &Toroidal{radius: radius, minorRadius: minorRadius, height: height}, nil
}

func (t *Toroidal) Radius() float64      { return t.radius }
func (t *Toroidal) Height() float64      { return t.height }
func (t *Toroidal) MinorRadius() float64 { return t.minorRadius }

// TipHeight is flat up to the start of the rounded edge.
func (t *Toroidal) TipHeight(d float64) float64 {
	flat := t.radius - t.minorRadius
	d = math.Abs(d)
	if d <= flat {
		return 0
	}
	e := math.Min(d-flat, t.minorRadius)
	return t.minorRadius - math.Sqrt(t.minorRadius*t.minorRadius-e*e)
}

func (t *Toroidal) String() string {
	return fmt.Sprintf("bull r=%g minor=%g h=%g", t.radius, t.minorRadius, t.height)
}

func checkPositive(values ...float64) error {
	for _, v := range values {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %g", ErrInvalidDimension, v)
		}
	}
	return nil
}
