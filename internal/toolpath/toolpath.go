// Package toolpath holds generated machine motion together with the
// metadata needed to post-process it.
package toolpath

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/geometry"
)

// ErrNoMoves is returned by New for an empty move list.
var ErrNoMoves = errors.New("toolpath has no moves")

// MoveKind separates positioning moves from cutting moves.
type MoveKind int

const (
	MoveRapid MoveKind = iota
	MoveCut
)

func (k MoveKind) String() string {
	switch k {
	case MoveRapid:
		return "rapid"
	case MoveCut:
		return "cut"
	default:
		return fmt.Sprintf("MoveKind(%d)", int(k))
	}
}

// Move is one straight machine motion to Position.
type Move struct {
	Kind     MoveKind
	Position r3.Vec
}

// Rapid returns a positioning move.
func Rapid(p r3.Vec) Move { return Move{Kind: MoveRapid, Position: p} }

// Cut returns a cutting move.
func Cut(p r3.Vec) Move { return Move{Kind: MoveCut, Position: p} }

// Unit is the length unit of a toolpath.
type Unit string

const (
	UnitMM   Unit = "mm"
	UnitInch Unit = "inch"
)

// Units lists the legal units.
var Units = []Unit{UnitMM, UnitInch}

// MachineSetting is a machine parameter applied before the path runs.
type MachineSetting struct {
	Key   string
	Value float64
}

// Color is an RGB display colour with channels in [0, 1].
type Color struct {
	R, G, B float64
}

// Hex renders the colour as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", channel(c.R), channel(c.G), channel(c.B))
}

func channel(v float64) int {
	v = max(0, min(1, v))
	return int(v*255 + 0.5)
}

// RandomColor picks a display colour.
func RandomColor() Color {
	return Color{R: rand.Float64(), G: rand.Float64(), B: rand.Float64()}
}

// Metadata is what a toolpath records about how it was made.
type Metadata struct {
	Name              string
	ToolID            string
	Speed             float64
	Feedrate          float64
	MaterialAllowance float64
	SafetyHeight      float64
	Unit              Unit
	Filters           []MachineSetting
}

// Toolpath is an immutable move list plus metadata. Only visibility and
// colour change after construction.
type Toolpath struct {
	id      uuid.UUID
	moves   []Move
	meta    Metadata
	visible bool
	color   Color
	bounds  r3.Box
}

// Option customises New.
type Option func(*Toolpath)

// WithID fixes the toolpath id instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(tp *Toolpath) { tp.id = id }
}

// WithColor fixes the display colour instead of picking a random one.
func WithColor(c Color) Option {
	return func(tp *Toolpath) { tp.color = c }
}

// New builds a visible toolpath with a random colour.
func New(moves []Move, meta Metadata, opts ...Option) (*Toolpath, error) {
	if len(moves) == 0 {
		return nil, ErrNoMoves
	}
	if meta.Unit == "" {
		meta.Unit = UnitMM
	}
	meta.Filters = append([]MachineSetting(nil), meta.Filters...)

	points := make([]r3.Vec, len(moves))
	for i, m := range moves {
		points[i] = m.Position
	}

	tp := &Toolpath{
		id:      uuid.New(),
		moves:   append([]Move(nil), moves...),
		meta:    meta,
		visible: true,
		color:   RandomColor(),
		bounds:  geometry.BoundsOf(points),
	}
	for _, opt := range opts {
		opt(tp)
	}
	return tp, nil
}

func (tp *Toolpath) ID() uuid.UUID              { return tp.id }
func (tp *Toolpath) Name() string               { return tp.meta.Name }
func (tp *Toolpath) ToolID() string             { return tp.meta.ToolID }
func (tp *Toolpath) Speed() float64             { return tp.meta.Speed }
func (tp *Toolpath) Feedrate() float64          { return tp.meta.Feedrate }
func (tp *Toolpath) MaterialAllowance() float64 { return tp.meta.MaterialAllowance }
func (tp *Toolpath) SafetyHeight() float64      { return tp.meta.SafetyHeight }
func (tp *Toolpath) Unit() Unit                 { return tp.meta.Unit }
func (tp *Toolpath) Len() int                   { return len(tp.moves) }
func (tp *Toolpath) BoundingBox() r3.Box        { return tp.bounds }
func (tp *Toolpath) Visible() bool              { return tp.visible }
func (tp *Toolpath) Color() Color               { return tp.color }
func (tp *Toolpath) Metadata() Metadata         { return tp.cloneMeta() }
func (tp *Toolpath) Filters() []MachineSetting  { return tp.cloneMeta().Filters }
func (tp *Toolpath) Moves() []Move              { return append([]Move(nil), tp.moves...) }
func (tp *Toolpath) SetVisible(visible bool)    { tp.visible = visible }
func (tp *Toolpath) Start() r3.Vec              { return tp.moves[0].Position }

func (tp *Toolpath) cloneMeta() Metadata {
	m := tp.meta
	m.Filters = append([]MachineSetting(nil), tp.meta.Filters...)
	return m
}

// SetColor changes the display colour. Nil picks a random colour.
func (tp *Toolpath) SetColor(c *Color) {
	if c == nil {
		tp.color = RandomColor()
		return
	}
	tp.color = *c
}

// Setting returns the value of a machine setting filter.
func (tp *Toolpath) Setting(key string) (float64, bool) {
	for _, f := range tp.meta.Filters {
		if f.Key == key {
			return f.Value, true
		}
	}
	return 0, false
}

// CutLength sums the length of all cutting moves.
func (tp *Toolpath) CutLength() float64 {
	var total float64
	for i := 1; i < len(tp.moves); i++ {
		if tp.moves[i].Kind == MoveCut {
			total += r3.Norm(r3.Sub(tp.moves[i].Position, tp.moves[i-1].Position))
		}
	}
	return total
}

// Layers returns the distinct cutting heights from top to bottom.
func (tp *Toolpath) Layers() []float64 {
	seen := make(map[float64]bool)
	var heights []float64
	for _, m := range tp.moves {
		if m.Kind != MoveCut || seen[m.Position.Z] {
			continue
		}
		seen[m.Position.Z] = true
		heights = append(heights, m.Position.Z)
	}
	slices.Sort(heights)
	slices.Reverse(heights)
	return heights
}
