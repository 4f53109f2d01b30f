package motiongrid

// MillingStyle selects the cutting direction relative to tool rotation.
type MillingStyle string

const (
	// MillingIgnore cuts in both directions (zig-zag).
	MillingIgnore       MillingStyle = "ignore"
	MillingConventional MillingStyle = "conventional"
	MillingClimb        MillingStyle = "climb"
)

// MillingStyles lists the legal milling styles.
var MillingStyles = []MillingStyle{MillingIgnore, MillingConventional, MillingClimb}

// GridDirection selects the axis lines run along.
type GridDirection string

const (
	DirectionX  GridDirection = "x"
	DirectionY  GridDirection = "y"
	DirectionXY GridDirection = "xy"
)

// GridDirections lists the legal grid directions.
var GridDirections = []GridDirection{DirectionX, DirectionY, DirectionXY}

// SpiralDirection selects whether a spiral starts outside or at the centre.
type SpiralDirection string

const (
	SpiralIn  SpiralDirection = "in"
	SpiralOut SpiralDirection = "out"
)

// SpiralDirections lists the legal spiral directions.
var SpiralDirections = []SpiralDirection{SpiralIn, SpiralOut}

// PocketingType selects which closed outlines get cleared inside.
type PocketingType string

const (
	PocketingNone     PocketingType = "none"
	PocketingHoles    PocketingType = "holes"
	PocketingMaterial PocketingType = "material"
)

// PocketingTypes lists the legal pocketing types.
var PocketingTypes = []PocketingType{PocketingNone, PocketingHoles, PocketingMaterial}

// Pattern is the shape of a motion grid.
type Pattern string

const (
	// PatternFixed is parallel lines across the volume.
	PatternFixed Pattern = "fixed"
	// PatternSpiral is one rectangular spiral per layer.
	PatternSpiral Pattern = "spiral"
	// PatternLines follows trace outlines layer by layer.
	PatternLines Pattern = "lines"
)
