package store

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/toolpath"
)

// Summary describes one stored toolpath without its moves.
type Summary struct {
	ID                uuid.UUID
	TaskID            string
	ToolID            string
	JobPath           string
	Unit              toolpath.Unit
	Speed             float64
	Feedrate          float64
	MaterialAllowance float64
	SafetyHeight      float64
	Color             toolpath.Color
	Moves             int
	CutLength         float64
	Bounds            r3.Box
	TraceID           string
	CreatedAt         time.Time
}

// toolpathRow maps to the toolpaths table. Times are Unix milliseconds.
type toolpathRow struct {
	ID                string
	TaskID            string
	ToolID            string
	JobPath           string
	Unit              string
	Speed             float64
	Feedrate          float64
	MaterialAllowance float64
	SafetyHeight      float64
	ColorR            float64
	ColorG            float64
	ColorB            float64
	MoveCount         int
	CutLength         float64
	MinX, MinY, MinZ  float64
	MaxX, MaxY, MaxZ  float64
	TraceID           string
	CreatedAt         int64
}

const toolpathColumns = `id, task_id, tool_id, job_path, unit, speed, feedrate, material_allowance,
	safety_height, color_r, color_g, color_b, move_count, cut_length,
	min_x, min_y, min_z, max_x, max_y, max_z, trace_id, created_at`

func scanToolpath(scanner interface{ Scan(...any) error }) (*toolpathRow, error) {
	var row toolpathRow
	err := scanner.Scan(
		&row.ID, &row.TaskID, &row.ToolID, &row.JobPath, &row.Unit,
		&row.Speed, &row.Feedrate, &row.MaterialAllowance, &row.SafetyHeight,
		&row.ColorR, &row.ColorG, &row.ColorB, &row.MoveCount, &row.CutLength,
		&row.MinX, &row.MinY, &row.MinZ, &row.MaxX, &row.MaxY, &row.MaxZ,
		&row.TraceID, &row.CreatedAt,
	)
	return &row, err
}

func (r *toolpathRow) args() []any {
	return []any{
		r.ID, r.TaskID, r.ToolID, r.JobPath, r.Unit,
		r.Speed, r.Feedrate, r.MaterialAllowance, r.SafetyHeight,
		r.ColorR, r.ColorG, r.ColorB, r.MoveCount, r.CutLength,
		r.MinX, r.MinY, r.MinZ, r.MaxX, r.MaxY, r.MaxZ,
		r.TraceID, r.CreatedAt,
	}
}

func toRow(tp *toolpath.Toolpath, jobPath, traceID string, at time.Time) *toolpathRow {
	box := tp.BoundingBox()
	c := tp.Color()
	return &toolpathRow{
		ID:                tp.ID().String(),
		TaskID:            tp.Name(),
		ToolID:            tp.ToolID(),
		JobPath:           jobPath,
		Unit:              string(tp.Unit()),
		Speed:             tp.Speed(),
		Feedrate:          tp.Feedrate(),
		MaterialAllowance: tp.MaterialAllowance(),
		SafetyHeight:      tp.SafetyHeight(),
		ColorR:            c.R,
		ColorG:            c.G,
		ColorB:            c.B,
		MoveCount:         tp.Len(),
		CutLength:         tp.CutLength(),
		MinX:              box.Min.X,
		MinY:              box.Min.Y,
		MinZ:              box.Min.Z,
		MaxX:              box.Max.X,
		MaxY:              box.Max.Y,
		MaxZ:              box.Max.Z,
		TraceID:           traceID,
		CreatedAt:         at.UnixMilli(),
	}
}

func (r *toolpathRow) summary() (Summary, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		ID:                id,
		TaskID:            r.TaskID,
		ToolID:            r.ToolID,
		JobPath:           r.JobPath,
		Unit:              toolpath.Unit(r.Unit),
		Speed:             r.Speed,
		Feedrate:          r.Feedrate,
		MaterialAllowance: r.MaterialAllowance,
		SafetyHeight:      r.SafetyHeight,
		Color:             toolpath.Color{R: r.ColorR, G: r.ColorG, B: r.ColorB},
		Moves:             r.MoveCount,
		CutLength:         r.CutLength,
		Bounds:            r3.Box{Min: r3.Vec{X: r.MinX, Y: r.MinY, Z: r.MinZ}, Max: r3.Vec{X: r.MaxX, Y: r.MaxY, Z: r.MaxZ}},
		TraceID:           r.TraceID,
		CreatedAt:         time.UnixMilli(r.CreatedAt),
	}, nil
}
