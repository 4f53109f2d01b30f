// Package presentation turns toolpaths, validation results and history
// entries into JSON or terminal text.
package presentation

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/flow"
	"github.com/zjrosen/millflow/internal/jobfile"
	"github.com/zjrosen/millflow/internal/store"
	"github.com/zjrosen/millflow/internal/toolpath"
)

// BoundsDTO is an axis-aligned box.
type BoundsDTO struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// SettingDTO is one machine setting.
type SettingDTO struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// MoveDTO is one machine move.
type MoveDTO struct {
	Kind string     `json:"kind"`
	At   [3]float64 `json:"at"`
}

// ToolpathDTO describes a generated or stored toolpath.
type ToolpathDTO struct {
	ID                string       `json:"id"`
	Task              string       `json:"task"`
	Tool              string       `json:"tool"`
	Unit              string       `json:"unit"`
	Moves             int          `json:"moves"`
	CutLength         float64      `json:"cut_length"`
	Layers            []float64    `json:"layers,omitempty"`
	Bounds            BoundsDTO    `json:"bounds"`
	Speed             float64      `json:"speed"`
	Feedrate          float64      `json:"feedrate"`
	SafetyHeight      float64      `json:"safety_height"`
	MaterialAllowance float64      `json:"material_allowance"`
	Color             string       `json:"color"`
	Settings          []SettingDTO `json:"settings"`
	Path              []MoveDTO    `json:"path,omitempty"`
}

// GenerateResultDTO is the outcome of running one task. Toolpath is nil
// when the task was skipped or failed.
type GenerateResultDTO struct {
	Task     string       `json:"task"`
	State    string       `json:"state"`
	Toolpath *ToolpathDTO `json:"toolpath,omitempty"`
	StoredAs string       `json:"stored_as,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// EntityResultDTO is the validation outcome of one entity.
type EntityResultDTO struct {
	Kind   string   `json:"kind"`
	ID     string   `json:"id"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// SupportGridDTO lists bridge line positions.
type SupportGridDTO struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// ValidationDTO is the report of `millflow validate`.
type ValidationDTO struct {
	Job         string            `json:"job"`
	Valid       bool              `json:"valid"`
	Entities    []EntityResultDTO `json:"entities"`
	SupportGrid *SupportGridDTO   `json:"support_grid,omitempty"`
}

// HistoryEntryDTO is one stored toolpath in `millflow history`.
type HistoryEntryDTO struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Tool      string    `json:"tool"`
	Job       string    `json:"job,omitempty"`
	Moves     int       `json:"moves"`
	CutLength float64   `json:"cut_length"`
	Unit      string    `json:"unit"`
	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func vec(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// FromToolpath converts a toolpath. withPath includes every move.
func FromToolpath(tp *toolpath.Toolpath, withPath bool) ToolpathDTO {
	box := tp.BoundingBox()
	dto := ToolpathDTO{
		ID:                tp.ID().String(),
		Task:              tp.Name(),
		Tool:              tp.ToolID(),
		Unit:              string(tp.Unit()),
		Moves:             tp.Len(),
		CutLength:         tp.CutLength(),
		Layers:            tp.Layers(),
		Bounds:            BoundsDTO{Min: vec(box.Min), Max: vec(box.Max)},
		Speed:             tp.Speed(),
		Feedrate:          tp.Feedrate(),
		SafetyHeight:      tp.SafetyHeight(),
		MaterialAllowance: tp.MaterialAllowance(),
		Color:             tp.Color().Hex(),
		Settings:          []SettingDTO{},
	}
	for _, s := range tp.Filters() {
		dto.Settings = append(dto.Settings, SettingDTO{Key: s.Key, Value: s.Value})
	}
	if withPath {
		moves := tp.Moves()
		dto.Path = make([]MoveDTO, len(moves))
		for i, m := range moves {
			dto.Path[i] = MoveDTO{Kind: m.Kind.String(), At: vec(m.Position)}
		}
	}
	return dto
}

// FromTask converts the outcome of Task.GenerateToolpath.
func FromTask(task *flow.Task, tp *toolpath.Toolpath, err error) GenerateResultDTO {
	dto := GenerateResultDTO{Task: task.ID(), State: string(task.State())}
	if tp != nil {
		t := FromToolpath(tp, false)
		dto.Toolpath = &t
	}
	if err != nil {
		dto.Error = err.Error()
	}
	return dto
}

// FromProblems converts a job's validation results.
func FromProblems(jobPath string, problems []jobfile.Problem) ValidationDTO {
	dto := ValidationDTO{Job: jobPath, Valid: true, Entities: make([]EntityResultDTO, 0, len(problems))}
	for _, p := range problems {
		r := EntityResultDTO{Kind: string(p.Kind), ID: p.ID, Valid: p.Err == nil}
		for _, e := range flatten(p.Err) {
			r.Errors = append(r.Errors, e.Error())
		}
		if !r.Valid {
			dto.Valid = false
		}
		dto.Entities = append(dto.Entities, r)
	}
	return dto
}

// flatten unpacks errors.Join trees into their leaves.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, flatten(e)...)
	}
	return out
}

// FromSummary converts a stored toolpath summary.
func FromSummary(s store.Summary) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:        s.ID.String(),
		Task:      s.TaskID,
		Tool:      s.ToolID,
		Job:       s.JobPath,
		Moves:     s.Moves,
		CutLength: s.CutLength,
		Unit:      string(s.Unit),
		TraceID:   s.TraceID,
		CreatedAt: s.CreatedAt,
	}
}

// FromSupportGrid converts bridge line positions.
func FromSupportGrid(xs, ys []float64) *SupportGridDTO {
	return &SupportGridDTO{X: nonNil(xs), Y: nonNil(ys)}
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
