package presentation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/jobfile"
	"github.com/zjrosen/millflow/internal/registry"
	"github.com/zjrosen/millflow/internal/store"
	"github.com/zjrosen/millflow/internal/toolpath"
)

func sample(t *testing.T) *toolpath.Toolpath {
	t.Helper()
	tp, err := toolpath.New([]toolpath.Move{
		toolpath.Rapid(r3.Vec{Z: 25}),
		toolpath.Cut(r3.Vec{Z: -1}),
		toolpath.Cut(r3.Vec{X: 10, Z: -1}),
		toolpath.Cut(r3.Vec{X: 10, Z: -2}),
		toolpath.Cut(r3.Vec{X: 10, Y: 5, Z: -2}),
	}, toolpath.Metadata{
		Name:         "rough",
		ToolID:       "t1",
		SafetyHeight: 25,
		Filters:      []toolpath.MachineSetting{{Key: "feedrate", Value: 450}},
	}, toolpath.WithColor(toolpath.Color{R: 1}))
	require.NoError(t, err)
	return tp
}

func formatter(t *testing.T, format string) (*Formatter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	f, err := NewFormatter(&buf, format)
	require.NoError(t, err)
	return f, &buf
}

func TestNewFormatter_UnknownFormat(t *testing.T) {
	_, err := NewFormatter(&bytes.Buffer{}, "xml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFromToolpath(t *testing.T) {
	tp := sample(t)
	dto := FromToolpath(tp, true)

	require.Equal(t, tp.ID().String(), dto.ID)
	require.Equal(t, "rough", dto.Task)
	require.Equal(t, 5, dto.Moves)
	require.InDelta(t, 42.0, dto.CutLength, 1e-9)
	require.Equal(t, []float64{-1, -2}, dto.Layers)
	require.Equal(t, BoundsDTO{Min: [3]float64{0, 0, -2}, Max: [3]float64{10, 5, 25}}, dto.Bounds)
	require.Equal(t, "#ff0000", dto.Color)
	require.Equal(t, []SettingDTO{{Key: "feedrate", Value: 450}}, dto.Settings)
	require.Len(t, dto.Path, 5)
	require.Equal(t, MoveDTO{Kind: "rapid", At: [3]float64{0, 0, 25}}, dto.Path[0])

	require.Empty(t, FromToolpath(tp, false).Path)
}

func TestFormatGenerate_Text(t *testing.T) {
	f, buf := formatter(t, "")
	dto := FromToolpath(sample(t), false)

	err := f.FormatGenerate([]GenerateResultDTO{
		{Task: "rough", State: "done", Toolpath: &dto, StoredAs: "1234"},
		{Task: "finish", State: "skipped"},
		{Task: "engrave", State: "failed", Error: "boom"},
	})
	require.NoError(t, err)

	out := buf.String()
	require.NotContains(t, out, "\x1b[", "no colours for a plain writer")
	for _, want := range []string{"task rough  done", "task finish  skipped", "task engrave  failed", "boom", "cut length", "42 mm", "layers", "-1, -2", "feedrate=450", "stored as", "1234"} {
		require.Contains(t, out, want)
	}
}

func TestFormatGenerate_JSON(t *testing.T) {
	f, buf := formatter(t, FormatJSON)
	dto := FromToolpath(sample(t), false)
	require.NoError(t, f.FormatGenerate([]GenerateResultDTO{{Task: "rough", State: "done", Toolpath: &dto}}))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "done", got[0]["state"])
	require.NotContains(t, got[0], "error")
	tp := got[0]["toolpath"].(map[string]any)
	require.Equal(t, float64(5), tp["moves"])
	require.NotContains(t, tp, "path")
}

func TestFormatToolpath_ListsMoves(t *testing.T) {
	f, buf := formatter(t, FormatText)
	require.NoError(t, f.FormatToolpath(FromToolpath(sample(t), true)))
	require.Contains(t, buf.String(), "rapid 0, 0, 25")
	require.Contains(t, buf.String(), "cut   10, 5, -2")
}

func TestFromProblems(t *testing.T) {
	joined := errors.Join(errors.New("a"), errors.Join(errors.New("b"), fmt.Errorf("wrapped: %w", errors.New("c"))))
	report := FromProblems("job.yaml", []jobfile.Problem{
		{Kind: registry.KindTool, ID: "t1"},
		{Kind: registry.KindTask, ID: "job", Err: joined},
	})

	require.False(t, report.Valid)
	require.Equal(t, EntityResultDTO{Kind: "tool", ID: "t1", Valid: true}, report.Entities[0])
	require.Equal(t, []string{"a", "b", "wrapped: c"}, report.Entities[1].Errors)
}

func TestFormatValidation_Text(t *testing.T) {
	f, buf := formatter(t, FormatText)
	report := FromProblems("job.yaml", []jobfile.Problem{
		{Kind: registry.KindTool, ID: "t1"},
		{Kind: registry.KindModel, ID: "m1", Err: errors.New("bad points")},
	})
	report.SupportGrid = FromSupportGrid([]float64{-10, 10}, nil)

	require.NoError(t, f.FormatValidation(report))
	out := buf.String()
	require.Contains(t, out, "ok   tool t1")
	require.Contains(t, out, "FAIL model m1")
	require.Contains(t, out, "bad points")
	require.Contains(t, out, "support grid")
	require.Contains(t, out, "-10, 10")
	require.Contains(t, out, "invalid")
}

func TestFormatValidation_JSONSupportGridIsNeverNull(t *testing.T) {
	f, buf := formatter(t, FormatJSON)
	require.NoError(t, f.FormatValidation(ValidationDTO{Job: "j", Valid: true, Entities: []EntityResultDTO{}, SupportGrid: FromSupportGrid(nil, nil)}))
	require.Contains(t, buf.String(), `"x": []`)
}

func TestFormatHistory(t *testing.T) {
	sum := store.Summary{
		ID:        uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
		TaskID:    "rough",
		ToolID:    "t1",
		Moves:     42,
		CutLength: 120.5,
		Unit:      toolpath.UnitMM,
		CreatedAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}

	f, buf := formatter(t, FormatText)
	require.NoError(t, f.FormatHistory([]HistoryEntryDTO{FromSummary(sum)}))
	require.Contains(t, buf.String(), "0f8fad5b")
	require.Contains(t, buf.String(), "2026-03-01 12:30:00")
	require.Contains(t, buf.String(), "42 moves")

	empty, buf := formatter(t, FormatText)
	require.NoError(t, empty.FormatHistory(nil))
	require.Contains(t, buf.String(), "no stored toolpaths")
}
