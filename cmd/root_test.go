package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/millflow/internal/config"
	"github.com/zjrosen/millflow/internal/presentation"
	"github.com/zjrosen/millflow/internal/registry"
	"github.com/zjrosen/millflow/internal/tracing"
)

const blockJob = `tasks:
  rough:
    process: slice
    tool: endmill
    bounds: around
    collision_models: [part]

tools:
  endmill:
    shape: flat_bottom
    radius: 3
    feed: 450
    speed: 12000

processes:
  slice:
    strategy: slice
    step_down: 2
    overlap: 0

bounds:
  around:
    specification: margins

models:
  part:
    type: block
    lower: [0, 0, 0]
    upper: [10, 10, 10]
`

const brokenJob = `tasks:
  outline:
    process: engrave
    tool: endmill
    bounds: around
    collision_models: [part]
  orphan:
    process: missing
    tool: endmill
    bounds: around
    collision_models: [part]

tools:
  endmill:
    shape: flat_bottom
    radius: 1

processes:
  engrave:
    strategy: engrave
    step_down: 1

bounds:
  around:
    specification: margins

models:
  part:
    type: block
    lower: [0, 0, 0]
    upper: [10, 10, 10]
`

// workspace gives the test its own home and working directory and writes
// job as job.yaml.
func workspace(t *testing.T, job string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(job), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestGenerate_Text(t *testing.T) {
	job := workspace(t, blockJob)

	out, _, err := execute(t, "generate", job)
	require.NoError(t, err)
	require.Contains(t, out, "task rough")
	require.Contains(t, out, "done")
	require.Contains(t, out, "feedrate=450 spindle_speed=12000")
	require.Contains(t, out, "cut length")
	require.NotContains(t, out, "stored as")
}

func TestGenerate_JSONWithPath(t *testing.T) {
	job := workspace(t, blockJob)

	out, _, err := execute(t, "generate", job, "--format", "json", "--path")
	require.NoError(t, err)

	results := decode[[]presentation.GenerateResultDTO](t, out)
	require.Len(t, results, 1)
	r := results[0]
	require.Equal(t, "rough", r.Task)
	require.Equal(t, "done", r.State)
	require.Empty(t, r.Error)
	require.NotNil(t, r.Toolpath)
	require.Positive(t, r.Toolpath.Moves)
	require.Len(t, r.Toolpath.Path, r.Toolpath.Moves)
	require.Equal(t, "endmill", r.Toolpath.Tool)
	require.Equal(t, "mm", r.Toolpath.Unit)
	require.Equal(t, []presentation.SettingDTO{
		{Key: "feedrate", Value: 450},
		{Key: "spindle_speed", Value: 12000},
	}, r.Toolpath.Settings)
}

func TestGenerate_FormatFromEnvironment(t *testing.T) {
	job := workspace(t, blockJob)
	t.Setenv("MILLFLOW_OUTPUT_FORMAT", "json")

	out, _, err := execute(t, "generate", job)
	require.NoError(t, err)
	require.Len(t, decode[[]presentation.GenerateResultDTO](t, out), 1)
}

func TestGenerate_SoftAndHardFailures(t *testing.T) {
	job := workspace(t, brokenJob)

	out, stderr, err := execute(t, "generate", job, "--format", "json")
	require.ErrorIs(t, err, errTasksFailed)
	require.Contains(t, err.Error(), "1 of 2 tasks")

	results := decode[[]presentation.GenerateResultDTO](t, out)
	require.Len(t, results, 2)
	require.Equal(t, "outline", results[0].Task)
	require.Equal(t, "skipped", results[0].State)
	require.Nil(t, results[0].Toolpath)
	require.Empty(t, results[0].Error)

	require.Equal(t, "orphan", results[1].Task)
	require.Equal(t, "failed", results[1].State)
	require.Contains(t, results[1].Error, `"missing"`)

	require.Contains(t, stderr, "no trace models given")
	require.Contains(t, stderr, "task failed")
}

func TestGenerate_SelectTasks(t *testing.T) {
	job := workspace(t, brokenJob)

	out, _, err := execute(t, "generate", job, "-t", "outline", "--format", "json")
	require.NoError(t, err)
	results := decode[[]presentation.GenerateResultDTO](t, out)
	require.Len(t, results, 1)
	require.Equal(t, "skipped", results[0].State)

	_, _, err = execute(t, "generate", job, "--task", "nope")
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestGenerate_MissingJob(t *testing.T) {
	workspace(t, blockJob)

	_, _, err := execute(t, "generate", "absent.yaml")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestHistory_StoreShowDelete(t *testing.T) {
	job := workspace(t, blockJob)
	t.Setenv("MILLFLOW_STORE_PATH", filepath.Join(t.TempDir(), "history.db"))

	out, _, err := execute(t, "history")
	require.NoError(t, err)
	require.Contains(t, out, "no stored toolpaths")

	out, _, err = execute(t, "generate", job, "--store", "--format", "json")
	require.NoError(t, err)
	results := decode[[]presentation.GenerateResultDTO](t, out)
	require.Len(t, results, 1)
	id := results[0].StoredAs
	require.NotEmpty(t, id)

	out, _, err = execute(t, "history", "--format", "json")
	require.NoError(t, err)
	entries := decode[[]presentation.HistoryEntryDTO](t, out)
	require.Len(t, entries, 1)
	require.Equal(t, id, entries[0].ID)
	require.Equal(t, "rough", entries[0].Task)
	require.Equal(t, job, entries[0].Job)
	require.Equal(t, results[0].Toolpath.Moves, entries[0].Moves)

	out, _, err = execute(t, "history", "--task", "other", "--format", "json")
	require.NoError(t, err)
	require.Empty(t, decode[[]presentation.HistoryEntryDTO](t, out))

	out, _, err = execute(t, "history", "show", id[:8], "--format", "json")
	require.NoError(t, err)
	tp := decode[presentation.ToolpathDTO](t, out)
	require.Equal(t, id, tp.ID)
	require.Len(t, tp.Path, entries[0].Moves)
	require.Equal(t, results[0].Toolpath.CutLength, tp.CutLength)

	out, _, err = execute(t, "history", "delete", id[:8])
	require.NoError(t, err)
	require.Contains(t, out, "deleted "+id)

	_, _, err = execute(t, "history", "show", id)
	require.Error(t, err)
}

func TestHistory_StoreEnabledByConfig(t *testing.T) {
	job := workspace(t, blockJob)
	t.Setenv("MILLFLOW_STORE_ENABLED", "true")
	t.Setenv("MILLFLOW_STORE_PATH", filepath.Join(t.TempDir(), "history.db"))

	out, _, err := execute(t, "generate", job)
	require.NoError(t, err)
	require.Contains(t, out, "stored as")

	out, _, err = execute(t, "generate", job, "--store=false", "--format", "json")
	require.NoError(t, err)
	require.Empty(t, decode[[]presentation.GenerateResultDTO](t, out)[0].StoredAs)
}

func TestValidate_Valid(t *testing.T) {
	job := workspace(t, blockJob)

	out, _, err := execute(t, "validate", job)
	require.NoError(t, err)
	require.Contains(t, out, "ok   tool endmill")
	require.Contains(t, out, "valid")
	require.NotContains(t, out, "support grid")
}

func TestValidate_Invalid(t *testing.T) {
	job := workspace(t, brokenJob)

	out, _, err := execute(t, "validate", job, "--format", "json")
	require.ErrorIs(t, err, errInvalidJob)

	report := decode[presentation.ValidationDTO](t, out)
	require.False(t, report.Valid)
	failed := map[string]bool{}
	for _, e := range report.Entities {
		if !e.Valid {
			failed[e.Kind+"/"+e.ID] = true
			require.NotEmpty(t, e.Errors)
		}
	}
	require.Equal(t, map[string]bool{"task/orphan": true}, failed)
}

func TestValidate_SupportGrid(t *testing.T) {
	job := workspace(t, blockJob)

	out, _, err := execute(t, "validate", job, "--grid-x", "4", "--format", "json")
	require.NoError(t, err)
	report := decode[presentation.ValidationDTO](t, out)
	require.NotNil(t, report.SupportGrid)
	require.Equal(t, []float64{-3, 1, 5, 9, 13}, report.SupportGrid.X)
	require.Empty(t, report.SupportGrid.Y)

	t.Setenv("MILLFLOW_SUPPORT_GRID_DISTANCE_Y", "6")
	out, _, err = execute(t, "validate", job)
	require.NoError(t, err)
	require.Contains(t, out, "support grid")
	require.Contains(t, out, "-1, 5, 11")
}

func TestInitConfig(t *testing.T) {
	workspace(t, blockJob)

	out, _, err := execute(t, "init-config")
	require.NoError(t, err)
	require.Contains(t, out, "wrote "+config.ProjectConfigPath)
	require.FileExists(t, config.ProjectConfigPath)

	_, _, err = execute(t, "init-config")
	require.ErrorIs(t, err, fs.ErrExist)

	_, _, err = execute(t, "init-config", "--force")
	require.NoError(t, err)

	custom := filepath.Join(t.TempDir(), "nested", "millflow.yaml")
	_, _, err = execute(t, "init-config", custom)
	require.NoError(t, err)
	require.FileExists(t, custom)
}

func TestConfig_ProjectFileIsUsed(t *testing.T) {
	job := workspace(t, blockJob)
	require.NoError(t, os.MkdirAll(filepath.Dir(config.ProjectConfigPath), 0o750))
	require.NoError(t, os.WriteFile(config.ProjectConfigPath, []byte("output:\n  format: json\n"), 0o600))

	out, _, err := execute(t, "generate", job)
	require.NoError(t, err)
	require.Len(t, decode[[]presentation.GenerateResultDTO](t, out), 1)

	out, _, err = execute(t, "generate", job, "--format", "text")
	require.NoError(t, err)
	require.Contains(t, out, "task rough")
}

func TestConfig_Errors(t *testing.T) {
	job := workspace(t, blockJob)

	_, _, err := execute(t, "generate", job, "--config", "absent.yaml")
	require.ErrorContains(t, err, "reading config")

	_, _, err = execute(t, "generate", job, "--format", "xml")
	require.ErrorContains(t, err, "invalid configuration")
}

func TestTracing_WritesSpans(t *testing.T) {
	job := workspace(t, blockJob)
	traces := filepath.Join(t.TempDir(), "traces.jsonl")
	t.Setenv("MILLFLOW_TRACING_ENABLED", "true")
	t.Setenv("MILLFLOW_TRACING_FILE_PATH", traces)
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, _, err := execute(t, "generate", job)
	require.NoError(t, err)

	data, err := os.ReadFile(traces)
	require.NoError(t, err)
	require.Contains(t, string(data), tracing.SpanGenerateToolpath)
	require.Contains(t, string(data), tracing.SpanGenerateMoves)
}
