package jobfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/millflow/internal/flow"
	"github.com/zjrosen/millflow/internal/registry"
)

func TestLoad_BuildsEveryEntity(t *testing.T) {
	job, err := Load(filepath.Join("testdata", "pocket.yaml"))
	require.NoError(t, err)

	require.Len(t, job.Tools, 1)
	require.Len(t, job.Processes, 2)
	require.Len(t, job.Bounds, 2)
	require.Len(t, job.Models, 2)
	require.Len(t, job.Tasks, 2)
	require.Equal(t, "rough", job.Tasks[0].ID(), "declaration order is kept")
	require.Equal(t, "outline", job.Tasks[1].ID())
	require.Equal(t, 2, job.Registry.Len(registry.KindTask))

	r, err := job.Tools[0].Radius()
	require.NoError(t, err)
	require.Equal(t, 3.0, r)
	require.Equal(t, "acme", job.Tools[0].Export()["vendor"])

	for _, p := range job.Validate() {
		require.NoError(t, p.Err, "%s %s", p.Kind, p.ID)
	}
	require.NoError(t, job.Err())
}

func TestLoad_GeneratesBothTasks(t *testing.T) {
	job, err := Load(filepath.Join("testdata", "pocket.yaml"))
	require.NoError(t, err)

	for _, task := range job.Tasks {
		tp, err := task.GenerateToolpath(context.Background(), flow.NewEnvironment(), nil)
		require.NoError(t, err, task.ID())
		require.NotNil(t, tp, task.ID())
		require.Equal(t, flow.StateDone, task.State())
	}
}

func TestJob_Task(t *testing.T) {
	job, err := Load(filepath.Join("testdata", "pocket.yaml"))
	require.NoError(t, err)

	first, err := job.Task("")
	require.NoError(t, err)
	require.Equal(t, "rough", first.ID())

	named, err := job.Task("outline")
	require.NoError(t, err)
	require.Same(t, job.Tasks[1], named)

	_, err = job.Task("finish")
	require.ErrorIs(t, err, registry.ErrNotFound)

	empty, err := Parse([]byte("tools: {}\n"))
	require.NoError(t, err)
	_, err = empty.Task("")
	require.ErrorIs(t, err, ErrNoTasks)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"malformed", "tools: [", "parse"},
		{"section not a mapping", "tools:\n  - t1\n", "tools (line 2): expected a mapping"},
		{"duplicate id", "models:\n  a: {type: block}\n  a: {type: polygon}\n", "models.a (line 3): duplicate id, first declared on line 2"},
		{"attributes not a mapping", "tools:\n  t1: 3\n", "tools.t1 (line 2)"},
		{"empty id", "tools:\n  \"\": {shape: flat_bottom}\n", "entity id must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParse_NullSectionsAndEntries(t *testing.T) {
	job, err := Parse([]byte("tools:\nmodels:\n  stock:\n"))
	require.NoError(t, err)
	require.Empty(t, job.Tools)
	require.Len(t, job.Models, 1)

	_, err = job.Models[0].Type()
	require.ErrorIs(t, err, flow.ErrMissingAttribute)
}

func TestJob_ValidateReportsEachEntity(t *testing.T) {
	job, err := Parse([]byte(`
tools:
  t1: {shape: drill}
tasks:
  job: {process: p1, collision_models: [ghost]}
`))
	require.NoError(t, err, "loading converts nothing")

	problems := job.Validate()
	require.Len(t, problems, 2)
	require.Equal(t, registry.KindTool, problems[0].Kind)
	require.ErrorIs(t, problems[0].Err, flow.ErrInvalidKey)
	require.Equal(t, "job", problems[1].ID)
	require.ErrorIs(t, problems[1].Err, flow.ErrUnresolvedReference)
	require.ErrorIs(t, problems[1].Err, flow.ErrMissingAttribute)

	require.ErrorIs(t, job.Err(), flow.ErrInvalidKey)
}

func TestJob_Close(t *testing.T) {
	job, err := Load(filepath.Join("testdata", "pocket.yaml"))
	require.NoError(t, err)

	job.Close()
	for _, kind := range registry.Kinds {
		require.Zero(t, job.Registry.Len(kind), kind)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
