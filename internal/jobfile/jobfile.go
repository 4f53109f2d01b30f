// Package jobfile loads machining jobs from YAML. A job file has one
// mapping per entity kind, keyed by id:
//
//	tools:
//	  t1: {shape: flat_bottom, radius: 3}
//	processes:
//	  rough: {strategy: slice, step_down: 2}
//	bounds:
//	  stock: {specification: margins}
//	models:
//	  part: {type: block, lower: [0, 0, 0], upper: [50, 40, 10]}
//	tasks:
//	  job: {process: rough, tool: t1, bounds: stock, collision_models: [part]}
//
// Sections may appear in any order; references are resolved when a task
// runs, not while loading.
package jobfile

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/millflow/internal/flow"
	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/registry"
)

// ErrNoTasks is returned by Job.Task when the file declares no task.
var ErrNoTasks = errors.New("job declares no tasks")

// file is the root structure of a job file. Sections stay as nodes so the
// declaration order of ids survives decoding.
type file struct {
	Tools     yaml.Node `yaml:"tools"`
	Processes yaml.Node `yaml:"processes"`
	Bounds    yaml.Node `yaml:"bounds"`
	Models    yaml.Node `yaml:"models"`
	Tasks     yaml.Node `yaml:"tasks"`
}

// Job is a loaded job file. Entities are listed in declaration order.
type Job struct {
	Path      string
	Registry  *registry.Registry
	Tools     []*flow.Tool
	Processes []*flow.Process
	Bounds    []*flow.Bounds
	Models    []*flow.Model
	Tasks     []*flow.Task
}

type entry struct {
	id    string
	line  int
	attrs map[string]any
}

// Load reads and parses the job file at path.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", path, err)
	}
	job, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", path, err)
	}
	job.Path = path
	log.Info(log.CatConfig, "job loaded", "path", path,
		"tools", len(job.Tools), "processes", len(job.Processes), "bounds", len(job.Bounds),
		"models", len(job.Models), "tasks", len(job.Tasks))
	return job, nil
}

// Parse builds every entity of a job file into a fresh registry.
func Parse(data []byte) (*Job, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	job := &Job{Registry: registry.New()}
	var err error
	if job.Tools, err = build(job.Registry, "tools", &f.Tools, flow.NewTool); err != nil {
		return nil, err
	}
	if job.Processes, err = build(job.Registry, "processes", &f.Processes, flow.NewProcess); err != nil {
		return nil, err
	}
	if job.Bounds, err = build(job.Registry, "bounds", &f.Bounds, flow.NewBounds); err != nil {
		return nil, err
	}
	if job.Models, err = build(job.Registry, "models", &f.Models, flow.NewModel); err != nil {
		return nil, err
	}
	if job.Tasks, err = build(job.Registry, "tasks", &f.Tasks, flow.NewTask); err != nil {
		return nil, err
	}
	return job, nil
}

func build[T any](reg *registry.Registry, section string, node *yaml.Node,
	newFn func(*registry.Registry, string, map[string]any) (T, error),
) ([]T, error) {
	entries, err := entries(section, node)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		v, err := newFn(reg, e.id, e.attrs)
		if err != nil {
			return nil, fmt.Errorf("%s.%s (line %d): %w", section, e.id, e.line, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// entries decodes one section. An absent or null section is empty.
func entries(section string, node *yaml.Node) ([]entry, error) {
	if node.Kind == 0 || node.ShortTag() == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s (line %d): expected a mapping of id to attributes", section, node.Line)
	}

	seen := make(map[string]int, len(node.Content)/2)
	out := make([]entry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if prev, ok := seen[key.Value]; ok {
			return nil, fmt.Errorf("%s.%s (line %d): duplicate id, first declared on line %d", section, key.Value, key.Line, prev)
		}
		seen[key.Value] = key.Line

		attrs := map[string]any{}
		if value.ShortTag() != "!!null" {
			if err := value.Decode(&attrs); err != nil {
				return nil, fmt.Errorf("%s.%s (line %d): %w", section, key.Value, value.Line, err)
			}
		}
		out = append(out, entry{id: key.Value, line: key.Line, attrs: attrs})
	}
	return out, nil
}

// Task returns the task with the given id. An empty id selects the first
// declared task.
func (j *Job) Task(id string) (*flow.Task, error) {
	if id == "" {
		if len(j.Tasks) == 0 {
			return nil, ErrNoTasks
		}
		return j.Tasks[0], nil
	}
	return registry.Resolve[*flow.Task](j.Registry, registry.KindTask, id)
}

// Close deregisters every entity of the job.
func (j *Job) Close() {
	for _, t := range j.Tasks {
		t.Close()
	}
	for _, m := range j.Models {
		m.Close()
	}
	for _, b := range j.Bounds {
		b.Close()
	}
	for _, p := range j.Processes {
		p.Close()
	}
	for _, t := range j.Tools {
		t.Close()
	}
}
