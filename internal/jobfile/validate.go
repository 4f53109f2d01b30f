package jobfile

import (
	"errors"

	"github.com/zjrosen/millflow/internal/registry"
)

// Problem is the validation outcome of one entity. Err is nil when the
// entity is valid.
type Problem struct {
	Kind registry.Kind
	ID   string
	Err  error
}

type validator interface {
	registry.Entity
	Validate() error
}

// Validate converts every attribute of every entity eagerly and returns one
// result per entity, in kind then declaration order.
func (j *Job) Validate() []Problem {
	var out []Problem
	add := func(v validator) {
		out = append(out, Problem{Kind: v.Kind(), ID: v.ID(), Err: v.Validate()})
	}
	for _, v := range j.Tools {
		add(v)
	}
	for _, v := range j.Processes {
		add(v)
	}
	for _, v := range j.Bounds {
		add(v)
	}
	for _, v := range j.Models {
		add(v)
	}
	for _, v := range j.Tasks {
		add(v)
	}
	return out
}

// Err joins every validation failure of the job, or returns nil.
func (j *Job) Err() error {
	var errs []error
	for _, p := range j.Validate() {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	return errors.Join(errs...)
}
