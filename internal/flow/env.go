package flow

import (
	"context"

	"github.com/zjrosen/millflow/internal/cachemanager"
	"github.com/zjrosen/millflow/internal/geometry"
	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/motiongrid"
	"github.com/zjrosen/millflow/internal/pathgen"
	"github.com/zjrosen/millflow/internal/progress"
)

// Environment holds the collaborators generation delegates to. Nil fields
// fall back to the built-in implementations.
type Environment struct {
	Grids      motiongrid.Synthesizer
	Generators pathgen.Factory
	Progress   progress.Sink
	Offsets    *OffsetCache
}

// NewEnvironment returns an environment with the built-in collaborators and
// an in-memory offset cache.
func NewEnvironment() *Environment {
	return &Environment{
		Grids:      motiongrid.Default{},
		Generators: pathgen.DefaultFactory{},
		Progress:   progress.Noop{},
		Offsets: NewOffsetCache(cachemanager.NewInMemoryCacheManager[string, geometry.Trace](
			"offsets", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)),
	}
}

func (env *Environment) grids() motiongrid.Synthesizer {
	if env == nil || env.Grids == nil {
		return motiongrid.Default{}
	}
	return env.Grids
}

func (env *Environment) generators() pathgen.Factory {
	if env == nil || env.Generators == nil {
		return pathgen.DefaultFactory{}
	}
	return env.Generators
}

func (env *Environment) sink() progress.Sink {
	if env == nil || env.Progress == nil {
		return progress.Noop{}
	}
	return env.Progress
}

func (env *Environment) offsets() *OffsetCache {
	if env == nil {
		return nil
	}
	return env.Offsets
}

type offsetInput struct {
	model    *Model
	radius   float64
	progress func(string)
}

// OffsetCache memoises radius-compensated traces per model state and radius.
// A nil *OffsetCache computes every offset.
type OffsetCache struct {
	cache *cachemanager.ReadThroughCache[string, geometry.Trace, offsetInput]
}

// NewOffsetCache wraps a cache manager. A nil manager disables caching.
func NewOffsetCache(manager cachemanager.CacheManager[string, geometry.Trace]) *OffsetCache {
	return &OffsetCache{
		cache: cachemanager.NewReadThroughCache(manager, computeOffset, cachemanager.DefaultExpiration, false),
	}
}

// Offset returns the model's trace grown by radius.
func (c *OffsetCache) Offset(ctx context.Context, m *Model, radius float64, progress func(string)) (geometry.Trace, error) {
	in := offsetInput{model: m, radius: radius, progress: progress}
	if c == nil {
		return computeOffset(ctx, in)
	}
	return c.cache.Get(ctx, m.cacheKey(radius), in)
}

func computeOffset(_ context.Context, in offsetInput) (geometry.Trace, error) {
	trace, err := in.model.Trace()
	if err != nil {
		return nil, err
	}
	log.Debug(log.CatFlow, "offsetting trace", "model", in.model.ID(), "radius", in.radius)
	return trace.Offset(in.radius, in.progress)
}
