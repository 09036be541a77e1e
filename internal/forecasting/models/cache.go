package models

import (
	"context"
	"errors"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	forecasting "occupancy-forecast/internal/forecasting/domain"
	"occupancy-forecast/internal/observability/metrics"
)

// unboundedSize stands in for "never evict" when no capacity is configured.
const unboundedSize = 1 << 30

// ArtifactLoader loads the fitted model for a binding.
type ArtifactLoader interface {
	Load(ctx context.Context, binding forecasting.Binding) (Model, error)
}

// Cache keeps loaded models keyed by binding id. Concurrent misses for the same
// binding share one load. Loaded models are never mutated.
type Cache struct {
	loader ArtifactLoader
	models *lru.Cache[int64, Model]
	group  singleflight.Group
}

// NewCache wraps loader with an LRU of the given size; size <= 0 never evicts.
func NewCache(loader ArtifactLoader, size int) (*Cache, error) {
	if loader == nil {
		return nil, errors.New("models: nil loader")
	}
	if size <= 0 {
		size = unboundedSize
	}
	store, err := lru.New[int64, Model](size)
	if err != nil {
		return nil, err
	}
	return &Cache{loader: loader, models: store}, nil
}

// Get returns the cached model for the binding, loading it on first use.
func (c *Cache) Get(ctx context.Context, binding forecasting.Binding) (Model, error) {
	if model, ok := c.models.Get(binding.ID); ok {
		metrics.IncModelCache(true)
		return model, nil
	}
	metrics.IncModelCache(false)
	loadCtx := context.WithoutCancel(ctx)
	value, err, _ := c.group.Do(strconv.FormatInt(binding.ID, 10), func() (any, error) {
		if model, ok := c.models.Get(binding.ID); ok {
			return model, nil
		}
		model, err := c.loader.Load(loadCtx, binding)
		if err != nil {
			return nil, err
		}
		c.models.Add(binding.ID, model)
		return model, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(Model), nil
}

// Load implements ArtifactLoader so a Cache can stand in for a Loader.
func (c *Cache) Load(ctx context.Context, binding forecasting.Binding) (Model, error) {
	return c.Get(ctx, binding)
}

// Invalidate drops a binding's model so the next Get reloads it.
func (c *Cache) Invalidate(bindingID int64) {
	c.models.Remove(bindingID)
}

// Len returns the number of cached models.
func (c *Cache) Len() int {
	return c.models.Len()
}
