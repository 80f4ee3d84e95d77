package doctor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedDirectory fronts a Directory with an expiring LRU. Only successful
// lookups are cached; a NotFound is always re-read from the backing store.
type CachedDirectory struct {
	next   Directory
	byID   *expirable.LRU[uuid.UUID, *Doctor]
	bySpec *expirable.LRU[string, []*Doctor]
}

func NewCachedDirectory(next Directory, size int, ttl time.Duration) *CachedDirectory {
	if size <= 0 {
		size = 256
	}
	return &CachedDirectory{
		next:   next,
		byID:   expirable.NewLRU[uuid.UUID, *Doctor](size, nil, ttl),
		bySpec: expirable.NewLRU[string, []*Doctor](size, nil, ttl),
	}
}

func (c *CachedDirectory) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	if d, ok := c.byID.Get(id); ok {
		cp := *d
		return &cp, nil
	}
	d, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *d
	c.byID.Add(id, &cp)
	return d, nil
}

func (c *CachedDirectory) ListBySpecialization(ctx context.Context, specialization string) ([]*Doctor, error) {
	key := NormalizeSpecialization(specialization)
	if ds, ok := c.bySpec.Get(key); ok {
		return cloneAll(ds), nil
	}
	ds, err := c.next.ListBySpecialization(ctx, specialization)
	if err != nil {
		return nil, err
	}
	if len(ds) > 0 {
		c.bySpec.Add(key, cloneAll(ds))
	}
	return ds, nil
}

// Purge drops every cached entry. Called after the directory is written to.
func (c *CachedDirectory) Purge() {
	c.byID.Purge()
	c.bySpec.Purge()
}

func cloneAll(ds []*Doctor) []*Doctor {
	out := make([]*Doctor, len(ds))
	for i, d := range ds {
		cp := *d
		out[i] = &cp
	}
	return out
}
