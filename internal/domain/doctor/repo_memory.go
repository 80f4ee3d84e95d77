package doctor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

type memoryRepo struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]*Doctor
}

func NewMemoryRepo() Repository {
	return &memoryRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (r *memoryRepo) Create(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	cp := *d
	r.doctors[d.ID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	cp := *d
	return &cp, nil
}

func (r *memoryRepo) ListBySpecialization(_ context.Context, specialization string) ([]*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Doctor
	for _, d := range r.doctors {
		if d.HasSpecialization(specialization) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sortByName(out)
	return out, nil
}

func (r *memoryRepo) List(_ context.Context) ([]*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Doctor, 0, len(r.doctors))
	for _, d := range r.doctors {
		cp := *d
		out = append(out, &cp)
	}
	sortByName(out)
	return out, nil
}

func sortByName(ds []*Doctor) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Name != ds[j].Name {
			return ds[i].Name < ds[j].Name
		}
		return ds[i].ID.String() < ds[j].ID.String()
	})
}
