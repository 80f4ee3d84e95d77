package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

type memoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Appointment
	nowFn func() time.Time
}

func NewMemoryRepo() Repository {
	return &memoryRepo{items: make(map[uuid.UUID]*Appointment), nowFn: time.Now}
}

func (r *memoryRepo) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.items {
		if other.Status == StatusConfirmed && other.DoctorID == a.DoctorID &&
			other.Date == a.Date && other.Slot == a.Slot {
			return apperr.Conflict("slot %s on %s is already booked", a.Slot, a.Date)
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := r.nowFn().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	r.mu.RLock()
	var all []*Appointment
	for _, a := range r.items {
		if a.DoctorID == doctorID {
			cp := *a
			all = append(all, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date < all[j].Date
		}
		if all[i].Slot != all[j].Slot {
			return all[i].Slot < all[j].Slot
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	if a.Status != from {
		return nil, nil
	}
	a.Status = to
	a.UpdatedAt = r.nowFn().UTC()
	cp := *a
	return &cp, nil
}
