package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryHoldRepo struct {
	mu    sync.Mutex
	holds map[uuid.UUID]*Hold
}

func NewMemoryHoldRepo() HoldRepository {
	return &memoryHoldRepo{holds: make(map[uuid.UUID]*Hold)}
}

func (r *memoryHoldRepo) Create(_ context.Context, h *Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *h
	r.holds[h.Token] = &cp
	return nil
}

func (r *memoryHoldRepo) Take(_ context.Context, token uuid.UUID) (*Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.holds[token]
	if !ok {
		return nil, nil
	}
	delete(r.holds, token)
	return h, nil
}

func (r *memoryHoldRepo) TakeExpired(_ context.Context, now time.Time) ([]*Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Hold
	for token, h := range r.holds {
		if h.Expired(now) {
			out = append(out, h)
			delete(r.holds, token)
		}
	}
	return out, nil
}

func (r *memoryHoldRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holds), nil
}
