package availability

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type slotKey struct {
	doctorID uuid.UUID
	date     string
}

// slotSet is the unit of atomicity: every mutation of one (doctor, date)
// happens under its mutex.
type slotSet struct {
	mu    sync.Mutex
	order []string
	open  map[string]bool
}

func (s *slotSet) openLocked() []string {
	out := make([]string, 0, len(s.order))
	for _, l := range s.order {
		if s.open[l] {
			out = append(out, l)
		}
	}
	return out
}

type MemoryStore struct {
	mu      sync.RWMutex
	doctors map[uuid.UUID]struct{}
	sets    map[slotKey]*slotSet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		doctors: make(map[uuid.UUID]struct{}),
		sets:    make(map[slotKey]*slotSet),
	}
}

// RegisterDoctor makes doctorID known to the store.
func (m *MemoryStore) RegisterDoctor(_ context.Context, doctorID uuid.UUID) error {
	m.mu.Lock()
	m.doctors[doctorID] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) known(doctorID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.doctors[doctorID]
	return ok
}

func (m *MemoryStore) set(doctorID uuid.UUID, date string, create bool) *slotSet {
	k := slotKey{doctorID: doctorID, date: date}
	m.mu.RLock()
	s, ok := m.sets[k]
	m.mu.RUnlock()
	if ok || !create {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sets[k]; ok {
		return s
	}
	s = &slotSet{open: make(map[string]bool)}
	m.sets[k] = s
	return s
}

func (m *MemoryStore) ListSlots(_ context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	if !m.known(doctorID) {
		return nil, unknownDoctor(doctorID)
	}
	s := m.set(doctorID, date, false)
	if s == nil {
		return []string{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(), nil
}

func (m *MemoryStore) Publish(_ context.Context, doctorID uuid.UUID, date string, slots []string) ([]string, error) {
	date, slots, err := normalizeSlots(date, slots)
	if err != nil {
		return nil, err
	}
	if !m.known(doctorID) {
		return nil, unknownDoctor(doctorID)
	}
	s := m.set(doctorID, date, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range slots {
		if _, seen := s.open[l]; seen {
			continue
		}
		s.order = append(s.order, l)
		s.open[l] = true
	}
	return s.openLocked(), nil
}

func (m *MemoryStore) Remove(_ context.Context, doctorID uuid.UUID, date, slot string) (bool, error) {
	s := m.set(doctorID, date, false)
	if s == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open[slot] {
		return false, nil
	}
	s.open[slot] = false
	return true, nil
}

func (m *MemoryStore) Restore(_ context.Context, doctorID uuid.UUID, date, slot string) error {
	if !m.known(doctorID) {
		return unknownDoctor(doctorID)
	}
	s := m.set(doctorID, date, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.open[slot]; !seen {
		s.order = append(s.order, slot)
	}
	s.open[slot] = true
	return nil
}

func (m *MemoryStore) Dates(_ context.Context, doctorID uuid.UUID) ([]string, error) {
	if !m.known(doctorID) {
		return nil, unknownDoctor(doctorID)
	}
	m.mu.RLock()
	var candidates []*slotSet
	var dates []string
	for k, s := range m.sets {
		if k.doctorID == doctorID {
			candidates = append(candidates, s)
			dates = append(dates, k.date)
		}
	}
	m.mu.RUnlock()

	out := []string{}
	for i, s := range candidates {
		s.mu.Lock()
		n := len(s.openLocked())
		s.mu.Unlock()
		if n > 0 {
			out = append(out, dates[i])
		}
	}
	sort.Strings(out)
	return out, nil
}
