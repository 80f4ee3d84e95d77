package availability

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

func newStoreWithDoctor(t *testing.T) (*MemoryStore, uuid.UUID) {
	t.Helper()
	s := NewMemoryStore()
	id := uuid.New()
	if err := s.RegisterDoctor(context.Background(), id); err != nil {
		t.Fatalf("register: %v", err)
	}
	return s, id
}

func TestMemoryStore_ListSlots_UnknownDoctor(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.ListSlots(context.Background(), uuid.New(), "2024-01-01")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMemoryStore_ListSlots_EmptyDate(t *testing.T) {
	s, d := newStoreWithDoctor(t)
	got, err := s.ListSlots(context.Background(), d, "2024-01-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", got)
	}
}

func TestMemoryStore_Publish_AdditiveUnion(t *testing.T) {
	s, d := newStoreWithDoctor(t)
	ctx := context.Background()

	s.Publish(ctx, d, "2024-01-01", []string{"10:00", "09:00"})
	got, err := s.Publish(ctx, d, "2024-01-01", []string{"09:00", "11:00", "11:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"10:00", "09:00", "11:00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMemoryStore_Publish_Validation(t *testing.T) {
	s, d := newStoreWithDoctor(t)
	ctx := context.Background()
	cases := []struct {
		date  string
		slots []string
	}{
		{"", []string{"09:00"}},
		{"2024-01-01", nil},
		{"2024-01-01", []string{"09:00", " "}},
	}
	for _, tc := range cases {
		if _, err := s.Publish(ctx, d, tc.date, tc.slots); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("Publish(%q, %v): expected validation error, got %v", tc.date, tc.slots, err)
		}
	}
	if _, err := s.Publish(ctx, uuid.New(), "2024-01-01", []string{"09:00"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found for unknown doctor, got %v", err)
	}
}

func TestMemoryStore_RemoveRestore(t *testing.T) {
	s, d := newStoreWithDoctor(t)
	ctx := context.Background()
	s.Publish(ctx, d, "2024-01-01", []string{"09:00", "10:00", "11:00"})

	ok, _ := s.Remove(ctx, d, "2024-01-01", "10:00")
	if !ok {
		t.Fatal("expected first remove to succeed")
	}
	ok, _ = s.Remove(ctx, d, "2024-01-01", "10:00")
	if ok {
		t.Error("expected second remove to report false")
	}
	got, _ := s.ListSlots(ctx, d, "2024-01-01")
	if !reflect.DeepEqual(got, []string{"09:00", "11:00"}) {
		t.Errorf("unexpected open list %v", got)
	}

	s.Restore(ctx, d, "2024-01-01", "10:00")
	s.Restore(ctx, d, "2024-01-01", "10:00")
	got, _ = s.ListSlots(ctx, d, "2024-01-01")
	if !reflect.DeepEqual(got, []string{"09:00", "10:00", "11:00"}) {
		t.Errorf("expected restored slot at its original position, got %v", got)
	}
}

func TestMemoryStore_PublishDoesNotReopenTaken(t *testing.T) {
	s, d := newStoreWithDoctor(t)
	ctx := context.Background()
	s.Publish(ctx, d, "2024-01-01", []string{"09:00", "10:00"})
	s.Remove(ctx, d, "2024-01-01", "09:00")

	got, _ := s.Publish(ctx, d, "2024-01-01", []string{"09:00", "12:00"})
	if !reflect.DeepEqual(got, []string{"10:00", "12:00"}) {
		t.Errorf("expected taken slot to stay closed, got %v", got)
	}
}

func TestMemoryStore_RestoreUnknownSlotAppends(t *testing.T) {
	s, d := newStoreWithDoctor(t)
	ctx := context.Background()
	s.Publish(ctx, d, "2024-01-01", []string{"09:00"})
	s.Restore(ctx, d, "2024-01-01", "08:00")
	got, _ := s.ListSlots(ctx, d, "2024-01-01")
	if !reflect.DeepEqual(got, []string{"09:00", "08:00"}) {
		t.Errorf("unexpected open list %v", got)
	}
}

func TestMemoryStore_Remove_Concurrent(t *testing.T) {
	s, d := newStoreWithDoctor(t)
	ctx := context.Background()
	s.Publish(ctx, d, "2024-01-01", []string{"09:00"})

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Remove(ctx, d, "2024-01-01", "09:00"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("expected exactly 1 successful remove, got %d", wins)
	}
}

func TestMemoryStore_Dates(t *testing.T) {
	s, d := newStoreWithDoctor(t)
	ctx := context.Background()
	s.Publish(ctx, d, "2024-01-03", []string{"09:00"})
	s.Publish(ctx, d, "2024-01-01", []string{"09:00"})
	s.Publish(ctx, d, "2024-01-02", []string{"09:00"})
	s.Remove(ctx, d, "2024-01-02", "09:00")

	got, err := s.Dates(ctx, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"2024-01-01", "2024-01-03"}) {
		t.Errorf("unexpected dates %v", got)
	}
}
