package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/internal/domain/availability"
	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

const testDate = "2024-01-01"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func setup(t *testing.T, ttl time.Duration, opts ...Option) (*Coordinator, *availability.MemoryStore, uuid.UUID) {
	t.Helper()
	store := availability.NewMemoryStore()
	doctorID := uuid.New()
	ctx := context.Background()
	store.RegisterDoctor(ctx, doctorID)
	if _, err := store.Publish(ctx, doctorID, testDate, []string{"09:00", "10:00", "11:00"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	c := NewCoordinator(store, NewMemoryHoldRepo(), nil, ttl, opts...)
	t.Cleanup(c.Stop)
	return c, store, doctorID
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestClaim_RemovesSlot(t *testing.T) {
	c, store, d := setup(t, time.Minute)
	ctx := context.Background()

	h, err := c.Claim(ctx, "user-a", d, testDate, "10:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Token == uuid.Nil {
		t.Error("expected token")
	}
	if h.ExpiresAt.Sub(h.CreatedAt) != time.Minute {
		t.Errorf("expected 1m hold, got %s", h.ExpiresAt.Sub(h.CreatedAt))
	}
	open, _ := store.ListSlots(ctx, d, testDate)
	if contains(open, "10:00") {
		t.Errorf("held slot still listed: %v", open)
	}
}

func TestClaim_ConflictCarriesRefreshedSlots(t *testing.T) {
	c, _, d := setup(t, time.Minute)
	ctx := context.Background()
	c.Claim(ctx, "user-a", d, testDate, "09:00")

	_, err := c.Claim(ctx, "user-b", d, testDate, "09:00")
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(e.Slots) != 2 || contains(e.Slots, "09:00") {
		t.Errorf("expected refreshed list without 09:00, got %v", e.Slots)
	}
}

func TestClaim_Concurrent(t *testing.T) {
	c, _, d := setup(t, time.Minute)
	ctx := context.Background()

	const n = 64
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := c.Claim(ctx, uuid.NewString(), d, testDate, "09:00")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case apperr.Is(err, apperr.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
	if conflicts != n-1 {
		t.Errorf("expected %d conflicts, got %d", n-1, conflicts)
	}
}

func TestClaim_UnknownDoctor(t *testing.T) {
	c, _, _ := setup(t, time.Minute)
	_, err := c.Claim(context.Background(), "user-a", uuid.New(), testDate, "09:00")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestClaim_Validation(t *testing.T) {
	c, _, d := setup(t, time.Minute)
	if _, err := c.Claim(context.Background(), " ", d, testDate, "09:00"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := c.Claim(context.Background(), "user-a", d, testDate, ""); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

type failingHoldRepo struct{ HoldRepository }

func (failingHoldRepo) Create(context.Context, *Hold) error { return errors.New("disk full") }

func TestClaim_HoldWriteFailureRestoresSlot(t *testing.T) {
	store := availability.NewMemoryStore()
	d := uuid.New()
	ctx := context.Background()
	store.RegisterDoctor(ctx, d)
	store.Publish(ctx, d, testDate, []string{"09:00"})
	c := NewCoordinator(store, failingHoldRepo{NewMemoryHoldRepo()}, nil, time.Minute)

	if _, err := c.Claim(ctx, "user-a", d, testDate, "09:00"); err == nil {
		t.Fatal("expected error")
	}
	open, _ := store.ListSlots(ctx, d, testDate)
	if !contains(open, "09:00") {
		t.Errorf("expected slot to be reopened, got %v", open)
	}
}

func TestRelease(t *testing.T) {
	c, store, d := setup(t, time.Minute)
	ctx := context.Background()
	h, _ := c.Claim(ctx, "user-a", d, testDate, "10:00")

	if err := c.Release(ctx, h.Token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	open, _ := store.ListSlots(ctx, d, testDate)
	if len(open) != 3 || open[1] != "10:00" {
		t.Errorf("expected 10:00 back at its position, got %v", open)
	}
	if err := c.Release(ctx, h.Token); !apperr.Is(err, apperr.KindInvalidToken) {
		t.Errorf("expected invalid token on second release, got %v", err)
	}
	if c.pendingTimers() != 0 {
		t.Errorf("expected timer to be cancelled, %d pending", c.pendingTimers())
	}
}

func TestCommit(t *testing.T) {
	c, store, d := setup(t, time.Minute)
	ctx := context.Background()
	h, _ := c.Claim(ctx, "user-a", d, testDate, "10:00")

	got, err := c.Commit(ctx, h.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DoctorID != d || got.Date != testDate || got.Slot != "10:00" || got.UserID != "user-a" {
		t.Errorf("unexpected committed hold %+v", got)
	}
	open, _ := store.ListSlots(ctx, d, testDate)
	if contains(open, "10:00") {
		t.Errorf("committed slot listed again: %v", open)
	}
	if _, err := c.Commit(ctx, h.Token); !apperr.Is(err, apperr.KindInvalidToken) {
		t.Errorf("expected invalid token on second commit, got %v", err)
	}
	if err := c.Release(ctx, h.Token); !apperr.Is(err, apperr.KindInvalidToken) {
		t.Errorf("expected invalid token on release after commit, got %v", err)
	}
}

func TestCommit_Expired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	c, store, d := setup(t, time.Hour, WithClock(clock.Now))
	ctx := context.Background()
	h, _ := c.Claim(ctx, "user-a", d, testDate, "10:00")

	clock.Advance(time.Hour)
	if _, err := c.Commit(ctx, h.Token); !apperr.Is(err, apperr.KindExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	open, _ := store.ListSlots(ctx, d, testDate)
	if !contains(open, "10:00") {
		t.Errorf("expected expired slot to be reopened, got %v", open)
	}
}

func TestReleaseExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	c, store, d := setup(t, time.Hour, WithClock(clock.Now))
	ctx := context.Background()
	c.Claim(ctx, "user-a", d, testDate, "09:00")
	clock.Advance(30 * time.Minute)
	live, _ := c.Claim(ctx, "user-b", d, testDate, "10:00")
	clock.Advance(30 * time.Minute)

	n, err := c.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 released hold, got %d", n)
	}
	open, _ := store.ListSlots(ctx, d, testDate)
	if !contains(open, "09:00") || contains(open, "10:00") {
		t.Errorf("unexpected open list %v", open)
	}
	if _, err := c.Commit(ctx, live.Token); err != nil {
		t.Errorf("expected live hold to commit, got %v", err)
	}
}

func TestHoldTimer_ReleasesSlot(t *testing.T) {
	c, store, d := setup(t, 20*time.Millisecond)
	ctx := context.Background()
	h, err := c.Claim(ctx, "user-a", d, testDate, "11:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		open, _ := store.ListSlots(ctx, d, testDate)
		if contains(open, "11:00") {
			if _, err := c.Commit(ctx, h.Token); !apperr.Is(err, apperr.KindInvalidToken) {
				t.Errorf("expected invalid token after expiry, got %v", err)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("held slot was not reopened after its TTL")
}

func TestRun_StopsOnCancel(t *testing.T) {
	c, _, _ := setup(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
