// Package reservation decides who wins a contested slot.
//
// A claim takes the slot out of the availability store and records a hold
// in one unit of work; the store's atomic remove orders racing claims, so
// the first to complete wins and every other caller gets a Conflict with
// the refreshed open list. A hold ends exactly once: released (slot goes
// back), committed (slot stays taken) or expired (slot goes back).
package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinicbook/internal/domain/availability"
	"github.com/clinicbook/clinicbook/internal/platform/apperr"
	"github.com/clinicbook/clinicbook/internal/platform/db"
)

const DefaultHoldTTL = 5 * time.Minute

var errSlotTaken = errors.New("slot not open")

type Coordinator struct {
	store  availability.Store
	holds  HoldRepository
	tx     db.Transactor
	ttl    time.Duration
	logger zerolog.Logger
	nowFn  func() time.Time

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

type Option func(*Coordinator)

// WithClock replaces time.Now. Per-hold timers still run on wall time, so
// tests driving a fake clock call ReleaseExpired themselves.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.nowFn = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func NewCoordinator(store availability.Store, holds HoldRepository, tx db.Transactor, ttl time.Duration, opts ...Option) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	if tx == nil {
		tx = db.NopTransactor{}
	}
	c := &Coordinator{
		store:  store,
		holds:  holds,
		tx:     tx,
		ttl:    ttl,
		logger: zerolog.Nop(),
		nowFn:  time.Now,
		timers: make(map[uuid.UUID]*time.Timer),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) TTL() time.Duration { return c.ttl }

// Claim takes slot for userID. On success the slot is no longer listed and
// the returned hold lives for the coordinator's TTL.
func (c *Coordinator) Claim(ctx context.Context, userID string, doctorID uuid.UUID, date, slot string) (*Hold, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user id is required")
	}
	if date == "" || slot == "" {
		return nil, apperr.Validation("date and slot are required")
	}

	now := c.nowFn().UTC()
	hold := &Hold{
		Token:     uuid.New(),
		UserID:    userID,
		DoctorID:  doctorID,
		Date:      date,
		Slot:      slot,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := c.store.Remove(ctx, doctorID, date, slot)
		if err != nil {
			return err
		}
		if !ok {
			return errSlotTaken
		}
		if err := c.holds.Create(ctx, hold); err != nil {
			// Undo the remove for backends without a transaction.
			_ = c.store.Restore(ctx, doctorID, date, slot)
			return fmt.Errorf("create hold: %w", err)
		}
		return nil
	})
	if errors.Is(err, errSlotTaken) {
		open, lerr := c.store.ListSlots(ctx, doctorID, date)
		if lerr != nil {
			return nil, lerr
		}
		return nil, apperr.Conflict("slot %s on %s is no longer available", slot, date).WithSlots(open)
	}
	if err != nil {
		return nil, err
	}

	c.schedule(hold)
	c.logger.Debug().
		Str("token", hold.Token.String()).
		Str("doctor_id", doctorID.String()).
		Str("date", date).
		Str("slot", slot).
		Msg("slot held")
	return hold, nil
}

// Release ends a hold and reopens its slot.
func (c *Coordinator) Release(ctx context.Context, token uuid.UUID) error {
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		h, err := c.holds.Take(ctx, token)
		if err != nil {
			return err
		}
		if h == nil {
			return apperr.InvalidToken("hold %s is not active", token)
		}
		return c.store.Restore(ctx, h.DoctorID, h.Date, h.Slot)
	})
	if err != nil {
		return err
	}
	c.cancelTimer(token)
	return nil
}

// Commit makes a hold permanent and returns it. A hold whose TTL has
// elapsed is released instead and Commit fails with Expired.
func (c *Coordinator) Commit(ctx context.Context, token uuid.UUID) (*Hold, error) {
	var (
		hold    *Hold
		expired bool
	)
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		h, err := c.holds.Take(ctx, token)
		if err != nil {
			return err
		}
		if h == nil {
			return apperr.InvalidToken("hold %s is not active", token)
		}
		hold = h
		if h.Expired(c.nowFn()) {
			expired = true
			return c.store.Restore(ctx, h.DoctorID, h.Date, h.Slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.cancelTimer(token)
	if expired {
		c.logExpired(hold)
		return nil, apperr.Expired("hold on %s %s expired at %s", hold.Date, hold.Slot, hold.ExpiresAt.Format(time.RFC3339))
	}
	return hold, nil
}

// ReleaseExpired reopens the slot of every hold past its TTL and returns
// how many were released.
func (c *Coordinator) ReleaseExpired(ctx context.Context) (int, error) {
	var released []*Hold
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		hs, err := c.holds.TakeExpired(ctx, c.nowFn())
		if err != nil {
			return err
		}
		for _, h := range hs {
			if err := c.store.Restore(ctx, h.DoctorID, h.Date, h.Slot); err != nil {
				return fmt.Errorf("restore %s %s: %w", h.Date, h.Slot, err)
			}
		}
		released = hs
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, h := range released {
		c.cancelTimer(h.Token)
		c.logExpired(h)
	}
	return len(released), nil
}

// Run sweeps expired holds every interval until ctx is done. It picks up
// holds whose timer lives in another process or was lost on restart.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case <-ticker.C:
			if _, err := c.ReleaseExpired(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("hold sweep failed")
			}
		}
	}
}

// Stop cancels all pending hold timers.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for token, t := range c.timers {
		t.Stop()
		delete(c.timers, token)
	}
}

func (c *Coordinator) schedule(h *Hold) {
	d := h.ExpiresAt.Sub(c.nowFn())
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers[h.Token] = time.AfterFunc(d, func() {
		c.mu.Lock()
		delete(c.timers, h.Token)
		c.mu.Unlock()
		if _, err := c.ReleaseExpired(context.Background()); err != nil {
			c.logger.Error().Err(err).Str("token", h.Token.String()).Msg("hold expiry failed")
		}
	})
}

func (c *Coordinator) cancelTimer(token uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[token]; ok {
		t.Stop()
		delete(c.timers, token)
	}
}

func (c *Coordinator) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *Coordinator) logExpired(h *Hold) {
	c.logger.Info().
		Str("token", h.Token.String()).
		Str("user_id", h.UserID).
		Str("doctor_id", h.DoctorID.String()).
		Str("date", h.Date).
		Str("slot", h.Slot).
		Msg("hold expired")
}
