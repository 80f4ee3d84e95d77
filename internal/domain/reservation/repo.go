package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HoldRepository stores live holds. Take and TakeExpired delete what they
// return, so a hold is consumed at most once even across processes.
type HoldRepository interface {
	Create(ctx context.Context, h *Hold) error
	// Take removes and returns the hold, or nil if there is none.
	Take(ctx context.Context, token uuid.UUID) (*Hold, error)
	// TakeExpired removes and returns every hold expired at now.
	TakeExpired(ctx context.Context, now time.Time) ([]*Hold, error)
	Count(ctx context.Context) (int, error)
}
