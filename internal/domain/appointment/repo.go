package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts a confirmed appointment. It fails with Conflict when
	// another confirmed appointment already holds the same slot.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListByDoctor orders by date, slot, then creation time. A limit of
	// zero returns every row.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	// UpdateStatus moves the appointment from one status to another and
	// returns nil if it was no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
}
