package appointment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
	"github.com/clinicbook/clinicbook/internal/platform/db"
)

// SlotRestorer reopens a slot. Cancelling an appointment hands its slot
// back through it.
type SlotRestorer interface {
	Restore(ctx context.Context, doctorID uuid.UUID, date, slot string) error
}

type Ledger struct {
	repo   Repository
	slots  SlotRestorer
	tx     db.Transactor
	logger zerolog.Logger
}

func NewLedger(repo Repository, slots SlotRestorer, tx db.Transactor, logger zerolog.Logger) *Ledger {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	return &Ledger{repo: repo, slots: slots, tx: tx, logger: logger}
}

// Record writes a confirmed appointment for a committed claim.
func (l *Ledger) Record(ctx context.Context, userID string, doctorID uuid.UUID, date, slot string) (*Appointment, error) {
	if strings.TrimSpace(userID) == "" || date == "" || slot == "" {
		return nil, apperr.Validation("user, date and slot are required")
	}
	a := &Appointment{
		UserID:   userID,
		DoctorID: doctorID,
		Date:     date,
		Slot:     slot,
		Status:   StatusConfirmed,
	}
	if err := l.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return l.repo.GetByID(ctx, id)
}

// ListForDoctor returns every appointment of the doctor sorted by date.
func (l *Ledger) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error) {
	items, _, err := l.repo.ListByDoctor(ctx, doctorID, 0, 0)
	return items, err
}

func (l *Ledger) ListForDoctorPage(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return l.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

// SetStatus applies a doctor's status change. Only confirmed appointments
// move, to cancelled or completed; a cancellation reopens the slot in the
// same unit of work.
func (l *Ledger) SetStatus(ctx context.Context, doctorID, id uuid.UUID, status string) (*Appointment, error) {
	to, ok := ParseStatus(status)
	if !ok {
		return nil, apperr.Validation("invalid status %q", status)
	}

	var out *Appointment
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := l.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.DoctorID != doctorID {
			return apperr.Unauthorized("appointment %s belongs to another doctor", id)
		}
		if !CanTransition(a.Status, to) {
			return apperr.InvalidTransition("cannot change appointment from %s to %s", a.Status, to)
		}
		updated, err := l.repo.UpdateStatus(ctx, id, a.Status, to)
		if err != nil {
			return err
		}
		if updated == nil {
			return apperr.InvalidTransition("appointment %s changed concurrently", id)
		}
		if to == StatusCancelled {
			if err := l.slots.Restore(ctx, a.DoctorID, a.Date, a.Slot); err != nil {
				return err
			}
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info().
		Str("appointment_id", id.String()).
		Str("doctor_id", doctorID.String()).
		Str("status", string(to)).
		Msg("appointment status changed")
	return out, nil
}
