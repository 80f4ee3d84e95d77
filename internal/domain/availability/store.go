// Package availability owns the open slots each doctor has published,
// keyed by (doctor, date).
//
// A published label is either open or taken. Remove moves it open to taken,
// Restore moves it back, and Publish only ever adds labels that were never
// seen for the key, so re-publishing a day cannot reopen a slot that is held
// or booked. Listing preserves the order in which the doctor published the
// labels, including for restored ones.
package availability

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

type Store interface {
	// ListSlots returns the open slots for the key in publication order.
	ListSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
	// Publish adds slots to the key and returns the resulting open list.
	Publish(ctx context.Context, doctorID uuid.UUID, date string, slots []string) ([]string, error)
	// Remove takes an open slot. It reports false when the slot was not open.
	Remove(ctx context.Context, doctorID uuid.UUID, date, slot string) (bool, error)
	// Restore reopens a slot. It is a no-op when the slot is already open.
	Restore(ctx context.Context, doctorID uuid.UUID, date, slot string) error
	// Dates lists the dates with at least one open slot, ascending.
	Dates(ctx context.Context, doctorID uuid.UUID) ([]string, error)
}

// normalizeSlots trims labels, drops duplicates and rejects blanks.
func normalizeSlots(date string, slots []string) (string, []string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return "", nil, apperr.Validation("date is required")
	}
	if len(slots) == 0 {
		return "", nil, apperr.Validation("at least one slot is required")
	}
	seen := make(map[string]bool, len(slots))
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", nil, apperr.Validation("slot labels must not be blank")
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return date, out, nil
}

func unknownDoctor(id uuid.UUID) error {
	return apperr.NotFound("doctor %s not found", id)
}
