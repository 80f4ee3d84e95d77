package reservation

import (
	"time"

	"github.com/google/uuid"
)

// Hold is a TTL-bounded claim on one (doctor, date, slot). The token is what
// the booking session keeps; committing the hold yields the tuple to record.
type Hold struct {
	Token     uuid.UUID `db:"token" json:"token"`
	UserID    string    `db:"user_id" json:"user_id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Date      string    `db:"date" json:"date"`
	Slot      string    `db:"slot" json:"slot"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the hold's TTL has elapsed at now.
func (h *Hold) Expired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}
