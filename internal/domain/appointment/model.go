package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var validStatuses = map[Status]bool{
	StatusConfirmed: true,
	StatusCancelled: true,
	StatusCompleted: true,
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, validStatuses[st]
}

// transitions lists the allowed status changes. Only a confirmed
// appointment can move, and only once.
var transitions = map[Status][]Status{
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Date      string    `db:"date" json:"date"`
	Slot      string    `db:"slot" json:"slot"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
