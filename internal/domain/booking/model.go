package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/internal/domain/doctor"
)

// Step is the position of a session in the booking flow. Input is accepted
// only for the step a session is at, and each accepted input moves it one
// step forward.
type Step string

const (
	StepInit         Step = "INIT"
	StepSpecChosen   Step = "SPEC_CHOSEN"
	StepDoctorChosen Step = "DOCTOR_CHOSEN"
	StepDateChosen   Step = "DATE_CHOSEN"
	StepSlotHeld     Step = "SLOT_HELD"
	StepConfirmed    Step = "CONFIRMED"
	StepAbandoned    Step = "ABANDONED"
	StepExpired      Step = "EXPIRED"
)

// next names the input a session at each step expects.
var next = map[Step]string{
	StepInit:         "specialization",
	StepSpecChosen:   "doctor",
	StepDoctorChosen: "date",
	StepDateChosen:   "slot",
	StepSlotHeld:     "confirm",
}

// HoldRef points at the reservation backing a SLOT_HELD session.
type HoldRef struct {
	Token     uuid.UUID `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is one user's progress through the flow. It lives in the session
// store keyed by user id and is deleted on confirmation, abandonment or
// expiry.
type Session struct {
	UserID         string    `json:"user_id"`
	Step           Step      `json:"step"`
	Specialization string    `json:"specialization,omitempty"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	Date           string    `json:"date,omitempty"`
	Slot           string    `json:"slot,omitempty"`
	Hold           *HoldRef  `json:"hold,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Prompt is returned after every accepted input. Next is the route of the
// input expected from the client.
type Prompt struct {
	Step    Step             `json:"step"`
	Message string           `json:"message"`
	Next    string           `json:"next,omitempty"`
	Doctors []*doctor.Doctor `json:"doctors,omitempty"`
	Dates   []string         `json:"dates,omitempty"`
	Slots   []string         `json:"slots,omitempty"`
	Hold    *HoldRef         `json:"hold,omitempty"`
}

func newPrompt(s *Session, message string) *Prompt {
	p := &Prompt{Step: s.Step, Message: message, Hold: s.Hold}
	if n, ok := next[s.Step]; ok {
		p.Next = "/" + n
	}
	return p
}
