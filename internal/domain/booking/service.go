// Package booking runs the per-user booking flow:
// specialization, doctor, date, slot, confirmation.
//
// Every operation on a user's session runs under that user's lock and
// either advances the session one step or leaves it untouched. Only the
// slot step touches shared state, through the reservation coordinator.
package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinicbook/internal/domain/appointment"
	"github.com/clinicbook/clinicbook/internal/domain/availability"
	"github.com/clinicbook/clinicbook/internal/domain/doctor"
	"github.com/clinicbook/clinicbook/internal/domain/reservation"
	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

const DefaultSessionTTL = 30 * time.Minute

// Reserver claims, releases and commits slot holds.
type Reserver interface {
	Claim(ctx context.Context, userID string, doctorID uuid.UUID, date, slot string) (*reservation.Hold, error)
	Release(ctx context.Context, token uuid.UUID) error
	Commit(ctx context.Context, token uuid.UUID) (*reservation.Hold, error)
}

// Recorder writes the confirmed appointment.
type Recorder interface {
	Record(ctx context.Context, userID string, doctorID uuid.UUID, date, slot string) (*appointment.Appointment, error)
}

type Service struct {
	sessions  SessionStore
	directory doctor.Directory
	slots     availability.Store
	reserver  Reserver
	recorder  Recorder
	locks     UserLocker
	ttl       time.Duration
	logger    zerolog.Logger
	nowFn     func() time.Time
}

type Option func(*Service)

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithUserLocker replaces the in-process per-user lock, e.g. with a
// RedisLocker when several instances share sessions.
func WithUserLocker(l UserLocker) Option {
	return func(s *Service) {
		if l != nil {
			s.locks = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.nowFn = now }
}

func NewService(sessions SessionStore, directory doctor.Directory, slots availability.Store, reserver Reserver, recorder Recorder, opts ...Option) *Service {
	s := &Service{
		sessions:  sessions,
		directory: directory,
		slots:     slots,
		reserver:  reserver,
		recorder:  recorder,
		locks:     NewLocalLocker(),
		ttl:       DefaultSessionTTL,
		logger:    zerolog.Nop(),
		nowFn:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initiate starts a fresh session, discarding any previous one along with
// its hold.
func (s *Service) Initiate(ctx context.Context, userID string) (*Prompt, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user id is required")
	}
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	old, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if old != nil {
		s.releaseHold(ctx, old)
	}

	now := s.nowFn().UTC()
	sess := &Session{
		UserID:    userID,
		Step:      StepInit,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return newPrompt(sess, "Please select your specialization."), nil
}

func (s *Service) ChooseSpecialization(ctx context.Context, userID, specialization string) (*Prompt, error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	sess, err := s.load(ctx, userID, StepInit)
	if err != nil {
		return nil, err
	}

	specialization = strings.TrimSpace(specialization)
	if specialization == "" {
		return nil, apperr.Validation("specialization is required")
	}
	doctors, err := s.directory.ListBySpecialization(ctx, specialization)
	if err != nil {
		return nil, err
	}
	if len(doctors) == 0 {
		return nil, apperr.NotFound("no doctors found for specialization %q", specialization)
	}

	sess.Specialization = specialization
	sess.Step = StepSpecChosen
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	p := newPrompt(sess, fmt.Sprintf("We found %d doctor(s) for %s. Please choose a doctor.", len(doctors), specialization))
	p.Doctors = doctors
	return p, nil
}

func (s *Service) ChooseDoctor(ctx context.Context, userID string, doctorID uuid.UUID) (*Prompt, error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	sess, err := s.load(ctx, userID, StepSpecChosen)
	if err != nil {
		return nil, err
	}

	d, err := s.directory.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !d.HasSpecialization(sess.Specialization) {
		return nil, apperr.Validation("doctor %s does not practise %s", d.Name, sess.Specialization)
	}
	dates, err := s.slots.Dates(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	sess.DoctorID = doctorID
	sess.Step = StepDoctorChosen
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	p := newPrompt(sess, "Doctor "+d.Name+" selected. Please choose a date for your appointment.")
	p.Dates = dates
	return p, nil
}

func (s *Service) ChooseDate(ctx context.Context, userID string, doctorID uuid.UUID, date string) (*Prompt, error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	sess, err := s.load(ctx, userID, StepDoctorChosen)
	if err != nil {
		return nil, err
	}

	if doctorID != sess.DoctorID {
		return nil, apperr.Validation("doctor does not match the chosen doctor")
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return nil, apperr.Validation("date is required")
	}
	open, err := s.slots.ListSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, apperr.NotFound("no slots available on %s", date)
	}

	sess.Date = date
	sess.Step = StepDateChosen
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	p := newPrompt(sess, "Available slots for "+date+".")
	p.Slots = open
	return p, nil
}

// ChooseSlot claims the slot. A slot that is taken or was never published
// is a Conflict carrying the refreshed list; the session stays at
// DATE_CHOSEN.
func (s *Service) ChooseSlot(ctx context.Context, userID string, doctorID uuid.UUID, date, slot string) (*Prompt, error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	sess, err := s.load(ctx, userID, StepDateChosen)
	if err != nil {
		return nil, err
	}

	if doctorID != sess.DoctorID || strings.TrimSpace(date) != sess.Date {
		return nil, apperr.Validation("doctor and date must match the earlier choices")
	}
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return nil, apperr.Validation("slot is required")
	}

	hold, err := s.reserver.Claim(ctx, userID, doctorID, sess.Date, slot)
	if err != nil {
		if e, ok := apperr.As(err); ok {
			return nil, e.WithStep(string(sess.Step))
		}
		return nil, err
	}

	sess.Slot = slot
	sess.Hold = &HoldRef{Token: hold.Token, ExpiresAt: hold.ExpiresAt}
	sess.Step = StepSlotHeld
	if err := s.sessions.Save(ctx, sess); err != nil {
		if rerr := s.reserver.Release(ctx, hold.Token); rerr != nil {
			s.logger.Warn().Err(rerr).Str("token", hold.Token.String()).Msg("release after failed session save")
		}
		return nil, err
	}
	p := newPrompt(sess, "Slot "+slot+" selected for "+sess.Date+". Please confirm your appointment.")
	return p, nil
}

// Confirm commits the hold and records the appointment. An elapsed hold
// sends the session back to DATE_CHOSEN with the current open slots.
func (s *Service) Confirm(ctx context.Context, userID string) (*appointment.Appointment, error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	sess, err := s.load(ctx, userID, StepSlotHeld)
	if err != nil {
		return nil, err
	}

	hold, err := s.reserver.Commit(ctx, sess.Hold.Token)
	if apperr.Is(err, apperr.KindExpired) || apperr.Is(err, apperr.KindInvalidToken) {
		open, rerr := s.backToDate(ctx, sess)
		if rerr != nil {
			return nil, rerr
		}
		return nil, apperr.Expired("the hold on %s %s expired, please choose a slot again", sess.Date, sess.Slot).
			WithSlots(open).WithStep(string(StepDateChosen))
	}
	if err != nil {
		return nil, err
	}

	appt, err := s.recorder.Record(ctx, userID, hold.DoctorID, hold.Date, hold.Slot)
	if err != nil {
		// The slot stays taken with no appointment behind it. Never retry:
		// the token is spent.
		s.logger.Error().Err(err).
			Str("event", "orphaned_claim").
			Str("user_id", userID).
			Str("doctor_id", hold.DoctorID.String()).
			Str("date", hold.Date).
			Str("slot", hold.Slot).
			Str("token", hold.Token.String()).
			Msg("claim committed but appointment not recorded")
		if _, rerr := s.backToDate(ctx, sess); rerr != nil {
			s.logger.Warn().Err(rerr).Str("user_id", userID).Msg("reset session after orphaned claim")
		}
		return nil, apperr.Inconsistent("appointment could not be recorded; the slot is reserved pending reconciliation").
			WithStep(string(StepDateChosen))
	}

	if err := s.sessions.Delete(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("delete confirmed session")
	}
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("user_id", userID).
		Str("doctor_id", appt.DoctorID.String()).
		Str("date", appt.Date).
		Str("slot", appt.Slot).
		Msg("appointment confirmed")
	return appt, nil
}

// Abandon ends the user's session and releases its hold.
func (s *Service) Abandon(ctx context.Context, userID string) error {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return err
	}
	if sess == nil {
		return apperr.InvalidStep("no booking in progress")
	}
	s.releaseHold(ctx, sess)
	return s.sessions.Delete(ctx, userID)
}

// Current returns the user's live session.
func (s *Service) Current(ctx context.Context, userID string) (*Session, error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.NotFound("no booking in progress")
	}
	if sess.Expired(s.nowFn()) {
		s.expire(ctx, sess)
		return nil, apperr.Expired("booking session expired, please start again")
	}
	return sess, nil
}

// load returns the user's session if it is live and at want.
func (s *Service) load(ctx context.Context, userID string, want Step) (*Session, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.InvalidStep("no booking in progress, initiate a booking first")
	}
	if sess.Expired(s.nowFn()) {
		s.expire(ctx, sess)
		return nil, apperr.Expired("booking session expired, please start again").WithStep(string(StepExpired))
	}
	if sess.Step != want {
		return nil, apperr.InvalidStep("expected %s input, session is at %s", next[want], sess.Step).
			WithStep(string(sess.Step))
	}
	return sess, nil
}

func (s *Service) expire(ctx context.Context, sess *Session) {
	s.releaseHold(ctx, sess)
	if err := s.sessions.Delete(ctx, sess.UserID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", sess.UserID).Msg("delete expired session")
	}
	s.logger.Info().Str("user_id", sess.UserID).Str("step", string(sess.Step)).Msg("booking session expired")
}

// backToDate clears the slot choice and returns the current open slots.
func (s *Service) backToDate(ctx context.Context, sess *Session) ([]string, error) {
	sess.Slot = ""
	sess.Hold = nil
	sess.Step = StepDateChosen
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return s.slots.ListSlots(ctx, sess.DoctorID, sess.Date)
}

// releaseHold gives back the session's slot. A hold that already ended is
// not an error here.
func (s *Service) releaseHold(ctx context.Context, sess *Session) {
	if sess.Hold == nil {
		return
	}
	err := s.reserver.Release(ctx, sess.Hold.Token)
	if err != nil && !apperr.Is(err, apperr.KindInvalidToken) {
		s.logger.Warn().Err(err).Str("user_id", sess.UserID).Str("token", sess.Hold.Token.String()).Msg("release hold")
	}
	sess.Hold = nil
}
