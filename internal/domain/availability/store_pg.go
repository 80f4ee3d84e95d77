package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbook/clinicbook/internal/platform/db"
)

// PGStore keeps slots in availability_slot. Each mutation is one statement
// on the (doctor_id, date, slot) row, so concurrent callers are ordered by
// the row lock.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// RegisterDoctor is a no-op: doctors are rows of the doctor table.
func (s *PGStore) RegisterDoctor(context.Context, uuid.UUID) error { return nil }

func (s *PGStore) ensureDoctor(ctx context.Context, doctorID uuid.UUID) error {
	var exists bool
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM doctor WHERE id = $1)`, doctorID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check doctor: %w", err)
	}
	if !exists {
		return unknownDoctor(doctorID)
	}
	return nil
}

func (s *PGStore) ListSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	if err := s.ensureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.open(ctx, doctorID, date)
}

func (s *PGStore) open(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT slot FROM availability_slot
		WHERE doctor_id = $1 AND date = $2 AND NOT taken
		ORDER BY position`, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (s *PGStore) Publish(ctx context.Context, doctorID uuid.UUID, date string, slots []string) ([]string, error) {
	date, slots, err := normalizeSlots(date, slots)
	if err != nil {
		return nil, err
	}
	if err := s.ensureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	_, err = db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO availability_slot (doctor_id, date, slot)
		SELECT $1, $2, t.slot
		FROM unnest($3::text[]) WITH ORDINALITY AS t(slot, ord)
		ORDER BY t.ord
		ON CONFLICT (doctor_id, date, slot) DO NOTHING`, doctorID, date, slots)
	if err != nil {
		return nil, fmt.Errorf("publish slots: %w", err)
	}
	return s.open(ctx, doctorID, date)
}

func (s *PGStore) Remove(ctx context.Context, doctorID uuid.UUID, date, slot string) (bool, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE availability_slot SET taken = true
		WHERE doctor_id = $1 AND date = $2 AND slot = $3 AND NOT taken`,
		doctorID, date, slot)
	if err != nil {
		return false, fmt.Errorf("remove slot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) Restore(ctx context.Context, doctorID uuid.UUID, date, slot string) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO availability_slot (doctor_id, date, slot)
		VALUES ($1, $2, $3)
		ON CONFLICT (doctor_id, date, slot) DO UPDATE SET taken = false
		WHERE availability_slot.taken`, doctorID, date, slot)
	if err != nil {
		return fmt.Errorf("restore slot: %w", err)
	}
	return nil
}

func (s *PGStore) Dates(ctx context.Context, doctorID uuid.UUID) ([]string, error) {
	if err := s.ensureDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT DISTINCT date FROM availability_slot
		WHERE doctor_id = $1 AND NOT taken
		ORDER BY date`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list dates: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
