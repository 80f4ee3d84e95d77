package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbook/clinicbook/internal/platform/db"
)

type holdRepoPG struct{ pool *pgxpool.Pool }

func NewHoldRepoPG(pool *pgxpool.Pool) HoldRepository { return &holdRepoPG{pool: pool} }

const holdCols = `token, user_id, doctor_id, date, slot, created_at, expires_at`

func scanHold(row pgx.Row) (*Hold, error) {
	var h Hold
	err := row.Scan(&h.Token, &h.UserID, &h.DoctorID, &h.Date, &h.Slot, &h.CreatedAt, &h.ExpiresAt)
	return &h, err
}

func (r *holdRepoPG) Create(ctx context.Context, h *Hold) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO slot_hold (`+holdCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.Token, h.UserID, h.DoctorID, h.Date, h.Slot, h.CreatedAt, h.ExpiresAt)
	return err
}

func (r *holdRepoPG) Take(ctx context.Context, token uuid.UUID) (*Hold, error) {
	h, err := scanHold(db.Conn(ctx, r.pool).QueryRow(ctx,
		`DELETE FROM slot_hold WHERE token = $1 RETURNING `+holdCols, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take hold: %w", err)
	}
	return h, nil
}

func (r *holdRepoPG) TakeExpired(ctx context.Context, now time.Time) ([]*Hold, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`DELETE FROM slot_hold WHERE expires_at <= $1 RETURNING `+holdCols, now)
	if err != nil {
		return nil, fmt.Errorf("take expired holds: %w", err)
	}
	defer rows.Close()
	var out []*Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *holdRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM slot_hold`).Scan(&n)
	return n, err
}
