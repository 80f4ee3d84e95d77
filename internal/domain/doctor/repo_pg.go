package doctor

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
	"github.com/clinicbook/clinicbook/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const doctorCols = `id, name, specialization, created_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.Name, &d.Specialization, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctor (id, name, specialization)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		d.ID, d.Name, d.Specialization).Scan(&d.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	return d, err
}

func (r *repoPG) ListBySpecialization(ctx context.Context, specialization string) ([]*Doctor, error) {
	return r.query(ctx, `SELECT `+doctorCols+` FROM doctor
		WHERE LOWER(specialization) = $1 ORDER BY name, id`, NormalizeSpecialization(specialization))
}

func (r *repoPG) List(ctx context.Context) ([]*Doctor, error) {
	return r.query(ctx, `SELECT `+doctorCols+` FROM doctor ORDER BY name, id`)
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Doctor, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
