package doctor

import (
	"context"

	"github.com/google/uuid"
)

// Directory is the read side used by the booking flow.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListBySpecialization(ctx context.Context, specialization string) ([]*Doctor, error)
}

type Repository interface {
	Directory
	Create(ctx context.Context, d *Doctor) error
	List(ctx context.Context) ([]*Doctor, error)
}
