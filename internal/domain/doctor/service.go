package doctor

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

// Registrar is notified of every doctor added to the directory, so the
// availability store can accept publications for it.
type Registrar interface {
	RegisterDoctor(ctx context.Context, doctorID uuid.UUID) error
}

type Service struct {
	repo      Repository
	dir       Directory
	registrar Registrar
	cache     *CachedDirectory
}

// NewService builds the directory service. Reads go through cache when it is
// non-nil; registrar may be nil.
func NewService(repo Repository, cache *CachedDirectory, registrar Registrar) *Service {
	s := &Service{repo: repo, dir: repo, registrar: registrar, cache: cache}
	if cache != nil {
		s.dir = cache
	}
	return s
}

// Directory returns the read path used by other components.
func (s *Service) Directory() Directory { return s.dir }

func (s *Service) Register(ctx context.Context, d *Doctor) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Specialization = strings.TrimSpace(d.Specialization)
	if d.Name == "" {
		return apperr.Validation("name is required")
	}
	if d.Specialization == "" {
		return apperr.Validation("specialization is required")
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return err
	}
	if s.registrar != nil {
		if err := s.registrar.RegisterDoctor(ctx, d.ID); err != nil {
			return err
		}
	}
	if s.cache != nil {
		s.cache.Purge()
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.dir.GetByID(ctx, id)
}

// BySpecialization lists the doctors practising specialization. It fails
// with Validation on a blank input and NotFound when nobody matches.
func (s *Service) BySpecialization(ctx context.Context, specialization string) ([]*Doctor, error) {
	if NormalizeSpecialization(specialization) == "" {
		return nil, apperr.Validation("specialization is required")
	}
	ds, err := s.dir.ListBySpecialization(ctx, specialization)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, apperr.NotFound("no doctor with specialization %q", strings.TrimSpace(specialization))
	}
	return ds, nil
}

func (s *Service) List(ctx context.Context) ([]*Doctor, error) {
	return s.repo.List(ctx)
}
