package doctor

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

type recordingRegistrar struct {
	ids []uuid.UUID
}

func (r *recordingRegistrar) RegisterDoctor(_ context.Context, id uuid.UUID) error {
	r.ids = append(r.ids, id)
	return nil
}

func newTestService() (*Service, *recordingRegistrar) {
	reg := &recordingRegistrar{}
	return NewService(NewMemoryRepo(), nil, reg), reg
}

func TestService_Register(t *testing.T) {
	svc, reg := newTestService()
	d := &Doctor{Name: " Dr. House ", Specialization: "Diagnostics"}
	if err := svc.Register(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	if d.Name != "Dr. House" {
		t.Errorf("expected trimmed name, got %q", d.Name)
	}
	if len(reg.ids) != 1 || reg.ids[0] != d.ID {
		t.Errorf("expected registrar to see %s, got %v", d.ID, reg.ids)
	}
}

func TestService_Register_Validation(t *testing.T) {
	svc, _ := newTestService()
	cases := []*Doctor{
		{Name: "", Specialization: "Cardiology"},
		{Name: "Dr. Who", Specialization: "  "},
	}
	for _, d := range cases {
		err := svc.Register(context.Background(), d)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("expected validation error for %+v, got %v", d, err)
		}
	}
}

func TestService_BySpecialization_CaseInsensitive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.Register(ctx, &Doctor{Name: "B", Specialization: "Cardiology"})
	svc.Register(ctx, &Doctor{Name: "A", Specialization: "cardiology"})
	svc.Register(ctx, &Doctor{Name: "C", Specialization: "Dermatology"})

	ds, err := svc.BySpecialization(ctx, "  CARDIOLOGY ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds) != 2 {
		t.Fatalf("expected 2 doctors, got %d", len(ds))
	}
	if ds[0].Name != "A" || ds[1].Name != "B" {
		t.Errorf("expected sorted by name, got %s, %s", ds[0].Name, ds[1].Name)
	}
}

func TestService_BySpecialization_Errors(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.Register(ctx, &Doctor{Name: "A", Specialization: "Cardiology"})

	if _, err := svc.BySpecialization(ctx, " "); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := svc.BySpecialization(ctx, "Oncology"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_Get_NotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Get(context.Background(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
