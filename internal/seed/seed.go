// Package seed loads doctors and their published availability from a YAML
// or JSON file, for running the service without an admin surface.
package seed

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/clinicbook/clinicbook/internal/domain/availability"
	"github.com/clinicbook/clinicbook/internal/domain/doctor"
)

type Day struct {
	Date  string   `mapstructure:"date"`
	Slots []string `mapstructure:"slots"`
}

type Doctor struct {
	// ID is optional; a fixed id lets doctor tokens be issued ahead of time.
	ID             string `mapstructure:"id"`
	Name           string `mapstructure:"name"`
	Specialization string `mapstructure:"specialization"`
	Availability   []Day  `mapstructure:"availability"`
}

type File struct {
	Doctors []Doctor `mapstructure:"doctors"`
}

// Load reads path; the format follows the file extension.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return &f, nil
}

// Apply registers every doctor and publishes its days. It returns the
// registered doctors in file order.
func Apply(ctx context.Context, doctors *doctor.Service, store availability.Store, f *File) ([]*doctor.Doctor, error) {
	out := make([]*doctor.Doctor, 0, len(f.Doctors))
	for i, sd := range f.Doctors {
		d := &doctor.Doctor{Name: sd.Name, Specialization: sd.Specialization}
		if sd.ID != "" {
			id, err := uuid.Parse(sd.ID)
			if err != nil {
				return nil, fmt.Errorf("doctor %d: invalid id %q: %w", i, sd.ID, err)
			}
			d.ID = id
		}
		if err := doctors.Register(ctx, d); err != nil {
			return nil, fmt.Errorf("doctor %d (%s): %w", i, sd.Name, err)
		}
		for _, day := range sd.Availability {
			if _, err := store.Publish(ctx, d.ID, day.Date, day.Slots); err != nil {
				return nil, fmt.Errorf("doctor %s, %s: %w", d.Name, day.Date, err)
			}
		}
		out = append(out, d)
	}
	return out, nil
}
