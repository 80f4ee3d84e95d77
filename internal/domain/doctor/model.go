package doctor

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Doctor maps to the doctor table. Availability is owned by the
// availability store and is not part of this record.
type Doctor struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Specialization string    `db:"specialization" json:"specialization"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NormalizeSpecialization is the comparison form of a specialization.
func NormalizeSpecialization(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// HasSpecialization reports whether d practices specialty, ignoring case and
// surrounding whitespace.
func (d *Doctor) HasSpecialization(specialty string) bool {
	return NormalizeSpecialization(d.Specialization) == NormalizeSpecialization(specialty)
}
