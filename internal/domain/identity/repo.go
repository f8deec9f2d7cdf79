package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpdateFullName(ctx context.Context, id uuid.UUID, fullName string) error
	SetPushToken(ctx context.Context, id uuid.UUID, token *string) error
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	List(ctx context.Context, f DoctorFilter) ([]*Doctor, error)
	SetRating(ctx context.Context, id uuid.UUID, rating float64) error
}

// CareRelation reports whether a patient and doctor share an appointment. It
// is implemented by the appointment store.
type CareRelation interface {
	HasAppointment(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
}
