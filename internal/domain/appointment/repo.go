package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]*Appointment, error)

	AddActivity(ctx context.Context, appointmentID uuid.UUID, entry *Activity) error
	ListActivity(ctx context.Context, appointmentID uuid.UUID) ([]Activity, error)
	ListActivityFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]Activity, error)

	HasAppointment(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
	// LockDoctor locks the doctor row so concurrent rating updates average
	// one after another.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
	AverageRating(ctx context.Context, doctorID uuid.UUID) (float64, error)

	// DueForReminder returns accepted, unreminded appointments dated in [from, to).
	DueForReminder(ctx context.Context, from, to time.Time) ([]*Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
	// StalePending returns pending appointments dated before cutoff.
	StalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}
