package appointment

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mindmate/mindmate/internal/domain/identity"
)

const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	TypeOnline   = "online"
	TypeInPerson = "in-person"
)

// Actors recorded in the activity log.
const (
	ByPatient = "patient"
	ByDoctor  = "doctor"
	BySystem  = "system"
)

const (
	ActionRequested = "Appointment requested"
	ActionUpdated   = "Appointment updated"
)

const (
	DefaultDuration = 30
	MinDuration     = 5
	MaxDuration     = 240
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("not allowed to modify this appointment")
	ErrNotCompleted      = errors.New("appointment is not completed")
)

// Activity is one entry in an appointment's append-only history.
type Activity struct {
	ID          int64     `json:"-"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performedBy"`
	Details     string    `json:"details"`
	Timestamp   time.Time `json:"timestamp"`
}

type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patientId"`
	DoctorID        uuid.UUID  `json:"doctorId"`
	Date            time.Time  `json:"date"`
	Status          string     `json:"status"`
	Symptoms        string     `json:"symptoms"`
	HealthCondition *string    `json:"healthCondition,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	DoctorNotes     *string    `json:"doctorNotes,omitempty"`
	Type            string     `json:"type"`
	Duration        int        `json:"duration"`
	FollowUpDate    *time.Time `json:"followUpDate,omitempty"`
	Prescription    *string    `json:"prescription,omitempty"`
	Rating          *int       `json:"rating,omitempty"`
	Review          *string    `json:"review,omitempty"`
	ReminderSentAt  *time.Time `json:"-"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	ActivityLog     []Activity `json:"activityLog"`

	// Counterpart profile: a doctor sees Patient, a patient sees Doctor.
	Patient *identity.Patient `json:"patient,omitempty"`
	Doctor  *identity.Doctor  `json:"doctor,omitempty"`
}

type CreateInput struct {
	DoctorID        uuid.UUID `json:"doctorId" validate:"required"`
	Date            time.Time `json:"date" validate:"required"`
	Symptoms        string    `json:"symptoms" validate:"required,max=2000"`
	HealthCondition *string   `json:"healthCondition" validate:"omitempty,max=200"`
	Notes           *string   `json:"notes" validate:"omitempty,max=2000"`
	Type            string    `json:"type" validate:"omitempty,oneof=online in-person"`
	Duration        int       `json:"duration" validate:"omitempty,gte=5,lte=240"`
}

type StatusInput struct {
	Status string  `json:"status" validate:"required,oneof=pending accepted rejected cancelled completed"`
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateInput is a PATCH body. Status and Notes drive a transition; the rest
// are detail edits gated by role.
type UpdateInput struct {
	Status       *string    `json:"status" validate:"omitempty,oneof=pending accepted rejected cancelled completed"`
	Notes        *string    `json:"notes" validate:"omitempty,max=2000"`
	DoctorNotes  *string    `json:"doctorNotes" validate:"omitempty,max=5000"`
	Prescription *string    `json:"prescription" validate:"omitempty,max=5000"`
	FollowUpDate *time.Time `json:"followUpDate"`
	Rating       *int       `json:"rating" validate:"omitempty,gte=1,lte=5"`
	Review       *string    `json:"review" validate:"omitempty,max=2000"`
}

func (in UpdateInput) hasDoctorFields() bool {
	return in.DoctorNotes != nil || in.Prescription != nil || in.FollowUpDate != nil
}

func (in UpdateInput) hasPatientFields() bool {
	return in.Rating != nil || in.Review != nil
}

// ListFilter narrows a caller's appointment list. Zero values mean "any".
// ListFilter narrows ListForUser. From is inclusive and To exclusive;
// Through is an inclusive upper bound.
type ListFilter struct {
	Status  string
	Type    string
	From    *time.Time
	To      *time.Time
	Through *time.Time
}

func IsStatus(s string) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func IsType(s string) bool {
	return s == TypeOnline || s == TypeInPerson
}
