package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

const (
	VerificationUnverified = "unverified"
	VerificationPending    = "pending"
	VerificationVerified   = "verified"
	VerificationRejected   = "rejected"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrDoctorNotFound     = errors.New("doctor not found")
	ErrUsernameTaken      = errors.New("username is already registered")
	ErrLicenseTaken       = errors.New("license number is already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("not allowed to access this profile")
)

// FieldError is a validation failure on a single input field that the
// struct tags cannot express.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// User is an account. PasswordHash and PushToken never leave the server.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	FullName     string    `json:"fullName"`
	IsActive     bool      `json:"isActive"`
	PushToken    *string   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Patient struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"userId"`
	FullName       string    `json:"fullName"`
	Age            int       `json:"age"`
	Gender         string    `json:"gender"`
	ContactNumber  string    `json:"contactNumber"`
	Condition      *string   `json:"condition,omitempty"`
	Severity       *string   `json:"severity,omitempty"`
	MedicalHistory *string   `json:"medicalHistory,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Availability is one weekly consultation window.
type Availability struct {
	Day         string `json:"day" validate:"required,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	StartTime   string `json:"startTime" validate:"required,clock"`
	EndTime     string `json:"endTime" validate:"required,clock"`
	IsAvailable bool   `json:"isAvailable"`
}

type Education struct {
	Degree     string `json:"degree" validate:"required,max=120"`
	University string `json:"university" validate:"required,max=200"`
	Year       int    `json:"year" validate:"gte=1900,lte=2100"`
}

type Doctor struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             uuid.UUID      `json:"userId"`
	FullName           string         `json:"fullName"`
	Specialization     string         `json:"specialization"`
	LicenseNumber      string         `json:"licenseNumber"`
	Bio                *string        `json:"bio,omitempty"`
	Experience         int            `json:"experience"`
	ConsultationFee    int            `json:"consultationFee"`
	VerificationStatus string         `json:"verificationStatus"`
	Availability       []Availability `json:"availability"`
	Rating             float64        `json:"rating"`
	Education          []Education    `json:"education"`
	Languages          []string       `json:"languages"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Account is a user together with the profile matching its role.
type Account struct {
	User    *User    `json:"user"`
	Patient *Patient `json:"patient,omitempty"`
	Doctor  *Doctor  `json:"doctor,omitempty"`
}

// Session is an authenticated account and the token that proves it.
type Session struct {
	Account
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type PatientInput struct {
	Age            int     `json:"age" validate:"gte=0,lte=150"`
	Gender         string  `json:"gender" validate:"required,max=32"`
	ContactNumber  string  `json:"contactNumber" validate:"required,max=32"`
	Condition      *string `json:"condition" validate:"omitempty,max=200"`
	Severity       *string `json:"severity" validate:"omitempty,oneof=mild moderate severe"`
	MedicalHistory *string `json:"medicalHistory" validate:"omitempty,max=10000"`
}

type DoctorInput struct {
	Specialization  string         `json:"specialization" validate:"required,max=100"`
	LicenseNumber   string         `json:"licenseNumber" validate:"required,max=64"`
	Bio             *string        `json:"bio" validate:"omitempty,max=2000"`
	Experience      int            `json:"experience" validate:"gte=0,lte=80"`
	ConsultationFee int            `json:"consultationFee" validate:"gte=0"`
	Availability    []Availability `json:"availability" validate:"dive"`
	Education       []Education    `json:"education" validate:"dive"`
	Languages       []string       `json:"languages" validate:"dive,min=1,max=40"`
}

type RegisterInput struct {
	Username string        `json:"username" validate:"required,email,max=254"`
	Password string        `json:"password" validate:"required,min=8,max=72"`
	Role     string        `json:"role" validate:"required,oneof=patient doctor"`
	FullName string        `json:"fullName" validate:"required,max=120"`
	Patient  *PatientInput `json:"patient" validate:"required_if=Role patient"`
	Doctor   *DoctorInput  `json:"doctor" validate:"required_if=Role doctor"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type PatientPatch struct {
	FullName       *string `json:"fullName" validate:"omitempty,min=1,max=120"`
	Age            *int    `json:"age" validate:"omitempty,gte=0,lte=150"`
	Gender         *string `json:"gender" validate:"omitempty,min=1,max=32"`
	ContactNumber  *string `json:"contactNumber" validate:"omitempty,min=1,max=32"`
	Condition      *string `json:"condition" validate:"omitempty,max=200"`
	Severity       *string `json:"severity" validate:"omitempty,oneof=mild moderate severe"`
	MedicalHistory *string `json:"medicalHistory" validate:"omitempty,max=10000"`
}

// DoctorPatch lists the doctor fields a doctor may edit. Verification status
// and license number are not editable.
type DoctorPatch struct {
	FullName        *string         `json:"fullName" validate:"omitempty,min=1,max=120"`
	Specialization  *string         `json:"specialization" validate:"omitempty,min=1,max=100"`
	Bio             *string         `json:"bio" validate:"omitempty,max=2000"`
	Experience      *int            `json:"experience" validate:"omitempty,gte=0,lte=80"`
	ConsultationFee *int            `json:"consultationFee" validate:"omitempty,gte=0"`
	Availability    *[]Availability `json:"availability" validate:"omitempty,dive"`
	Education       *[]Education    `json:"education" validate:"omitempty,dive"`
	Languages       *[]string       `json:"languages" validate:"omitempty,dive,min=1,max=40"`
}

// DoctorFilter narrows the directory listing. Zero values mean "any".
type DoctorFilter struct {
	Specialization     string
	MinExperience      *int
	MaxFee             *int
	VerificationStatus string
}

func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// validateAvailability enforces start < end for every window. "HH:MM"
// strings compare correctly as text.
func validateAvailability(slots []Availability) error {
	for i, s := range slots {
		if s.StartTime >= s.EndTime {
			return &FieldError{
				Field:   fmt.Sprintf("availability[%d].endTime", i),
				Message: "endTime must be after startTime",
			}
		}
	}
	return nil
}

// requireText rejects values that are empty once surrounding whitespace is
// trimmed. The struct tags only see the untrimmed input.
func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &FieldError{Field: field, Message: field + " is required"}
	}
	return nil
}

func IsVerificationStatus(s string) bool {
	switch s {
	case VerificationUnverified, VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}
