package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mindmate/mindmate/internal/platform/auth"
	"github.com/mindmate/mindmate/internal/platform/db"
	"github.com/mindmate/mindmate/internal/platform/notification"
)

type Service struct {
	users       UserRepository
	patients    PatientRepository
	doctors     DoctorRepository
	tx          db.Transactor
	tokens      *auth.TokenIssuer
	revocations auth.RevocationStore
	care        CareRelation
}

func NewService(users UserRepository, patients PatientRepository, doctors DoctorRepository,
	tx db.Transactor, tokens *auth.TokenIssuer, revocations auth.RevocationStore) *Service {
	return &Service{
		users:       users,
		patients:    patients,
		doctors:     doctors,
		tx:          tx,
		tokens:      tokens,
		revocations: revocations,
	}
}

// SetCareRelation installs the check that lets a doctor read the record of a
// patient they have an appointment with. Without it only owners may read.
func (s *Service) SetCareRelation(c CareRelation) {
	s.care = c
}

// -- Registration & sessions --

// Register creates the user and its role profile in one transaction; if
// either insert fails neither row persists.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	username := NormalizeUsername(in.Username)
	fullName := strings.TrimSpace(in.FullName)
	if err := requireText("fullName", fullName); err != nil {
		return nil, err
	}

	switch in.Role {
	case RolePatient:
		if in.Patient == nil {
			return nil, &FieldError{Field: "patient", Message: "patient is required"}
		}
	case RoleDoctor:
		if in.Doctor == nil {
			return nil, &FieldError{Field: "doctor", Message: "doctor is required"}
		}
		if err := requireText("doctor.specialization", in.Doctor.Specialization); err != nil {
			return nil, err
		}
		if err := requireText("doctor.licenseNumber", in.Doctor.LicenseNumber); err != nil {
			return nil, err
		}
		if err := validateAvailability(in.Doctor.Availability); err != nil {
			return nil, err
		}
	default:
		return nil, &FieldError{Field: "role", Message: "role must be one of [patient doctor]"}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	acct := &Account{User: &User{
		Username:     username,
		Email:        username,
		PasswordHash: hash,
		Role:         in.Role,
		FullName:     fullName,
		IsActive:     true,
	}}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, acct.User); err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		if in.Role == RolePatient {
			p := in.Patient
			acct.Patient = &Patient{
				UserID:         acct.User.ID,
				FullName:       fullName,
				Age:            p.Age,
				Gender:         p.Gender,
				ContactNumber:  p.ContactNumber,
				Condition:      p.Condition,
				Severity:       p.Severity,
				MedicalHistory: p.MedicalHistory,
			}
			if err := s.patients.Create(ctx, acct.Patient); err != nil {
				return fmt.Errorf("create patient: %w", err)
			}
			return nil
		}

		d := in.Doctor
		acct.Doctor = &Doctor{
			UserID:             acct.User.ID,
			FullName:           fullName,
			Specialization:     strings.TrimSpace(d.Specialization),
			LicenseNumber:      strings.TrimSpace(d.LicenseNumber),
			Bio:                d.Bio,
			Experience:         d.Experience,
			ConsultationFee:    d.ConsultationFee,
			VerificationStatus: VerificationUnverified,
			Availability:       orEmpty(d.Availability),
			Education:          orEmpty(d.Education),
			Languages:          orEmpty(d.Languages),
		}
		if err := s.doctors.Create(ctx, acct.Doctor); err != nil {
			return fmt.Errorf("create doctor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.issue(acct)
}

// Login verifies credentials. Unknown users, wrong passwords and inactive
// accounts are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.GetByUsername(ctx, NormalizeUsername(username))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	acct, err := s.account(ctx, u)
	if err != nil {
		return nil, err
	}
	return s.issue(acct)
}

func (s *Service) issue(acct *Account) (*Session, error) {
	token, claims, err := s.tokens.Issue(acct.User.ID, acct.User.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Account: *acct, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the caller's token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, p auth.Principal) error {
	if s.revocations == nil || p.TokenID == "" {
		return nil
	}
	return s.revocations.Revoke(ctx, p.TokenID, p.ExpiresAt)
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*Account, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.account(ctx, u)
}

func (s *Service) account(ctx context.Context, u *User) (*Account, error) {
	acct := &Account{User: u}
	var err error
	switch u.Role {
	case RolePatient:
		acct.Patient, err = s.patients.GetByUserID(ctx, u.ID)
	case RoleDoctor:
		acct.Doctor, err = s.doctors.GetByUserID(ctx, u.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return acct, nil
}

// RegisterPushToken stores the caller's Expo push token. An empty token
// unregisters the device.
func (s *Service) RegisterPushToken(ctx context.Context, userID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.users.SetPushToken(ctx, userID, nil)
	}
	if err := notification.ValidatePushToken(token); err != nil {
		return &FieldError{Field: "token", Message: "token must be an Expo push token"}
	}
	return s.users.SetPushToken(ctx, userID, &token)
}

// -- Patients --

// GetPatient returns a patient record to its owner, or to a doctor who has at
// least one appointment with that patient.
func (s *Service) GetPatient(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch caller.Role {
	case RolePatient:
		if p.UserID == caller.UserID {
			return p, nil
		}
	case RoleDoctor:
		if s.care == nil {
			break
		}
		d, err := s.doctors.GetByUserID(ctx, caller.UserID)
		if err != nil {
			return nil, err
		}
		ok, err := s.care.HasAppointment(ctx, p.ID, d.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
	}
	return nil, ErrForbidden
}

func (s *Service) UpdateOwnPatient(ctx context.Context, userID uuid.UUID, patch PatientPatch) (*Patient, error) {
	if patch.FullName != nil {
		if err := requireText("fullName", *patch.FullName); err != nil {
			return nil, err
		}
	}

	var p *Patient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.patients.GetByUserID(ctx, userID); err != nil {
			return err
		}

		if patch.FullName != nil {
			p.FullName = strings.TrimSpace(*patch.FullName)
			if err := s.users.UpdateFullName(ctx, userID, p.FullName); err != nil {
				return err
			}
		}
		if patch.Age != nil {
			p.Age = *patch.Age
		}
		if patch.Gender != nil {
			p.Gender = *patch.Gender
		}
		if patch.ContactNumber != nil {
			p.ContactNumber = *patch.ContactNumber
		}
		if patch.Condition != nil {
			p.Condition = patch.Condition
		}
		if patch.Severity != nil {
			p.Severity = patch.Severity
		}
		if patch.MedicalHistory != nil {
			p.MedicalHistory = patch.MedicalHistory
		}
		return s.patients.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) PatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) PatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return s.patients.GetByUserID(ctx, userID)
}

// -- Doctors --

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter) ([]*Doctor, error) {
	if f.VerificationStatus != "" && !IsVerificationStatus(f.VerificationStatus) {
		return nil, &FieldError{
			Field:   "verificationStatus",
			Message: "verificationStatus must be one of [unverified pending verified rejected]",
		}
	}
	doctors, err := s.doctors.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if doctors == nil {
		doctors = []*Doctor{}
	}
	return doctors, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) DoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByUserID(ctx, userID)
}

func (s *Service) UpdateOwnDoctor(ctx context.Context, userID uuid.UUID, patch DoctorPatch) (*Doctor, error) {
	if patch.FullName != nil {
		if err := requireText("fullName", *patch.FullName); err != nil {
			return nil, err
		}
	}
	if patch.Specialization != nil {
		if err := requireText("specialization", *patch.Specialization); err != nil {
			return nil, err
		}
	}
	if patch.Availability != nil {
		if err := validateAvailability(*patch.Availability); err != nil {
			return nil, err
		}
	}

	var d *Doctor
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if d, err = s.doctors.GetByUserID(ctx, userID); err != nil {
			return err
		}

		if patch.FullName != nil {
			d.FullName = strings.TrimSpace(*patch.FullName)
			if err := s.users.UpdateFullName(ctx, userID, d.FullName); err != nil {
				return err
			}
		}
		if patch.Specialization != nil {
			d.Specialization = strings.TrimSpace(*patch.Specialization)
		}
		if patch.Bio != nil {
			d.Bio = patch.Bio
		}
		if patch.Experience != nil {
			d.Experience = *patch.Experience
		}
		if patch.ConsultationFee != nil {
			d.ConsultationFee = *patch.ConsultationFee
		}
		if patch.Availability != nil {
			d.Availability = orEmpty(*patch.Availability)
		}
		if patch.Education != nil {
			d.Education = orEmpty(*patch.Education)
		}
		if patch.Languages != nil {
			d.Languages = orEmpty(*patch.Languages)
		}
		return s.doctors.Update(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SetDoctorRating stores a recomputed average rating, rounded to one decimal.
func (s *Service) SetDoctorRating(ctx context.Context, doctorID uuid.UUID, rating float64) error {
	return s.doctors.SetRating(ctx, doctorID, roundRating(rating))
}

// -- Users --

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func roundRating(r float64) float64 {
	return float64(int(r*10+0.5)) / 10
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
