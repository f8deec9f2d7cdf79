package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindmate/mindmate/internal/domain/identity"
	"github.com/mindmate/mindmate/internal/platform/auth"
	"github.com/mindmate/mindmate/internal/platform/db"
	"github.com/mindmate/mindmate/internal/platform/notification"
	"github.com/mindmate/mindmate/internal/platform/websocket"
)

const resourceType = "appointment"

// Profiles is the slice of the identity service the appointment lifecycle
// reads and writes.
type Profiles interface {
	PatientByUserID(ctx context.Context, userID uuid.UUID) (*identity.Patient, error)
	DoctorByUserID(ctx context.Context, userID uuid.UUID) (*identity.Doctor, error)
	PatientByID(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
	SetDoctorRating(ctx context.Context, doctorID uuid.UUID, rating float64) error
}

type Service struct {
	repo     Repository
	profiles Profiles
	tx       db.Transactor
	notifier notification.Notifier
	events   websocket.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, profiles Profiles, tx db.Transactor,
	notifier notification.Notifier, events websocket.Publisher, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if events == nil {
		events = websocket.NopPublisher{}
	}
	return &Service{
		repo:     repo,
		profiles: profiles,
		tx:       tx,
		notifier: notifier,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// caller is an authenticated user together with the profile that places them
// on appointments.
type caller struct {
	patient *identity.Patient
	doctor  *identity.Doctor
}

func (s *Service) resolve(ctx context.Context, p auth.Principal) (*caller, error) {
	var (
		c   caller
		err error
	)
	switch p.Role {
	case identity.RolePatient:
		c.patient, err = s.profiles.PatientByUserID(ctx, p.UserID)
	case identity.RoleDoctor:
		c.doctor, err = s.profiles.DoctorByUserID(ctx, p.UserID)
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrForbidden, p.Role)
	}
	if errors.Is(err, identity.ErrPatientNotFound) || errors.Is(err, identity.ErrDoctorNotFound) {
		return nil, fmt.Errorf("%w: caller has no %s profile", ErrForbidden, p.Role)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// roleOn returns the part the caller plays on a, if any.
func (c *caller) roleOn(a *Appointment) (string, bool) {
	if c.patient != nil && a.PatientID == c.patient.ID {
		return ByPatient, true
	}
	if c.doctor != nil && a.DoctorID == c.doctor.ID {
		return ByDoctor, true
	}
	return "", false
}

// -- Create --

// Create books a pending appointment for the calling patient. Nothing is
// stored when the doctor does not exist.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*Appointment, error) {
	if p.Role != identity.RolePatient {
		return nil, fmt.Errorf("%w: only patients can request appointments", ErrForbidden)
	}

	symptoms := strings.TrimSpace(in.Symptoms)
	if symptoms == "" {
		return nil, &identity.FieldError{Field: "symptoms", Message: "symptoms is required"}
	}
	if in.Date.IsZero() {
		return nil, &identity.FieldError{Field: "date", Message: "date is required"}
	}
	typ := in.Type
	if typ == "" {
		typ = TypeOnline
	}
	if !IsType(typ) {
		return nil, &identity.FieldError{Field: "type", Message: "type must be one of [online in-person]"}
	}
	duration := in.Duration
	if duration == 0 {
		duration = DefaultDuration
	}
	if duration < MinDuration || duration > MaxDuration {
		return nil, &identity.FieldError{
			Field:   "duration",
			Message: fmt.Sprintf("duration must be between %d and %d minutes", MinDuration, MaxDuration),
		}
	}

	c, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	doctor, err := s.profiles.GetDoctor(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:       c.patient.ID,
		DoctorID:        doctor.ID,
		Date:            in.Date.UTC(),
		Status:          StatusPending,
		Symptoms:        symptoms,
		HealthCondition: in.HealthCondition,
		Notes:           in.Notes,
		Type:            typ,
		Duration:        duration,
	}
	entry := Activity{
		Action:      ActionRequested,
		PerformedBy: ByPatient,
		Details:     "Request sent to Dr. " + doctor.FullName,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, a); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		if err := s.repo.AddActivity(ctx, a.ID, &entry); err != nil {
			return fmt.Errorf("append activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.ActivityLog = []Activity{entry}
	a.Doctor = doctor

	s.announceCreated(ctx, a, c.patient, doctor)
	return a, nil
}

// -- Read --

// Get returns an appointment with its activity log to the patient or doctor
// on it.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Appointment, error) {
	c, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := c.roleOn(a)
	if !ok {
		return nil, ErrForbidden
	}

	log, err := s.repo.ListActivity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}
	a.ActivityLog = orEmpty(log)

	if err := s.newProfileCache().attach(ctx, a, role); err != nil {
		return nil, err
	}
	return a, nil
}

// ListForUser returns the caller's appointments, newest date first, each with
// the counterpart's profile attached.
func (s *Service) ListForUser(ctx context.Context, p auth.Principal, f ListFilter) ([]*Appointment, error) {
	if f.Status != "" && !IsStatus(f.Status) {
		return nil, &identity.FieldError{
			Field:   "status",
			Message: "status must be one of [pending accepted rejected cancelled completed]",
		}
	}
	if f.Type != "" && !IsType(f.Type) {
		return nil, &identity.FieldError{Field: "type", Message: "type must be one of [online in-person]"}
	}

	c, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	var (
		list []*Appointment
		role string
	)
	if c.patient != nil {
		role = ByPatient
		list, err = s.repo.ListByPatient(ctx, c.patient.ID, f)
	} else {
		role = ByDoctor
		list, err = s.repo.ListByDoctor(ctx, c.doctor.ID, f)
	}
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return []*Appointment{}, nil
	}

	ids := make([]uuid.UUID, len(list))
	for i, a := range list {
		ids[i] = a.ID
	}
	logs, err := s.repo.ListActivityFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}

	cache := s.newProfileCache()
	for _, a := range list {
		a.ActivityLog = orEmpty(logs[a.ID])
		if err := cache.attach(ctx, a, role); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// ParticipantUserIDs returns the user ids of the patient and the doctor on an
// appointment.
func (s *Service) ParticipantUserIDs(ctx context.Context, id uuid.UUID) (patientUserID, doctorUserID uuid.UUID, err error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	patient, err := s.profiles.PatientByID(ctx, a.PatientID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	doctor, err := s.profiles.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return patient.UserID, doctor.UserID, nil
}

// -- Update --

// UpdateStatus moves an appointment to a new status. Notes, when given, are
// stored on the side of the caller and become the activity details.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id uuid.UUID, in StatusInput) (*Appointment, error) {
	return s.Update(ctx, p, id, UpdateInput{Status: &in.Status, Notes: in.Notes})
}

// Update applies a status transition and/or detail edits under a row lock.
// Every call appends exactly one activity entry: the transition entry when
// the status changes (detail edits ride along with it), otherwise one
// "Appointment updated" entry.
func (s *Service) Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	c, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	var (
		a        *Appointment
		role     string
		previous string
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		var ok bool
		if role, ok = c.roleOn(a); !ok {
			return ErrForbidden
		}
		previous = a.Status

		if in.Status != nil {
			if err := CheckTransition(a.Status, *in.Status, role); err != nil {
				return err
			}
			a.Status = *in.Status
			applyNotes(a, role, in.Notes)
		}

		changed, err := applyDetails(a, role, in)
		if err != nil {
			return err
		}

		var entry *Activity
		switch {
		case in.Status != nil:
			entry = &Activity{
				Action:      actionFor(a.Status),
				PerformedBy: role,
				Details:     statusDetails(a.Status, in.Notes, in.DoctorNotes),
			}
		case len(changed) > 0:
			entry = &Activity{
				Action:      ActionUpdated,
				PerformedBy: role,
				Details:     "Updated " + strings.Join(changed, ", "),
			}
		default:
			return &identity.FieldError{Field: "status", Message: "no changes requested"}
		}

		if err := s.repo.Update(ctx, a); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if err := s.repo.AddActivity(ctx, a.ID, entry); err != nil {
			return fmt.Errorf("append activity: %w", err)
		}

		if in.Rating != nil {
			if err := s.repo.LockDoctor(ctx, a.DoctorID); err != nil {
				return fmt.Errorf("lock doctor: %w", err)
			}
			avg, err := s.repo.AverageRating(ctx, a.DoctorID)
			if err != nil {
				return fmt.Errorf("average rating: %w", err)
			}
			if err := s.profiles.SetDoctorRating(ctx, a.DoctorID, avg); err != nil {
				return fmt.Errorf("set doctor rating: %w", err)
			}
		}

		log, err := s.repo.ListActivity(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("load activity: %w", err)
		}
		a.ActivityLog = orEmpty(log)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if a.Status != previous {
		s.announceStatus(ctx, a, previous, role, in.Notes)
	} else {
		s.announceUpdated(ctx, a, role)
	}

	if err := s.newProfileCache().attach(ctx, a, role); err != nil {
		return nil, err
	}
	return a, nil
}

// applyNotes stores notes on the caller's side of the appointment and
// returns the field name it wrote.
func applyNotes(a *Appointment, role string, notes *string) string {
	if notes == nil {
		return ""
	}
	if role == ByDoctor {
		a.DoctorNotes = notes
		return "doctorNotes"
	}
	a.Notes = notes
	return "notes"
}

// statusDetails picks the first non-blank note, else a generic line.
func statusDetails(status string, notes ...*string) string {
	for _, n := range notes {
		if n != nil && strings.TrimSpace(*n) != "" {
			return *n
		}
	}
	return "Status: " + status
}

// applyDetails applies the non-status edits in in and returns the names of
// the fields it changed. Clinical fields belong to the doctor; rating and
// review belong to the patient once the visit is completed.
func applyDetails(a *Appointment, role string, in UpdateInput) ([]string, error) {
	if in.hasDoctorFields() && role != ByDoctor {
		return nil, fmt.Errorf("%w: only the doctor may edit clinical details", ErrForbidden)
	}
	if in.hasPatientFields() {
		if role != ByPatient {
			return nil, fmt.Errorf("%w: only the patient may rate an appointment", ErrForbidden)
		}
		if a.Status != StatusCompleted {
			return nil, ErrNotCompleted
		}
	}

	var changed []string
	if in.Status == nil {
		if field := applyNotes(a, role, in.Notes); field != "" {
			changed = append(changed, field)
		}
	}
	if in.DoctorNotes != nil {
		a.DoctorNotes = in.DoctorNotes
		changed = append(changed, "doctorNotes")
	}
	if in.Prescription != nil {
		a.Prescription = in.Prescription
		changed = append(changed, "prescription")
	}
	if in.FollowUpDate != nil {
		t := in.FollowUpDate.UTC()
		a.FollowUpDate = &t
		changed = append(changed, "followUpDate")
	}
	if in.Rating != nil {
		a.Rating = in.Rating
		changed = append(changed, "rating")
	}
	if in.Review != nil {
		a.Review = in.Review
		changed = append(changed, "review")
	}
	return changed, nil
}

// -- Delete --

// Delete hard-removes an appointment. Either participant may delete it.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	c, err := s.resolve(ctx, p)
	if err != nil {
		return err
	}

	var (
		a    *Appointment
		role string
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		var ok bool
		if role, ok = c.roleOn(a); !ok {
			return ErrForbidden
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.announceDeleted(ctx, a, role)
	return nil
}

// -- Visit summary --

// Summary renders the PDF visit summary of a completed appointment.
func (s *Service) Summary(ctx context.Context, p auth.Principal, id uuid.UUID) ([]byte, error) {
	a, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusCompleted {
		return nil, ErrNotCompleted
	}
	parts, err := s.loadParticipants(ctx, a, a.Patient, a.Doctor)
	if err != nil {
		return nil, err
	}
	return renderSummary(a, parts.patient, parts.doctor, s.now())
}

// -- Scheduled work --

// SendReminders notifies patients of accepted appointments starting within
// lead and records that the reminder went out. It returns how many were sent.
func (s *Service) SendReminders(ctx context.Context, lead time.Duration) (int, error) {
	now := s.now()
	due, err := s.repo.DueForReminder(ctx, now, now.Add(lead))
	if err != nil {
		return 0, fmt.Errorf("select due reminders: %w", err)
	}

	sent := 0
	for _, a := range due {
		parts, err := s.loadParticipants(ctx, a, nil, nil)
		if err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("skipping reminder")
			continue
		}
		s.notifier.Notify(notification.Message{
			Template:  notification.TemplateAppointmentReminder,
			Recipient: recipient(parts.patientUser),
			Data:      templateData(a, parts),
		})
		if err := s.repo.MarkReminderSent(ctx, a.ID, now); err != nil {
			return sent, fmt.Errorf("mark reminder %s: %w", a.ID, err)
		}
		sent++
	}
	return sent, nil
}

// ExpireStale cancels pending requests whose date has passed. It returns how
// many were cancelled.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	ids, err := s.repo.StalePending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("select stale requests: %w", err)
	}

	expired := 0
	for _, id := range ids {
		ok, err := s.expire(ctx, id)
		if err != nil {
			return expired, fmt.Errorf("expire %s: %w", id, err)
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// expire cancels one stale request as the system. It reports false when the
// request was acted on or removed after it was selected.
func (s *Service) expire(ctx context.Context, id uuid.UUID) (bool, error) {
	var a *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if a.Status != StatusPending {
			a = nil
			return nil
		}
		if err := CheckTransition(a.Status, StatusCancelled, BySystem); err != nil {
			return err
		}
		a.Status = StatusCancelled
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		return s.repo.AddActivity(ctx, a.ID, &Activity{
			Action:      actionFor(StatusCancelled),
			PerformedBy: BySystem,
			Details:     "Request expired",
		})
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil || a == nil {
		return false, err
	}

	notes := "Request expired"
	s.announceStatus(ctx, a, StatusPending, BySystem, &notes)
	return true, nil
}

// -- helpers --

// profileCache attaches counterpart profiles, fetching each one once.
type profileCache struct {
	profiles Profiles
	patients map[uuid.UUID]*identity.Patient
	doctors  map[uuid.UUID]*identity.Doctor
}

func (s *Service) newProfileCache() *profileCache {
	return &profileCache{
		profiles: s.profiles,
		patients: make(map[uuid.UUID]*identity.Patient),
		doctors:  make(map[uuid.UUID]*identity.Doctor),
	}
}

func (pc *profileCache) attach(ctx context.Context, a *Appointment, role string) error {
	if role == ByDoctor {
		p, ok := pc.patients[a.PatientID]
		if !ok {
			var err error
			if p, err = pc.profiles.PatientByID(ctx, a.PatientID); err != nil {
				return fmt.Errorf("load patient %s: %w", a.PatientID, err)
			}
			pc.patients[a.PatientID] = p
		}
		a.Patient = p
		return nil
	}

	d, ok := pc.doctors[a.DoctorID]
	if !ok {
		var err error
		if d, err = pc.profiles.GetDoctor(ctx, a.DoctorID); err != nil {
			return fmt.Errorf("load doctor %s: %w", a.DoctorID, err)
		}
		pc.doctors[a.DoctorID] = d
	}
	a.Doctor = d
	return nil
}

func orEmpty(log []Activity) []Activity {
	if log == nil {
		return []Activity{}
	}
	return log
}
