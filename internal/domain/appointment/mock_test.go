package appointment

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mindmate/mindmate/internal/domain/identity"
)

// -- Mock Repository --

type mockRepo struct {
	appts        map[uuid.UUID]*Appointment
	activity     map[uuid.UUID][]Activity
	nextActivity int64
	clock        time.Time
	failActivity error

	// lockedDoctors counts LockDoctor calls; AverageRating refuses to run
	// for a doctor that was never locked.
	lockedDoctors map[uuid.UUID]int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		appts:         make(map[uuid.UUID]*Appointment),
		activity:      make(map[uuid.UUID][]Activity),
		lockedDoctors: make(map[uuid.UUID]int),
		clock:         time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp so created_at ordering is
// deterministic.
func (m *mockRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = m.tick()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	cp.ActivityLog = nil
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *mockRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.appts[a.ID]; !ok {
		return ErrNotFound
	}
	a.UpdatedAt = m.tick()
	cp := *a
	cp.ActivityLog = nil
	cp.Patient, cp.Doctor = nil, nil
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.appts[id]; !ok {
		return ErrNotFound
	}
	delete(m.appts, id)
	delete(m.activity, id)
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, f ListFilter) ([]*Appointment, error) {
	return m.list(func(a *Appointment) bool { return a.PatientID == patientID }, f), nil
}

func (m *mockRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, f ListFilter) ([]*Appointment, error) {
	return m.list(func(a *Appointment) bool { return a.DoctorID == doctorID }, f), nil
}

func (m *mockRepo) list(owner func(*Appointment) bool, f ListFilter) []*Appointment {
	var out []*Appointment
	for _, a := range m.appts {
		if !owner(a) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.From != nil && a.Date.Before(*f.From) {
			continue
		}
		if f.Through != nil && a.Date.After(*f.Through) {
			continue
		}
		if f.To != nil && !a.Date.Before(*f.To) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *mockRepo) AddActivity(_ context.Context, appointmentID uuid.UUID, entry *Activity) error {
	if m.failActivity != nil {
		return m.failActivity
	}
	m.nextActivity++
	entry.ID = m.nextActivity
	entry.Timestamp = m.tick()
	m.activity[appointmentID] = append(m.activity[appointmentID], *entry)
	return nil
}

func (m *mockRepo) ListActivity(_ context.Context, appointmentID uuid.UUID) ([]Activity, error) {
	return append([]Activity(nil), m.activity[appointmentID]...), nil
}

func (m *mockRepo) ListActivityFor(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]Activity, error) {
	out := make(map[uuid.UUID][]Activity, len(ids))
	for _, id := range ids {
		if log, ok := m.activity[id]; ok {
			out[id] = append([]Activity(nil), log...)
		}
	}
	return out, nil
}

func (m *mockRepo) HasAppointment(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	for _, a := range m.appts {
		if a.PatientID == patientID && a.DoctorID == doctorID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) LockDoctor(_ context.Context, doctorID uuid.UUID) error {
	m.lockedDoctors[doctorID]++
	return nil
}

func (m *mockRepo) AverageRating(_ context.Context, doctorID uuid.UUID) (float64, error) {
	if m.lockedDoctors[doctorID] == 0 {
		return 0, errors.New("average computed without locking the doctor row")
	}
	var sum, n int
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Rating != nil {
			sum += *a.Rating
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

func (m *mockRepo) DueForReminder(_ context.Context, from, to time.Time) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.appts {
		if a.Status == StatusAccepted && a.ReminderSentAt == nil && !a.Date.Before(from) && a.Date.Before(to) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) error {
	a, ok := m.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.ReminderSentAt = &at
	return nil
}

func (m *mockRepo) StalePending(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, a := range m.appts {
		if a.Status == StatusPending && a.Date.Before(cutoff) {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

// -- Snapshot transactor --

// snapshotTx restores the mock store when fn fails, which is what a real
// rollback does for the rows it represents.
type snapshotTx struct {
	repo  *mockRepo
	calls int
}

func (s *snapshotTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.calls++
	appts := make(map[uuid.UUID]*Appointment, len(s.repo.appts))
	for k, v := range s.repo.appts {
		cp := *v
		appts[k] = &cp
	}
	activity := make(map[uuid.UUID][]Activity, len(s.repo.activity))
	for k, v := range s.repo.activity {
		activity[k] = append([]Activity(nil), v...)
	}

	if err := fn(ctx); err != nil {
		s.repo.appts = appts
		s.repo.activity = activity
		return err
	}
	return nil
}

// -- Fake profiles --

type fakeProfiles struct {
	users    map[uuid.UUID]*identity.User
	patients map[uuid.UUID]*identity.Patient
	doctors  map[uuid.UUID]*identity.Doctor
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		users:    make(map[uuid.UUID]*identity.User),
		patients: make(map[uuid.UUID]*identity.Patient),
		doctors:  make(map[uuid.UUID]*identity.Doctor),
	}
}

func (f *fakeProfiles) addUser(role, name string) *identity.User {
	u := &identity.User{
		ID:       uuid.New(),
		Username: name + "@example.com",
		Email:    name + "@example.com",
		Role:     role,
		FullName: name,
		IsActive: true,
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeProfiles) PatientByUserID(_ context.Context, userID uuid.UUID) (*identity.Patient, error) {
	for _, p := range f.patients {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, identity.ErrPatientNotFound
}

func (f *fakeProfiles) DoctorByUserID(_ context.Context, userID uuid.UUID) (*identity.Doctor, error) {
	for _, d := range f.doctors {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, identity.ErrDoctorNotFound
}

func (f *fakeProfiles) PatientByID(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	p, ok := f.patients[id]
	if !ok {
		return nil, identity.ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) GetDoctor(_ context.Context, id uuid.UUID) (*identity.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, identity.ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeProfiles) GetUser(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeProfiles) SetDoctorRating(_ context.Context, doctorID uuid.UUID, rating float64) error {
	d, ok := f.doctors[doctorID]
	if !ok {
		return identity.ErrDoctorNotFound
	}
	d.Rating = rating
	return nil
}

// -- Recording publisher --

type publishedEvent struct {
	UserID uuid.UUID
	Type   string
}

type recordingPublisher struct {
	events []publishedEvent
}

func (r *recordingPublisher) PublishToUser(userID uuid.UUID, eventType, _, _ string, _ any) {
	r.events = append(r.events, publishedEvent{UserID: userID, Type: eventType})
}

func (r *recordingPublisher) count(userID uuid.UUID, eventType string) int {
	n := 0
	for _, e := range r.events {
		if e.UserID == userID && e.Type == eventType {
			n++
		}
	}
	return n
}
