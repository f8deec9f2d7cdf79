package identity

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// -- Mock User Repository --

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return ErrUsernameTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockUserRepo) UpdateFullName(_ context.Context, id uuid.UUID, fullName string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.FullName = fullName
	return nil
}

func (m *mockUserRepo) SetPushToken(_ context.Context, id uuid.UUID, token *string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PushToken = token
	return nil
}

// -- Mock Patient Repository --

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
	failNext error
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	for _, p := range m.patients {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return ErrPatientNotFound
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

// -- Mock Doctor Repository --

type mockDoctorRepo struct {
	doctors map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	for _, existing := range m.doctors {
		if existing.LicenseNumber == d.LicenseNumber {
			return ErrLicenseTaken
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	for _, d := range m.doctors {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	if _, ok := m.doctors[d.ID]; !ok {
		return ErrDoctorNotFound
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) List(_ context.Context, f DoctorFilter) ([]*Doctor, error) {
	var out []*Doctor
	for _, d := range m.doctors {
		if f.Specialization != "" && !strings.EqualFold(d.Specialization, f.Specialization) {
			continue
		}
		if f.MinExperience != nil && d.Experience < *f.MinExperience {
			continue
		}
		if f.MaxFee != nil && d.ConsultationFee > *f.MaxFee {
			continue
		}
		if f.VerificationStatus != "" && d.VerificationStatus != f.VerificationStatus {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].FullName < out[j].FullName
	})
	return out, nil
}

func (m *mockDoctorRepo) SetRating(_ context.Context, id uuid.UUID, rating float64) error {
	d, ok := m.doctors[id]
	if !ok {
		return ErrDoctorNotFound
	}
	d.Rating = rating
	return nil
}

// -- Snapshot transactor --

// snapshotTx restores the mock stores when fn fails, which is what a real
// rollback does for the rows those stores represent.
type snapshotTx struct {
	users    *mockUserRepo
	patients *mockPatientRepo
	doctors  *mockDoctorRepo
	calls    int
}

func (s *snapshotTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.calls++
	users := copyMap(s.users.users)
	patients := copyMap(s.patients.patients)
	doctors := copyMap(s.doctors.doctors)

	if err := fn(ctx); err != nil {
		s.users.users = users
		s.patients.patients = patients
		s.doctors.doctors = doctors
		return err
	}
	return nil
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// -- Care relation --

type fakeCare struct {
	pairs map[[2]uuid.UUID]bool
}

func (f *fakeCare) HasAppointment(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	return f.pairs[[2]uuid.UUID{patientID, doctorID}], nil
}
