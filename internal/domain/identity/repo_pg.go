package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mindmate/mindmate/internal/platform/db"
	"github.com/mindmate/mindmate/internal/platform/phi"
)

// -- User Repository --

type userRepoPG struct {
	pool db.Querier
}

func NewUserRepo(pool db.Querier) UserRepository {
	return &userRepoPG{pool: pool}
}

const userCols = `id, username, email, password_hash, role, full_name, is_active, push_token, created_at, updated_at`

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, full_name, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.FullName, u.IsActive,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if _, ok := db.UniqueViolation(err); ok {
		return ErrUsernameTaken
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
}

func (r *userRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username)
}

func (r *userRepoPG) getOne(ctx context.Context, query string, arg interface{}) (*User, error) {
	var u User
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.FullName,
		&u.IsActive, &u.PushToken, &u.CreatedAt, &u.UpdatedAt,
	)
	if db.IsNoRows(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) UpdateFullName(ctx context.Context, id uuid.UUID, fullName string) error {
	return execOne(ctx, r.pool, ErrUserNotFound,
		`UPDATE users SET full_name = $2, updated_at = now() WHERE id = $1`, id, fullName)
}

func (r *userRepoPG) SetPushToken(ctx context.Context, id uuid.UUID, token *string) error {
	return execOne(ctx, r.pool, ErrUserNotFound,
		`UPDATE users SET push_token = $2, updated_at = now() WHERE id = $1`, id, token)
}

// -- Patient Repository --

type patientRepoPG struct {
	pool   db.Querier
	cipher *phi.FieldCipher
}

// NewPatientRepo creates a patient repository. When cipher is non-nil the
// medical history column is sealed before storage and opened after retrieval.
func NewPatientRepo(pool db.Querier, cipher *phi.FieldCipher) PatientRepository {
	return &patientRepoPG{pool: pool, cipher: cipher}
}

const patientCols = `id, user_id, full_name, age, gender, contact_number, condition, severity,
	medical_history, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	history, err := r.seal(p.MedicalHistory)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}

	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (id, user_id, full_name, age, gender, contact_number, condition, severity, medical_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FullName, p.Age, p.Gender, p.ContactNumber, p.Condition, p.Severity, history,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id)
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patients WHERE user_id = $1`, userID)
}

func (r *patientRepoPG) getOne(ctx context.Context, query string, arg interface{}) (*Patient, error) {
	var p Patient
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.UserID, &p.FullName, &p.Age, &p.Gender, &p.ContactNumber,
		&p.Condition, &p.Severity, &p.MedicalHistory, &p.CreatedAt, &p.UpdatedAt,
	)
	if db.IsNoRows(err) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.MedicalHistory, err = r.open(p.MedicalHistory); err != nil {
		return nil, fmt.Errorf("patient %s: %w", p.ID, err)
	}
	return &p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	history, err := r.seal(p.MedicalHistory)
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}

	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patients SET full_name = $2, age = $3, gender = $4, contact_number = $5,
			condition = $6, severity = $7, medical_history = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FullName, p.Age, p.Gender, p.ContactNumber, p.Condition, p.Severity, history,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrPatientNotFound
	}
	return err
}

func (r *patientRepoPG) seal(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	sealed, err := r.cipher.Seal(*value)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

func (r *patientRepoPG) open(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	opened, err := r.cipher.Open(*value)
	if err != nil {
		return nil, err
	}
	return &opened, nil
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool db.Querier
}

func NewDoctorRepo(pool db.Querier) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

const doctorCols = `id, user_id, full_name, specialization, license_number, bio, experience,
	consultation_fee, verification_status, availability, rating, education, languages,
	created_at, updated_at`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, full_name, specialization, license_number, bio, experience,
			consultation_fee, verification_status, availability, rating, education, languages)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.FullName, d.Specialization, d.LicenseNumber, d.Bio, d.Experience,
		d.ConsultationFee, d.VerificationStatus, d.Availability, d.Rating, d.Education, d.Languages,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if _, ok := db.UniqueViolation(err); ok {
		return ErrLicenseTaken
	}
	return err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.getOne(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id)
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return r.getOne(ctx, `SELECT `+doctorCols+` FROM doctors WHERE user_id = $1`, userID)
}

func (r *doctorRepoPG) getOne(ctx context.Context, query string, arg interface{}) (*Doctor, error) {
	d, err := scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx, query, arg))
	if db.IsNoRows(err) {
		return nil, ErrDoctorNotFound
	}
	return d, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDoctor(row rowScanner) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID, &d.UserID, &d.FullName, &d.Specialization, &d.LicenseNumber, &d.Bio, &d.Experience,
		&d.ConsultationFee, &d.VerificationStatus, &d.Availability, &d.Rating, &d.Education, &d.Languages,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE doctors SET full_name = $2, specialization = $3, bio = $4, experience = $5,
			consultation_fee = $6, availability = $7, education = $8, languages = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.FullName, d.Specialization, d.Bio, d.Experience,
		d.ConsultationFee, d.Availability, d.Education, d.Languages,
	).Scan(&d.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrDoctorNotFound
	}
	return err
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter) ([]*Doctor, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.Specialization != "" {
		add("lower(specialization) = lower($%d)", f.Specialization)
	}
	if f.MinExperience != nil {
		add("experience >= $%d", *f.MinExperience)
	}
	if f.MaxFee != nil {
		add("consultation_fee <= $%d", *f.MaxFee)
	}
	if f.VerificationStatus != "" {
		add("verification_status = $%d", f.VerificationStatus)
	}

	query := `SELECT ` + doctorCols + ` FROM doctors`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY rating DESC, full_name ASC`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *doctorRepoPG) SetRating(ctx context.Context, id uuid.UUID, rating float64) error {
	return execOne(ctx, r.pool, ErrDoctorNotFound,
		`UPDATE doctors SET rating = $2, updated_at = now() WHERE id = $1`, id, rating)
}

// execOne runs a single-row update and maps "no row touched" to notFound.
func execOne(ctx context.Context, pool db.Querier, notFound error, sql string, args ...interface{}) error {
	tag, err := db.Conn(ctx, pool).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
