package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindmate/mindmate/internal/domain/identity"
	"github.com/mindmate/mindmate/internal/platform/db"
)

type repoPG struct {
	pool db.Querier
}

func NewRepo(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

const apptCols = `id, patient_id, doctor_id, date, status, symptoms, health_condition, notes,
	doctor_notes, type, duration, follow_up_date, prescription, rating, review, reminder_sent_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Status, &a.Symptoms, &a.HealthCondition, &a.Notes,
		&a.DoctorNotes, &a.Type, &a.Duration, &a.FollowUpDate, &a.Prescription, &a.Rating, &a.Review,
		&a.ReminderSentAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, date, status, symptoms, health_condition,
			notes, type, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.Status, a.Symptoms, a.HealthCondition,
		a.Notes, a.Type, a.Duration,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return identity.ErrDoctorNotFound
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.getOne(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.getOne(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) getOne(ctx context.Context, query string, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments SET status = $2, notes = $3, doctor_notes = $4, follow_up_date = $5,
			prescription = $6, rating = $7, review = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Status, a.Notes, a.DoctorNotes, a.FollowUpDate, a.Prescription, a.Rating, a.Review,
	).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]*Appointment, error) {
	return r.list(ctx, "patient_id", patientID, f)
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]*Appointment, error) {
	return r.list(ctx, "doctor_id", doctorID, f)
}

func (r *repoPG) list(ctx context.Context, ownerCol string, ownerID uuid.UUID, f ListFilter) ([]*Appointment, error) {
	where := []string{ownerCol + " = $1"}
	args := []interface{}{ownerID}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.From != nil {
		add("date >= $%d", *f.From)
	}
	if f.To != nil {
		add("date < $%d", *f.To)
	}
	if f.Through != nil {
		add("date <= $%d", *f.Through)
	}

	query := `SELECT ` + apptCols + ` FROM appointments WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date DESC, created_at DESC`
	return r.query(ctx, query, args...)
}

func (r *repoPG) query(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// -- Activity log --

func (r *repoPG) AddActivity(ctx context.Context, appointmentID uuid.UUID, entry *Activity) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment_activity (appointment_id, action, performed_by, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		appointmentID, entry.Action, entry.PerformedBy, entry.Details,
	).Scan(&entry.ID, &entry.Timestamp)
}

func (r *repoPG) ListActivity(ctx context.Context, appointmentID uuid.UUID) ([]Activity, error) {
	byID, err := r.ListActivityFor(ctx, []uuid.UUID{appointmentID})
	if err != nil {
		return nil, err
	}
	return byID[appointmentID], nil
}

func (r *repoPG) ListActivityFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]Activity, error) {
	out := make(map[uuid.UUID][]Activity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT appointment_id, id, action, performed_by, details, created_at
		FROM appointment_activity
		WHERE appointment_id = ANY($1)
		ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			apptID uuid.UUID
			e      Activity
		)
		if err := rows.Scan(&apptID, &e.ID, &e.Action, &e.PerformedBy, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		out[apptID] = append(out[apptID], e)
	}
	return out, rows.Err()
}

// -- Relations & aggregates --

func (r *repoPG) HasAppointment(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE patient_id = $1 AND doctor_id = $2)`,
		patientID, doctorID,
	).Scan(&ok)
	return ok, err
}

func (r *repoPG) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	var id uuid.UUID
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id FROM doctors WHERE id = $1 FOR UPDATE`, doctorID,
	).Scan(&id)
	if db.IsNoRows(err) {
		return identity.ErrDoctorNotFound
	}
	return err
}

func (r *repoPG) AverageRating(ctx context.Context, doctorID uuid.UUID) (float64, error) {
	var avg float64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COALESCE(AVG(rating), 0)::float8 FROM appointments
		WHERE doctor_id = $1 AND rating IS NOT NULL`, doctorID,
	).Scan(&avg)
	return avg, err
}

// -- Scheduled work --

func (r *repoPG) DueForReminder(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return r.query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE status = $1 AND reminder_sent_at IS NULL AND date >= $2 AND date < $3
		ORDER BY date`, StatusAccepted, from, to)
}

func (r *repoPG) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE appointments SET reminder_sent_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) StalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT id FROM appointments WHERE status = $1 AND date < $2 ORDER BY date`,
		StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
