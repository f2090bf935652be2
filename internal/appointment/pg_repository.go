package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxIface is satisfied by *pgxpool.Pool and by pgxmock pools.
type pgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db pgxIface
}

func NewPgRepository(db pgxIface) *PgRepository {
	if db == nil {
		panic("appointment: pgx pool required")
	}
	return &PgRepository{db: db}
}

const (
	slotColumns = `id, doctor_id, slot_date, start_minute, end_minute, status, appointment_id, service_tag, created_at, updated_at`

	appointmentColumns = `id, created_at, updated_at, scheduled_at, status, owner_id, pet_name, pet_species, complaint,
		desired_doctor_id, desired_service_id, doctor_id, service_id, slot_id`

	openStatuses = `('requested', 'confirmed')`

	// SQLSTATE codes: the per-doctor overlap constraint and foreign keys.
	pgExclusionViolation  = "23P01"
	pgForeignKeyViolation = "23503"
)

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var start, end int
	var status string

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&start,
		&end,
		&status,
		&s.AppointmentID,
		&s.ServiceTag,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Date = DateOf(s.Date)
	s.Start = TimeOfDay(start)
	s.End = TimeOfDay(end)
	s.Status = SlotStatus(status)
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.ScheduledAt,
		&status,
		&a.OwnerID,
		&a.Pet.Name,
		&a.Pet.Species,
		&a.Complaint,
		&a.DesiredDoctorID,
		&a.DesiredServiceID,
		&a.DoctorID,
		&a.ServiceID,
		&a.SlotID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = AppointmentStatus(status)
	return &a, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// appointmentRefError maps a foreign key violation on appointments to the
// not-found kind of the missing reference.
func appointmentRefError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgForeignKeyViolation {
		return nil
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "service"):
		return ErrServiceNotFound
	case strings.Contains(pgErr.ConstraintName, "slot"):
		return ErrSlotNotFound
	default:
		return ErrDoctorNotFound
	}
}

// where accumulates positional predicates for list queries.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.clauses, " AND ")
}

func optionalDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := DateOf(*t)
	return &d
}

// Slots

func (r *PgRepository) InsertSlot(ctx context.Context, s Slot) (*Slot, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO slots (id, doctor_id, slot_date, start_minute, end_minute, status, service_tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'available', $6, now(), now())
		RETURNING `+slotColumns,
		s.ID, s.DoctorID, DateOf(s.Date), int(s.Start), int(s.End), s.ServiceTag)

	created, err := scanSlot(row)
	if err != nil {
		switch pgErrorCode(err) {
		case pgExclusionViolation:
			return nil, ErrSlotOverlap
		case pgForeignKeyViolation:
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("insert slot: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error) {
	var w where
	if len(f.DoctorIDs) > 0 {
		w.add("doctor_id = ANY(?)", f.DoctorIDs)
	}
	if f.Dates.From != nil {
		w.add("slot_date >= ?", DateOf(*f.Dates.From))
	}
	if f.Dates.To != nil {
		w.add("slot_date <= ?", DateOf(*f.Dates.To))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		w.add("status = ANY(?)", statuses)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		`+w.String()+`
		ORDER BY slot_date, start_minute, doctor_id
	`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return collectSlots(rows)
}

func (r *PgRepository) ReserveSlot(ctx context.Context, slotID, apptID uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET status = 'busy',
		    appointment_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		RETURNING `+slotColumns,
		slotID, apptID)

	reserved, err := scanSlot(row)
	if err == nil {
		return reserved, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, fmt.Errorf("reserve slot: %w", err)
	}

	// Nothing matched: either the slot is gone or someone else holds it.
	if _, err := r.GetSlotByID(ctx, slotID); err != nil {
		return nil, err
	}
	return nil, ErrConflict
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin release slot: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanSlot(tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, slotID))
	if err != nil {
		return nil, err
	}

	if current.Status != SlotBusy {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit release slot: %w", err)
		}
		return current, nil
	}

	if current.AppointmentID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE appointments
			SET slot_id = NULL,
			    updated_at = now()
			WHERE id = $1
			  AND slot_id = $2
		`, *current.AppointmentID, slotID); err != nil {
			return nil, fmt.Errorf("unbind appointment: %w", err)
		}
	}

	released, err := scanSlot(tx.QueryRow(ctx, `
		UPDATE slots
		SET status = 'available',
		    appointment_id = NULL,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns,
		slotID))
	if err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit release slot: %w", err)
	}
	return released, nil
}

func (r *PgRepository) ReleaseSlotFor(ctx context.Context, slotID, apptID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE slots
		SET status = 'available',
		    appointment_id = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND appointment_id = $2
	`, slotID, apptID)
	if err != nil {
		return fmt.Errorf("release slot for appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		  AND appointment_id IS NULL
		RETURNING `+slotColumns,
		id, string(to), string(from))
	return scanSlot(row)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1
		  AND status <> 'busy'
	`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRow(ctx, `SELECT status FROM slots WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotNotFound
		}
		return fmt.Errorf("load slot status: %w", err)
	}
	return ErrSlotBusy
}

func (r *PgRepository) DeleteAvailableSlots(ctx context.Context, doctorID uuid.UUID, dates DateRange) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM slots
		WHERE doctor_id = $1
		  AND status = 'available'
		  AND ($2::date IS NULL OR slot_date >= $2)
		  AND ($3::date IS NULL OR slot_date <= $3)
	`, doctorID, optionalDate(dates.From), optionalDate(dates.To))
	if err != nil {
		return 0, fmt.Errorf("delete available slots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Appointments

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, created_at, updated_at, scheduled_at, status, owner_id, pet_name, pet_species,
		                          complaint, desired_doctor_id, desired_service_id, doctor_id, service_id, slot_id)
		VALUES ($1, now(), now(), $2, 'requested', $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+appointmentColumns,
		a.ID, a.ScheduledAt, a.OwnerID, a.Pet.Name, a.Pet.Species, a.Complaint,
		a.DesiredDoctorID, a.DesiredServiceID, a.DoctorID, a.ServiceID, a.SlotID)

	created, err := scanAppointment(row)
	if err != nil {
		if refErr := appointmentRefError(err); refErr != nil {
			return nil, refErr
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	var w where
	if len(f.DoctorIDs) > 0 {
		w.add("doctor_id = ANY(?)", f.DoctorIDs)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		w.add("status = ANY(?)", statuses)
	}
	if f.From != nil {
		w.add("scheduled_at >= ?", *f.From)
	}
	if f.To != nil {
		w.add("scheduled_at < ?", *f.To)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		`+w.String()+`
		ORDER BY scheduled_at NULLS LAST, created_at
	`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	if to != StatusCancelled {
		row := r.db.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2,
			    updated_at = now()
			WHERE id = $1
			  AND status = $3
			RETURNING `+appointmentColumns,
			id, string(to), string(from))
		return scanAppointment(row)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel appointment: %w", err)
	}
	defer tx.Rollback(ctx)

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    slot_id = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, string(to), string(from)))
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE slots
		SET status = 'available',
		    appointment_id = NULL,
		    updated_at = now()
		WHERE appointment_id = $1
	`, id); err != nil {
		return nil, fmt.Errorf("release slots of cancelled appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel appointment: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) AssignDoctorAndService(ctx context.Context, id uuid.UUID, slotID *uuid.UUID, doctorID, serviceID uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET doctor_id = $2,
		    service_id = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status IN `+openStatuses+`
		  AND slot_id IS NOT DISTINCT FROM $4
		RETURNING `+appointmentColumns,
		id, doctorID, serviceID, slotID)

	updated, err := scanAppointment(row)
	if err != nil {
		if refErr := appointmentRefError(err); refErr != nil {
			return nil, refErr
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) AttachSlot(ctx context.Context, id uuid.UUID, prevSlotID *uuid.UUID, slot Slot, scheduledAt time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET slot_id = $2,
		    scheduled_at = $3,
		    doctor_id = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status IN `+openStatuses+`
		  AND slot_id IS NOT DISTINCT FROM $5
		RETURNING `+appointmentColumns,
		id, slot.ID, scheduledAt, slot.DoctorID, prevSlotID)
	return scanAppointment(row)
}

func (r *PgRepository) DetachSlot(ctx context.Context, id, slotID uuid.UUID) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin detach slot: %w", err)
	}
	defer tx.Rollback(ctx)

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET slot_id = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND slot_id = $2
		  AND status IN `+openStatuses+`
		RETURNING `+appointmentColumns,
		id, slotID))
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE slots
		SET status = 'available',
		    appointment_id = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND appointment_id = $2
	`, slotID, id); err != nil {
		return nil, fmt.Errorf("release detached slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit detach slot: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) SetScheduledAt(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND slot_id IS NULL
		  AND status IN `+openStatuses+`
		RETURNING `+appointmentColumns,
		id, at)
	return scanAppointment(row)
}
