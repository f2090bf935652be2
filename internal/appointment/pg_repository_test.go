package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	slotCols = []string{"id", "doctor_id", "slot_date", "start_minute", "end_minute", "status",
		"appointment_id", "service_tag", "created_at", "updated_at"}
	appointmentCols = []string{"id", "created_at", "updated_at", "scheduled_at", "status", "owner_id",
		"pet_name", "pet_species", "complaint", "desired_doctor_id", "desired_service_id",
		"doctor_id", "service_id", "slot_id"}
)

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPgRepository(mock), mock
}

func slotRow(id, doctorID uuid.UUID, status SlotStatus, apptID *uuid.UUID) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(slotCols).AddRow(
		id, doctorID, date(2025, 6, 2), 600, 660, string(status),
		apptID, (*string)(nil), now, now,
	)
}

func appointmentRow(id uuid.UUID, status AppointmentStatus, slotID *uuid.UUID) *pgxmock.Rows {
	now := time.Now()
	none := (*uuid.UUID)(nil)
	return pgxmock.NewRows(appointmentCols).AddRow(
		id, now, now, (*time.Time)(nil), string(status), uuid.New(),
		"Rex", "dog", "limping", none, none, none, none, slotID,
	)
}

func TestPgInsertSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctor := uuid.New()
	id := uuid.New()

	mock.ExpectQuery("INSERT INTO slots").
		WithArgs(id, doctor, date(2025, 6, 2), 600, 660, pgxmock.AnyArg()).
		WillReturnRows(slotRow(id, doctor, SlotAvailable, nil))

	s, err := repo.InsertSlot(context.Background(), Slot{
		ID:       id,
		DoctorID: doctor,
		Date:     time.Date(2025, 6, 2, 15, 4, 0, 0, time.UTC),
		Start:    NewTimeOfDay(10, 0),
		End:      NewTimeOfDay(11, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, s.Status)
	assert.Equal(t, NewTimeOfDay(10, 0), s.Start)
	assert.Equal(t, NewTimeOfDay(11, 0), s.End)
}

func TestPgInsertSlotMapsConstraintErrors(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO slots").
		WillReturnError(&pgconn.PgError{Code: pgExclusionViolation, ConstraintName: "slots_no_overlap"})
	_, err := repo.InsertSlot(context.Background(), Slot{DoctorID: uuid.New(), Start: 600, End: 660})
	assert.ErrorIs(t, err, ErrSlotOverlap)

	mock.ExpectQuery("INSERT INTO slots").
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})
	_, err = repo.InsertSlot(context.Background(), Slot{DoctorID: uuid.New(), Start: 600, End: 660})
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestPgReserveSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID, apptID, doctor := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery("UPDATE slots").
		WithArgs(slotID, apptID).
		WillReturnRows(slotRow(slotID, doctor, SlotBusy, &apptID))

	s, err := repo.ReserveSlot(context.Background(), slotID, apptID)
	require.NoError(t, err)
	assert.Equal(t, SlotBusy, s.Status)
	assert.Equal(t, apptID, *s.AppointmentID)
}

func TestPgReserveSlotConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID, holder := uuid.New(), uuid.New()

	mock.ExpectQuery("UPDATE slots").
		WithArgs(slotID, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM slots").
		WithArgs(slotID).
		WillReturnRows(slotRow(slotID, uuid.New(), SlotBusy, &holder))

	_, err := repo.ReserveSlot(context.Background(), slotID, uuid.New())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPgReserveSlotMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID := uuid.New()

	mock.ExpectQuery("UPDATE slots").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM slots").WithArgs(slotID).WillReturnError(pgx.ErrNoRows)

	_, err := repo.ReserveSlot(context.Background(), slotID, uuid.New())
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestPgReleaseBusySlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID, apptID, doctor := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM slots (.+) FOR UPDATE").
		WithArgs(slotID).
		WillReturnRows(slotRow(slotID, doctor, SlotBusy, &apptID))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(apptID, slotID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("UPDATE slots").
		WithArgs(slotID).
		WillReturnRows(slotRow(slotID, doctor, SlotAvailable, nil))
	mock.ExpectCommit()

	s, err := repo.ReleaseSlot(context.Background(), slotID)
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, s.Status)
	assert.Nil(t, s.AppointmentID)
}

func TestPgReleaseAvailableSlotIsNoop(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM slots (.+) FOR UPDATE").
		WithArgs(slotID).
		WillReturnRows(slotRow(slotID, uuid.New(), SlotAvailable, nil))
	mock.ExpectCommit()

	s, err := repo.ReleaseSlot(context.Background(), slotID)
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, s.Status)
}

func TestPgDeleteSlot(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM slots").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, repo.DeleteSlot(ctx, id))

	mock.ExpectExec("DELETE FROM slots").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT status FROM slots").WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("busy"))
	assert.ErrorIs(t, repo.DeleteSlot(ctx, id), ErrSlotBusy)

	mock.ExpectExec("DELETE FROM slots").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT status FROM slots").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	assert.ErrorIs(t, repo.DeleteSlot(ctx, id), ErrSlotNotFound)
}

func TestPgDeleteAvailableSlots(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctor := uuid.New()
	from := time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
	wantFrom := date(2025, 6, 2)

	mock.ExpectExec("DELETE FROM slots").
		WithArgs(doctor, &wantFrom, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := repo.DeleteAvailableSlots(context.Background(), doctor, DateRange{From: &from})
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
}

func TestPgListSlotsBuildsFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctor := uuid.New()
	from := date(2025, 6, 2)

	mock.ExpectQuery(`WHERE doctor_id = ANY\(\$1\) AND slot_date >= \$2 AND status = ANY\(\$3\)`).
		WithArgs([]uuid.UUID{doctor}, from, []string{"available"}).
		WillReturnRows(slotRow(uuid.New(), doctor, SlotAvailable, nil))

	slots, err := repo.ListSlots(context.Background(), SlotFilter{
		DoctorIDs: []uuid.UUID{doctor},
		Dates:     DateRange{From: &from},
		Statuses:  []SlotStatus{SlotAvailable},
	})
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestPgUpdateStatusCompareAndSet(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "confirmed", "requested").
		WillReturnRows(appointmentRow(id, StatusConfirmed, nil))
	a, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusRequested, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "completed", "confirmed").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.UpdateAppointmentStatus(context.Background(), id, StatusConfirmed, StatusCompleted)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgCancelReleasesSlotInTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE appointments (.+) slot_id = NULL").
		WithArgs(id, "cancelled", "confirmed").
		WillReturnRows(appointmentRow(id, StatusCancelled, nil))
	mock.ExpectExec("UPDATE slots (.+) WHERE appointment_id = \\$1").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	a, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusConfirmed, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, a.Status)
	assert.Nil(t, a.SlotID)
}

func TestPgCancelRollsBackOnSlotError(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE appointments").
		WillReturnRows(appointmentRow(id, StatusCancelled, nil))
	mock.ExpectExec("UPDATE slots").
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	_, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusRequested, StatusCancelled)
	assert.Error(t, err)
}

func TestPgAttachSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	slot := Slot{ID: uuid.New(), DoctorID: uuid.New(), Date: date(2025, 6, 2), Start: 600, End: 660}
	at := slot.StartsAt(time.UTC)

	mock.ExpectQuery("UPDATE appointments (.+) slot_id IS NOT DISTINCT FROM \\$5").
		WithArgs(id, slot.ID, at, slot.DoctorID, (*uuid.UUID)(nil)).
		WillReturnRows(appointmentRow(id, StatusRequested, &slot.ID))

	a, err := repo.AttachSlot(context.Background(), id, nil, slot, at)
	require.NoError(t, err)
	assert.Equal(t, slot.ID, *a.SlotID)
}

func TestPgInsertAppointmentMapsMissingReferences(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{constraint: "appointments_desired_doctor_id_fkey", want: ErrDoctorNotFound},
		{constraint: "appointments_doctor_id_fkey", want: ErrDoctorNotFound},
		{constraint: "appointments_desired_service_id_fkey", want: ErrServiceNotFound},
		{constraint: "appointments_service_id_fkey", want: ErrServiceNotFound},
		{constraint: "appointments_slot_id_fkey", want: ErrSlotNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectQuery("INSERT INTO appointments").
				WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: tt.constraint})

			_, err := repo.InsertAppointment(context.Background(), Appointment{OwnerID: uuid.New()})
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPgAssignDoctorAndService(t *testing.T) {
	repo, mock := newMockRepo(t)
	id, doctor, service := uuid.New(), uuid.New(), uuid.New()
	slotID := uuid.New()

	mock.ExpectQuery("UPDATE appointments (.+) slot_id IS NOT DISTINCT FROM \\$4").
		WithArgs(id, doctor, service, &slotID).
		WillReturnRows(appointmentRow(id, StatusRequested, &slotID))
	_, err := repo.AssignDoctorAndService(context.Background(), id, &slotID, doctor, service)
	require.NoError(t, err)

	// The binding moved since the caller read it.
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, doctor, service, (*uuid.UUID)(nil)).
		WillReturnRows(pgxmock.NewRows(appointmentCols))
	_, err = repo.AssignDoctorAndService(context.Background(), id, nil, doctor, service)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	mock.ExpectQuery("UPDATE appointments").
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: "appointments_service_id_fkey"})
	_, err = repo.AssignDoctorAndService(context.Background(), id, nil, doctor, service)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestPgDirectory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	dir := NewPgDirectory(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, name, specialization FROM doctors").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "specialization"}).AddRow(id, "Dr. A", "Therapy"))
	doc, err := dir.GetDoctor(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Therapy", doc.Specialization)

	mock.ExpectQuery("FROM services").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err = dir.GetService(context.Background(), id)
	assert.ErrorIs(t, err, ErrServiceNotFound)

	mock.ExpectQuery("WHERE lower\\(specialization\\) = lower\\(\\$1\\)").
		WithArgs("therapy").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "specialization"}).
			AddRow(uuid.New(), "Dr. A", "Therapy").
			AddRow(uuid.New(), "Dr. B", "Therapy"))
	docs, err := dir.DoctorsBySpecialization(context.Background(), "therapy")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	assert.NoError(t, mock.ExpectationsWereMet())
}
