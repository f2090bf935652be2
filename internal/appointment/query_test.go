package appointment

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]Doctor
	services map[uuid.UUID]ServiceType
	calls    int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		doctors:  make(map[uuid.UUID]Doctor),
		services: make(map[uuid.UUID]ServiceType),
	}
}

func (d *fakeDirectory) addDoctor(name, spec string) Doctor {
	doc := Doctor{ID: uuid.New(), Name: name, Specialization: spec}
	d.doctors[doc.ID] = doc
	return doc
}

func (d *fakeDirectory) addService(name, spec string) ServiceType {
	svc := ServiceType{ID: uuid.New(), Name: name, Specialization: spec}
	d.services[svc.ID] = svc
	return svc
}

func (d *fakeDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	doc, ok := d.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &doc, nil
}

func (d *fakeDirectory) GetService(_ context.Context, id uuid.UUID) (*ServiceType, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	svc, ok := d.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &svc, nil
}

func (d *fakeDirectory) DoctorsBySpecialization(_ context.Context, spec string) ([]Doctor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	var out []Doctor
	for _, doc := range d.doctors {
		if strings.EqualFold(doc.Specialization, spec) {
			out = append(out, doc)
		}
	}
	return out, nil
}

type queryFixture struct {
	*lifecycleFixture
	dir   *fakeDirectory
	query *ScheduleQuery
}

func newQueryFixture(t *testing.T, loc *time.Location) *queryFixture {
	t.Helper()
	repo := NewMemoryRepository()
	dir := newFakeDirectory()
	opts := Options{Directory: dir, Location: loc}
	slots := NewSlotStore(repo, opts)
	return &queryFixture{
		lifecycleFixture: &lifecycleFixture{repo: repo, slots: slots, svc: NewService(repo, slots, opts)},
		dir:              dir,
		query:            NewScheduleQuery(repo, opts),
	}
}

func TestListSlotsFilters(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, time.UTC)
	therapist := f.dir.addDoctor("Dr. House", "Therapy")
	surgeon := f.dir.addDoctor("Dr. Strange", "Surgery")

	mon := mustCreateSlot(t, f.slots, therapist.ID, date(2025, 6, 2), NewTimeOfDay(10, 0), NewTimeOfDay(11, 0))
	tue := mustCreateSlot(t, f.slots, therapist.ID, date(2025, 6, 3), NewTimeOfDay(9, 0), NewTimeOfDay(10, 0))
	mustCreateSlot(t, f.slots, surgeon.ID, date(2025, 6, 2), NewTimeOfDay(8, 0), NewTimeOfDay(9, 0))
	_, err := f.slots.ReserveSlot(ctx, tue.ID, uuid.New())
	require.NoError(t, err)

	all, err := f.query.ListSlots(ctx, SlotQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, surgeon.ID, all[0].DoctorID, "ordered by date then start")

	byDoctor, err := f.query.ListSlots(ctx, SlotQuery{DoctorID: &therapist.ID})
	require.NoError(t, err)
	assert.Len(t, byDoctor, 2)

	free, err := f.query.ListSlots(ctx, SlotQuery{DoctorID: &therapist.ID, Statuses: []SlotStatus{SlotAvailable}})
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Equal(t, mon.ID, free[0].ID)

	day := date(2025, 6, 3)
	onTuesday, err := f.query.ListSlots(ctx, SlotQuery{Dates: DateRange{From: &day, To: &day}})
	require.NoError(t, err)
	require.Len(t, onTuesday, 1)
	assert.Equal(t, tue.ID, onTuesday[0].ID)

	bySpec, err := f.query.ListSlots(ctx, SlotQuery{Specialization: "surgery"})
	require.NoError(t, err)
	require.Len(t, bySpec, 1)
	assert.Equal(t, surgeon.ID, bySpec[0].DoctorID)

	none, err := f.query.ListSlots(ctx, SlotQuery{Specialization: "Dentistry"})
	require.NoError(t, err)
	assert.Empty(t, none)

	mismatch, err := f.query.ListSlots(ctx, SlotQuery{DoctorID: &therapist.ID, Specialization: "Surgery"})
	require.NoError(t, err)
	assert.Empty(t, mismatch)

	later := date(2025, 6, 5)
	_, err = f.query.ListSlots(ctx, SlotQuery{Dates: DateRange{From: &later, To: &day}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSpecializationNeedsDirectory(t *testing.T) {
	q := NewScheduleQuery(NewMemoryRepository(), Options{})
	_, err := q.ListSlots(context.Background(), SlotQuery{Specialization: "Therapy"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSlotsBySpecialization(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, time.UTC)
	a := f.dir.addDoctor("Dr. A", "Therapy")
	b := f.dir.addDoctor("Dr. B", "Therapy")
	c := f.dir.addDoctor("Dr. C", "Surgery")

	mustCreateSlot(t, f.slots, a.ID, date(2025, 6, 2), NewTimeOfDay(10, 0), NewTimeOfDay(11, 0))
	mustCreateSlot(t, f.slots, b.ID, date(2025, 6, 2), NewTimeOfDay(10, 0), NewTimeOfDay(11, 0))
	mustCreateSlot(t, f.slots, c.ID, date(2025, 6, 2), NewTimeOfDay(10, 0), NewTimeOfDay(11, 0))
	mustCreateSlot(t, f.slots, c.ID, date(2025, 6, 2), NewTimeOfDay(11, 0), NewTimeOfDay(12, 0))

	groups, err := f.query.SlotsBySpecialization(ctx, SlotQuery{})
	require.NoError(t, err)
	assert.Len(t, groups["Therapy"], 2)
	assert.Len(t, groups["Surgery"], 2)
}

func TestListAppointmentsWindow(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, time.UTC)
	doc := f.dir.addDoctor("Dr. A", "Therapy")

	early := f.slot(t, doc.ID, 9)
	late := f.slot(t, doc.ID, 15)
	a1, a2, a3 := f.request(t), f.request(t), f.request(t)
	_, err := f.svc.BindSlot(ctx, a1.ID, early.ID)
	require.NoError(t, err)
	_, err = f.svc.BindSlot(ctx, a2.ID, late.ID)
	require.NoError(t, err)

	from := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	got, err := f.query.ListAppointments(ctx, AppointmentQuery{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, got, 1, "window is half-open")
	assert.Equal(t, a1.ID, got[0].ID)

	all, err := f.query.ListAppointments(ctx, AppointmentQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, a3.ID, all[2].ID, "unscheduled appointments sort last")

	requested, err := f.query.ListAppointments(ctx, AppointmentQuery{Statuses: []AppointmentStatus{StatusRequested}, Specialization: "therapy"})
	require.NoError(t, err)
	assert.Len(t, requested, 2)

	_, err = f.query.ListAppointments(ctx, AppointmentQuery{From: &to, To: &from})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStartOfWeek(t *testing.T) {
	sunday := time.Date(2025, 6, 8, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), StartOfWeek(sunday, time.UTC))

	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, StartOfWeek(monday, time.UTC))

	// 23:30 UTC on Sunday is already Monday in Moscow.
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	got := StartOfWeek(time.Date(2025, 6, 8, 23, 30, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, loc), got)
}

func TestWeeklyGrid(t *testing.T) {
	ctx := context.Background()
	f := newQueryFixture(t, time.UTC)
	doc := f.dir.addDoctor("Dr. A", "Therapy")
	other := f.dir.addDoctor("Dr. B", "Surgery")

	monday10 := mustCreateSlot(t, f.slots, doc.ID, date(2025, 6, 2), NewTimeOfDay(10, 0), NewTimeOfDay(10, 30))
	monday1030 := mustCreateSlot(t, f.slots, doc.ID, date(2025, 6, 2), NewTimeOfDay(10, 30), NewTimeOfDay(11, 0))
	sunday9 := mustCreateSlot(t, f.slots, doc.ID, date(2025, 6, 8), NewTimeOfDay(9, 0), NewTimeOfDay(10, 0))
	nextWeek := mustCreateSlot(t, f.slots, doc.ID, date(2025, 6, 9), NewTimeOfDay(9, 0), NewTimeOfDay(10, 0))
	otherDoc := mustCreateSlot(t, f.slots, other.ID, date(2025, 6, 3), NewTimeOfDay(12, 0), NewTimeOfDay(13, 0))
	cancelledSlot := mustCreateSlot(t, f.slots, doc.ID, date(2025, 6, 4), NewTimeOfDay(12, 0), NewTimeOfDay(13, 0))

	bind := func(s *Slot) *Appointment {
		a := f.request(t)
		bound, err := f.svc.BindSlot(ctx, a.ID, s.ID)
		require.NoError(t, err)
		return bound
	}
	a1, a2, a3 := bind(monday10), bind(monday1030), bind(sunday9)
	bind(nextWeek)
	bind(otherDoc)
	gone := bind(cancelledSlot)
	_, err := f.svc.Cancel(ctx, gone.ID)
	require.NoError(t, err)

	// Staff placed one appointment on the calendar without a slot.
	loose := f.request(t)
	_, err = f.svc.SetScheduledTime(ctx, loose.ID, time.Date(2025, 6, 5, 16, 15, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = f.svc.AssignDoctorAndService(ctx, loose.ID, doc.ID, f.dir.addService("Checkup", "Therapy").ID)
	require.NoError(t, err)

	grid, err := f.query.WeeklyGrid(ctx, &doc.ID, time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, date(2025, 6, 2), grid.WeekStart)

	mon10 := grid.Cells[GridCell{Day: 0, Hour: 10}]
	require.Len(t, mon10, 2)
	assert.Equal(t, a1.ID, mon10[0].ID)
	assert.Equal(t, a2.ID, mon10[1].ID)

	sun9 := grid.Cells[GridCell{Day: 6, Hour: 9}]
	require.Len(t, sun9, 1)
	assert.Equal(t, a3.ID, sun9[0].ID)

	thu16 := grid.Cells[GridCell{Day: 3, Hour: 16}]
	require.Len(t, thu16, 1)
	assert.Equal(t, loose.ID, thu16[0].ID)

	assert.Equal(t, []GridCell{{0, 10}, {3, 16}, {6, 9}}, grid.Hours(),
		"next week, other doctors and cancelled appointments are left out")

	everyone, err := f.query.WeeklyGrid(ctx, nil, time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, everyone.Cells[GridCell{Day: 1, Hour: 12}], 1)
}
