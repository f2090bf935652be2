package appointment

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ScheduleQuery is the read side used to render calendars and queues.
// Nothing here writes or caches.
type ScheduleQuery struct {
	repo Repository
	dir  Directory
	loc  *time.Location
}

func NewScheduleQuery(repo Repository, opts Options) *ScheduleQuery {
	return &ScheduleQuery{
		repo: repo,
		dir:  opts.Directory,
		loc:  opts.location(),
	}
}

type SlotQuery struct {
	DoctorID       *uuid.UUID
	Specialization string
	Dates          DateRange
	Statuses       []SlotStatus
}

type AppointmentQuery struct {
	DoctorID       *uuid.UUID
	Specialization string
	Statuses       []AppointmentStatus
	From           *time.Time
	To             *time.Time
}

// resolveDoctors turns the doctor and specialization filters into an id list.
// ok is false when the filters cannot match any doctor.
func (q *ScheduleQuery) resolveDoctors(ctx context.Context, doctorID *uuid.UUID, specialization string) (ids []uuid.UUID, ok bool, err error) {
	if specialization == "" {
		if doctorID != nil {
			return []uuid.UUID{*doctorID}, true, nil
		}
		return nil, true, nil
	}
	if q.dir == nil {
		return nil, false, fmt.Errorf("%w: specialization filter needs a doctor directory", ErrInvalidInput)
	}

	docs, err := q.dir.DoctorsBySpecialization(ctx, specialization)
	if err != nil {
		return nil, false, fmt.Errorf("resolve specialization: %w", err)
	}
	for _, d := range docs {
		if doctorID == nil || d.ID == *doctorID {
			ids = append(ids, d.ID)
		}
	}
	return ids, len(ids) > 0, nil
}

func (q *ScheduleQuery) ListSlots(ctx context.Context, sq SlotQuery) ([]Slot, error) {
	if sq.Dates.From != nil && sq.Dates.To != nil && DateOf(*sq.Dates.From).After(DateOf(*sq.Dates.To)) {
		return nil, fmt.Errorf("%w: date range starts after it ends", ErrInvalidInput)
	}

	ids, ok, err := q.resolveDoctors(ctx, sq.DoctorID, sq.Specialization)
	if err != nil || !ok {
		return nil, err
	}

	slots, err := q.repo.ListSlots(ctx, SlotFilter{
		DoctorIDs: ids,
		Dates:     sq.Dates,
		Statuses:  sq.Statuses,
	})
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (q *ScheduleQuery) ListAppointments(ctx context.Context, aq AppointmentQuery) ([]Appointment, error) {
	if aq.From != nil && aq.To != nil && !aq.From.Before(*aq.To) {
		return nil, fmt.Errorf("%w: window starts after it ends", ErrInvalidInput)
	}

	ids, ok, err := q.resolveDoctors(ctx, aq.DoctorID, aq.Specialization)
	if err != nil || !ok {
		return nil, err
	}

	appts, err := q.repo.ListAppointments(ctx, AppointmentFilter{
		DoctorIDs: ids,
		Statuses:  aq.Statuses,
		From:      aq.From,
		To:        aq.To,
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// SlotsBySpecialization groups matching slots under their doctor's specialization.
func (q *ScheduleQuery) SlotsBySpecialization(ctx context.Context, sq SlotQuery) (map[string][]Slot, error) {
	if q.dir == nil {
		return nil, fmt.Errorf("%w: grouping needs a doctor directory", ErrInvalidInput)
	}

	slots, err := q.ListSlots(ctx, sq)
	if err != nil {
		return nil, err
	}

	specs := make(map[uuid.UUID]string)
	groups := make(map[string][]Slot)
	for _, s := range slots {
		spec, seen := specs[s.DoctorID]
		if !seen {
			doc, err := q.dir.GetDoctor(ctx, s.DoctorID)
			if err != nil {
				return nil, err
			}
			spec = doc.Specialization
			specs[s.DoctorID] = spec
		}
		groups[spec] = append(groups[spec], s)
	}
	return groups, nil
}

// GridCell addresses one hour of one day in a week grid. Day 0 is Monday.
type GridCell struct {
	Day  int
	Hour int
}

type WeekGrid struct {
	WeekStart time.Time
	Cells     map[GridCell][]Appointment
}

// StartOfWeek returns Monday 00:00 of the week containing t, in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	offset := (int(local.Weekday()) + 6) % 7
	y, m, d := local.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
}

// WeeklyGrid buckets the week's scheduled, non-cancelled appointments by day and hour.
// A nil doctorID covers all doctors.
func (q *ScheduleQuery) WeeklyGrid(ctx context.Context, doctorID *uuid.UUID, anchor time.Time) (*WeekGrid, error) {
	start := StartOfWeek(anchor, q.loc)
	y, m, d := start.Date()
	end := time.Date(y, m, d+7, 0, 0, 0, 0, q.loc)

	appts, err := q.ListAppointments(ctx, AppointmentQuery{
		DoctorID: doctorID,
		Statuses: []AppointmentStatus{StatusRequested, StatusConfirmed, StatusCompleted},
		From:     &start,
		To:       &end,
	})
	if err != nil {
		return nil, err
	}

	grid := &WeekGrid{
		WeekStart: start,
		Cells:     make(map[GridCell][]Appointment),
	}
	for _, a := range appts {
		if a.ScheduledAt == nil {
			continue
		}
		local := a.ScheduledAt.In(q.loc)
		cell := GridCell{
			Day:  (int(local.Weekday()) + 6) % 7,
			Hour: local.Hour(),
		}
		grid.Cells[cell] = append(grid.Cells[cell], a)
	}
	return grid, nil
}

// Hours returns the occupied cells in day-then-hour order.
func (g *WeekGrid) Hours() []GridCell {
	cells := make([]GridCell, 0, len(g.Cells))
	for c := range g.Cells {
		cells = append(cells, c)
	}
	slices.SortFunc(cells, func(a, b GridCell) int {
		if a.Day != b.Day {
			return a.Day - b.Day
		}
		return a.Hour - b.Hour
	})
	return cells
}
