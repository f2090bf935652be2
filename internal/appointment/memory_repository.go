package appointment

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a Repository held in process memory. A single mutex makes
// every method atomic, which gives the same guarantees as the Postgres
// compare-and-set statements.
type MemoryRepository struct {
	mu           sync.Mutex
	now          func() time.Time
	slots        map[uuid.UUID]*Slot
	appointments map[uuid.UUID]*Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:          time.Now,
		slots:        make(map[uuid.UUID]*Slot),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func cloneSlot(s *Slot) *Slot {
	c := *s
	if s.AppointmentID != nil {
		id := *s.AppointmentID
		c.AppointmentID = &id
	}
	if s.ServiceTag != nil {
		tag := *s.ServiceTag
		c.ServiceTag = &tag
	}
	return &c
}

func cloneAppointment(a *Appointment) *Appointment {
	c := *a
	c.ScheduledAt = clonePtr(a.ScheduledAt)
	c.DesiredDoctorID = clonePtr(a.DesiredDoctorID)
	c.DesiredServiceID = clonePtr(a.DesiredServiceID)
	c.DoctorID = clonePtr(a.DoctorID)
	c.ServiceID = clonePtr(a.ServiceID)
	c.SlotID = clonePtr(a.SlotID)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// releaseLocked frees s without touching the owning appointment.
func (r *MemoryRepository) releaseLocked(s *Slot) {
	s.Status = SlotAvailable
	s.AppointmentID = nil
	s.UpdatedAt = r.now()
}

// Slots

func (r *MemoryRepository) InsertSlot(_ context.Context, s Slot) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.Date = DateOf(s.Date)
	for _, existing := range r.slots {
		if existing.DoctorID == s.DoctorID && existing.Date.Equal(s.Date) && existing.Overlaps(s.Start, s.End) {
			return nil, ErrSlotOverlap
		}
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := r.now()
	s.Status = SlotAvailable
	s.AppointmentID = nil
	s.CreatedAt = now
	s.UpdatedAt = now

	stored := cloneSlot(&s)
	r.slots[s.ID] = stored
	return cloneSlot(stored), nil
}

func (r *MemoryRepository) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return cloneSlot(s), nil
}

func (r *MemoryRepository) ListSlots(_ context.Context, f SlotFilter) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Slot
	for _, s := range r.slots {
		if len(f.DoctorIDs) > 0 && !slices.Contains(f.DoctorIDs, s.DoctorID) {
			continue
		}
		if !f.Dates.Contains(s.Date) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, s.Status) {
			continue
		}
		result = append(result, *cloneSlot(s))
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.DoctorID.String() < b.DoctorID.String()
	})
	return result, nil
}

func (r *MemoryRepository) ReserveSlot(_ context.Context, slotID, apptID uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != SlotAvailable {
		return nil, ErrConflict
	}

	s.Status = SlotBusy
	s.AppointmentID = &apptID
	s.UpdatedAt = r.now()
	return cloneSlot(s), nil
}

func (r *MemoryRepository) ReleaseSlot(_ context.Context, slotID uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != SlotBusy {
		return cloneSlot(s), nil
	}

	if s.AppointmentID != nil {
		if a, ok := r.appointments[*s.AppointmentID]; ok && sameID(a.SlotID, &slotID) {
			a.SlotID = nil
			a.UpdatedAt = r.now()
		}
	}
	r.releaseLocked(s)
	return cloneSlot(s), nil
}

func (r *MemoryRepository) ReleaseSlotFor(_ context.Context, slotID, apptID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.slots[slotID]; ok && sameID(s.AppointmentID, &apptID) {
		r.releaseLocked(s)
	}
	return nil
}

func (r *MemoryRepository) UpdateSlotStatus(_ context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok || s.Status != from || s.AppointmentID != nil {
		return nil, ErrSlotNotFound
	}
	s.Status = to
	s.UpdatedAt = r.now()
	return cloneSlot(s), nil
}

func (r *MemoryRepository) DeleteSlot(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Status == SlotBusy {
		return ErrSlotBusy
	}
	delete(r.slots, id)
	return nil
}

func (r *MemoryRepository) DeleteAvailableSlots(_ context.Context, doctorID uuid.UUID, dates DateRange) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.slots {
		if s.DoctorID != doctorID || s.Status != SlotAvailable || !dates.Contains(s.Date) {
			continue
		}
		delete(r.slots, id)
		n++
	}
	return n, nil
}

// Appointments

func (r *MemoryRepository) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := r.now()
	a.Status = StatusRequested
	a.CreatedAt = now
	a.UpdatedAt = now

	stored := cloneAppointment(&a)
	r.appointments[a.ID] = stored
	return cloneAppointment(stored), nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f AppointmentFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if len(f.DoctorIDs) > 0 && (a.DoctorID == nil || !slices.Contains(f.DoctorIDs, *a.DoctorID)) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
			continue
		}
		if f.From != nil && (a.ScheduledAt == nil || a.ScheduledAt.Before(*f.From)) {
			continue
		}
		if f.To != nil && (a.ScheduledAt == nil || !a.ScheduledAt.Before(*f.To)) {
			continue
		}
		result = append(result, *cloneAppointment(a))
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		switch {
		case a.ScheduledAt != nil && b.ScheduledAt != nil && !a.ScheduledAt.Equal(*b.ScheduledAt):
			return a.ScheduledAt.Before(*b.ScheduledAt)
		case a.ScheduledAt != nil && b.ScheduledAt == nil:
			return true
		case a.ScheduledAt == nil && b.ScheduledAt != nil:
			return false
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return result, nil
}

// openLocked returns the appointment if it exists and is not terminal.
func (r *MemoryRepository) openLocked(id uuid.UUID) (*Appointment, bool) {
	a, ok := r.appointments[id]
	if !ok || a.Status.Terminal() {
		return nil, false
	}
	return a, true
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.UpdatedAt = r.now()
	if to == StatusCancelled {
		a.SlotID = nil
		for _, s := range r.slots {
			if sameID(s.AppointmentID, &id) {
				r.releaseLocked(s)
			}
		}
	}
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) AssignDoctorAndService(_ context.Context, id uuid.UUID, slotID *uuid.UUID, doctorID, serviceID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.openLocked(id)
	if !ok || !sameID(a.SlotID, slotID) {
		return nil, ErrAppointmentNotFound
	}
	a.DoctorID = &doctorID
	a.ServiceID = &serviceID
	a.UpdatedAt = r.now()
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) AttachSlot(_ context.Context, id uuid.UUID, prevSlotID *uuid.UUID, slot Slot, scheduledAt time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.openLocked(id)
	if !ok || !sameID(a.SlotID, prevSlotID) {
		return nil, ErrAppointmentNotFound
	}
	slotID := slot.ID
	doctorID := slot.DoctorID
	a.SlotID = &slotID
	a.DoctorID = &doctorID
	a.ScheduledAt = &scheduledAt
	a.UpdatedAt = r.now()
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) DetachSlot(_ context.Context, id, slotID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.openLocked(id)
	if !ok || !sameID(a.SlotID, &slotID) {
		return nil, ErrAppointmentNotFound
	}
	a.SlotID = nil
	a.UpdatedAt = r.now()
	if s, ok := r.slots[slotID]; ok && sameID(s.AppointmentID, &id) {
		r.releaseLocked(s)
	}
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) SetScheduledAt(_ context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.openLocked(id)
	if !ok || a.SlotID != nil {
		return nil, ErrAppointmentNotFound
	}
	a.ScheduledAt = &at
	a.UpdatedAt = r.now()
	return cloneAppointment(a), nil
}
