package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("slot is not available")
	ErrSlotBusy          = errors.New("slot is busy")
	ErrInvalidTransition = errors.New("invalid status transition")
)

var (
	ErrSlotNotFound        = fmt.Errorf("slot %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrServiceNotFound     = fmt.Errorf("service %w", ErrNotFound)

	ErrSlotOverlap = fmt.Errorf("%w: overlaps an existing slot", ErrConflict)
)

// Repository contains all datastore interactions needed by the engine.
// Every method is atomic on its own; compare-and-set methods take the expected
// current state and return a not-found error when the row no longer matches.
type Repository interface {
	// Slots
	InsertSlot(ctx context.Context, s Slot) (*Slot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error)

	// ReserveSlot flips available -> busy and binds apptID in one step.
	ReserveSlot(ctx context.Context, slotID, apptID uuid.UUID) (*Slot, error)
	// ReleaseSlot frees a busy slot and clears the owning appointment's slot reference.
	ReleaseSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error)
	// ReleaseSlotFor frees slotID only if it is still bound to apptID.
	ReleaseSlotFor(ctx context.Context, slotID, apptID uuid.UUID) error
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error)

	// DeleteSlot removes a non-busy slot. Returns ErrSlotBusy when occupied.
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	DeleteAvailableSlots(ctx context.Context, doctorID uuid.UUID, dates DateRange) (int64, error)

	// Appointments
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)

	// UpdateAppointmentStatus moves from -> to. Moving to cancelled also releases
	// any slot bound to the appointment in the same step.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	// AssignDoctorAndService applies if the appointment is non-terminal and still holds slotID.
	AssignDoctorAndService(ctx context.Context, id uuid.UUID, slotID *uuid.UUID, doctorID, serviceID uuid.UUID) (*Appointment, error)
	// AttachSlot sets the slot binding if the appointment is non-terminal and still
	// holds prevSlotID.
	AttachSlot(ctx context.Context, id uuid.UUID, prevSlotID *uuid.UUID, slot Slot, scheduledAt time.Time) (*Appointment, error)
	// DetachSlot clears the binding and releases the slot if the appointment still holds slotID.
	DetachSlot(ctx context.Context, id, slotID uuid.UUID) (*Appointment, error)
	// SetScheduledAt only applies to non-terminal appointments without a bound slot.
	SetScheduledAt(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)
}
