package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusRequested AppointmentStatus = "requested"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// ParseAppointmentStatus accepts only the closed set of lifecycle states.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusRequested, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown appointment status %q", ErrInvalidInput, s)
	}
}

// Terminal reports whether no transition may leave s.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes the lifecycle:
// requested -> confirmed -> completed, requested|confirmed -> cancelled.
func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	switch s {
	case StatusRequested:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled
	case StatusCompleted, StatusCancelled:
		return false
	default:
		return false
	}
}

type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotBusy        SlotStatus = "busy"
	SlotUnavailable SlotStatus = "unavailable"
)

func ParseSlotStatus(s string) (SlotStatus, error) {
	switch st := SlotStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case SlotAvailable, SlotBusy, SlotUnavailable:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown slot status %q", ErrInvalidInput, s)
	}
}

// TimeOfDay is a wall-clock time as minutes since midnight. 24:00 is valid as an end bound.
type TimeOfDay int

const endOfDay TimeOfDay = 24 * 60

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM". "24:00" is accepted as the end of the day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return endOfDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time of day %q must be HH:MM", ErrInvalidInput, s)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= endOfDay
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On returns the instant t falls on for the given calendar date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
}

// DateOf strips the clock from t and returns midnight UTC of its calendar date.
// Slot dates are always stored in this form.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Slot is a bookable time window [Start, End) for one doctor on one date.
type Slot struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	Date          time.Time
	Start         TimeOfDay
	End           TimeOfDay
	Status        SlotStatus
	AppointmentID *uuid.UUID
	ServiceTag    *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Overlaps treats both windows as half-open, so touching endpoints do not overlap.
func (s Slot) Overlaps(start, end TimeOfDay) bool {
	return s.Start < end && start < s.End
}

// StartsAt is the instant the slot begins in the clinic's timezone.
func (s Slot) StartsAt(loc *time.Location) time.Time {
	return s.Start.On(s.Date, loc)
}

type PetInfo struct {
	Name    string
	Species string
}

// Appointment keeps what the requester asked for (Desired*) apart from what staff
// assigned (DoctorID, ServiceID).
type Appointment struct {
	ID               uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ScheduledAt      *time.Time
	Status           AppointmentStatus
	OwnerID          uuid.UUID
	Pet              PetInfo
	Complaint        string
	DesiredDoctorID  *uuid.UUID
	DesiredServiceID *uuid.UUID
	DoctorID         *uuid.UUID
	ServiceID        *uuid.UUID
	SlotID           *uuid.UUID
}

// NewAppointment is the input for creating a Requested appointment.
// SlotID is only set by staff who book a concrete slot up front.
type NewAppointment struct {
	OwnerID          uuid.UUID
	Pet              PetInfo
	Complaint        string
	DesiredDoctorID  *uuid.UUID
	DesiredServiceID *uuid.UUID
	SlotID           *uuid.UUID
}

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Specialization string
}

type ServiceType struct {
	ID             uuid.UUID
	Name           string
	Specialization string
}

// DateRange is an inclusive range of calendar dates. Nil bounds are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (r DateRange) Contains(date time.Time) bool {
	d := DateOf(date)
	if r.From != nil && d.Before(DateOf(*r.From)) {
		return false
	}
	if r.To != nil && d.After(DateOf(*r.To)) {
		return false
	}
	return true
}

type SlotFilter struct {
	DoctorIDs []uuid.UUID
	Dates     DateRange
	Statuses  []SlotStatus
}

type AppointmentFilter struct {
	DoctorIDs []uuid.UUID
	Statuses  []AppointmentStatus
	// Window bounds ScheduledAt as [From, To). Unscheduled appointments never match a bounded window.
	From *time.Time
	To   *time.Time
}
