package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

const (
	EventAppointmentCreated    = "APPOINTMENT_CREATED"
	EventAppointmentTransition = "APPOINTMENT_TRANSITION"
	EventSlotBound             = "SLOT_BOUND"
	EventSlotUnbound           = "SLOT_UNBOUND"
)

var (
	ErrSlotAlreadyTaken = fmt.Errorf("slot already taken: %w", ErrConflict)
	ErrScheduleFollows  = fmt.Errorf("%w: scheduled time follows the bound slot", ErrConflict)
)

// Service drives appointments through their lifecycle and keeps slot occupancy
// consistent with it.
type Service struct {
	repo    Repository
	slots   *SlotStore
	dir     Directory
	loc     *time.Location
	log     zerolog.Logger
	metrics *metrics.SchedulingMetrics
}

func NewService(repo Repository, slots *SlotStore, opts Options) *Service {
	return &Service{
		repo:    repo,
		slots:   slots,
		dir:     opts.Directory,
		loc:     opts.location(),
		log:     opts.Logger.With().Str("component", "appointment_lifecycle").Logger(),
		metrics: opts.Metrics,
	}
}

// CreateAppointment stores a new Requested appointment. When req.SlotID is set the
// slot is reserved first under the new appointment's id, so the appointment is
// created already bound.
func (s *Service) CreateAppointment(ctx context.Context, req NewAppointment) (*Appointment, error) {
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}

	if err := s.checkDesired(ctx, req); err != nil {
		return nil, err
	}

	appt := Appointment{
		ID:               uuid.New(),
		OwnerID:          req.OwnerID,
		Pet:              req.Pet,
		Complaint:        req.Complaint,
		DesiredDoctorID:  req.DesiredDoctorID,
		DesiredServiceID: req.DesiredServiceID,
	}

	var reserved *Slot
	if req.SlotID != nil {
		slot, err := s.slots.ReserveSlot(ctx, *req.SlotID, appt.ID)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return nil, ErrSlotAlreadyTaken
			}
			return nil, err
		}
		reserved = slot
		at := slot.StartsAt(s.loc)
		appt.SlotID = &slot.ID
		appt.DoctorID = &slot.DoctorID
		appt.ScheduledAt = &at
	}

	created, err := s.repo.InsertAppointment(ctx, appt)
	if err != nil {
		if reserved != nil {
			s.releaseQuietly(ctx, reserved.ID, appt.ID)
		}
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.metrics.ObserveTransition("", string(StatusRequested))
	s.logEvent(created.ID, EventAppointmentCreated).
		Str("owner_id", created.OwnerID.String()).
		Bool("slot_bound", created.SlotID != nil).
		Msg("appointment created")
	return created, nil
}

// checkDesired resolves the requester's preferred doctor and service when a
// directory is configured.
func (s *Service) checkDesired(ctx context.Context, req NewAppointment) error {
	if s.dir == nil {
		return nil
	}
	if req.DesiredDoctorID != nil {
		if _, err := s.dir.GetDoctor(ctx, *req.DesiredDoctorID); err != nil {
			return err
		}
	}
	if req.DesiredServiceID != nil {
		if _, err := s.dir.GetService(ctx, *req.DesiredServiceID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// loadOpen returns the appointment if it may still be changed.
func (s *Service) loadOpen(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, appt.Status)
	}
	return appt, nil
}

// AssignDoctorAndService records staff's decision. The requester's desired fields are
// left untouched. A bound slot pins the doctor; reassigning to someone else requires
// unbinding first.
func (s *Service) AssignDoctorAndService(ctx context.Context, id, doctorID, serviceID uuid.UUID) (*Appointment, error) {
	if doctorID == uuid.Nil || serviceID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor and service are required", ErrInvalidInput)
	}

	appt, err := s.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.SlotID != nil && appt.DoctorID != nil && *appt.DoctorID != doctorID {
		return nil, fmt.Errorf("%w: bound slot belongs to another doctor", ErrConflict)
	}

	if s.dir != nil {
		if _, err := s.dir.GetDoctor(ctx, doctorID); err != nil {
			return nil, err
		}
		if _, err := s.dir.GetService(ctx, serviceID); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.AssignDoctorAndService(ctx, id, appt.SlotID, doctorID, serviceID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("assign doctor and service: %w", err)
	}

	s.log.Info().
		Str("appointment_id", id.String()).
		Str("doctor_id", doctorID.String()).
		Str("service_id", serviceID.String()).
		Msg("doctor and service assigned")
	return updated, nil
}

// BindSlot reserves slotID for the appointment and derives its scheduled time and
// doctor from the slot. A previously bound slot is released after the new one is held.
func (s *Service) BindSlot(ctx context.Context, id, slotID uuid.UUID) (*Appointment, error) {
	appt, err := s.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.SlotID != nil && *appt.SlotID == slotID {
		return appt, nil
	}

	slot, err := s.slots.ReserveSlot(ctx, slotID, id)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrSlotAlreadyTaken
		}
		return nil, err
	}

	updated, err := s.repo.AttachSlot(ctx, id, appt.SlotID, *slot, slot.StartsAt(s.loc))
	if err != nil {
		s.releaseQuietly(ctx, slotID, id)
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("bind slot: %w", err)
	}

	if appt.SlotID != nil {
		s.releaseQuietly(ctx, *appt.SlotID, id)
	}

	s.logEvent(id, EventSlotBound).
		Str("slot_id", slotID.String()).
		Time("scheduled_at", *updated.ScheduledAt).
		Msg("slot bound")
	return updated, nil
}

// UnbindSlot releases the bound slot without changing the appointment's status.
func (s *Service) UnbindSlot(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.SlotID == nil {
		return appt, nil
	}

	slotID := *appt.SlotID
	updated, err := s.repo.DetachSlot(ctx, id, slotID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("unbind slot: %w", err)
	}

	s.logEvent(id, EventSlotUnbound).
		Str("slot_id", slotID.String()).
		Msg("slot unbound")
	return updated, nil
}

// SetScheduledTime lets staff put an appointment on the calendar without a formal slot.
func (s *Service) SetScheduledTime(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("%w: scheduled time is required", ErrInvalidInput)
	}

	appt, err := s.loadOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.SlotID != nil {
		return nil, ErrScheduleFollows
	}

	updated, err := s.repo.SetScheduledAt(ctx, id, at)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("set scheduled time: %w", err)
	}
	return updated, nil
}

// Confirm moves a Requested appointment to Confirmed. A slot is not required.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed)
}

// Cancel ends a Requested or Confirmed appointment and frees its slot in the same step.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled)
}

// Complete closes a Confirmed appointment.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	from := appt.Status
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, from, to)
	if err != nil {
		// The row existed a moment ago, so a miss means another writer moved it first.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("%s appointment: %w", to, err)
	}

	s.metrics.ObserveTransition(string(from), string(to))
	s.logEvent(id, EventAppointmentTransition).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("appointment status changed")
	return updated, nil
}

// releaseQuietly undoes a reservation made on behalf of apptID. It runs even if ctx
// was cancelled, and failures are logged since the caller already has an error to report.
func (s *Service) releaseQuietly(ctx context.Context, slotID, apptID uuid.UUID) {
	if err := s.repo.ReleaseSlotFor(context.WithoutCancel(ctx), slotID, apptID); err != nil {
		s.log.Error().
			Err(err).
			Str("slot_id", slotID.String()).
			Str("appointment_id", apptID.String()).
			Msg("failed to release slot")
	}
}

func (s *Service) logEvent(appointmentID uuid.UUID, eventType string) *zerolog.Event {
	return s.log.Info().
		Str("event", eventType).
		Str("appointment_id", appointmentID.String())
}
