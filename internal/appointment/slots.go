package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

var ErrScheduleLocked = fmt.Errorf("%w: schedule is being edited, please retry", ErrConflict)

// Options carries the collaborators shared by SlotStore, Service and ScheduleQuery.
// Zero values are usable: no lock, UTC, a disabled logger and no metrics.
type Options struct {
	Locker    redisclient.Locker
	Directory Directory
	Location  *time.Location
	Logger    zerolog.Logger
	Metrics   *metrics.SchedulingMetrics
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// SlotStore owns slot identity and occupancy.
type SlotStore struct {
	repo    Repository
	locker  redisclient.Locker
	log     zerolog.Logger
	metrics *metrics.SchedulingMetrics
}

func NewSlotStore(repo Repository, opts Options) *SlotStore {
	return &SlotStore{
		repo:    repo,
		locker:  opts.Locker,
		log:     opts.Logger.With().Str("component", "slot_store").Logger(),
		metrics: opts.Metrics,
	}
}

func validateWindow(start, end TimeOfDay) error {
	if !start.Valid() || !end.Valid() {
		return fmt.Errorf("%w: time of day out of range", ErrInvalidInput)
	}
	if start >= end {
		return fmt.Errorf("%w: slot must start before it ends (%s-%s)", ErrInvalidInput, start, end)
	}
	return nil
}

// CreateSlot adds an Available slot. Overlap with another slot of the same doctor on
// the same date is rejected with ErrSlotOverlap; touching endpoints are fine.
func (s *SlotStore) CreateSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay, serviceTag *string) (*Slot, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor is required", ErrInvalidInput)
	}
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}

	day := DateOf(date)
	var created *Slot

	err := s.withScheduleLock(ctx, doctorID, day, func(lockCtx context.Context) error {
		slot, err := s.repo.InsertSlot(lockCtx, Slot{
			DoctorID:   doctorID,
			Date:       day,
			Start:      start,
			End:        end,
			ServiceTag: serviceTag,
		})
		if err != nil {
			return err
		}
		created = slot
		return nil
	})
	if err != nil {
		s.metrics.ObserveSlotOp("create", resultLabel(err))
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.metrics.ObserveSlotOp("create", "ok")
	s.log.Info().
		Str("event", "slot_created").
		Str("slot_id", created.ID.String()).
		Str("doctor_id", doctorID.String()).
		Str("date", day.Format(time.DateOnly)).
		Str("window", start.String()+"-"+end.String()).
		Msg("slot created")
	return created, nil
}

func (s *SlotStore) withScheduleLock(ctx context.Context, doctorID uuid.UUID, day time.Time, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, redisclient.ScheduleKey(doctorID, day), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrScheduleLocked
	}
	return err
}

func (s *SlotStore) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	slot, err := s.repo.GetSlotByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	return slot, nil
}

// ReserveSlot marks an Available slot Busy and binds it to apptID as one
// check-and-set. Any other current status yields ErrConflict.
func (s *SlotStore) ReserveSlot(ctx context.Context, slotID, apptID uuid.UUID) (*Slot, error) {
	slot, err := s.repo.ReserveSlot(ctx, slotID, apptID)
	if err != nil {
		s.metrics.ObserveSlotOp("reserve", resultLabel(err))
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}

	s.metrics.ObserveSlotOp("reserve", "ok")
	s.log.Info().
		Str("event", "slot_reserved").
		Str("slot_id", slotID.String()).
		Str("appointment_id", apptID.String()).
		Msg("slot reserved")
	return slot, nil
}

// ReleaseSlot returns a Busy slot to Available and unbinds its appointment.
// Slots that are not Busy are returned unchanged.
func (s *SlotStore) ReleaseSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	slot, err := s.repo.ReleaseSlot(ctx, slotID)
	if err != nil {
		s.metrics.ObserveSlotOp("release", resultLabel(err))
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("release slot: %w", err)
	}

	s.metrics.ObserveSlotOp("release", "ok")
	s.log.Info().
		Str("event", "slot_released").
		Str("slot_id", slotID.String()).
		Msg("slot released")
	return slot, nil
}

// DeleteSlot removes a slot permanently. Busy slots are refused with ErrSlotBusy.
func (s *SlotStore) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	if err := s.repo.DeleteSlot(ctx, slotID); err != nil {
		s.metrics.ObserveSlotOp("delete", resultLabel(err))
		if errors.Is(err, ErrSlotBusy) || errors.Is(err, ErrSlotNotFound) {
			return err
		}
		return fmt.Errorf("delete slot: %w", err)
	}

	s.metrics.ObserveSlotOp("delete", "ok")
	s.log.Info().
		Str("event", "slot_deleted").
		Str("slot_id", slotID.String()).
		Msg("slot deleted")
	return nil
}

// BulkDeleteAvailable removes the doctor's Available slots within dates and reports
// how many were removed. Busy and Unavailable slots are never touched.
func (s *SlotStore) BulkDeleteAvailable(ctx context.Context, doctorID uuid.UUID, dates DateRange) (int64, error) {
	if doctorID == uuid.Nil {
		return 0, fmt.Errorf("%w: doctor is required", ErrInvalidInput)
	}
	if dates.From != nil && dates.To != nil && DateOf(*dates.From).After(DateOf(*dates.To)) {
		return 0, fmt.Errorf("%w: date range starts after it ends", ErrInvalidInput)
	}

	n, err := s.repo.DeleteAvailableSlots(ctx, doctorID, dates)
	if err != nil {
		s.metrics.ObserveSlotOp("bulk_delete", "error")
		return 0, fmt.Errorf("bulk delete slots: %w", err)
	}

	s.metrics.ObserveSlotOp("bulk_delete", "ok")
	s.log.Info().
		Str("event", "slots_bulk_deleted").
		Str("doctor_id", doctorID.String()).
		Int64("count", n).
		Msg("available slots deleted")
	return n, nil
}

// MarkUnavailable takes an Available slot out of booking without deleting it.
func (s *SlotStore) MarkUnavailable(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	return s.setAvailability(ctx, slotID, SlotAvailable, SlotUnavailable)
}

// MarkAvailable puts an Unavailable slot back into booking.
func (s *SlotStore) MarkAvailable(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	return s.setAvailability(ctx, slotID, SlotUnavailable, SlotAvailable)
}

func (s *SlotStore) setAvailability(ctx context.Context, slotID uuid.UUID, from, to SlotStatus) (*Slot, error) {
	slot, err := s.repo.UpdateSlotStatus(ctx, slotID, from, to)
	if err == nil {
		s.metrics.ObserveSlotOp("set_"+string(to), "ok")
		s.log.Info().
			Str("event", "slot_availability_changed").
			Str("slot_id", slotID.String()).
			Str("status", string(to)).
			Msg("slot availability changed")
		return slot, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, fmt.Errorf("update slot status: %w", err)
	}

	// The compare-and-set missed: tell a missing slot apart from one in the wrong state.
	current, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSlotOp("set_"+string(to), "conflict")
	return nil, fmt.Errorf("%w: slot is %s, expected %s", ErrConflict, current.Status, from)
}

// GenerateFailure is a candidate that could not be persisted.
type GenerateFailure struct {
	Candidate Candidate
	Err       error
}

// GenerateResult reports a partially successful bulk generation.
// Slots created before a failure are kept.
type GenerateResult struct {
	Created  []Slot
	Failures []GenerateFailure
}

func (r GenerateResult) FirstFailure() *GenerateFailure {
	if len(r.Failures) == 0 {
		return nil
	}
	return &r.Failures[0]
}

// GenerateSlots persists every candidate of spec through CreateSlot. Candidates rejected
// for domain reasons (overlap, locked schedule) are recorded and skipped; an
// infrastructure error or a cancelled context stops the run and is returned together
// with what was created so far.
func (s *SlotStore) GenerateSlots(ctx context.Context, spec RecurrenceSpec) (GenerateResult, error) {
	var res GenerateResult

	if spec.DoctorID == uuid.Nil {
		return res, fmt.Errorf("%w: doctor is required", ErrInvalidInput)
	}
	candidates, err := Generate(spec)
	if err != nil {
		return res, err
	}

	for c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		slot, err := s.CreateSlot(ctx, spec.DoctorID, c.Date, c.Start, c.End, spec.ServiceTag)
		if err != nil {
			res.Failures = append(res.Failures, GenerateFailure{Candidate: c, Err: err})
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidInput) {
				continue
			}
			s.metrics.ObserveGeneration(len(res.Created), len(res.Failures))
			return res, fmt.Errorf("generate slots on %s %s: %w", c.Date.Format(time.DateOnly), c.Start, err)
		}
		res.Created = append(res.Created, *slot)
	}

	s.metrics.ObserveGeneration(len(res.Created), len(res.Failures))
	s.log.Info().
		Str("event", "slots_generated").
		Str("doctor_id", spec.DoctorID.String()).
		Int("created", len(res.Created)).
		Int("failed", len(res.Failures)).
		Msg("slot generation finished")
	return res, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrSlotBusy):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
