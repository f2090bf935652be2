package appointment

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WeekdaySet is a bitmask over time.Weekday.
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekdays accepts short or long English day names ("mon", "Monday").
func ParseWeekdays(names []string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdayNames[key]
		if !ok {
			return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidInput, n)
		}
		s |= 1 << uint(d)
	}
	return s, nil
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// RecurrenceSpec describes a repeating pattern of slots for one doctor.
// Dates are inclusive; the time-of-day range is [TimeFrom, TimeTo).
type RecurrenceSpec struct {
	DoctorID    uuid.UUID
	DateFrom    time.Time
	DateTo      time.Time
	Weekdays    WeekdaySet
	TimeFrom    TimeOfDay
	TimeTo      TimeOfDay
	StepMinutes int
	ServiceTag  *string
}

func (r RecurrenceSpec) Validate() error {
	if DateOf(r.DateFrom).After(DateOf(r.DateTo)) {
		return fmt.Errorf("%w: date range starts after it ends", ErrInvalidInput)
	}
	if r.StepMinutes <= 0 {
		return fmt.Errorf("%w: step must be positive, got %d", ErrInvalidInput, r.StepMinutes)
	}
	if !r.TimeFrom.Valid() || !r.TimeTo.Valid() || r.TimeFrom >= r.TimeTo {
		return fmt.Errorf("%w: time range %s-%s", ErrInvalidInput, r.TimeFrom, r.TimeTo)
	}
	return nil
}

// Candidate is one window produced by Generate, not yet persisted.
type Candidate struct {
	Date  time.Time
	Start TimeOfDay
	End   TimeOfDay
}

// Generate expands spec into slot candidates, ordered by date then start time.
// The returned sequence holds no state between runs and may be ranged over repeatedly.
// An empty weekday set yields nothing.
func Generate(spec RecurrenceSpec) (iter.Seq[Candidate], error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	from := DateOf(spec.DateFrom)
	to := DateOf(spec.DateTo)
	step := TimeOfDay(spec.StepMinutes)

	return func(yield func(Candidate) bool) {
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if !spec.Weekdays.Has(day.Weekday()) {
				continue
			}
			for cur := spec.TimeFrom; cur <= spec.TimeTo-step; cur += step {
				if !yield(Candidate{Date: day, Start: cur, End: cur + step}) {
					return
				}
			}
		}
	}, nil
}
