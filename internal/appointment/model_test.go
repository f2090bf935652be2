package appointment

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []AppointmentStatus{StatusRequested, StatusConfirmed, StatusCompleted, StatusCancelled}

func TestCanTransitionTo(t *testing.T) {
	allowed := map[AppointmentStatus][]AppointmentStatus{
		StatusRequested: {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range allStatuses {
		if !from.Terminal() {
			continue
		}
		for _, to := range allStatuses {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusRequested.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
}

func TestParseStatuses(t *testing.T) {
	st, err := ParseAppointmentStatus(" Confirmed ")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, st)

	_, err = ParseAppointmentStatus("cancelled-by-client")
	assert.ErrorIs(t, err, ErrInvalidInput)

	ss, err := ParseSlotStatus("BUSY")
	require.NoError(t, err)
	assert.Equal(t, SlotBusy, ss)

	_, err = ParseSlotStatus("free")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:30", want: NewTimeOfDay(9, 30)},
		{in: "24:00", want: endOfDay},
		{in: "24:01", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "-1:00", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "7:05", want: NewTimeOfDay(7, 5)},
		{in: " 18:15 ", want: NewTimeOfDay(18, 15)},
		{in: "10:30pm", wantErr: true},
		{in: "10:30xyz", wantErr: true},
		{in: "24:00:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "09:05", NewTimeOfDay(9, 5).String())
}

func TestSlotOverlaps(t *testing.T) {
	s := Slot{Start: NewTimeOfDay(10, 0), End: NewTimeOfDay(11, 0)}

	assert.True(t, s.Overlaps(NewTimeOfDay(10, 30), NewTimeOfDay(11, 30)))
	assert.True(t, s.Overlaps(NewTimeOfDay(9, 0), NewTimeOfDay(12, 0)))
	assert.True(t, s.Overlaps(NewTimeOfDay(10, 15), NewTimeOfDay(10, 45)))
	assert.False(t, s.Overlaps(NewTimeOfDay(11, 0), NewTimeOfDay(12, 0)), "touching at end")
	assert.False(t, s.Overlaps(NewTimeOfDay(9, 0), NewTimeOfDay(10, 0)), "touching at start")
}

func TestSlotStartsAtUsesClinicZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	s := Slot{Date: date(2025, 6, 2), Start: NewTimeOfDay(10, 0)}
	got := s.StartsAt(loc)

	assert.Equal(t, time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC), got.UTC())
}

func TestDateRangeContains(t *testing.T) {
	from, to := date(2025, 6, 2), date(2025, 6, 4)
	r := DateRange{From: &from, To: &to}

	assert.True(t, r.Contains(from))
	assert.True(t, r.Contains(to.Add(23*time.Hour)))
	assert.False(t, r.Contains(date(2025, 6, 1)))
	assert.False(t, r.Contains(date(2025, 6, 5)))
	assert.True(t, DateRange{}.Contains(date(1999, 1, 1)))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
