package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a valid UUID", appointment.ErrInvalidInput, name)
	}
	return id, nil
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid UUID", appointment.ErrInvalidInput, *raw)
	}
	return &id, nil
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	v := r.URL.Query().Get(key)
	return parseOptionalUUID(&v)
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", appointment.ErrInvalidInput, raw)
	}
	return t, nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := parseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func queryDate(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	return parseOptionalDate(&v)
}

// queryInstant accepts RFC 3339 or a bare date, which means midnight in loc.
func queryInstant(r *http.Request, key string, loc *time.Location) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC 3339 or YYYY-MM-DD", appointment.ErrInvalidInput, key)
	}
	return &t, nil
}

func queryList(r *http.Request, key string) []string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func querySlotStatuses(r *http.Request) ([]appointment.SlotStatus, error) {
	var out []appointment.SlotStatus
	for _, raw := range queryList(r, "status") {
		st, err := appointment.ParseSlotStatus(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func queryAppointmentStatuses(r *http.Request) ([]appointment.AppointmentStatus, error) {
	var out []appointment.AppointmentStatus
	for _, raw := range queryList(r, "status") {
		st, err := appointment.ParseAppointmentStatus(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
