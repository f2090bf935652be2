package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type RouterConfig struct {
	Slots          *appointment.SlotStore
	Service        *appointment.Service
	Query          *appointment.ScheduleQuery
	Location       *time.Location
	Checks         []HealthCheck
	Logger         zerolog.Logger
	Metrics        *metrics.SchedulingMetrics
	MetricsHandler http.Handler
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Slot endpoints
	r.Route("/slots", func(r chi.Router) {
		r.Post("/", createSlotHandler(cfg.Slots))
		r.Get("/", listSlotsHandler(cfg.Query))
		r.Post("/generate", generateSlotsHandler(cfg.Slots))
		r.Post("/bulk-delete", bulkDeleteSlotsHandler(cfg.Slots))
		r.Get("/{id}", getSlotHandler(cfg.Slots))
		r.Delete("/{id}", deleteSlotHandler(cfg.Slots))
		r.Post("/{id}/release", slotActionHandler(cfg.Slots.ReleaseSlot))
		r.Post("/{id}/unavailable", slotActionHandler(cfg.Slots.MarkUnavailable))
		r.Post("/{id}/available", slotActionHandler(cfg.Slots.MarkAvailable))
	})

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Service))
		r.Get("/", listAppointmentsHandler(cfg.Query, loc))
		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/{id}/assign", assignHandler(cfg.Service))
		r.Post("/{id}/bind", bindSlotHandler(cfg.Service))
		r.Post("/{id}/unbind", appointmentActionHandler(cfg.Service.UnbindSlot))
		r.Post("/{id}/schedule", scheduleHandler(cfg.Service))
		r.Post("/{id}/confirm", appointmentActionHandler(cfg.Service.Confirm))
		r.Post("/{id}/cancel", appointmentActionHandler(cfg.Service.Cancel))
		r.Post("/{id}/complete", appointmentActionHandler(cfg.Service.Complete))
	})

	r.Get("/calendar/week", weeklyGridHandler(cfg.Query, loc))

	return r
}
