package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

const dateLayout = time.DateOnly

type CreateSlotRequest struct {
	DoctorID   string  `json:"doctor_id" validate:"required,uuid"`
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	Start      string  `json:"start" validate:"required,datetime=15:04"`
	End        string  `json:"end" validate:"required"`
	ServiceTag *string `json:"service_tag,omitempty"`
}

type GenerateSlotsRequest struct {
	DoctorID    string   `json:"doctor_id" validate:"required,uuid"`
	DateFrom    string   `json:"date_from" validate:"required,datetime=2006-01-02"`
	DateTo      string   `json:"date_to" validate:"required,datetime=2006-01-02"`
	Weekdays    []string `json:"weekdays" validate:"dive,required"`
	TimeFrom    string   `json:"time_from" validate:"required,datetime=15:04"`
	TimeTo      string   `json:"time_to" validate:"required"`
	StepMinutes int      `json:"step_minutes"`
	ServiceTag  *string  `json:"service_tag,omitempty"`
}

type BulkDeleteSlotsRequest struct {
	DoctorID string  `json:"doctor_id" validate:"required,uuid"`
	DateFrom *string `json:"date_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateTo   *string `json:"date_to,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type CreateAppointmentRequest struct {
	OwnerID          string  `json:"owner_id" validate:"required,uuid"`
	PetName          string  `json:"pet_name" validate:"max=200"`
	PetSpecies       string  `json:"pet_species" validate:"max=100"`
	Complaint        string  `json:"complaint" validate:"max=4000"`
	DesiredDoctorID  *string `json:"desired_doctor_id,omitempty" validate:"omitempty,uuid"`
	DesiredServiceID *string `json:"desired_service_id,omitempty" validate:"omitempty,uuid"`
	SlotID           *string `json:"slot_id,omitempty" validate:"omitempty,uuid"`
}

type AssignRequest struct {
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
	ServiceID string `json:"service_id" validate:"required,uuid"`
}

type BindSlotRequest struct {
	SlotID string `json:"slot_id" validate:"required,uuid"`
}

type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

type SlotResponse struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	Date          string     `json:"date"`
	Start         string     `json:"start"`
	End           string     `json:"end"`
	Status        string     `json:"status"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	ServiceTag    *string    `json:"service_tag,omitempty"`
}

type GenerateFailureResponse struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
	Error string `json:"error"`
}

type GenerateSlotsResponse struct {
	Created  int                       `json:"created"`
	Slots    []SlotResponse            `json:"slots"`
	Failures []GenerateFailureResponse `json:"failures,omitempty"`
	// Stopped is set when the run ended early; the listed slots were still created.
	Stopped string `json:"stopped,omitempty"`
}

type BulkDeleteSlotsResponse struct {
	Deleted int64 `json:"deleted"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	PetName          string     `json:"pet_name,omitempty"`
	PetSpecies       string     `json:"pet_species,omitempty"`
	Complaint        string     `json:"complaint,omitempty"`
	DesiredDoctorID  *uuid.UUID `json:"desired_doctor_id,omitempty"`
	DesiredServiceID *uuid.UUID `json:"desired_service_id,omitempty"`
	DoctorID         *uuid.UUID `json:"doctor_id,omitempty"`
	ServiceID        *uuid.UUID `json:"service_id,omitempty"`
	SlotID           *uuid.UUID `json:"slot_id,omitempty"`
}

type GridCellResponse struct {
	Day          int                   `json:"day"`
	Hour         int                   `json:"hour"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type WeekGridResponse struct {
	WeekStart time.Time          `json:"week_start"`
	Cells     []GridCellResponse `json:"cells"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s appointment.Slot) SlotResponse {
	return SlotResponse{
		ID:            s.ID,
		DoctorID:      s.DoctorID,
		Date:          s.Date.Format(dateLayout),
		Start:         s.Start.String(),
		End:           s.End.String(),
		Status:        string(s.Status),
		AppointmentID: s.AppointmentID,
		ServiceTag:    s.ServiceTag,
	}
}

func toSlotResponses(slots []appointment.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		Status:           string(a.Status),
		CreatedAt:        a.CreatedAt,
		ScheduledAt:      a.ScheduledAt,
		OwnerID:          a.OwnerID,
		PetName:          a.Pet.Name,
		PetSpecies:       a.Pet.Species,
		Complaint:        a.Complaint,
		DesiredDoctorID:  a.DesiredDoctorID,
		DesiredServiceID: a.DesiredServiceID,
		DoctorID:         a.DoctorID,
		ServiceID:        a.ServiceID,
		SlotID:           a.SlotID,
	}
}

func toAppointmentResponses(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toWeekGridResponse(g *appointment.WeekGrid) WeekGridResponse {
	resp := WeekGridResponse{
		WeekStart: g.WeekStart,
		Cells:     make([]GridCellResponse, 0, len(g.Cells)),
	}
	for _, c := range g.Hours() {
		resp.Cells = append(resp.Cells, GridCellResponse{
			Day:          c.Day,
			Hour:         c.Hour,
			Appointments: toAppointmentResponses(g.Cells[c]),
		})
	}
	return resp
}
