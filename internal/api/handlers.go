package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Slots

func createSlotHandler(slots *appointment.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		doctorID := uuid.MustParse(req.DoctorID)
		date, err := parseDate(req.Date)
		if err != nil {
			handleError(w, err)
			return
		}
		start, err := appointment.ParseTimeOfDay(req.Start)
		if err != nil {
			handleError(w, err)
			return
		}
		end, err := appointment.ParseTimeOfDay(req.End)
		if err != nil {
			handleError(w, err)
			return
		}

		slot, err := slots.CreateSlot(r.Context(), doctorID, date, start, end, req.ServiceTag)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func generateSlotsHandler(slots *appointment.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateSlotsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		spec, err := recurrenceFromRequest(req)
		if err != nil {
			handleError(w, err)
			return
		}

		res, err := slots.GenerateSlots(r.Context(), spec)
		if err != nil && len(res.Created) == 0 {
			handleError(w, err)
			return
		}

		resp := GenerateSlotsResponse{
			Created: len(res.Created),
			Slots:   toSlotResponses(res.Created),
		}
		for _, f := range res.Failures {
			resp.Failures = append(resp.Failures, GenerateFailureResponse{
				Date:  f.Candidate.Date.Format(dateLayout),
				Start: f.Candidate.Start.String(),
				End:   f.Candidate.End.String(),
				Error: f.Err.Error(),
			})
		}

		status := http.StatusCreated
		if err != nil {
			resp.Stopped = err.Error()
		}
		if err != nil || len(res.Failures) > 0 {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, resp)
	}
}

func recurrenceFromRequest(req GenerateSlotsRequest) (appointment.RecurrenceSpec, error) {
	var spec appointment.RecurrenceSpec

	from, err := parseDate(req.DateFrom)
	if err != nil {
		return spec, err
	}
	to, err := parseDate(req.DateTo)
	if err != nil {
		return spec, err
	}
	days, err := appointment.ParseWeekdays(req.Weekdays)
	if err != nil {
		return spec, err
	}
	timeFrom, err := appointment.ParseTimeOfDay(req.TimeFrom)
	if err != nil {
		return spec, err
	}
	timeTo, err := appointment.ParseTimeOfDay(req.TimeTo)
	if err != nil {
		return spec, err
	}

	return appointment.RecurrenceSpec{
		DoctorID:    uuid.MustParse(req.DoctorID),
		DateFrom:    from,
		DateTo:      to,
		Weekdays:    days,
		TimeFrom:    timeFrom,
		TimeTo:      timeTo,
		StepMinutes: req.StepMinutes,
		ServiceTag:  req.ServiceTag,
	}, nil
}

func getSlotHandler(slots *appointment.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			handleError(w, err)
			return
		}

		slot, err := slots.GetSlot(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

// slotActionHandler serves the POST /slots/{id}/<action> endpoints.
func slotActionHandler(action func(ctx context.Context, id uuid.UUID) (*appointment.Slot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			handleError(w, err)
			return
		}

		slot, err := action(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

func deleteSlotHandler(slots *appointment.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			handleError(w, err)
			return
		}

		if err := slots.DeleteSlot(r.Context(), id); err != nil {
			handleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func bulkDeleteSlotsHandler(slots *appointment.SlotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkDeleteSlotsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		from, err := parseOptionalDate(req.DateFrom)
		if err != nil {
			handleError(w, err)
			return
		}
		to, err := parseOptionalDate(req.DateTo)
		if err != nil {
			handleError(w, err)
			return
		}

		n, err := slots.BulkDeleteAvailable(r.Context(), uuid.MustParse(req.DoctorID), appointment.DateRange{From: from, To: to})
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BulkDeleteSlotsResponse{Deleted: n})
	}
}

func listSlotsHandler(query *appointment.ScheduleQuery) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sq, err := slotQueryFromRequest(r)
		if err != nil {
			handleError(w, err)
			return
		}

		if r.URL.Query().Get("group") == "specialization" {
			groups, err := query.SlotsBySpecialization(r.Context(), sq)
			if err != nil {
				handleError(w, err)
				return
			}
			resp := make(map[string][]SlotResponse, len(groups))
			for spec, slots := range groups {
				resp[spec] = toSlotResponses(slots)
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}

		slots, err := query.ListSlots(r.Context(), sq)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func slotQueryFromRequest(r *http.Request) (appointment.SlotQuery, error) {
	var sq appointment.SlotQuery

	doctorID, err := queryUUID(r, "doctor_id")
	if err != nil {
		return sq, err
	}
	from, err := queryDate(r, "from")
	if err != nil {
		return sq, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return sq, err
	}
	statuses, err := querySlotStatuses(r)
	if err != nil {
		return sq, err
	}

	return appointment.SlotQuery{
		DoctorID:       doctorID,
		Specialization: r.URL.Query().Get("specialization"),
		Dates:          appointment.DateRange{From: from, To: to},
		Statuses:       statuses,
	}, nil
}

// Appointments

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		desiredDoctor, err := parseOptionalUUID(req.DesiredDoctorID)
		if err != nil {
			handleError(w, err)
			return
		}
		desiredService, err := parseOptionalUUID(req.DesiredServiceID)
		if err != nil {
			handleError(w, err)
			return
		}
		slotID, err := parseOptionalUUID(req.SlotID)
		if err != nil {
			handleError(w, err)
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), appointment.NewAppointment{
			OwnerID:          uuid.MustParse(req.OwnerID),
			Pet:              appointment.PetInfo{Name: req.PetName, Species: req.PetSpecies},
			Complaint:        req.Complaint,
			DesiredDoctorID:  desiredDoctor,
			DesiredServiceID: desiredService,
			SlotID:           slotID,
		})
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			handleError(w, err)
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(query *appointment.ScheduleQuery, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := queryUUID(r, "doctor_id")
		if err != nil {
			handleError(w, err)
			return
		}
		from, err := queryInstant(r, "from", loc)
		if err != nil {
			handleError(w, err)
			return
		}
		to, err := queryInstant(r, "to", loc)
		if err != nil {
			handleError(w, err)
			return
		}
		statuses, err := queryAppointmentStatuses(r)
		if err != nil {
			handleError(w, err)
			return
		}

		appts, err := query.ListAppointments(r.Context(), appointment.AppointmentQuery{
			DoctorID:       doctorID,
			Specialization: r.URL.Query().Get("specialization"),
			Statuses:       statuses,
			From:           from,
			To:             to,
		})
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

// appointmentActionHandler serves the body-less POST /appointments/{id}/<action> endpoints.
func appointmentActionHandler(action func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			handleError(w, err)
			return
		}

		appt, err := action(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func assignHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			handleError(w, err)
			return
		}
		var req AssignRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		appt, err := svc.AssignDoctorAndService(r.Context(), id, uuid.MustParse(req.DoctorID), uuid.MustParse(req.ServiceID))
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func bindSlotHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			handleError(w, err)
			return
		}
		var req BindSlotRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		appt, err := svc.BindSlot(r.Context(), id, uuid.MustParse(req.SlotID))
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func scheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			handleError(w, err)
			return
		}
		var req ScheduleRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		appt, err := svc.SetScheduledTime(r.Context(), id, req.ScheduledAt)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

// Calendar

func weeklyGridHandler(query *appointment.ScheduleQuery, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := queryUUID(r, "doctor_id")
		if err != nil {
			handleError(w, err)
			return
		}
		anchor := time.Now()
		if a, err := queryInstant(r, "week", loc); err != nil {
			handleError(w, err)
			return
		} else if a != nil {
			anchor = *a
		}

		grid, err := query.WeeklyGrid(r.Context(), doctorID, anchor)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toWeekGridResponse(grid))
	}
}
