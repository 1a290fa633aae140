package handler

import (
	"net/http"
	"strconv"
	"time"

	"course-agenda-server/internal/domain"
	"course-agenda-server/internal/schedule"
	"course-agenda-server/internal/service"
	"course-agenda-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type AgendaHandler struct {
	service  *service.AgendaService
	validate *validator.Validate
}

func NewAgendaHandler(service *service.AgendaService) *AgendaHandler {
	return &AgendaHandler{
		service:  service,
		validate: validator.New(),
	}
}

type SlotsResponse struct {
	ProjectID string                 `json:"project_id"`
	Day       string                 `json:"day"`
	Slots     []schedule.Slot        `json:"slots"`
	AllDay    []domain.ScheduledItem `json:"all_day"`
}

func (h *AgendaHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.List(r.Context(), mux.Vars(r)["projectID"])
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, events)
}

func (h *AgendaHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	event, err := h.service.Get(r.Context(), vars["projectID"], vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, event)
}

func (h *AgendaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateEventRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	resp, err := h.service.Create(r.Context(), mux.Vars(r)["projectID"], &req)
	writeMutation(w, http.StatusCreated, resp, err)
}

func (h *AgendaHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateEventRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	vars := mux.Vars(r)
	resp, err := h.service.Update(r.Context(), vars["projectID"], vars["id"], &req)
	writeMutation(w, http.StatusOK, resp, err)
}

func (h *AgendaHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req domain.RescheduleRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	vars := mux.Vars(r)
	resp, err := h.service.Reschedule(r.Context(), vars["projectID"], vars["id"], &req)
	writeMutation(w, http.StatusOK, resp, err)
}

func (h *AgendaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resp, err := h.service.Delete(r.Context(), vars["projectID"], vars["id"])
	writeMutation(w, http.StatusOK, resp, err)
}

func (h *AgendaHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.service.Conflicts(r.Context(), mux.Vars(r)["projectID"])
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, conflicts)
}

// Slots answers GET .../slots?day=2025-03-10&start=8&end=18&granularity=30&extended=true&tz=Europe/Paris.
// Only day is required.
func (h *AgendaHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	loc := time.UTC
	if tz := q.Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			response.BadRequest(w, "Invalid tz")
			return
		}
		loc = l
	}

	dayParam := q.Get("day")
	if dayParam == "" {
		response.BadRequest(w, "day is required")
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dayParam, loc)
	if err != nil {
		response.BadRequest(w, "day must be YYYY-MM-DD")
		return
	}

	var opts schedule.SlotOptions
	for _, p := range []struct {
		name string
		set  func(n int)
	}{
		{"start", func(n int) { opts.StartHour = schedule.Hour(n) }},
		{"end", func(n int) { opts.EndHour = schedule.Hour(n) }},
		{"granularity", func(n int) { opts.GranularityMinutes = n }},
	} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				response.BadRequest(w, p.name+" must be an integer")
				return
			}
			p.set(n)
		}
	}
	if v := q.Get("extended"); v != "" {
		ext, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(w, "extended must be a boolean")
			return
		}
		opts.Extended = ext
	}

	projectID := mux.Vars(r)["projectID"]
	slots, err := h.service.Slots(r.Context(), projectID, day, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	allDay, err := h.service.AllDay(r.Context(), projectID, day)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, SlotsResponse{
		ProjectID: projectID,
		Day:       dayParam,
		Slots:     slots,
		AllDay:    allDay,
	})
}
