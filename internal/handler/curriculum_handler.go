package handler

import (
	"net/http"

	"course-agenda-server/internal/domain"
	"course-agenda-server/internal/service"
	"course-agenda-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// CurriculumHandler serves both /courses/{courseID}/modules and
// /modules/{moduleID}/activities; the route variables pick the list.
type CurriculumHandler struct {
	service  *service.CurriculumService
	validate *validator.Validate
}

func NewCurriculumHandler(service *service.CurriculumService) *CurriculumHandler {
	return &CurriculumHandler{
		service:  service,
		validate: validator.New(),
	}
}

func scopeOf(r *http.Request) (service.Scope, bool) {
	vars := mux.Vars(r)
	if id := vars["courseID"]; id != "" {
		return service.ModulesOf(id), true
	}
	if id := vars["moduleID"]; id != "" {
		return service.ActivitiesOf(id), true
	}
	return service.Scope{}, false
}

func (h *CurriculumHandler) scope(w http.ResponseWriter, r *http.Request) (service.Scope, bool) {
	sc, ok := scopeOf(r)
	if !ok {
		response.BadRequest(w, "course or module ID is required")
	}
	return sc, ok
}

func (h *CurriculumHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.scope(w, r)
	if !ok {
		return
	}

	items, err := h.service.List(r.Context(), sc)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, items)
}

func (h *CurriculumHandler) Create(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req domain.CreateOrderedItemRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	resp, err := h.service.Create(r.Context(), sc, &req)
	writeMutation(w, http.StatusCreated, resp, err)
}

func (h *CurriculumHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req domain.ReorderRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	resp, err := h.service.Reorder(r.Context(), sc, &req)
	writeMutation(w, http.StatusOK, resp, err)
}

func (h *CurriculumHandler) Update(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req domain.UpdateOrderedItemRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	resp, err := h.service.Rename(r.Context(), sc, mux.Vars(r)["id"], &req)
	writeMutation(w, http.StatusOK, resp, err)
}

func (h *CurriculumHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.scope(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Delete(r.Context(), sc, mux.Vars(r)["id"])
	writeMutation(w, http.StatusOK, resp, err)
}
