package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"course-agenda-server/internal/domain"
	"course-agenda-server/internal/optimistic"
	"course-agenda-server/internal/ordering"
	"course-agenda-server/internal/repository"
	"course-agenda-server/internal/schedule"
	"course-agenda-server/internal/service"
	"course-agenda-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

// decode reads a JSON body into v and validates it, answering 400 itself
// when either step fails.
func decode(w http.ResponseWriter, r *http.Request, validate *validator.Validate, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return false
	}
	if err := validate.Struct(v); err != nil {
		response.BadRequest(w, err.Error())
		return false
	}
	return true
}

func statusFor(err error) int {
	var failed *optimistic.MutationFailedError
	switch {
	case errors.Is(err, optimistic.ErrMutationInProgress):
		return http.StatusConflict
	case errors.As(err, &failed):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ordering.ErrInvalidIndex),
		errors.Is(err, ordering.ErrNoDropTarget),
		errors.Is(err, schedule.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidInterval),
		errors.Is(err, domain.ErrKindPayload):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	switch status := statusFor(err); status {
	case http.StatusInternalServerError:
		log.Printf("[handler] internal error: %v", err)
		response.InternalError(w, "Internal server error")
	case http.StatusNotFound:
		response.NotFound(w, err.Error())
	case http.StatusConflict:
		response.Conflict(w, err.Error())
	case http.StatusBadRequest:
		response.BadRequest(w, err.Error())
	default:
		response.Error(w, status, err.Error())
	}
}

// writeMutation answers with the outcome of an optimistic mutation. A failed
// remote write still carries the reverted state.
func writeMutation(w http.ResponseWriter, okStatus int, resp *domain.MutationResponse, err error) {
	if resp == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		response.Failed(w, statusFor(err), resp, err.Error())
		return
	}
	if okStatus == http.StatusCreated {
		response.Created(w, resp)
		return
	}
	response.JSON(w, okStatus, resp)
}
