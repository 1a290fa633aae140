package service

import (
	"errors"
	"fmt"

	"course-agenda-server/internal/domain"
	"course-agenda-server/internal/optimistic"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNoChange = errors.New("nothing to change")
)

// NotFoundError names the missing resource. It matches ErrNotFound.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// response turns a coordinator result into what the UI receives. A nil
// response means the mutation never started and err says why.
func response[S any](out *optimistic.Outcome[S], err error, state func(S, bool) interface{}) (*domain.MutationResponse, error) {
	if out == nil {
		return nil, err
	}
	resp := &domain.MutationResponse{OK: out.OK, State: state(out.State, out.Present)}
	if !out.OK {
		resp.Reverted = true
		if out.Err != nil {
			resp.Error = out.Err.Error()
		}
	}
	return resp, err
}
