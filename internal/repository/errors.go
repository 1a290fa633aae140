package repository

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kivik/kivik/v4"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrOutOfSync reports a local list naming items the store does not hold.
	ErrOutOfSync = errors.New("stored list is out of sync")
)

// wrap annotates a CouchDB error, folding 404s into ErrNotFound so callers
// can match on it without knowing about kivik.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if kivik.HTTPStatus(err) == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func bulkErr(op string, results []kivik.BulkResult) error {
	var errs []error
	for _, r := range results {
		if r.Error != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.ID, r.Error))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(errs...))
}
