package runs

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/invoiceflow/internal/workflow"
)

// Domain errors for run operations.
var (
	ErrNotFound           = errors.New("run not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrInvalidState       = errors.New("run is not in a valid state for this operation")
	ErrAlreadyDecided     = errors.New("decision already recorded")
	ErrInvalidDecision    = errors.New("decision must be ACCEPT or REJECT")
	ErrInvalidRequest     = errors.New("invalid request")
)

// MapHTTPStatus maps run domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCheckpointNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrAlreadyDecided) || errors.Is(err, ErrInvalidState) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidDecision) || errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// mapError translates engine errors into domain errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, workflow.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, workflow.ErrCheckpointNotFound):
		return ErrCheckpointNotFound
	case errors.Is(err, workflow.ErrAlreadyDecided):
		return ErrAlreadyDecided
	case errors.Is(err, workflow.ErrInvalidDecision):
		return ErrInvalidDecision
	case errors.Is(err, workflow.ErrInvalidStateTransition):
		return errors.Join(ErrInvalidState, err)
	default:
		return err
	}
}
