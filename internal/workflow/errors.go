package workflow

import (
	"context"
	"errors"

	"github.com/JaimeStill/invoiceflow/internal/tools"
)

// Stage failure errors. KindOf classifies them into an ErrorKind.
var (
	ErrValidation     = errors.New("payload validation failed")
	ErrParse          = errors.New("invoice could not be parsed")
	ErrERPUnavailable = errors.New("erp unavailable")
	ErrPosting        = errors.New("erp posting failed")
	ErrToolTimeout    = errors.New("tool timed out")
	ErrToolFailed     = errors.New("tool failed")
	ErrCancelled      = errors.New("run cancelled")
	ErrShutdown       = errors.New("engine shutting down")
	ErrInternal       = errors.New("internal workflow error")
)

// Caller errors returned by Engine operations.
var (
	ErrNotFound               = errors.New("run not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAlreadyDecided         = errors.New("decision already recorded")
	ErrInvalidDecision        = errors.New("decision must be ACCEPT or REJECT")
)

// Store errors.
var (
	ErrDuplicateRun       = errors.New("run already exists")
	ErrStaleWrite         = errors.New("run was modified concurrently")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCheckpointResolved = errors.New("checkpoint already resolved")
)

// ErrorKind classifies a terminal run error.
type ErrorKind string

const (
	KindValidation       ErrorKind = "VALIDATION_ERROR"
	KindParse            ErrorKind = "PARSE_ERROR"
	KindNoEligibleTool   ErrorKind = "NO_ELIGIBLE_TOOL"
	KindERPUnavailable   ErrorKind = "ERP_UNAVAILABLE"
	KindPosting          ErrorKind = "POSTING_ERROR"
	KindToolTimeout      ErrorKind = "TOOL_TIMEOUT"
	KindToolError        ErrorKind = "TOOL_ERROR"
	KindCancelled        ErrorKind = "CANCELLED"
	KindStageInterrupted ErrorKind = "STAGE_INTERRUPTED"
	KindInternal         ErrorKind = "INTERNAL"
)

// KindOf classifies err. The outermost stage error wins, so a timeout while
// posting is a posting error.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, tools.ErrNoEligibleTool):
		return KindNoEligibleTool
	case errors.Is(err, ErrPosting):
		return KindPosting
	case errors.Is(err, ErrERPUnavailable):
		return KindERPUnavailable
	case errors.Is(err, ErrToolTimeout):
		return KindToolTimeout
	case errors.Is(err, ErrToolFailed), errors.Is(err, tools.ErrUnavailable), errors.Is(err, tools.ErrRejected):
		return KindToolError
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindInternal
	}
}

// terminalStatus returns the status a run ends in when a stage fails with err.
// Posting failures leave the ERP in an unknown state and go to the manual queue.
func terminalStatus(err error) Status {
	if KindOf(err) == KindPosting {
		return StatusRequiresManual
	}
	return StatusFailed
}

func retryable(err error) bool {
	return errors.Is(err, tools.ErrUnavailable) || errors.Is(err, ErrToolTimeout)
}
