package tools

import "errors"

var (
	ErrNoEligibleTool    = errors.New("no eligible tool")
	ErrDuplicateTool     = errors.New("tool already registered")
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")
	ErrUnknownDriver     = errors.New("unknown tool driver")
	// ErrUnavailable marks transient connector failures that may succeed on retry.
	ErrUnavailable = errors.New("tool unavailable")
	// ErrRejected marks requests the tool refused; retrying will not help.
	ErrRejected = errors.New("tool rejected request")
)
