package cli

import (
	"net/http"

	"github.com/JaimeStill/invoiceflow/internal/runs"
)

// Exit codes reported by invoicectl.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitInvalid  = 2
	ExitNotFound = 3
	ExitConflict = 4
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch runs.MapHTTPStatus(err) {
	case http.StatusBadRequest:
		return ExitInvalid
	case http.StatusNotFound:
		return ExitNotFound
	case http.StatusConflict:
		return ExitConflict
	default:
		return ExitFailure
	}
}
