// Package checkpoints persists workflow run state: the latest state of each
// run under a compare-and-swap sequence, an append-only snapshot per write,
// and the review checkpoints created when runs pause.
package checkpoints

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/database"
	"github.com/JaimeStill/invoiceflow/pkg/lifecycle"
	"github.com/JaimeStill/invoiceflow/pkg/serialization"
)

// System is a workflow.Store with lifecycle hooks and snapshot history.
type System interface {
	workflow.Store
	// History returns every persisted snapshot of a run, oldest first.
	History(ctx context.Context, runID uuid.UUID) ([]workflow.RunState, error)
	// Start registers startup hooks with the lifecycle coordinator.
	Start(lc *lifecycle.Coordinator) error
}

// New creates the store selected by cfg.Backend. db is required for the
// database backend.
func New(cfg *Config, db database.System, logger *slog.Logger) (System, error) {
	ser, err := serialization.New(&cfg.Serialization)
	if err != nil {
		return nil, fmt.Errorf("create serializer: %w", err)
	}

	if cfg.Backend == BackendMemory {
		return NewMemory(ser, logger), nil
	}
	if db == nil {
		return nil, fmt.Errorf("backend %s requires a database", BackendDatabase)
	}
	return NewSQL(db.Connection(), db.Driver(), ser, logger), nil
}
