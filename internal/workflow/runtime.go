package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/internal/tools"
	"github.com/JaimeStill/invoiceflow/pkg/storage"
)

// Notification is a message delivered by the NOTIFY stage.
type Notification struct {
	RunID     uuid.UUID      `json:"run_id"`
	Recipient string         `json:"recipient"`
	Event     string         `json:"event"`
	Subject   string         `json:"subject"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Notifier delivers notifications. Delivery failures are recorded on the
// run but never fail it.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Runtime bundles the dependencies that stage functions require.
type Runtime struct {
	Config   Config
	Tools    *tools.Registry
	Storage  storage.System
	Notifier Notifier
	Logger   *slog.Logger

	// Now and Sleep are replaceable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	validate *validator.Validate
}

// NewRuntime creates a runtime with real clock and sleep.
func NewRuntime(cfg Config, registry *tools.Registry, store storage.System, notifier Notifier, logger *slog.Logger) *Runtime {
	return &Runtime{
		Config:   cfg,
		Tools:    registry,
		Storage:  store,
		Notifier: notifier,
		Logger:   logger.With("system", "workflow"),
		Now:      time.Now,
		Sleep:    sleep,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (rt *Runtime) now() time.Time {
	return rt.Now().UTC()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
