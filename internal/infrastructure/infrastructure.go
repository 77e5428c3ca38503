// Package infrastructure provides core service initialization for application startup.
// It assembles the dependencies shared by the HTTP service and the operator CLI:
// logging, database access, blob storage, the checkpoint store, the tool
// registry, the notification sink, and the workflow engine built from them.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/invoiceflow/internal/checkpoints"
	"github.com/JaimeStill/invoiceflow/internal/config"
	"github.com/JaimeStill/invoiceflow/internal/notify"
	"github.com/JaimeStill/invoiceflow/internal/tools"
	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/database"
	"github.com/JaimeStill/invoiceflow/pkg/lifecycle"
	"github.com/JaimeStill/invoiceflow/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Database is nil when the checkpoint store does not use one.
type Infrastructure struct {
	Lifecycle   *lifecycle.Coordinator
	Logger      *slog.Logger
	Database    database.System
	Storage     storage.System
	Checkpoints checkpoints.System
	Tools       *tools.Registry
	Notifier    workflow.Notifier
	Engine      *workflow.Engine
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	return NewWithLogger(cfg, cfg.Logging.Logger(os.Stderr))
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(cfg *config.Config, logger *slog.Logger) (*Infrastructure, error) {
	lc := lifecycle.New()

	var db database.System
	if cfg.UsesDatabase() {
		var err error
		if db, err = database.New(&cfg.Database, logger); err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	cps, err := checkpoints.New(&cfg.Checkpoints, db, logger)
	if err != nil {
		return nil, fmt.Errorf("checkpoints init failed: %w", err)
	}

	descriptors, err := cfg.Tools.Descriptors()
	if err != nil {
		return nil, fmt.Errorf("tools init failed: %w", err)
	}
	registry := tools.NewRegistry()
	if err := registry.Replace(descriptors); err != nil {
		return nil, fmt.Errorf("tools init failed: %w", err)
	}

	notifier, err := notify.New(&cfg.Notify, logger)
	if err != nil {
		return nil, fmt.Errorf("notify init failed: %w", err)
	}

	rt := workflow.NewRuntime(cfg.Engine, registry, store, notifier, logger)
	engine := workflow.NewEngine(rt, cps, workflow.WithBaseContext(lc.Context()))

	return &Infrastructure{
		Lifecycle:   lc,
		Logger:      logger,
		Database:    db,
		Storage:     store,
		Checkpoints: cps,
		Tools:       registry,
		Notifier:    notifier,
		Engine:      engine,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// Database, storage and checkpoint hooks are registered for startup and
// shutdown coordination.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if err := i.Checkpoints.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("checkpoints start failed: %w", err)
	}
	return nil
}

// Recover re-drives interrupted runs in the background once every startup
// hook has completed.
func (i *Infrastructure) Recover() {
	i.Lifecycle.Background(func(ctx context.Context) {
		i.Lifecycle.WaitForStartup()

		n, err := i.Engine.RecoverAll(ctx)
		if err != nil {
			i.Logger.Error("run recovery failed", "recovered", n, "error", err)
			return
		}
		if n > 0 {
			i.Logger.Info("runs recovered", "count", n)
		}
	})
}
