package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoiceflow/internal/checkpoints"
	"github.com/JaimeStill/invoiceflow/internal/config"
	"github.com/JaimeStill/invoiceflow/internal/infrastructure"
	"github.com/JaimeStill/invoiceflow/internal/runs"
)

// session is the started infrastructure behind a single command.
type session struct {
	cfg   *config.Config
	infra *infrastructure.Infrastructure
	runs  runs.System
}

func openSession(cmd *cobra.Command, opts *globalOptions) (*session, error) {
	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logging.Logger(cmd.ErrOrStderr()).With("module", "cli")
	if cfg.Checkpoints.Backend == checkpoints.BackendMemory {
		logger.Warn("checkpoint backend is memory; runs will not outlive this command")
	}

	infra, err := infrastructure.NewWithLogger(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := infra.Start(); err != nil {
		return nil, err
	}
	infra.Lifecycle.WaitForStartup()

	return &session{
		cfg:   cfg,
		infra: infra,
		runs:  runs.New(infra.Engine, logger, cfg.API.Pagination),
	}, nil
}

func (s *session) Close() error {
	return s.infra.Lifecycle.Shutdown(s.cfg.ShutdownTimeoutDuration())
}

// withSession opens a session, runs fn, and shuts the session down. A
// shutdown failure is reported only when fn succeeded.
func withSession(cmd *cobra.Command, opts *globalOptions, fn func(*session) error) (err error) {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

func parseRunID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid run id %q", runs.ErrInvalidRequest, raw)
	}
	return id, nil
}
