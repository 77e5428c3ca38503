package checkpoints

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/database"
	"github.com/JaimeStill/invoiceflow/pkg/lifecycle"
	"github.com/JaimeStill/invoiceflow/pkg/pagination"
	"github.com/JaimeStill/invoiceflow/pkg/query"
	"github.com/JaimeStill/invoiceflow/pkg/repository"
	"github.com/JaimeStill/invoiceflow/pkg/serialization"
)

var summaryProjection = query.
	NewProjectionMap("runs", "r").
	Project("run_id", "RunID").
	Project("status", "Status").
	Project("stage", "Stage").
	Project("pause_kind", "PauseKind").
	Project("invoice_number", "InvoiceNumber").
	Project("vendor_name", "VendorName").
	Project("amount", "Amount").
	Project("match_score", "MatchScore").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var summarySort = []query.SortField{
	{Field: "UpdatedAt", Descending: true},
	{Field: "RunID"},
}

const checkpointColumns = `checkpoint_id, run_id, seq, kind, resume_stage, review_url,
	status, decision, decided_by, state, created_at, resolved_at`

// SQLStore persists runs in PostgreSQL or SQLite. Queries are written with
// ? placeholders and rebound for the driver.
type SQLStore struct {
	db         *sql.DB
	dialect    string
	serializer *serialization.Serializer
	logger     *slog.Logger
}

// NewSQL creates a store over db. dialect is database.DriverPostgres or
// database.DriverSQLite.
func NewSQL(db *sql.DB, dialect string, serializer *serialization.Serializer, logger *slog.Logger) *SQLStore {
	if serializer == nil {
		serializer = serialization.Default()
	}
	return &SQLStore{
		db:         db,
		dialect:    dialect,
		serializer: serializer,
		logger:     logger.With("system", "checkpoints", "backend", dialect, "codec", serializer.Codec()),
	}
}

// Start applies the embedded schema on SQLite. Postgres schemas are managed
// by cmd/migrate.
func (s *SQLStore) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting checkpoint store")

	if s.dialect != database.DriverSQLite {
		return nil
	}

	lc.OnStartup(func() {
		if err := EnsureSchema(lc.Context(), s.db); err != nil {
			s.logger.Error("checkpoint schema failed", "error", err)
			return
		}
		s.logger.Info("checkpoint schema ready")
	})
	return nil
}

func (s *SQLStore) Create(ctx context.Context, st workflow.RunState) (workflow.RunState, error) {
	st.Seq = 1
	data, err := s.serializer.Serialize(st)
	if err != nil {
		return st, fmt.Errorf("encode state: %w", err)
	}
	sum := workflow.Summarize(st)

	_, err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		q := `INSERT INTO runs (run_id, seq, status, stage, pause_kind, resume_stage,
			invoice_number, vendor_name, amount, match_score, state, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, s.rebind(q),
			st.RunID, st.Seq, st.Status, st.Stage, sum.PauseKind, resumeStage(st),
			sum.InvoiceNumber, sum.VendorName, sum.Amount, sum.MatchScore, data,
			st.CreatedAt.UnixMicro(), st.UpdatedAt.UnixMicro(),
		); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.snapshot(ctx, tx, st, data)
	})
	if err != nil {
		return st, repository.MapError(err, workflow.ErrNotFound, workflow.ErrDuplicateRun)
	}
	return st, nil
}

func (s *SQLStore) Load(ctx context.Context, id uuid.UUID) (workflow.RunState, error) {
	q := s.rebind(`SELECT state FROM runs WHERE run_id = ?`)

	var data []byte
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&data); err != nil {
		return workflow.RunState{}, repository.MapError(err, workflow.ErrNotFound, workflow.ErrDuplicateRun)
	}
	return s.decode(data)
}

func (s *SQLStore) Save(ctx context.Context, st workflow.RunState) (workflow.RunState, error) {
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) (workflow.RunState, error) {
		saved, _, err := s.save(ctx, tx, st)
		return saved, err
	})
}

func (s *SQLStore) Pause(ctx context.Context, st workflow.RunState, cp workflow.Checkpoint) (workflow.RunState, error) {
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) (workflow.RunState, error) {
		saved, data, err := s.save(ctx, tx, st)
		if err != nil {
			return st, err
		}

		supersede := `UPDATE review_checkpoints SET status = ? WHERE run_id = ? AND status = ?`
		if _, err := tx.ExecContext(ctx, s.rebind(supersede),
			workflow.CheckpointSuperseded, saved.RunID, workflow.CheckpointOpen,
		); err != nil {
			return st, fmt.Errorf("supersede checkpoints: %w", err)
		}

		insert := `INSERT INTO review_checkpoints (checkpoint_id, run_id, seq, kind, resume_stage,
			review_url, status, state, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, s.rebind(insert),
			cp.ID, saved.RunID, saved.Seq, cp.Kind, cp.ResumeStage,
			cp.ReviewURL, workflow.CheckpointOpen, data, cp.CreatedAt.UnixMicro(),
		); err != nil {
			return st, fmt.Errorf("insert checkpoint: %w", err)
		}

		return saved, nil
	})
}

func (s *SQLStore) Resolve(ctx context.Context, st workflow.RunState, cp workflow.Checkpoint) (workflow.RunState, error) {
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) (workflow.RunState, error) {
		decision, by := workflow.Resolution(st, cp.Kind)

		var d sql.NullString
		if decision != nil {
			d = sql.NullString{String: string(*decision), Valid: true}
		}

		q := `UPDATE review_checkpoints
			SET status = ?, decision = ?, decided_by = ?, resolved_at = ?
			WHERE checkpoint_id = ? AND status = ?`
		err := repository.ExecExpectOne(ctx, tx, s.rebind(q),
			workflow.CheckpointResolved, d, by, st.UpdatedAt.UnixMicro(),
			cp.ID, workflow.CheckpointOpen,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return st, workflow.ErrCheckpointResolved
		}
		if err != nil {
			return st, fmt.Errorf("resolve checkpoint: %w", err)
		}

		saved, _, err := s.save(ctx, tx, st)
		return saved, err
	})
}

func (s *SQLStore) LatestCheckpoint(ctx context.Context, runID uuid.UUID) (workflow.Checkpoint, error) {
	q := s.rebind(`SELECT ` + checkpointColumns + `
		FROM review_checkpoints WHERE run_id = ? ORDER BY seq DESC LIMIT 1`)

	cp, err := repository.QueryOne(ctx, s.db, q, []any{runID}, s.scanCheckpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, workflow.ErrCheckpointNotFound
	}
	return cp, err
}

func (s *SQLStore) FindCheckpoint(ctx context.Context, id uuid.UUID) (workflow.Checkpoint, error) {
	q := s.rebind(`SELECT ` + checkpointColumns + `
		FROM review_checkpoints WHERE checkpoint_id = ?`)

	cp, err := repository.QueryOne(ctx, s.db, q, []any{id}, s.scanCheckpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, workflow.ErrCheckpointNotFound
	}
	return cp, err
}

func (s *SQLStore) Checkpoints(ctx context.Context, runID uuid.UUID) ([]workflow.Checkpoint, error) {
	q := s.rebind(`SELECT ` + checkpointColumns + `
		FROM review_checkpoints WHERE run_id = ? ORDER BY seq ASC`)
	return repository.QueryMany(ctx, s.db, q, []any{runID}, s.scanCheckpoint)
}

func (s *SQLStore) List(ctx context.Context, filter workflow.ListFilter, page pagination.PageRequest) ([]workflow.Summary, int, error) {
	qb := query.NewBuilder(summaryProjection, summarySort...).
		WhereEquals("Status", string(filter.Status)).
		WhereEquals("Stage", string(filter.Stage)).
		WhereEquals("PauseKind", string(filter.PauseKind))

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(countSQL), countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, s.db, s.rebind(pageSQL), pageArgs, scanSummary)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	return items, total, nil
}

func (s *SQLStore) Running(ctx context.Context) ([]uuid.UUID, error) {
	q := s.rebind(`SELECT run_id FROM runs WHERE status = ? ORDER BY updated_at ASC`)
	return repository.QueryMany(ctx, s.db, q, []any{workflow.StatusRunning}, func(sc repository.Scanner) (uuid.UUID, error) {
		var id uuid.UUID
		err := sc.Scan(&id)
		return id, err
	})
}

func (s *SQLStore) History(ctx context.Context, runID uuid.UUID) ([]workflow.RunState, error) {
	q := s.rebind(`SELECT state FROM run_snapshots WHERE run_id = ? ORDER BY seq ASC`)
	states, err := repository.QueryMany(ctx, s.db, q, []any{runID}, func(sc repository.Scanner) (workflow.RunState, error) {
		var data []byte
		if err := sc.Scan(&data); err != nil {
			return workflow.RunState{}, err
		}
		return s.decode(data)
	})
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, workflow.ErrNotFound
	}
	return states, nil
}

// save advances st by one sequence number under compare-and-swap and appends
// a snapshot. It returns the saved state and its encoding.
func (s *SQLStore) save(ctx context.Context, tx *sql.Tx, st workflow.RunState) (workflow.RunState, []byte, error) {
	prev := st.Seq
	st.Seq++

	data, err := s.serializer.Serialize(st)
	if err != nil {
		return st, nil, fmt.Errorf("encode state: %w", err)
	}
	sum := workflow.Summarize(st)

	q := `UPDATE runs SET seq = ?, status = ?, stage = ?, pause_kind = ?, resume_stage = ?,
		invoice_number = ?, vendor_name = ?, amount = ?, match_score = ?, state = ?, updated_at = ?
		WHERE run_id = ? AND seq = ?`
	err = repository.ExecExpectOne(ctx, tx, s.rebind(q),
		st.Seq, st.Status, st.Stage, sum.PauseKind, resumeStage(st),
		sum.InvoiceNumber, sum.VendorName, sum.Amount, sum.MatchScore, data, st.UpdatedAt.UnixMicro(),
		st.RunID, prev,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil, s.missedWrite(ctx, tx, st.RunID, prev)
	}
	if err != nil {
		return st, nil, fmt.Errorf("update run: %w", err)
	}

	if err := s.snapshot(ctx, tx, st, data); err != nil {
		return st, nil, err
	}
	return st, data, nil
}

func (s *SQLStore) snapshot(ctx context.Context, tx *sql.Tx, st workflow.RunState, data []byte) error {
	q := `INSERT INTO run_snapshots (run_id, seq, status, stage, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, s.rebind(q),
		st.RunID, st.Seq, st.Status, st.Stage, data, st.UpdatedAt.UnixMicro(),
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// missedWrite distinguishes a missing run from a lost compare-and-swap.
func (s *SQLStore) missedWrite(ctx context.Context, tx *sql.Tx, id uuid.UUID, seq int64) error {
	var current int64
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT seq FROM runs WHERE run_id = ?`), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check run sequence: %w", err)
	}
	return fmt.Errorf("%w: run %s at seq %d, write based on %d", workflow.ErrStaleWrite, id, current, seq)
}

func (s *SQLStore) scanCheckpoint(sc repository.Scanner) (workflow.Checkpoint, error) {
	var (
		cp         workflow.Checkpoint
		decision   sql.NullString
		data       []byte
		createdAt  int64
		resolvedAt sql.NullInt64
	)

	err := sc.Scan(
		&cp.ID, &cp.RunID, &cp.Seq, &cp.Kind, &cp.ResumeStage, &cp.ReviewURL,
		&cp.Status, &decision, &cp.DecidedBy, &data, &createdAt, &resolvedAt,
	)
	if err != nil {
		return cp, err
	}

	cp.CreatedAt = time.UnixMicro(createdAt).UTC()
	if decision.Valid {
		d := workflow.Decision(decision.String)
		cp.Decision = &d
	}
	if resolvedAt.Valid {
		at := time.UnixMicro(resolvedAt.Int64).UTC()
		cp.ResolvedAt = &at
	}

	cp.State, err = s.decode(data)
	return cp, err
}

func scanSummary(sc repository.Scanner) (workflow.Summary, error) {
	var (
		sum        workflow.Summary
		matchScore sql.NullFloat64
		createdAt  int64
		updatedAt  int64
	)

	err := sc.Scan(
		&sum.RunID, &sum.Status, &sum.Stage, &sum.PauseKind,
		&sum.InvoiceNumber, &sum.VendorName, &sum.Amount, &matchScore,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return sum, err
	}

	if matchScore.Valid {
		sum.MatchScore = &matchScore.Float64
	}
	sum.CreatedAt = time.UnixMicro(createdAt).UTC()
	sum.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return sum, nil
}

func (s *SQLStore) decode(data []byte) (workflow.RunState, error) {
	var st workflow.RunState
	if err := s.serializer.Deserialize(data, &st); err != nil {
		return st, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

func (s *SQLStore) rebind(q string) string {
	return repository.Rebind(s.dialect, q)
}

func resumeStage(s workflow.RunState) workflow.Stage {
	if s.Status == workflow.StatusPaused && s.Pause != nil {
		return s.Pause.ResumeStage
	}
	return ""
}
