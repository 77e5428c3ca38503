package checkpoints_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/JaimeStill/invoiceflow/internal/checkpoints"
	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/database"
	"github.com/JaimeStill/invoiceflow/pkg/pagination"
	"github.com/JaimeStill/invoiceflow/pkg/serialization"
)

type store interface {
	workflow.Store
	History(ctx context.Context, runID uuid.UUID) ([]workflow.RunState, error)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLite(t *testing.T, ser *serialization.Serializer) store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, checkpoints.EnsureSchema(context.Background(), db))
	return checkpoints.NewSQL(db, database.DriverSQLite, ser, discard())
}

func backends(t *testing.T) map[string]func(t *testing.T) store {
	return map[string]func(t *testing.T) store{
		"memory": func(t *testing.T) store {
			return checkpoints.NewMemory(serialization.Default(), discard())
		},
		"sqlite": func(t *testing.T) store {
			return newSQLite(t, serialization.Default())
		},
		"sqlite-json": func(t *testing.T) store {
			ser, err := serialization.New(&serialization.Config{Codec: serialization.CodecJSON, Compression: "gzip"})
			require.NoError(t, err)
			return newSQLite(t, ser)
		},
	}
}

func newRun(at time.Time) workflow.RunState {
	return workflow.NewRunState(uuid.New(), workflow.Payload{
		InvoiceNumber: "INV-1001",
		VendorName:    "Acme Supplies",
		Amount:        1180,
		Currency:      "INR",
	}, at)
}

func pause(s workflow.RunState, at time.Time) (workflow.RunState, workflow.Checkpoint) {
	s.Status = workflow.StatusPaused
	s.Stage = workflow.StageCheckpoint
	s.UpdatedAt = at
	s.Pause = &workflow.PauseRef{
		Kind:         workflow.PauseReview,
		CheckpointID: uuid.New(),
		ReviewURL:    "http://review/x",
		ResumeStage:  workflow.StageDecision,
		CreatedAt:    at,
	}
	cp := workflow.Checkpoint{
		ID:          s.Pause.CheckpointID,
		RunID:       s.RunID,
		Kind:        s.Pause.Kind,
		ResumeStage: s.Pause.ResumeStage,
		ReviewURL:   s.Pause.ReviewURL,
		Status:      workflow.CheckpointOpen,
		CreatedAt:   at,
	}
	return s, cp
}

func TestStore(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("CreateLoad", func(t *testing.T) { testCreateLoad(t, open(t)) })
			t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, open(t)) })
			t.Run("PauseResolve", func(t *testing.T) { testPauseResolve(t, open(t)) })
			t.Run("EscalationResolution", func(t *testing.T) { testEscalationResolution(t, open(t)) })
			t.Run("List", func(t *testing.T) { testList(t, open(t)) })
			t.Run("Running", func(t *testing.T) { testRunning(t, open(t)) })
		})
	}
}

func testCreateLoad(t *testing.T, st store) {
	ctx := context.Background()
	now := time.Now().UTC()

	s := newRun(now)
	s.Audit = append(s.Audit, workflow.AuditEntry{RunID: s.RunID, Stage: s.Stage, Event: "run_created", Timestamp: now})

	created, err := st.Create(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Seq)

	_, err = st.Create(ctx, s)
	assert.ErrorIs(t, err, workflow.ErrDuplicateRun)

	loaded, err := st.Load(ctx, s.RunID)
	require.NoError(t, err)
	assert.Equal(t, s.RunID, loaded.RunID)
	assert.Equal(t, workflow.StatusRunning, loaded.Status)
	assert.Equal(t, workflow.StageIntake, loaded.Stage)
	assert.Equal(t, "INV-1001", loaded.Payload.InvoiceNumber)
	assert.True(t, now.Equal(loaded.CreatedAt))
	require.Len(t, loaded.Audit, 1)
	assert.Equal(t, "run_created", loaded.Audit[0].Event)

	_, err = st.Load(ctx, uuid.New())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func testCompareAndSwap(t *testing.T, st store) {
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := st.Create(ctx, newRun(now))
	require.NoError(t, err)

	next := created.Clone()
	next.Stage = workflow.StageUnderstand
	score := 0.91
	next.MatchScore = &score

	saved, err := st.Save(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Seq)

	stale := created.Clone()
	stale.Stage = workflow.StagePrepare
	_, err = st.Save(ctx, stale)
	assert.ErrorIs(t, err, workflow.ErrStaleWrite)

	loaded, err := st.Load(ctx, created.RunID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageUnderstand, loaded.Stage)
	require.NotNil(t, loaded.MatchScore)
	assert.InDelta(t, 0.91, *loaded.MatchScore, 1e-9)

	history, err := st.History(ctx, created.RunID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, workflow.StageIntake, history[0].Stage)
	assert.Equal(t, workflow.StageUnderstand, history[1].Stage)

	missing := newRun(now)
	_, err = st.Save(ctx, missing)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func testPauseResolve(t *testing.T, st store) {
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := st.Create(ctx, newRun(now))
	require.NoError(t, err)

	_, err = st.LatestCheckpoint(ctx, created.RunID)
	assert.ErrorIs(t, err, workflow.ErrCheckpointNotFound)

	paused, cp := pause(created.Clone(), now)
	saved, err := st.Pause(ctx, paused, cp)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPaused, saved.Status)

	latest, err := st.LatestCheckpoint(ctx, created.RunID)
	require.NoError(t, err)
	assert.Equal(t, cp.ID, latest.ID)
	assert.Equal(t, workflow.CheckpointOpen, latest.Status)
	assert.Equal(t, workflow.StageDecision, latest.ResumeStage)
	assert.Equal(t, saved.Seq, latest.Seq)
	assert.Equal(t, workflow.StatusPaused, latest.State.Status)
	assert.Nil(t, latest.Decision)

	list, _, err := st.List(ctx, workflow.ListFilter{PauseKind: workflow.PauseReview}, page(1, 10))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, workflow.PauseReview, list[0].PauseKind)

	decided := saved.Clone()
	d := workflow.Accept
	decided.Decision = &d
	decided.DecidedBy = "reviewer@example.com"
	decided.Status = workflow.StatusRunning
	decided.Stage = workflow.StageDecision
	decided.Pause = nil

	resolved, err := st.Resolve(ctx, decided, latest)
	require.NoError(t, err)
	assert.Equal(t, saved.Seq+1, resolved.Seq)

	_, err = st.Resolve(ctx, resolved, latest)
	assert.ErrorIs(t, err, workflow.ErrCheckpointResolved)

	all, err := st.Checkpoints(ctx, created.RunID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, workflow.CheckpointResolved, all[0].Status)
	require.NotNil(t, all[0].Decision)
	assert.Equal(t, workflow.Accept, *all[0].Decision)
	assert.Equal(t, "reviewer@example.com", all[0].DecidedBy)
	assert.NotNil(t, all[0].ResolvedAt)

	found, err := st.FindCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, created.RunID, found.RunID)
	assert.Equal(t, workflow.CheckpointResolved, found.Status)

	_, err = st.FindCheckpoint(ctx, uuid.New())
	assert.ErrorIs(t, err, workflow.ErrCheckpointNotFound)
}

func testEscalationResolution(t *testing.T, st store) {
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := st.Create(ctx, newRun(now))
	require.NoError(t, err)

	first, cp1 := pause(created.Clone(), now)
	saved, err := st.Pause(ctx, first, cp1)
	require.NoError(t, err)

	second, cp2 := pause(saved.Clone(), now.Add(time.Second))
	second.Pause.Kind = workflow.PauseEscalation
	second.Pause.ResumeStage = workflow.StageApprove
	cp2.Kind = workflow.PauseEscalation
	cp2.ResumeStage = workflow.StageApprove
	saved, err = st.Pause(ctx, second, cp2)
	require.NoError(t, err)

	all, err := st.Checkpoints(ctx, created.RunID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, workflow.CheckpointSuperseded, all[0].Status)
	assert.Equal(t, workflow.CheckpointOpen, all[1].Status)

	decided := saved.Clone()
	d := workflow.Accept
	decided.EscalationDecision = &d
	decided.Approval = &workflow.Approval{Status: workflow.Escalated, ApprovedBy: "cfo@example.com"}
	decided.Status = workflow.StatusRunning
	decided.Pause = nil

	_, err = st.Resolve(ctx, decided, all[1])
	require.NoError(t, err)

	latest, err := st.LatestCheckpoint(ctx, created.RunID)
	require.NoError(t, err)
	assert.Equal(t, cp2.ID, latest.ID)
	assert.Equal(t, workflow.CheckpointResolved, latest.Status)
	assert.Equal(t, "cfo@example.com", latest.DecidedBy)
}

func testList(t *testing.T, st store) {
	ctx := context.Background()
	base := time.Now().UTC()

	var ids []uuid.UUID
	for i := range 5 {
		s := newRun(base.Add(time.Duration(i) * time.Minute))
		created, err := st.Create(ctx, s)
		require.NoError(t, err)
		ids = append(ids, created.RunID)

		if i%2 == 0 {
			done := created.Clone()
			done.Status = workflow.StatusCompleted
			done.Stage = workflow.StageFinalize
			_, err := st.Save(ctx, done)
			require.NoError(t, err)
		}
	}

	all, total, err := st.List(ctx, workflow.ListFilter{}, page(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, all, 2)
	assert.Equal(t, ids[4], all[0].RunID, "most recently updated first")
	assert.Equal(t, ids[3], all[1].RunID)

	last, _, err := st.List(ctx, workflow.ListFilter{}, page(3, 2))
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, ids[0], last[0].RunID)

	completed, total, err := st.List(ctx, workflow.ListFilter{Status: workflow.StatusCompleted}, page(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	for _, s := range completed {
		assert.Equal(t, workflow.StatusCompleted, s.Status)
		assert.Equal(t, "INV-1001", s.InvoiceNumber)
		assert.Equal(t, "Acme Supplies", s.VendorName)
	}

	none, total, err := st.List(ctx, workflow.ListFilter{Stage: workflow.StagePost}, page(1, 10))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}

func testRunning(t *testing.T, st store) {
	ctx := context.Background()
	now := time.Now().UTC()

	running, err := st.Create(ctx, newRun(now))
	require.NoError(t, err)

	failed, err := st.Create(ctx, newRun(now))
	require.NoError(t, err)
	failed.Status = workflow.StatusFailed
	_, err = st.Save(ctx, failed)
	require.NoError(t, err)

	ids, err := st.Running(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{running.RunID}, ids)
}

func TestLoadIsolation(t *testing.T) {
	ctx := context.Background()
	st := checkpoints.NewMemory(nil, discard())

	s := newRun(time.Now().UTC())
	s.Payload.LineItems = nil
	created, err := st.Create(ctx, s)
	require.NoError(t, err)

	a, err := st.Load(ctx, created.RunID)
	require.NoError(t, err)
	a.Audit = append(a.Audit, workflow.AuditEntry{Event: "mutated"})
	a.Payload.InvoiceNumber = "changed"

	b, err := st.Load(ctx, created.RunID)
	require.NoError(t, err)
	assert.Empty(t, b.Audit)
	assert.Equal(t, "INV-1001", b.Payload.InvoiceNumber)
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, checkpoints.EnsureSchema(ctx, db))
	require.NoError(t, checkpoints.EnsureSchema(ctx, db))
}

func TestMigrations(t *testing.T) {
	fsys, err := checkpoints.Migrations(database.DriverPostgres)
	require.NoError(t, err)

	up, err := fsys.Open("000001_initial_schema.up.sql")
	require.NoError(t, err)
	up.Close()
}

func TestConfig(t *testing.T) {
	t.Setenv("TEST_CHECKPOINTS_BACKEND", "memory")

	cfg := checkpoints.Config{}
	require.NoError(t, cfg.Finalize(&checkpoints.Env{Backend: "TEST_CHECKPOINTS_BACKEND"}))
	assert.Equal(t, checkpoints.BackendMemory, cfg.Backend)
	assert.Equal(t, serialization.CodecMsgPack, cfg.Serialization.Codec)

	bad := checkpoints.Config{Backend: "redis"}
	assert.Error(t, bad.Finalize(nil))

	st, err := checkpoints.New(&cfg, nil, discard())
	require.NoError(t, err)
	assert.IsType(t, &checkpoints.Memory{}, st)

	_, err = checkpoints.New(&checkpoints.Config{Backend: checkpoints.BackendDatabase}, nil, discard())
	assert.Error(t, err)
}

func page(n, size int) pagination.PageRequest {
	return pagination.PageRequest{Page: n, PageSize: size}
}
