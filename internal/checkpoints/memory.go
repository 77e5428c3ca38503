package checkpoints

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/lifecycle"
	"github.com/JaimeStill/invoiceflow/pkg/pagination"
	"github.com/JaimeStill/invoiceflow/pkg/serialization"
)

type memRun struct {
	seq       int64
	summary   workflow.Summary
	state     []byte
	snapshots [][]byte
}

type memCheckpoint struct {
	record workflow.Checkpoint
	state  []byte
}

// Memory is a process-local store. States are held encoded so callers never
// share memory with the store.
type Memory struct {
	mu          sync.RWMutex
	runs        map[uuid.UUID]*memRun
	checkpoints map[uuid.UUID][]memCheckpoint
	serializer  *serialization.Serializer
	logger      *slog.Logger
}

// NewMemory creates an empty in-memory store.
func NewMemory(serializer *serialization.Serializer, logger *slog.Logger) *Memory {
	if serializer == nil {
		serializer = serialization.Default()
	}
	return &Memory{
		runs:        make(map[uuid.UUID]*memRun),
		checkpoints: make(map[uuid.UUID][]memCheckpoint),
		serializer:  serializer,
		logger:      logger.With("system", "checkpoints", "backend", BackendMemory),
	}
}

func (m *Memory) Start(lc *lifecycle.Coordinator) error {
	m.logger.Info("starting checkpoint store")
	return nil
}

func (m *Memory) Create(ctx context.Context, s workflow.RunState) (workflow.RunState, error) {
	s.Seq = 1
	data, err := m.serializer.Serialize(s)
	if err != nil {
		return s, fmt.Errorf("encode state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[s.RunID]; ok {
		return s, workflow.ErrDuplicateRun
	}
	m.runs[s.RunID] = &memRun{
		seq:       s.Seq,
		summary:   workflow.Summarize(s),
		state:     data,
		snapshots: [][]byte{data},
	}
	return s, nil
}

func (m *Memory) Load(ctx context.Context, id uuid.UUID) (workflow.RunState, error) {
	m.mu.RLock()
	run, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return workflow.RunState{}, workflow.ErrNotFound
	}
	return m.decode(run.state)
}

func (m *Memory) Save(ctx context.Context, s workflow.RunState) (workflow.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(s)
}

func (m *Memory) Pause(ctx context.Context, s workflow.RunState, cp workflow.Checkpoint) (workflow.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved, err := m.save(s)
	if err != nil {
		return s, err
	}

	list := m.checkpoints[s.RunID]
	for i := range list {
		if list[i].record.Status == workflow.CheckpointOpen {
			list[i].record.Status = workflow.CheckpointSuperseded
		}
	}

	cp.RunID = saved.RunID
	cp.Seq = saved.Seq
	cp.Status = workflow.CheckpointOpen
	cp.State = workflow.RunState{}
	m.checkpoints[s.RunID] = append(list, memCheckpoint{
		record: cp,
		state:  m.runs[s.RunID].state,
	})
	return saved, nil
}

func (m *Memory) Resolve(ctx context.Context, s workflow.RunState, cp workflow.Checkpoint) (workflow.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.checkpoints[s.RunID]
	idx := slices.IndexFunc(list, func(c memCheckpoint) bool { return c.record.ID == cp.ID })
	if idx < 0 {
		return s, workflow.ErrCheckpointNotFound
	}
	if list[idx].record.Status != workflow.CheckpointOpen {
		return s, workflow.ErrCheckpointResolved
	}

	saved, err := m.save(s)
	if err != nil {
		return s, err
	}

	decision, by := workflow.Resolution(saved, list[idx].record.Kind)
	resolvedAt := saved.UpdatedAt
	list[idx].record.Status = workflow.CheckpointResolved
	list[idx].record.Decision = decision
	list[idx].record.DecidedBy = by
	list[idx].record.ResolvedAt = &resolvedAt
	return saved, nil
}

func (m *Memory) LatestCheckpoint(ctx context.Context, runID uuid.UUID) (workflow.Checkpoint, error) {
	m.mu.RLock()
	list := m.checkpoints[runID]
	if len(list) == 0 {
		m.mu.RUnlock()
		return workflow.Checkpoint{}, workflow.ErrCheckpointNotFound
	}
	last := list[len(list)-1]
	m.mu.RUnlock()

	return m.checkpoint(last)
}

func (m *Memory) FindCheckpoint(ctx context.Context, id uuid.UUID) (workflow.Checkpoint, error) {
	m.mu.RLock()
	for _, list := range m.checkpoints {
		for _, c := range list {
			if c.record.ID == id {
				m.mu.RUnlock()
				return m.checkpoint(c)
			}
		}
	}
	m.mu.RUnlock()

	return workflow.Checkpoint{}, workflow.ErrCheckpointNotFound
}

func (m *Memory) Checkpoints(ctx context.Context, runID uuid.UUID) ([]workflow.Checkpoint, error) {
	m.mu.RLock()
	list := slices.Clone(m.checkpoints[runID])
	m.mu.RUnlock()

	out := make([]workflow.Checkpoint, 0, len(list))
	for _, c := range list {
		cp, err := m.checkpoint(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (m *Memory) List(ctx context.Context, filter workflow.ListFilter, page pagination.PageRequest) ([]workflow.Summary, int, error) {
	m.mu.RLock()
	matched := make([]workflow.Summary, 0, len(m.runs))
	for _, run := range m.runs {
		if matches(run.summary, filter) {
			matched = append(matched, run.summary)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, func(a, b workflow.Summary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RunID.String(), b.RunID.String())
	})

	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.PageSize, total)
	return matched[start:end], total, nil
}

func (m *Memory) Running(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []uuid.UUID
	for id, run := range m.runs {
		if run.summary.Status == workflow.StatusRunning {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return cmp.Compare(a.String(), b.String()) })
	return ids, nil
}

func (m *Memory) History(ctx context.Context, runID uuid.UUID) ([]workflow.RunState, error) {
	m.mu.RLock()
	run, ok := m.runs[runID]
	var snapshots [][]byte
	if ok {
		snapshots = slices.Clone(run.snapshots)
	}
	m.mu.RUnlock()
	if !ok {
		return nil, workflow.ErrNotFound
	}

	out := make([]workflow.RunState, 0, len(snapshots))
	for _, data := range snapshots {
		s, err := m.decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// save must be called with m.mu held.
func (m *Memory) save(s workflow.RunState) (workflow.RunState, error) {
	run, ok := m.runs[s.RunID]
	if !ok {
		return s, workflow.ErrNotFound
	}
	if run.seq != s.Seq {
		return s, fmt.Errorf("%w: run %s at seq %d, write based on %d", workflow.ErrStaleWrite, s.RunID, run.seq, s.Seq)
	}

	s.Seq++
	data, err := m.serializer.Serialize(s)
	if err != nil {
		return s, fmt.Errorf("encode state: %w", err)
	}

	run.seq = s.Seq
	run.summary = workflow.Summarize(s)
	run.state = data
	run.snapshots = append(run.snapshots, data)
	return s, nil
}

func (m *Memory) checkpoint(c memCheckpoint) (workflow.Checkpoint, error) {
	state, err := m.decode(c.state)
	if err != nil {
		return workflow.Checkpoint{}, err
	}
	cp := c.record
	if cp.ResolvedAt != nil {
		at := *cp.ResolvedAt
		cp.ResolvedAt = &at
	}
	if cp.Decision != nil {
		d := *cp.Decision
		cp.Decision = &d
	}
	cp.State = state
	return cp, nil
}

func (m *Memory) decode(data []byte) (workflow.RunState, error) {
	var s workflow.RunState
	if err := m.serializer.Deserialize(data, &s); err != nil {
		return s, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}

func matches(s workflow.Summary, f workflow.ListFilter) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Stage != "" && s.Stage != f.Stage {
		return false
	}
	if f.PauseKind != "" && s.PauseKind != f.PauseKind {
		return false
	}
	return true
}
