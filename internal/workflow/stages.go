package workflow

import "context"

// Outcome tells the engine where a stage sends the run next.
type Outcome int

const (
	// Advance moves to the fixed successor stage.
	Advance Outcome = iota
	// NeedsReview redirects to HITL_CHECKPOINT.
	NeedsReview
	// Pause persists a checkpoint and stops driving. The stage has set PAUSED.
	Pause
	// Halt stops driving. The stage has set a terminal status.
	Halt
)

func (o Outcome) String() string {
	switch o {
	case Advance:
		return "advance"
	case NeedsReview:
		return "needs_review"
	case Pause:
		return "pause"
	case Halt:
		return "halt"
	default:
		return "unknown"
	}
}

// StageFunc executes one stage on a private copy of the run state. On error
// the returned state must still be usable so attempt logs are kept.
type StageFunc func(ctx context.Context, rt *Runtime, s RunState) (RunState, Outcome, error)

var successors = map[Stage]Stage{
	StageIntake:          StageUnderstand,
	StageUnderstand:      StagePrepare,
	StagePrepare:         StageRetrieve,
	StageRetrieve:        StageMatch,
	StageMatch:           StageReconcile,
	StageCheckpoint:      StageDecision,
	StageDecision:        StageReconcile,
	StageReconcile:       StageApprove,
	StageApprove:         StagePost,
	StagePost:            StageSchedulePayment,
	StageSchedulePayment: StageNotify,
	StageNotify:          StageFinalize,
}

// Successor returns the stage after s, or "" after FINALIZE.
func Successor(s Stage) Stage {
	return successors[s]
}

// SideEffecting reports whether a stage writes to an external system and
// therefore must not be blindly re-executed after a crash.
func SideEffecting(s Stage) bool {
	return s == StagePost || s == StageSchedulePayment
}

// DefaultStages returns the stage table.
func DefaultStages() map[Stage]StageFunc {
	return map[Stage]StageFunc{
		StageIntake:          Intake,
		StageUnderstand:      Understand,
		StagePrepare:         Prepare,
		StageRetrieve:        Retrieve,
		StageMatch:           MatchTwoWay,
		StageCheckpoint:      CreateCheckpoint,
		StageDecision:        ApplyDecision,
		StageReconcile:       Reconcile,
		StageApprove:         Approve,
		StagePost:            Post,
		StageSchedulePayment: SchedulePayment,
		StageNotify:          Notify,
		StageFinalize:        Finalize,
	}
}
