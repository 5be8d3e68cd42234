// Package orchestrator sequences one turn end to end: context assembly,
// planning, wall evaluation, execution, verification, reply selection, and
// memory commit. It owns per-user serialization and cancellation
// propagation; every stage below it assumes the caller already holds the
// per-user lock.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/longregen/cogexec/internal/adapters/metrics"
	"github.com/longregen/cogexec/internal/application/executor"
	"github.com/longregen/cogexec/internal/application/memory"
	"github.com/longregen/cogexec/internal/application/planner"
	"github.com/longregen/cogexec/internal/application/verifier"
	"github.com/longregen/cogexec/internal/application/wall"
	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

const (
	DefaultContextBudget = memory.DefaultContextBudget
	DefaultPlanTimeout   = 10 * time.Second
)

// Outcome is handleTurn's return value: the reply a client renders, the
// verdict that produced it, and a short summary for logging/notification.
type Outcome struct {
	Reply         string
	Verdict       *models.Verdict
	WallVerdict   *ports.WallVerdict
	ResultSummary string
	TurnID        string
	Pending       bool // true when the turn stopped at a confirmation prompt; no Turn was committed
}

// Orchestrator wires the five subsystems together and serializes per-user
// turns: two turns from the same user run strictly one after another, while
// different users proceed concurrently.
type Orchestrator struct {
	memory   *memory.Service
	planner  *planner.Planner
	wall     *wall.Wall
	executor *executor.Executor
	verifier *verifier.Verifier
	ids      ports.IDGenerator
	notifier ports.GenerationNotifier

	userLocks sync.Map // userID -> *sync.Mutex
}

func New(
	memSvc *memory.Service,
	pl *planner.Planner,
	w *wall.Wall,
	ex *executor.Executor,
	v *verifier.Verifier,
	ids ports.IDGenerator,
	notifier ports.GenerationNotifier,
) *Orchestrator {
	return &Orchestrator{memory: memSvc, planner: pl, wall: w, executor: ex, verifier: v, ids: ids, notifier: notifier}
}

// HandleTurn runs a single user utterance through the full pipeline,
// per spec.md §4.7. auth carries any confirmation/owner-auth token the
// caller attached to this turn (e.g. from a prior NeedsConfirmation reply).
func (o *Orchestrator) HandleTurn(ctx context.Context, userID, utterance string, auth wall.AuthContext) (outcome *Outcome, err error) {
	start := time.Now()
	defer func() {
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
		metrics.TurnsTotal.WithLabelValues(turnOutcomeLabel(outcome, err)).Inc()
	}()

	lock := o.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	turnID := o.ids.GenerateTurnID()
	turn := models.NewTurn(turnID, userID, utterance)

	o.notify(func() { o.notifier.NotifyPlanning(turnID, userID) })

	bundle, ctxErr := o.memory.AssembleContext(ctx, userID, utterance, DefaultContextBudget)
	memoryContext := ""
	if bundle != nil {
		memoryContext = bundle.Render()
	}
	if ctxErr != nil && bundle == nil {
		return o.refuse(ctx, turn, "context assembly failed")
	}

	planCtx, cancel := context.WithTimeout(ctx, DefaultPlanTimeout)
	plan, err := o.planner.Plan(planCtx, utterance, memoryContext)
	cancel()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ctx.Err()
		}
		return o.refuse(ctx, turn, "I couldn't work out a plan for that request.")
	}
	turn.Plan = plan
	o.notify(func() { o.notifier.NotifyPlanReady(turnID, plan) })

	verdict, err := o.wall.Evaluate(ctx, turnID, userID, plan, auth)
	if err != nil {
		return o.refuse(ctx, turn, fmt.Sprintf("validation failed: %v", err))
	}
	o.notify(func() { o.notifier.NotifyWallVerdict(turnID, verdict) })

	switch verdict.Kind {
	case ports.WallRejected:
		return o.refuseWithVerdict(ctx, turn, &verdict, fmt.Sprintf("I can't do that: %s (%s).", verdict.Detail, verdict.Code))
	case ports.WallNeedsConfirmation:
		return &Outcome{
			Reply:       "That action needs your confirmation before I can proceed. Please confirm to continue.",
			WallVerdict: &verdict,
			TurnID:      turnID,
			Pending:     true,
		}, nil
	case ports.WallNeedsOwnerAuth:
		return &Outcome{
			Reply:       "That action requires owner authentication before I can proceed.",
			WallVerdict: &verdict,
			TurnID:      turnID,
			Pending:     true,
		}, nil
	}

	o.notify(func() { o.notifier.NotifyToolUseStart(turnID, plan.ToolName, plan.Args) })

	result, err := o.executor.Execute(ctx, userID, plan)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ctx.Err()
		}
		return o.refuseWithVerdict(ctx, turn, &verdict, fmt.Sprintf("execution failed: %v", err))
	}
	turn.Result = result
	o.notify(func() { o.notifier.NotifyToolUseComplete(turnID, result) })

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	vdt, err := o.verifier.Check(ctx, plan, result)
	if err != nil {
		vdt = &models.Verdict{Status: models.VerdictWarn, Reasons: []models.ReasonCode{"verifier_degraded"}}
	}
	turn.Verdict = vdt
	o.notify(func() { o.notifier.NotifyVerdict(turnID, vdt) })

	reply, success := selectReply(result, vdt)
	turn.ReplyText = reply
	turn.Success = success

	memID, commitErr := o.memory.Commit(ctx, turn)
	if commitErr != nil && !errors.Is(commitErr, domain.ErrBackendUnavailable) {
		return nil, fmt.Errorf("failed to commit turn: %w", commitErr)
	}

	o.notify(func() { o.notifier.NotifyReply(turnID, reply) })

	return &Outcome{
		Reply:         reply,
		Verdict:       vdt,
		WallVerdict:   &verdict,
		ResultSummary: summarize(result, vdt),
		TurnID:        turnID,
	}, finalizeErr(memID, commitErr)
}

// selectReply implements spec.md §4.7 step 6's decision matrix.
func selectReply(result *models.ExecutionResult, vdt *models.Verdict) (reply string, success bool) {
	switch {
	case result.Success && vdt.Status == models.VerdictPass:
		return renderValue(result), true
	case vdt.Status == models.VerdictWarn:
		return fmt.Sprintf("%s\n\n(Note: %v)", renderValue(result), vdt.Reasons), true
	default:
		return "I'm not able to share that result; it didn't pass verification.", false
	}
}

func renderValue(result *models.ExecutionResult) string {
	if text, ok := result.Value.(string); ok {
		return text
	}
	return fmt.Sprintf("%v", result.Value)
}

func summarize(result *models.ExecutionResult, vdt *models.Verdict) string {
	return fmt.Sprintf("success=%t verdict=%s duration=%s", result.Success, vdt.Status, result.Duration)
}

// refuse commits a failure Turn and returns a refusal Outcome. Used when a
// stage fails before an ExecutionResult exists.
func (o *Orchestrator) refuse(ctx context.Context, turn *models.Turn, reason string) (*Outcome, error) {
	turn.ReplyText = reason
	turn.Success = false
	o.memory.Commit(ctx, turn) //nolint:errcheck // best-effort; a failed commit shouldn't mask the refusal reply
	return &Outcome{Reply: reason, TurnID: turn.ID}, nil
}

func (o *Orchestrator) refuseWithVerdict(ctx context.Context, turn *models.Turn, verdict *ports.WallVerdict, reason string) (*Outcome, error) {
	turn.ReplyText = reason
	turn.Success = false
	o.memory.Commit(ctx, turn) //nolint:errcheck
	return &Outcome{Reply: reason, WallVerdict: verdict, TurnID: turn.ID}, nil
}

func finalizeErr(memID string, commitErr error) error {
	_ = memID
	if commitErr != nil && errors.Is(commitErr, domain.ErrBackendUnavailable) {
		return nil // buffered to the write-ahead queue; not a caller-visible failure
	}
	return nil
}

// turnOutcomeLabel classifies a finished HandleTurn call for TurnsTotal:
// a Go error, a pending confirmation/owner-auth prompt, a refused/blocked
// reply, or a normal completed reply.
func turnOutcomeLabel(outcome *Outcome, err error) string {
	switch {
	case err != nil:
		return "error"
	case outcome == nil:
		return "error"
	case outcome.Pending:
		return "pending"
	case outcome.Verdict != nil && outcome.Verdict.Status != models.VerdictPass:
		return "verifier_warn_or_block"
	case outcome.Verdict == nil && outcome.WallVerdict == nil:
		return "refused"
	default:
		return "completed"
	}
}

func (o *Orchestrator) notify(fn func()) {
	if o.notifier == nil {
		return
	}
	fn()
}

func (o *Orchestrator) lockFor(userID string) *sync.Mutex {
	actual, _ := o.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
