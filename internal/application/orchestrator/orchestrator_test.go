package orchestrator

import (
	"context"
	"testing"

	"github.com/longregen/cogexec/internal/adapters/entailment"
	"github.com/longregen/cogexec/internal/adapters/memstore"
	"github.com/longregen/cogexec/internal/adapters/ratelimit"
	"github.com/longregen/cogexec/internal/application/executor"
	"github.com/longregen/cogexec/internal/application/memory"
	"github.com/longregen/cogexec/internal/application/planner"
	"github.com/longregen/cogexec/internal/application/verifier"
	"github.com/longregen/cogexec/internal/application/wall"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

type fakeRegistry struct {
	specs map[string]*models.ToolSpec
}

func (r *fakeRegistry) Register(spec *models.ToolSpec) error { return nil }
func (r *fakeRegistry) Lookup(name string) (*models.ToolSpec, bool) {
	s, ok := r.specs[name]
	return s, ok
}
func (r *fakeRegistry) List(predicate func(*models.ToolSpec) bool) []*models.ToolSpec {
	var out []*models.ToolSpec
	for _, s := range r.specs {
		if predicate(s) {
			out = append(out, s)
		}
	}
	return out
}

type fakeEmbedding struct{}

func (f *fakeEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}
func (f *fakeEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}
func (f *fakeEmbedding) Dimensions() int { return 3 }

type fakeAudit struct{}

func (a *fakeAudit) Write(ctx context.Context, entry ports.AuditEntry) error { return nil }
func (a *fakeAudit) Rotate(ctx context.Context) error                        { return nil }

type fakeIDs struct{ n int }

func (f *fakeIDs) next(prefix string) string {
	f.n++
	return prefix + "_test"
}
func (f *fakeIDs) GenerateTurnID() string     { return f.next("turn") }
func (f *fakeIDs) GenerateMemoryID() string   { return f.next("mem") }
func (f *fakeIDs) GenerateClusterID() string  { return f.next("cluster") }
func (f *fakeIDs) GenerateToolUseID() string  { return f.next("tooluse") }
func (f *fakeIDs) GenerateCitationID() string { return f.next("cite") }

// RuleStrategy is used directly to avoid needing a LanguageModel collaborator.

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	spec := &models.ToolSpec{
		Name:       "get_time",
		RiskTier:   models.RiskSafe,
		SideEffect: models.SideEffectReadOnly,
		ArgSchema:  models.ArgSchema{Properties: map[string]models.ArgConstraint{}},
	}
	specs := map[string]*models.ToolSpec{"get_time": spec}
	reg := &fakeRegistry{specs: specs}

	memSvc := memory.NewService(memstore.New(), &fakeEmbedding{}, &fakeIDs{})

	rule := planner.NewRuleStrategy()
	pl := planner.NewPlanner(reg, rule)

	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfigs())
	w := wall.New(reg, limiter, &fakeAudit{}, nil)

	handler := ports.ToolHandlerFunc(func(ctx context.Context, args map[string]any, execCtx *ports.ExecutionContext) (*models.ExecutionResult, error) {
		return &models.ExecutionResult{Success: true, Value: "it is noon"}, nil
	})
	ex := executor.New(reg, map[string]ports.ToolHandler{"get_time": handler}, t.TempDir())

	v := verifier.New(reg, entailment.NewKeywordOverlap(), nil)

	return New(memSvc, pl, w, ex, v, &fakeIDs{}, nil)
}

func TestHandleTurn_HappyPathApprovesAndReturnsReply(t *testing.T) {
	o := newTestOrchestrator(t)
	outcome, err := o.HandleTurn(context.Background(), "u1", "what time is it", wall.AuthContext{})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if outcome.Reply != "it is noon" {
		t.Errorf("expected tool reply, got %q", outcome.Reply)
	}
	if outcome.Verdict == nil || outcome.Verdict.Status != models.VerdictPass {
		t.Errorf("expected pass verdict, got %+v", outcome.Verdict)
	}
}

func TestHandleTurn_PlanningFailureRefuses(t *testing.T) {
	o := newTestOrchestrator(t)
	outcome, err := o.HandleTurn(context.Background(), "u1", "gibberish nonsense utterance", wall.AuthContext{})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if outcome.Pending {
		t.Error("did not expect a pending outcome for a planning failure")
	}
	if outcome.Reply == "it is noon" {
		t.Error("expected a refusal reply, not the tool's output")
	}
}

func TestHandleTurn_SerializesPerUser(t *testing.T) {
	o := newTestOrchestrator(t)
	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			o.HandleTurn(context.Background(), "u1", "what time is it", wall.AuthContext{})
			done <- struct{}{}
		}()
	}
	<-done
	<-done
}
