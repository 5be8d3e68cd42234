package wall

import (
	"context"
	"testing"
	"time"

	"github.com/longregen/cogexec/internal/adapters/ratelimit"
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
func (r *fakeRegistry) List(predicate func(*models.ToolSpec) bool) []*models.ToolSpec { return nil }

type fakeAudit struct {
	entries []ports.AuditEntry
	fail    bool
}

func (a *fakeAudit) Write(ctx context.Context, entry ports.AuditEntry) error {
	if a.fail {
		return errFake
	}
	a.entries = append(a.entries, entry)
	return nil
}
func (a *fakeAudit) Rotate(ctx context.Context) error { return nil }

var errFake = &fakeError{}

type fakeError struct{}

func (e *fakeError) Error() string { return "audit write failed" }

func newTestWall(specs map[string]*models.ToolSpec, audit ports.AuditSink) *Wall {
	reg := &fakeRegistry{specs: specs}
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfigs())
	return New(reg, limiter, audit, nil)
}

func safeSpec() *models.ToolSpec {
	return &models.ToolSpec{
		Name:       "get_time",
		RiskTier:   models.RiskSafe,
		SideEffect: models.SideEffectReadOnly,
		ArgSchema:  models.ArgSchema{Properties: map[string]models.ArgConstraint{}},
	}
}

func TestEvaluate_ApprovesSafeTool(t *testing.T) {
	audit := &fakeAudit{}
	w := newTestWall(map[string]*models.ToolSpec{"get_time": safeSpec()}, audit)

	plan := &models.ActionPlan{ToolName: "get_time", Args: map[string]any{}}
	verdict, err := w.Evaluate(context.Background(), "turn_1", "u1", plan, AuthContext{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !verdict.Approved() {
		t.Errorf("expected approval, got %+v", verdict)
	}
	if len(audit.entries) != 1 {
		t.Errorf("expected 1 audit entry, got %d", len(audit.entries))
	}
}

func TestEvaluate_RejectsUnknownTool(t *testing.T) {
	audit := &fakeAudit{}
	w := newTestWall(map[string]*models.ToolSpec{}, audit)

	plan := &models.ActionPlan{ToolName: "nonexistent", Args: map[string]any{}}
	verdict, err := w.Evaluate(context.Background(), "turn_1", "u1", plan, AuthContext{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if verdict.Kind != ports.WallRejected {
		t.Errorf("expected rejection, got %+v", verdict)
	}
}

func TestEvaluate_RejectsMissingRequiredArg(t *testing.T) {
	spec := &models.ToolSpec{
		Name:      "get_weather",
		RiskTier:  models.RiskSafe,
		ArgSchema: models.ArgSchema{Required: []string{"location"}, Properties: map[string]models.ArgConstraint{}},
	}
	w := newTestWall(map[string]*models.ToolSpec{"get_weather": spec}, &fakeAudit{})

	plan := &models.ActionPlan{ToolName: "get_weather", Args: map[string]any{}}
	verdict, err := w.Evaluate(context.Background(), "turn_1", "u1", plan, AuthContext{})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if verdict.Kind != ports.WallRejected || verdict.Tier != "schema" {
		t.Errorf("expected schema rejection, got %+v", verdict)
	}
}

func TestEvaluate_ConfirmTierRequiresToken(t *testing.T) {
	spec := &models.ToolSpec{Name: "risky_op", RiskTier: models.RiskConfirm, ArgSchema: models.ArgSchema{Properties: map[string]models.ArgConstraint{}}}
	w := newTestWall(map[string]*models.ToolSpec{"risky_op": spec}, &fakeAudit{})

	plan := &models.ActionPlan{ToolName: "risky_op", Args: map[string]any{}}

	verdict, _ := w.Evaluate(context.Background(), "turn_1", "u1", plan, AuthContext{})
	if verdict.Kind != ports.WallNeedsConfirmation {
		t.Errorf("expected needs confirmation, got %+v", verdict)
	}

	verdict, _ = w.Evaluate(context.Background(), "turn_2", "u1", plan, AuthContext{ConfirmationToken: "yes"})
	if verdict.Kind != ports.WallApproved {
		t.Errorf("expected approval with confirmation token, got %+v", verdict)
	}
}

func TestEvaluate_OwnerRootRequiresOwnerAuth(t *testing.T) {
	spec := &models.ToolSpec{Name: "admin_op", RiskTier: models.RiskOwnerRoot, ArgSchema: models.ArgSchema{Properties: map[string]models.ArgConstraint{}}}
	w := newTestWall(map[string]*models.ToolSpec{"admin_op": spec}, &fakeAudit{})

	plan := &models.ActionPlan{ToolName: "admin_op", Args: map[string]any{}}

	verdict, _ := w.Evaluate(context.Background(), "turn_1", "u1", plan, AuthContext{ConfirmationToken: "yes"})
	if verdict.Kind != ports.WallNeedsOwnerAuth {
		t.Errorf("expected needs owner auth, got %+v", verdict)
	}

	verdict, _ = w.Evaluate(context.Background(), "turn_2", "u1", plan, AuthContext{
		ConfirmationToken: "yes", OwnerToken: "tok", OwnerAuthenticated: true,
	})
	if verdict.Kind != ports.WallApproved {
		t.Errorf("expected approval with full owner auth, got %+v", verdict)
	}
}

func TestEvaluate_RateLimitsExhaustedBucket(t *testing.T) {
	spec := safeSpec()
	reg := &fakeRegistry{specs: map[string]*models.ToolSpec{"get_time": spec}}
	limiter := ratelimit.NewLimiter(map[models.RiskTier]ratelimit.Config{
		models.RiskSafe: {Limit: 1, Window: time.Minute},
	})
	w := New(reg, limiter, &fakeAudit{}, nil)

	plan := &models.ActionPlan{ToolName: "get_time", Args: map[string]any{}}
	w.Evaluate(context.Background(), "turn_1", "u1", plan, AuthContext{})
	verdict, _ := w.Evaluate(context.Background(), "turn_2", "u1", plan, AuthContext{})
	if verdict.Kind != ports.WallRejected || verdict.Code != "rate_limited" {
		t.Errorf("expected rate-limited rejection, got %+v", verdict)
	}
}

func TestEvaluate_StaticAnalysisRejectsCommandChaining(t *testing.T) {
	spec := &models.ToolSpec{Name: "shell_tool", RiskTier: models.RiskSafe, ArgSchema: models.ArgSchema{Properties: map[string]models.ArgConstraint{}}}
	w := newTestWall(map[string]*models.ToolSpec{"shell_tool": spec}, &fakeAudit{})

	plan := &models.ActionPlan{ToolName: "shell_tool", Args: map[string]any{"command": "ls && rm -rf /"}}
	verdict, _ := w.Evaluate(context.Background(), "turn_1", "u1", plan, AuthContext{})
	if verdict.Kind != ports.WallRejected || verdict.Tier != "static_analysis" {
		t.Errorf("expected static analysis rejection, got %+v", verdict)
	}
}

func TestEvaluate_PolicyRejectsDisallowedDomain(t *testing.T) {
	spec := &models.ToolSpec{Name: "fetch", RiskTier: models.RiskSafe, ArgSchema: models.ArgSchema{Properties: map[string]models.ArgConstraint{}}}
	reg := &fakeRegistry{specs: map[string]*models.ToolSpec{"fetch": spec}}
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfigs())
	w := New(reg, limiter, &fakeAudit{}, map[string]ToolPolicy{
		"fetch": {AllowedDomains: []string{"example.com"}},
	})

	plan := &models.ActionPlan{ToolName: "fetch", Args: map[string]any{"url": "https://evil.test/path"}}
	verdict, _ := w.Evaluate(context.Background(), "turn_1", "u1", plan, AuthContext{})
	if verdict.Kind != ports.WallRejected || verdict.Code != "domain_not_allowed" {
		t.Errorf("expected domain rejection, got %+v", verdict)
	}
}
