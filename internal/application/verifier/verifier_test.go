package verifier

import (
	"context"
	"testing"

	"github.com/longregen/cogexec/internal/adapters/entailment"
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

type failingEntailment struct{}

func (f *failingEntailment) Score(ctx context.Context, premise, hypothesis string) (float64, error) {
	return 0, errUnavailable
}
func (f *failingEntailment) ScoreBatch(ctx context.Context, pairs []ports.EntailmentPair) ([]float64, error) {
	return nil, errUnavailable
}

var errUnavailable = &unavailableErr{}

type unavailableErr struct{}

func (e *unavailableErr) Error() string { return "entailment capability unavailable" }

func newVerifier(specs map[string]*models.ToolSpec) *Verifier {
	reg := &fakeRegistry{specs: specs}
	return New(reg, entailment.NewKeywordOverlap(), nil)
}

func TestCheck_ExecutionFailureBlocks(t *testing.T) {
	v := newVerifier(nil)
	verdict, err := v.Check(context.Background(), &models.ActionPlan{ToolName: "get_weather"}, &models.ExecutionResult{Success: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Status != models.VerdictBlock {
		t.Errorf("expected block verdict, got %v", verdict.Status)
	}
}

func TestCheck_WeatherPayloadShapePasses(t *testing.T) {
	specs := map[string]*models.ToolSpec{
		"get_weather": {Name: "get_weather", RiskTier: models.RiskSafe, PostConditionID: "weather_payload_shape"},
	}
	v := newVerifier(specs)
	result := &models.ExecutionResult{
		Success: true,
		Value:   map[string]any{"location": "Paris", "temperature": "20.0°C", "condition": "clear"},
	}
	verdict, err := v.Check(context.Background(), &models.ActionPlan{ToolName: "get_weather"}, result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Status != models.VerdictPass {
		t.Errorf("expected pass verdict, got %v: %v", verdict.Status, verdict.Reasons)
	}
}

func TestCheck_WeatherPayloadMissingFieldWarnsForSafeTool(t *testing.T) {
	specs := map[string]*models.ToolSpec{
		"get_weather": {Name: "get_weather", RiskTier: models.RiskSafe, PostConditionID: "weather_payload_shape"},
	}
	v := newVerifier(specs)
	result := &models.ExecutionResult{Success: true, Value: map[string]any{"location": "Paris"}}
	verdict, err := v.Check(context.Background(), &models.ActionPlan{ToolName: "get_weather"}, result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Status != models.VerdictWarn {
		t.Errorf("expected warn verdict for safe tool post-condition failure, got %v", verdict.Status)
	}
}

func TestCheck_PostConditionFailureBlocksForReviewTool(t *testing.T) {
	specs := map[string]*models.ToolSpec{
		"write_file": {Name: "write_file", RiskTier: models.RiskReview, PostConditionID: "file_exists_after_write"},
	}
	v := newVerifier(specs)
	plan := &models.ActionPlan{ToolName: "write_file", Args: map[string]any{"path": "/tmp/out.txt"}}
	result := &models.ExecutionResult{Success: true, SideEffects: nil}
	verdict, err := v.Check(context.Background(), plan, result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Status != models.VerdictBlock {
		t.Errorf("expected block verdict for review-tier tool, got %v", verdict.Status)
	}
}

func TestCheck_ResearchClaimsFullCoveragePasses(t *testing.T) {
	specs := map[string]*models.ToolSpec{"research": {Name: "research", RiskTier: models.RiskSafe}}
	v := newVerifier(specs)
	result := &models.ExecutionResult{
		Success: true,
		Value:   "Paris weather is sunny today.",
		Citations: []models.CitationRef{
			{SourceURI: "Paris weather is sunny and warm", ContentHash: "abc"},
		},
	}
	verdict, err := v.Check(context.Background(), &models.ActionPlan{ToolName: "research"}, result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Status != models.VerdictPass {
		t.Errorf("expected pass verdict, got %v: %v", verdict.Status, verdict.Reasons)
	}
}

func TestCheck_ResearchClaimsNoCitationsBlocks(t *testing.T) {
	specs := map[string]*models.ToolSpec{"research": {Name: "research", RiskTier: models.RiskSafe}}
	v := newVerifier(specs)
	result := &models.ExecutionResult{Success: true, Value: "Some unverifiable claim about the world."}
	verdict, err := v.Check(context.Background(), &models.ActionPlan{ToolName: "research"}, result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Status != models.VerdictBlock {
		t.Errorf("expected block verdict for claims with no citations, got %v", verdict.Status)
	}
}

func TestCheck_NonClaimToolSkipsClaimVerifier(t *testing.T) {
	specs := map[string]*models.ToolSpec{"get_time": {Name: "get_time", RiskTier: models.RiskSafe}}
	v := newVerifier(specs)
	result := &models.ExecutionResult{Success: true, Value: "completely unsupported text with zero citations"}
	verdict, err := v.Check(context.Background(), &models.ActionPlan{ToolName: "get_time"}, result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Status != models.VerdictPass {
		t.Errorf("expected pass verdict for non-claim tool, got %v", verdict.Status)
	}
}

func TestCheck_EntailmentUnavailableDegradesToWarn(t *testing.T) {
	reg := &fakeRegistry{specs: map[string]*models.ToolSpec{"research": {Name: "research", RiskTier: models.RiskSafe}}}
	v := New(reg, &failingEntailment{}, nil)
	result := &models.ExecutionResult{
		Success:   true,
		Value:     "A claim that needs checking.",
		Citations: []models.CitationRef{{SourceURI: "some source", ContentHash: "x"}},
	}
	verdict, err := v.Check(context.Background(), &models.ActionPlan{ToolName: "research"}, result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Status != models.VerdictWarn {
		t.Errorf("expected warn verdict on verifier unavailability, got %v", verdict.Status)
	}
	found := false
	for _, r := range verdict.Reasons {
		if r == "verifier_degraded" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected verifier_degraded reason, got %v", verdict.Reasons)
	}
}

func TestSplitClaims_SplitsOnSentenceBoundaries(t *testing.T) {
	claims := SplitClaims("The sky is blue. The grass is green! Is water wet?")
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims, got %d: %v", len(claims), claims)
	}
}
