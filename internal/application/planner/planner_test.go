package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

type fakeRegistry struct {
	specs map[string]*models.ToolSpec
}

func newFakeRegistry(specs ...*models.ToolSpec) *fakeRegistry {
	r := &fakeRegistry{specs: make(map[string]*models.ToolSpec)}
	for _, s := range specs {
		r.specs[s.Name] = s
	}
	return r
}

func (r *fakeRegistry) Register(spec *models.ToolSpec) error { r.specs[spec.Name] = spec; return nil }
func (r *fakeRegistry) Lookup(name string) (*models.ToolSpec, bool) {
	s, ok := r.specs[name]
	return s, ok
}
func (r *fakeRegistry) List(predicate func(*models.ToolSpec) bool) []*models.ToolSpec {
	var out []*models.ToolSpec
	for _, s := range r.specs {
		if predicate == nil || predicate(s) {
			out = append(out, s)
		}
	}
	return out
}

type fakeModel struct {
	response string
	err      error
}

func (f *fakeModel) Complete(ctx context.Context, prompt string, grammar *ports.Grammar) (string, error) {
	return f.response, f.err
}

func weatherSpec() *models.ToolSpec {
	return &models.ToolSpec{
		Name:      "get_weather",
		RiskTier:  models.RiskSafe,
		ArgSchema: models.ArgSchema{Required: []string{"location"}},
	}
}

func TestPlanner_RuleStrategyFallback(t *testing.T) {
	reg := newFakeRegistry(weatherSpec())
	p := NewPlanner(reg, NewRuleStrategy())

	plan, err := p.Plan(context.Background(), "what's the weather in Lisbon", "")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.ToolName != "get_weather" {
		t.Errorf("expected get_weather, got %s", plan.ToolName)
	}
}

func TestPlanner_ModelStrategyFallsBackToGrammarForcedSweep(t *testing.T) {
	reg := newFakeRegistry(weatherSpec())
	model := &fakeModel{response: `{"location":"Lisbon"}`}
	p := NewPlanner(reg, NewModelStrategy(model), NewRuleStrategy())

	plan, err := p.Plan(context.Background(), "weather", "")
	if err != nil {
		t.Fatalf("expected fallback to succeed, got: %v", err)
	}
	if plan.ToolName != "get_weather" {
		t.Errorf("expected get_weather, got %s", plan.ToolName)
	}
}

func TestPlanner_NoStrategySucceeds(t *testing.T) {
	reg := newFakeRegistry(weatherSpec())
	model := &fakeModel{err: errors.New("model unavailable")}
	p := NewPlanner(reg, NewModelStrategy(model))

	if _, err := p.Plan(context.Background(), "hello there", ""); err == nil {
		t.Error("expected planning failure when no strategy matches")
	}
}

func TestPlanner_NoToolsRegistered(t *testing.T) {
	reg := newFakeRegistry()
	p := NewPlanner(reg, NewRuleStrategy())

	if _, err := p.Plan(context.Background(), "hello", ""); err == nil {
		t.Error("expected error with empty registry")
	}
}

func TestSatisfiesSchema(t *testing.T) {
	schema := models.ArgSchema{
		Required: []string{"location"},
		Properties: map[string]models.ArgConstraint{
			"location": {Type: "string"},
		},
	}

	if !satisfiesSchema(schema, map[string]any{"location": "Lisbon"}) {
		t.Error("expected schema to be satisfied")
	}
	if satisfiesSchema(schema, map[string]any{}) {
		t.Error("expected schema to reject missing required field")
	}
	if satisfiesSchema(schema, map[string]any{"location": 42.0}) {
		t.Error("expected schema to reject wrong type")
	}
}
