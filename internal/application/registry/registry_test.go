package registry

import (
	"errors"
	"testing"

	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/domain/models"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()
	spec := &models.ToolSpec{Name: "calculator", RiskTier: models.RiskSafe}

	if err := r.Register(spec); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Lookup("calculator")
	if !ok {
		t.Fatal("expected tool to be found")
	}
	if got.Name != "calculator" {
		t.Errorf("expected calculator, got %s", got.Name)
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := New()
	spec := &models.ToolSpec{Name: "calculator"}
	if err := r.Register(spec); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := r.Register(spec)
	if err == nil {
		t.Fatal("expected error on duplicate registration")
	}
	if !errors.Is(err, domain.ErrDuplicateTool) {
		t.Errorf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestRegistry_LookupMissing(t *testing.T) {
	r := New()
	if _, ok := r.Lookup("nope"); ok {
		t.Error("expected lookup to fail for unregistered tool")
	}
}

func TestRegistry_ListWithPredicate(t *testing.T) {
	r := New()
	_ = r.Register(&models.ToolSpec{Name: "safe_tool", RiskTier: models.RiskSafe})
	_ = r.Register(&models.ToolSpec{Name: "review_tool", RiskTier: models.RiskReview})

	safeOnly := r.List(func(s *models.ToolSpec) bool { return s.RiskTier == models.RiskSafe })
	if len(safeOnly) != 1 || safeOnly[0].Name != "safe_tool" {
		t.Errorf("expected exactly safe_tool, got %v", safeOnly)
	}

	if r.Count() != 2 {
		t.Errorf("expected 2 registered tools, got %d", r.Count())
	}
}

func TestRegistry_RegisterRejectsEmptyName(t *testing.T) {
	r := New()
	if err := r.Register(&models.ToolSpec{}); err == nil {
		t.Error("expected error for empty tool name")
	}
}
