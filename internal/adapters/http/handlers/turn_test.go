package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/longregen/cogexec/internal/adapters/entailment"
	"github.com/longregen/cogexec/internal/adapters/http/dto"
	"github.com/longregen/cogexec/internal/adapters/http/middleware"
	"github.com/longregen/cogexec/internal/adapters/memstore"
	"github.com/longregen/cogexec/internal/adapters/ratelimit"
	"github.com/longregen/cogexec/internal/application/executor"
	"github.com/longregen/cogexec/internal/application/memory"
	"github.com/longregen/cogexec/internal/application/orchestrator"
	"github.com/longregen/cogexec/internal/application/planner"
	"github.com/longregen/cogexec/internal/application/verifier"
	"github.com/longregen/cogexec/internal/application/wall"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

type fakeRegistry struct{ specs map[string]*models.ToolSpec }

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

func (f *fakeIDs) next(prefix string) string { f.n++; return prefix + "_test" }
func (f *fakeIDs) GenerateTurnID() string     { return f.next("turn") }
func (f *fakeIDs) GenerateMemoryID() string   { return f.next("mem") }
func (f *fakeIDs) GenerateClusterID() string  { return f.next("cluster") }
func (f *fakeIDs) GenerateToolUseID() string  { return f.next("tooluse") }
func (f *fakeIDs) GenerateCitationID() string { return f.next("cite") }

func newTestOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()

	spec := &models.ToolSpec{
		Name:       "get_time",
		RiskTier:   models.RiskSafe,
		SideEffect: models.SideEffectReadOnly,
		ArgSchema:  models.ArgSchema{Properties: map[string]models.ArgConstraint{}},
	}
	reg := &fakeRegistry{specs: map[string]*models.ToolSpec{"get_time": spec}}

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

	return orchestrator.New(memSvc, pl, w, ex, v, &fakeIDs{}, nil)
}

func TestTurnHandler_Handle_HappyPath(t *testing.T) {
	h := NewTurnHandler(newTestOrchestrator(t))

	body, err := json.Marshal(dto.TurnRequest{Utterance: "what time is it"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/turns", bytes.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDContextKey, "u1"))
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "it is noon", resp.Reply)
	require.NotNil(t, resp.Verdict)
	require.Equal(t, "pass", resp.Verdict.Status)
}

func TestTurnHandler_Handle_RejectsEmptyUtterance(t *testing.T) {
	h := NewTurnHandler(newTestOrchestrator(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/turns", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTurnHandler_Handle_RejectsMalformedJSON(t *testing.T) {
	h := NewTurnHandler(newTestOrchestrator(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/turns", bytes.NewReader([]byte(`not json`)))
	rec := httptest.NewRecorder()

	h.Handle(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
