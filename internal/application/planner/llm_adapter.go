package planner

import (
	"context"
	"fmt"

	"github.com/XiaoConstantine/dspy-go/pkg/core"
	"github.com/longregen/cogexec/internal/ports"
)

// LLMAdapter adapts a ports.LanguageModel to dspy-go's core.LLM interface,
// so PredictModule's dspy-go Predict actually calls the same model the
// grammar-forced fallback strategy uses, rather than a second,
// separately-configured model. Register one with core.SetDefaultLLM before
// a PredictModule's first Process call.
type LLMAdapter struct {
	model ports.LanguageModel
}

func NewLLMAdapter(model ports.LanguageModel) *LLMAdapter {
	return &LLMAdapter{model: model}
}

// Generate implements the dspy-go LLM interface. No grammar is passed:
// PredictModule's signature-driven prompt asks for labeled text fields, not
// a single grammar-constrained tool call.
func (a *LLMAdapter) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.LLMResponse, error) {
	content, err := a.model.Complete(ctx, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("language model completion failed: %w", err)
	}
	return &core.LLMResponse{Content: content}, nil
}

// GenerateWithJSON, GenerateWithFunctions, and the embedding/streaming/
// multimodal methods below are not exercised by the model-backed planning
// strategy, which only ever calls Generate through dspy-go's Predict
// module; ports.LanguageModel has no equivalents to delegate to.
func (a *LLMAdapter) GenerateWithJSON(ctx context.Context, prompt string, opts ...core.GenerateOption) (map[string]interface{}, error) {
	return nil, fmt.Errorf("GenerateWithJSON not implemented: planner only uses Generate")
}

func (a *LLMAdapter) GenerateWithFunctions(ctx context.Context, prompt string, functions []map[string]interface{}, opts ...core.GenerateOption) (map[string]interface{}, error) {
	return nil, fmt.Errorf("GenerateWithFunctions not implemented: planner only uses Generate")
}

func (a *LLMAdapter) CreateEmbedding(ctx context.Context, input string, opts ...core.EmbeddingOption) (*core.EmbeddingResult, error) {
	return nil, fmt.Errorf("CreateEmbedding not implemented: use ports.EmbeddingModel for embeddings")
}

func (a *LLMAdapter) CreateEmbeddings(ctx context.Context, inputs []string, opts ...core.EmbeddingOption) (*core.BatchEmbeddingResult, error) {
	return nil, fmt.Errorf("CreateEmbeddings not implemented: use ports.EmbeddingModel for embeddings")
}

func (a *LLMAdapter) StreamGenerate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.StreamResponse, error) {
	return nil, fmt.Errorf("StreamGenerate not implemented: planner does not stream plans")
}

func (a *LLMAdapter) GenerateWithContent(ctx context.Context, content []core.ContentBlock, opts ...core.GenerateOption) (*core.LLMResponse, error) {
	return nil, fmt.Errorf("GenerateWithContent not implemented: planner is text-only")
}

func (a *LLMAdapter) StreamGenerateWithContent(ctx context.Context, content []core.ContentBlock, opts ...core.GenerateOption) (*core.StreamResponse, error) {
	return nil, fmt.Errorf("StreamGenerateWithContent not implemented: planner is text-only")
}

func (a *LLMAdapter) ProviderName() string { return "cogexec" }

func (a *LLMAdapter) ModelID() string { return "cogexec-planner-model" }

func (a *LLMAdapter) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityChat, core.CapabilityCompletion}
}
