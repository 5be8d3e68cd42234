package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/XiaoConstantine/dspy-go/pkg/core"

	"github.com/longregen/cogexec/internal/adapters/metrics"
	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

// Strategy turns an utterance plus assembled memory context into exactly
// one ActionPlan. A Planner tries its strategies in order and returns the
// first one that succeeds; this is how the rule-based fallback takes over
// when the model-backed strategy is unavailable or returns something the
// registry doesn't recognize.
type Strategy interface {
	Name() string
	Plan(ctx context.Context, utterance, memoryContext string, tools []*models.ToolSpec) (*models.ActionPlan, error)
}

// Planner sequences strategies and validates the winning plan's tool name
// against the registry before returning it. It never emits a plan for a
// tool the registry doesn't know about; the caller sees ErrUnknownTool
// instead and can fall back to a refusal reply.
type Planner struct {
	registry   ports.ToolRegistry
	strategies []Strategy
}

func NewPlanner(registry ports.ToolRegistry, strategies ...Strategy) *Planner {
	return &Planner{registry: registry, strategies: strategies}
}

func (p *Planner) Plan(ctx context.Context, utterance, memoryContext string) (*models.ActionPlan, error) {
	tools := p.registry.List(func(*models.ToolSpec) bool { return true })
	if len(tools) == 0 {
		return nil, domain.NewDomainError(domain.ErrPlanningFailure, "no tools registered")
	}

	var lastErr error
	for _, strat := range p.strategies {
		plan, err := strat.Plan(ctx, utterance, memoryContext, tools)
		if err != nil {
			lastErr = err
			continue
		}
		if _, ok := p.registry.Lookup(plan.ToolName); !ok {
			lastErr = domain.NewDomainError(domain.ErrUnknownTool, fmt.Sprintf("strategy %s proposed unknown tool %q", strat.Name(), plan.ToolName))
			continue
		}
		metrics.PlannerRequestsTotal.WithLabelValues(strat.Name()).Inc()
		return plan, nil
	}

	if lastErr == nil {
		lastErr = domain.NewDomainError(domain.ErrPlanningFailure, "no strategy produced a plan")
	}
	metrics.PlannerRequestsTotal.WithLabelValues("failed").Inc()
	return nil, lastErr
}

// DefaultParseRetries mirrors spec.md's model-backed strategy: if the
// model's output fails to parse as an ActionPlan, retry up to this many
// times before yielding PlanningFailure to the Planner's next strategy.
const DefaultParseRetries = 2

// ModelStrategy asks the LanguageModel to fill PlanSignature's fields under
// a per-tool grammar, one attempt per candidate tool in registry order,
// and takes the first syntactically valid result. The whole candidate
// sweep is retried up to Retries times if every candidate fails to parse.
type ModelStrategy struct {
	model   ports.LanguageModel
	module  *PredictModule
	Retries int
}

// NewModelStrategy registers model as dspy-go's default LLM before building
// the PredictModule, so PredictModule.Process (and the tracer/metrics hooks
// wrapping it) actually drives this same model instead of whatever dspy-go
// would otherwise fall back to.
func NewModelStrategy(model ports.LanguageModel, opts ...Option) *ModelStrategy {
	core.SetDefaultLLM(NewLLMAdapter(model))
	return &ModelStrategy{
		model:   model,
		module:  NewPredictModule(PlanSignature, opts...),
		Retries: DefaultParseRetries,
	}
}

func (s *ModelStrategy) Name() string { return "model" }

func (s *ModelStrategy) Plan(ctx context.Context, utterance, memoryContext string, tools []*models.ToolSpec) (*models.ActionPlan, error) {
	retries := s.Retries
	if retries <= 0 {
		retries = DefaultParseRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		plan, err := s.attempt(ctx, utterance, memoryContext, tools)
		if err == nil {
			return plan, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// attempt tries the dspy-go PredictModule first, which asks the model for a
// tool name and its arguments in one round-trip against PlanSignature, and
// falls back to the per-tool grammar-forced sweep below when that fails to
// produce a usable plan (the module's free-text output didn't name a real
// tool, or didn't parse). The fallback is what spec.md's original
// per-candidate-grammar design described and stays fully exercised, not
// dead, so a grammar-incompatible model still gets a working strategy.
func (s *ModelStrategy) attempt(ctx context.Context, utterance, memoryContext string, tools []*models.ToolSpec) (*models.ActionPlan, error) {
	if plan, err := s.attemptPredict(ctx, utterance, memoryContext, tools); err == nil {
		return plan, nil
	} else if plan, fallbackErr := s.attemptGrammarForced(ctx, utterance, memoryContext, tools); fallbackErr == nil {
		return plan, nil
	} else {
		return nil, fmt.Errorf("predict strategy: %w; grammar-forced fallback: %v", err, fallbackErr)
	}
}

// attemptPredict drives PredictModule.Process through PlanSignature, asking
// the model to name its own tool choice instead of scoring tools one at a
// time under a pinned grammar.
func (s *ModelStrategy) attemptPredict(ctx context.Context, utterance, memoryContext string, tools []*models.ToolSpec) (*models.ActionPlan, error) {
	outputs, err := s.module.Process(ctx, map[string]any{
		"utterance": utterance,
		"context":   memoryContext + "\n" + catalogDescription(tools),
	})
	if err != nil {
		return nil, err
	}

	toolName, ok := outputs["tool_name"].(string)
	toolName = strings.TrimSpace(toolName)
	if !ok || toolName == "" {
		return nil, fmt.Errorf("predict output carried no tool_name")
	}

	tool := findTool(tools, toolName)
	if tool == nil {
		return nil, fmt.Errorf("predict proposed unknown tool %q", toolName)
	}

	args, err := coerceArguments(outputs["arguments"])
	if err != nil {
		return nil, fmt.Errorf("predict arguments for tool %s: %w", toolName, err)
	}
	if !satisfiesSchema(tool.ArgSchema, args) {
		return nil, fmt.Errorf("predict output for tool %s did not satisfy arg schema", toolName)
	}

	reasoning, _ := outputs["reasoning"].(string)
	return &models.ActionPlan{
		ToolName: tool.Name,
		Args:     args,
		Meta: models.PlanMeta{
			RiskHint:       string(tool.RiskTier),
			ReasoningTrace: reasoning,
		},
	}, nil
}

// attemptGrammarForced sweeps the candidate tools in registry order, asking
// the model to fill one tool's argument schema under a pinned grammar per
// attempt, and takes the first syntactically valid result.
func (s *ModelStrategy) attemptGrammarForced(ctx context.Context, utterance, memoryContext string, tools []*models.ToolSpec) (*models.ActionPlan, error) {
	var lastErr error
	for _, tool := range tools {
		grammar := &ports.Grammar{ToolName: tool.Name, Schema: tool.ArgSchema}
		prompt := buildPrompt(utterance, memoryContext, tool)

		raw, err := s.model.Complete(ctx, prompt, grammar)
		if err != nil {
			lastErr = err
			continue
		}

		args, err := parseArguments(raw)
		if err != nil {
			lastErr = err
			continue
		}

		if !satisfiesSchema(tool.ArgSchema, args) {
			lastErr = fmt.Errorf("model output for tool %s did not satisfy arg schema", tool.Name)
			continue
		}

		return &models.ActionPlan{
			ToolName: tool.Name,
			Args:     args,
			Meta: models.PlanMeta{
				RiskHint: string(tool.RiskTier),
			},
		}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate tool accepted the model's output")
	}
	return nil, lastErr
}

func findTool(tools []*models.ToolSpec, name string) *models.ToolSpec {
	for _, tool := range tools {
		if tool.Name == name {
			return tool
		}
	}
	return nil
}

// catalogDescription renders the candidate tools as a short list so
// PlanSignature's context input carries enough to pick a tool name from,
// not just free-form memory context.
func catalogDescription(tools []*models.ToolSpec) string {
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, tool := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
	}
	return b.String()
}

// coerceArguments accepts either the bare JSON string parseArguments expects
// or a map dspy-go's Predict may already have decoded, since a signature's
// declared output type determines which shape comes back.
func coerceArguments(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case string:
		return parseArguments(v)
	case map[string]any:
		return v, nil
	case nil:
		return nil, fmt.Errorf("arguments output is missing")
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("arguments output has unexpected type %T", raw)
		}
		return parseArguments(string(encoded))
	}
}

func buildPrompt(utterance, memoryContext string, tool *models.ToolSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool: %s\nDescription: %s\n", tool.Name, tool.Description)
	if memoryContext != "" {
		fmt.Fprintf(&b, "Context:\n%s\n", memoryContext)
	}
	fmt.Fprintf(&b, "Utterance: %s\n", utterance)
	b.WriteString("Produce the tool's arguments as a single JSON object matching its schema.")
	return b.String()
}

// RuleStrategy is the no-model fallback: a small set of keyword matchers
// that cover the handful of deterministic tools (time, weather, calculator)
// well enough to keep the pipeline answering when the LanguageModel is
// down. It proposes these tool names without consulting the tools it is
// given; Planner.Plan rejects any proposal the registry doesn't list.
type RuleStrategy struct {
	rules []rule
}

type rule struct {
	match func(utterance string) bool
	build func(utterance string) (string, map[string]any)
}

func NewRuleStrategy() *RuleStrategy {
	return &RuleStrategy{
		rules: []rule{
			{
				match: func(u string) bool { return containsAny(u, "time", "clock") },
				build: func(u string) (string, map[string]any) { return "get_time", map[string]any{} },
			},
			{
				match: func(u string) bool { return containsAny(u, "weather", "forecast", "temperature") },
				build: func(u string) (string, map[string]any) {
					return "get_weather", map[string]any{"location": extractLocation(u)}
				},
			},
			{
				match: func(u string) bool { return containsAny(u, "calculate", "+", "-", "*", "/", "plus", "minus") },
				build: func(u string) (string, map[string]any) { return "calculator", map[string]any{"expression": u} },
			},
		},
	}
}

func (s *RuleStrategy) Name() string { return "rule-based" }

func (s *RuleStrategy) Plan(ctx context.Context, utterance, memoryContext string, tools []*models.ToolSpec) (*models.ActionPlan, error) {
	lower := strings.ToLower(utterance)
	for _, r := range s.rules {
		if !r.match(lower) {
			continue
		}
		name, args := r.build(utterance)
		return &models.ActionPlan{ToolName: name, Args: args}, nil
	}
	return nil, fmt.Errorf("rule-based strategy matched no rule for utterance")
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// extractLocation is a deliberately crude heuristic: the word after "in" if
// present, otherwise the whole utterance. The model-backed strategy is the
// primary path; this only needs to be good enough to keep a degraded
// pipeline useful.
func extractLocation(utterance string) string {
	lower := strings.ToLower(utterance)
	idx := strings.LastIndex(lower, " in ")
	if idx == -1 {
		return utterance
	}
	return strings.TrimSpace(utterance[idx+4:])
}
