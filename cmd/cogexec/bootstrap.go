package main

import (
	"fmt"
	"time"

	"github.com/longregen/cogexec/internal/adapters/llm"
	"github.com/longregen/cogexec/internal/adapters/memstore"
	"github.com/longregen/cogexec/internal/adapters/ratelimit"
	"github.com/longregen/cogexec/internal/application/planner"
	"github.com/longregen/cogexec/internal/application/registry"
	"github.com/longregen/cogexec/internal/application/tools/builtin"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

// buildRegistry constructs the tool registry and its handler dispatch
// table, shared by the serve, plan, and registry subcommands. citations is
// the store Research persists cited paragraphs into; pass nil to fall back
// to an in-process store (used by the plan/registry subcommands, which have
// no database connection of their own).
func buildRegistry(citations ports.CitationStore) (*registry.Registry, map[string]ports.ToolHandler, error) {
	if citations == nil {
		citations = memstore.NewCitationStore()
	}
	reg := registry.New()
	dispatch := make(map[string]ports.ToolHandler)
	if err := builtin.RegisterAll(reg, dispatch, citations); err != nil {
		return nil, nil, fmt.Errorf("register built-in tools: %w", err)
	}
	return reg, dispatch, nil
}

// buildPlanner wires the model-backed strategy (when an LLM endpoint is
// configured) ahead of the deterministic rule-based fallback, matching the
// Planner's try-in-order semantics.
func buildPlanner(reg *registry.Registry) *planner.Planner {
	rule := planner.NewRuleStrategy()
	if cfg.Planner.LLMURL == "" {
		return planner.NewPlanner(reg, rule)
	}

	client := llm.NewClient(cfg.Planner.LLMURL, cfg.Planner.LLMAPIKey, cfg.Planner.LLMModel, cfg.Planner.MaxTokens, cfg.Planner.Temperature)
	svc := llm.NewService(client)
	model := planner.NewModelStrategy(svc)
	if cfg.Planner.ParseRetries > 0 {
		model.Retries = cfg.Planner.ParseRetries
	}
	return planner.NewPlanner(reg, model, rule)
}

// buildRateLimitConfigs turns the Wall's configured per-minute/per-window
// limits into the ratelimit package's per-tier Config map.
func buildRateLimitConfigs() map[models.RiskTier]ratelimit.Config {
	return map[models.RiskTier]ratelimit.Config{
		models.RiskSafe:      {Limit: cfg.Wall.SafeLimitPerMinute, Window: time.Minute},
		models.RiskReview:    {Limit: cfg.Wall.ReviewLimitPerMinute, Window: time.Minute},
		models.RiskConfirm:   {Limit: cfg.Wall.ConfirmLimitPer5Minutes, Window: 5 * time.Minute},
		models.RiskOwnerRoot: {Limit: cfg.Wall.OwnerRootLimitPerHour, Window: time.Hour},
	}
}
