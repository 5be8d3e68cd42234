package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// configCmd shows the currently loaded configuration, masking secrets.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Planner:")
			fmt.Printf("  LLM URL:      %s\n", cfg.Planner.LLMURL)
			fmt.Printf("  LLM Model:    %s\n", cfg.Planner.LLMModel)
			fmt.Printf("  Max Tokens:   %d\n", cfg.Planner.MaxTokens)
			fmt.Printf("  Temperature:  %.2f\n", cfg.Planner.Temperature)
			fmt.Printf("  API Key:      %s\n", maskSecret(cfg.Planner.LLMAPIKey))
			fmt.Printf("  Plan Timeout: %ds\n", cfg.Planner.PlanTimeoutSec)
			fmt.Println()

			fmt.Println("Validation Wall:")
			fmt.Printf("  Safe/min:        %d\n", cfg.Wall.SafeLimitPerMinute)
			fmt.Printf("  Review/min:      %d\n", cfg.Wall.ReviewLimitPerMinute)
			fmt.Printf("  Confirm/5min:    %d\n", cfg.Wall.ConfirmLimitPer5Minutes)
			fmt.Printf("  OwnerRoot/hour:  %d\n", cfg.Wall.OwnerRootLimitPerHour)
			fmt.Println()

			fmt.Println("Sandbox Executor:")
			fmt.Printf("  Scratch Root:       %s\n", cfg.Executor.ScratchRoot)
			fmt.Printf("  Default Timeout:    %ds\n", cfg.Executor.DefaultTimeoutSec)
			fmt.Printf("  Max Research Timeout: %ds\n", cfg.Executor.MaxResearchTimeoutSec)
			fmt.Printf("  Max Output Bytes:   %d\n", cfg.Executor.MaxOutputBytes)
			fmt.Println()

			fmt.Println("Verifier:")
			fmt.Printf("  Entailment URL:    %s\n", cfg.Verifier.EntailmentURL)
			fmt.Printf("  Entailment Model:  %s\n", cfg.Verifier.EntailmentModel)
			fmt.Printf("  Entailment Floor:  %.2f\n", cfg.Verifier.EntailmentFloor)
			fmt.Printf("  Coverage Block:    %.2f\n", cfg.Verifier.CoverageBlock)
			fmt.Printf("  Coverage Warn:     %.2f\n", cfg.Verifier.CoverageWarn)
			fmt.Printf("  Keyword Fallback:  %s\n", boolStatus(cfg.Verifier.UseKeywordFallback))
			fmt.Println()

			fmt.Println("Memory Service:")
			fmt.Printf("  Embedding URL:    %s\n", cfg.Memory.EmbeddingURL)
			fmt.Printf("  Embedding Model:  %s\n", cfg.Memory.EmbeddingModel)
			fmt.Printf("  Dimensions:       %d\n", cfg.Memory.EmbeddingDimensions)
			fmt.Printf("  Recent Turns:     %d\n", cfg.Memory.RecentTurns)
			fmt.Printf("  Semantic Hits:    %d\n", cfg.Memory.SemanticHits)
			fmt.Printf("  Context Budget:   %d\n", cfg.Memory.ContextBudget)
			fmt.Println()

			fmt.Println("Audit:")
			fmt.Printf("  Dir:          %s\n", cfg.Audit.Dir)
			fmt.Printf("  Max Bytes:    %d\n", cfg.Audit.MaxBytes)
			fmt.Printf("  Max Age:      %dh\n", cfg.Audit.MaxAgeHours)
			fmt.Println()

			fmt.Println("Database:")
			fmt.Printf("  Postgres URL: %s\n", maskSecret(cfg.Database.PostgresURL))
			fmt.Printf("  Status:       %s\n", boolStatus(cfg.Database.PostgresURL != ""))
			fmt.Println()

			fmt.Println("Server:")
			fmt.Printf("  Host:         %s\n", cfg.Server.Host)
			fmt.Printf("  Port:         %d\n", cfg.Server.Port)
			fmt.Printf("  CORS Origins: %v\n", cfg.Server.CORSOrigins)

			return nil
		},
	}
}
