// Package config holds cogexec's runtime configuration: one section per
// subsystem (Planner, Validation Wall, Sandbox Executor, Verifier, Memory
// Service, audit log), loaded from a JSON file and overridable by
// COGEXEC_*-prefixed environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all configuration for cogexec.
type Config struct {
	Planner  PlannerConfig  `json:"planner"`
	Wall     WallConfig     `json:"wall"`
	Executor ExecutorConfig `json:"executor"`
	Verifier VerifierConfig `json:"verifier"`
	Memory   MemoryConfig   `json:"memory"`
	Audit    AuditConfig    `json:"audit"`
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
}

// PlannerConfig configures the model-backed planning strategy and its
// deterministic fallback.
type PlannerConfig struct {
	LLMURL         string  `json:"llm_url"`
	LLMAPIKey      string  `json:"llm_api_key"`
	LLMModel       string  `json:"llm_model"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature"`
	ParseRetries   int     `json:"parse_retries"`
	PlanTimeoutSec int     `json:"plan_timeout_sec"`
}

// WallConfig configures the Validation Wall's rate limits and policy
// defaults; per-tool ToolPolicy entries are supplied by the tool registry
// bootstrap, not this file.
type WallConfig struct {
	SafeLimitPerMinute      int `json:"safe_limit_per_minute"`
	ReviewLimitPerMinute    int `json:"review_limit_per_minute"`
	ConfirmLimitPer5Minutes int `json:"confirm_limit_per_5_minutes"`
	OwnerRootLimitPerHour   int `json:"owner_root_limit_per_hour"`
}

// ExecutorConfig configures the Sandbox Executor's scratch space and
// default timeouts.
type ExecutorConfig struct {
	ScratchRoot           string `json:"scratch_root"`
	DefaultTimeoutSec     int    `json:"default_timeout_sec"`
	MaxResearchTimeoutSec int    `json:"max_research_timeout_sec"`
	MaxOutputBytes        int    `json:"max_output_bytes"`
}

// VerifierConfig configures the entailment capability and coverage
// thresholds used by the claim/citation verifier.
type VerifierConfig struct {
	EntailmentURL   string  `json:"entailment_url"`
	EntailmentAPIKey string `json:"entailment_api_key"`
	EntailmentModel string  `json:"entailment_model"`
	EntailmentFloor float64 `json:"entailment_floor"`
	CoverageBlock   float64 `json:"coverage_block"`
	CoverageWarn    float64 `json:"coverage_warn"`
	BatchSize       int     `json:"batch_size"`
	UseKeywordFallback bool `json:"use_keyword_fallback"`
}

// MemoryConfig configures the Memory Service's embedding backend and
// context-assembly tunables.
type MemoryConfig struct {
	EmbeddingURL        string  `json:"embedding_url"`
	EmbeddingAPIKey     string  `json:"embedding_api_key"`
	EmbeddingModel      string  `json:"embedding_model"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	RecentTurns         int     `json:"recent_turns"`
	SemanticHits        int     `json:"semantic_hits"`
	SimilarityFloor     float64 `json:"similarity_floor"`
	ForgetFloor         float64 `json:"forget_floor"`
	ClusterJoinFloor    float64 `json:"cluster_join_floor"`
	ContextBudget       int     `json:"context_budget"`
}

// AuditConfig configures the append-only audit log sink.
type AuditConfig struct {
	Dir         string `json:"dir"`
	MaxBytes    int64  `json:"max_bytes"`
	MaxAgeHours int    `json:"max_age_hours"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	PostgresURL string `json:"postgres_url"`
}

// ServerConfig holds API server configuration.
type ServerConfig struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	CORSOrigins []string `json:"cors_origins"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".cogexec")

	return &Config{
		Planner: PlannerConfig{
			LLMURL:         "http://localhost:8000/v1",
			LLMModel:       "Qwen/Qwen3-8B-AWQ",
			MaxTokens:      4096,
			Temperature:    0.7,
			ParseRetries:   2,
			PlanTimeoutSec: 10,
		},
		Wall: WallConfig{
			SafeLimitPerMinute:      50,
			ReviewLimitPerMinute:    20,
			ConfirmLimitPer5Minutes: 5,
			OwnerRootLimitPerHour:   2,
		},
		Executor: ExecutorConfig{
			ScratchRoot:           filepath.Join(dataDir, "scratch"),
			DefaultTimeoutSec:     30,
			MaxResearchTimeoutSec: 120,
			MaxOutputBytes:        1 << 20,
		},
		Verifier: VerifierConfig{
			EntailmentURL:      "http://localhost:8002/v1",
			EntailmentModel:    "cross-encoder-nli",
			EntailmentFloor:    0.6,
			CoverageBlock:      0.5,
			CoverageWarn:       0.8,
			BatchSize:          16,
			UseKeywordFallback: false,
		},
		Memory: MemoryConfig{
			EmbeddingURL:        "http://localhost:11434/v1",
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingDimensions: 1536,
			RecentTurns:         8,
			SemanticHits:        5,
			SimilarityFloor:     0.25,
			ForgetFloor:         0.7,
			ClusterJoinFloor:    0.55,
			ContextBudget:       4000,
		},
		Audit: AuditConfig{
			Dir:         filepath.Join(dataDir, "audit"),
			MaxBytes:    64 << 20,
			MaxAgeHours: 24,
		},
		Database: DatabaseConfig{
			PostgresURL: "",
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
	}
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

// envInt64 loads an int64 environment variable into the target pointer if set and valid
func envInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = i
		}
	}
}

// envFloat loads a float64 environment variable into the target pointer if set and valid
func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

// envBool loads a boolean environment variable into the target pointer if set and valid
func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// envStringSlice loads a comma-separated environment variable into a string slice
func envStringSlice(key string, target *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}

// Load loads configuration from environment variables and an optional
// config file at getConfigPath().
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse config file %s: %v\n", configPath, err)
		}
	}

	envString("COGEXEC_PLANNER_LLM_URL", &cfg.Planner.LLMURL)
	envString("COGEXEC_PLANNER_LLM_API_KEY", &cfg.Planner.LLMAPIKey)
	envString("COGEXEC_PLANNER_LLM_MODEL", &cfg.Planner.LLMModel)
	envInt("COGEXEC_PLANNER_MAX_TOKENS", &cfg.Planner.MaxTokens)
	envFloat("COGEXEC_PLANNER_TEMPERATURE", &cfg.Planner.Temperature)
	envInt("COGEXEC_PLANNER_PARSE_RETRIES", &cfg.Planner.ParseRetries)
	envInt("COGEXEC_PLANNER_PLAN_TIMEOUT_SEC", &cfg.Planner.PlanTimeoutSec)

	envInt("COGEXEC_WALL_SAFE_LIMIT_PER_MINUTE", &cfg.Wall.SafeLimitPerMinute)
	envInt("COGEXEC_WALL_REVIEW_LIMIT_PER_MINUTE", &cfg.Wall.ReviewLimitPerMinute)
	envInt("COGEXEC_WALL_CONFIRM_LIMIT_PER_5_MINUTES", &cfg.Wall.ConfirmLimitPer5Minutes)
	envInt("COGEXEC_WALL_OWNER_ROOT_LIMIT_PER_HOUR", &cfg.Wall.OwnerRootLimitPerHour)

	envString("COGEXEC_EXECUTOR_SCRATCH_ROOT", &cfg.Executor.ScratchRoot)
	envInt("COGEXEC_EXECUTOR_DEFAULT_TIMEOUT_SEC", &cfg.Executor.DefaultTimeoutSec)
	envInt("COGEXEC_EXECUTOR_MAX_RESEARCH_TIMEOUT_SEC", &cfg.Executor.MaxResearchTimeoutSec)
	envInt("COGEXEC_EXECUTOR_MAX_OUTPUT_BYTES", &cfg.Executor.MaxOutputBytes)

	envString("COGEXEC_VERIFIER_ENTAILMENT_URL", &cfg.Verifier.EntailmentURL)
	envString("COGEXEC_VERIFIER_ENTAILMENT_API_KEY", &cfg.Verifier.EntailmentAPIKey)
	envString("COGEXEC_VERIFIER_ENTAILMENT_MODEL", &cfg.Verifier.EntailmentModel)
	envFloat("COGEXEC_VERIFIER_ENTAILMENT_FLOOR", &cfg.Verifier.EntailmentFloor)
	envFloat("COGEXEC_VERIFIER_COVERAGE_BLOCK", &cfg.Verifier.CoverageBlock)
	envFloat("COGEXEC_VERIFIER_COVERAGE_WARN", &cfg.Verifier.CoverageWarn)
	envInt("COGEXEC_VERIFIER_BATCH_SIZE", &cfg.Verifier.BatchSize)
	envBool("COGEXEC_VERIFIER_USE_KEYWORD_FALLBACK", &cfg.Verifier.UseKeywordFallback)

	envString("COGEXEC_MEMORY_EMBEDDING_URL", &cfg.Memory.EmbeddingURL)
	envString("COGEXEC_MEMORY_EMBEDDING_API_KEY", &cfg.Memory.EmbeddingAPIKey)
	envString("COGEXEC_MEMORY_EMBEDDING_MODEL", &cfg.Memory.EmbeddingModel)
	envInt("COGEXEC_MEMORY_EMBEDDING_DIMENSIONS", &cfg.Memory.EmbeddingDimensions)
	envInt("COGEXEC_MEMORY_RECENT_TURNS", &cfg.Memory.RecentTurns)
	envInt("COGEXEC_MEMORY_SEMANTIC_HITS", &cfg.Memory.SemanticHits)
	envFloat("COGEXEC_MEMORY_SIMILARITY_FLOOR", &cfg.Memory.SimilarityFloor)
	envFloat("COGEXEC_MEMORY_FORGET_FLOOR", &cfg.Memory.ForgetFloor)
	envFloat("COGEXEC_MEMORY_CLUSTER_JOIN_FLOOR", &cfg.Memory.ClusterJoinFloor)
	envInt("COGEXEC_MEMORY_CONTEXT_BUDGET", &cfg.Memory.ContextBudget)

	envString("COGEXEC_AUDIT_DIR", &cfg.Audit.Dir)
	envInt64("COGEXEC_AUDIT_MAX_BYTES", &cfg.Audit.MaxBytes)
	envInt("COGEXEC_AUDIT_MAX_AGE_HOURS", &cfg.Audit.MaxAgeHours)

	envString("COGEXEC_POSTGRES_URL", &cfg.Database.PostgresURL)

	envString("COGEXEC_SERVER_HOST", &cfg.Server.Host)
	envInt("COGEXEC_SERVER_PORT", &cfg.Server.Port)
	envStringSlice("COGEXEC_SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)

	if err := os.MkdirAll(cfg.Executor.ScratchRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch root: %w", err)
	}
	if err := os.MkdirAll(cfg.Audit.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// isValidURL validates that a URL has proper format
func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}

	if c.Planner.Temperature < 0 || c.Planner.Temperature > 2 {
		errs = append(errs, "planner temperature must be between 0 and 2")
	}
	if c.Planner.MaxTokens < 1 {
		errs = append(errs, "planner max_tokens must be positive")
	}
	if c.Planner.LLMURL == "" {
		errs = append(errs, "planner LLM URL is required")
	} else if !isValidURL(c.Planner.LLMURL) {
		errs = append(errs, "planner LLM URL must be a valid URL")
	}

	if c.Database.PostgresURL != "" && !isValidURL(c.Database.PostgresURL) {
		errs = append(errs, "PostgreSQL URL must be a valid URL")
	}

	if c.Verifier.EntailmentFloor < 0 || c.Verifier.EntailmentFloor > 1 {
		errs = append(errs, "verifier entailment floor must be between 0 and 1")
	}
	if c.Verifier.CoverageBlock < 0 || c.Verifier.CoverageBlock > 1 {
		errs = append(errs, "verifier coverage_block must be between 0 and 1")
	}
	if c.Verifier.CoverageWarn < c.Verifier.CoverageBlock {
		errs = append(errs, "verifier coverage_warn must be >= coverage_block")
	}
	if c.Verifier.BatchSize < 1 {
		errs = append(errs, "verifier batch_size must be positive")
	}

	if c.Memory.EmbeddingURL == "" {
		errs = append(errs, "memory embedding URL is required")
	} else if !isValidURL(c.Memory.EmbeddingURL) {
		errs = append(errs, "memory embedding URL must be a valid URL")
	}
	if c.Memory.EmbeddingDimensions < 1 {
		errs = append(errs, "memory embedding_dimensions must be positive")
	}

	if c.Executor.MaxOutputBytes < 1 {
		errs = append(errs, "executor max_output_bytes must be positive")
	}
	if c.Executor.MaxResearchTimeoutSec < c.Executor.DefaultTimeoutSec {
		errs = append(errs, "executor max_research_timeout_sec must be >= default_timeout_sec")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// getConfigPath returns the path to the config file, honoring
// COGEXEC_CONFIG_PATH if set, else ~/.cogexec/config.json.
func getConfigPath() string {
	if p := os.Getenv("COGEXEC_CONFIG_PATH"); p != "" {
		return p
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".cogexec", "config.json")
}
