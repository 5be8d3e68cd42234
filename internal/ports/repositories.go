package ports

import (
	"context"

	"github.com/longregen/cogexec/internal/domain/models"
)

// ToolRegistry is the single source of truth for what may be invoked.
// Populated once at startup and treated as read-only thereafter.
type ToolRegistry interface {
	Register(spec *models.ToolSpec) error
	Lookup(name string) (*models.ToolSpec, bool)
	List(predicate func(*models.ToolSpec) bool) []*models.ToolSpec
}

// ToolHandler is a tool's execution logic, run by the Sandbox Executor
// under an ExecutionContext derived from the tool's ToolSpec.
type ToolHandler interface {
	Run(ctx context.Context, args map[string]any, execCtx *ExecutionContext) (*models.ExecutionResult, error)
}

// ToolHandlerFunc adapts a plain function to ToolHandler.
type ToolHandlerFunc func(ctx context.Context, args map[string]any, execCtx *ExecutionContext) (*models.ExecutionResult, error)

func (f ToolHandlerFunc) Run(ctx context.Context, args map[string]any, execCtx *ExecutionContext) (*models.ExecutionResult, error) {
	return f(ctx, args, execCtx)
}

// Capability is a fine-grained permission a tool may exercise inside an
// ExecutionContext.
type Capability string

const (
	CapFSRead      Capability = "fs_read"
	CapFSWrite     Capability = "fs_write"
	CapNetwork     Capability = "network"
	CapOSControl   Capability = "os_control"
	CapMemoryWrite Capability = "memory_write"
)

// ExecutionContext carries everything a ToolHandler is permitted to use.
type ExecutionContext struct {
	TurnID       string
	ScratchDir   string
	Capabilities map[Capability]bool
	MaxOutput    int
}

func (c *ExecutionContext) HasCapability(cap Capability) bool {
	return c.Capabilities != nil && c.Capabilities[cap]
}

// PendingMemoryWrite is one entry of the Memory Service's write-ahead
// queue: a record whose MemoryBackend.Put failed with BackendUnavailable and
// is retried by the service's degrade-and-retry path.
type PendingMemoryWrite struct {
	Record *models.MemoryRecord
}

// AuditSink is the append-only audit log writer consumed by the Wall's
// Risk Gating tier.
type AuditSink interface {
	Write(ctx context.Context, entry AuditEntry) error
	Rotate(ctx context.Context) error
}

// AuditEntry is one structured record in the audit log.
type AuditEntry struct {
	Timestamp     string           `json:"ts"`
	TurnID        string           `json:"turn_id"`
	UserID        string           `json:"user_id"`
	Tool          string           `json:"tool"`
	ArgsDigest    string           `json:"args_digest"`
	WallTiers     []AuditTierEntry `json:"wall_tiers"`
	Decision      string           `json:"decision"`
	ResultSummary string           `json:"result_summary,omitempty"`
	Verdict       string           `json:"verdict,omitempty"`
	ReplyDigest   string           `json:"reply_digest,omitempty"`
}

type AuditTierEntry struct {
	Tier    string `json:"tier"`
	Outcome string `json:"outcome"`
	Code    string `json:"code,omitempty"`
}

// TransactionManager and IDGenerator live in services.go (shared port file).
