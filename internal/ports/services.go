package ports

import (
	"context"

	"github.com/longregen/cogexec/internal/domain/models"
)

// Grammar is an optional structural constraint passed to LanguageModel.complete.
// Its concrete representation (EBNF, JSON schema, finite-state) is an
// implementation choice; the core only requires that an implementation
// either honors it or falls back to parse-and-retry.
type Grammar struct {
	ToolName string
	Schema   models.ArgSchema
}

// LanguageModel is the external collaborator the model-backed PlanStrategy
// consumes. Vectors, weights, and hosting are out of scope; only this
// narrow contract is.
type LanguageModel interface {
	Complete(ctx context.Context, prompt string, grammar *Grammar) (string, error)
}

// EmbeddingModel turns text into an opaque vector handle for the Memory
// Service's semantic search.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// EntailmentModel scores whether a premise (citation text) entails a
// hypothesis (claim text), in [0,1]. Batch variant amortizes model
// round-trips per spec.md §4.6.
type EntailmentModel interface {
	Score(ctx context.Context, premise, hypothesis string) (float64, error)
	ScoreBatch(ctx context.Context, pairs []EntailmentPair) ([]float64, error)
}

type EntailmentPair struct {
	Premise    string
	Hypothesis string
}

// MemoryBackend is the capability set a concrete store must provide to back
// the Memory Service; the service layer owns importance, clustering, and
// context assembly, backends own storage and nearest-neighbor.
type MemoryBackend interface {
	Put(ctx context.Context, rec *models.MemoryRecord) error
	GetByID(ctx context.Context, userID, id string) (*models.MemoryRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.MemoryRecord, error)
	VectorQuery(ctx context.Context, userID string, vector []float32, k int) ([]VectorMatch, error)
	DeleteByID(ctx context.Context, userID, id string) error

	// Cluster storage for the Memory Service's online nearest-centroid join.
	ListClusters(ctx context.Context, userID string) ([]*models.Cluster, error)
	PutCluster(ctx context.Context, cluster *models.Cluster) error

	// Profile storage. The service may also derive a profile lazily from
	// ListByUser; backends that support incremental aggregation can persist
	// it directly.
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	PutProfile(ctx context.Context, profile *models.UserProfile) error
}

// VectorMatch is one nearest-neighbor hit from a MemoryBackend.VectorQuery,
// with similarity already normalized to [0,1].
type VectorMatch struct {
	Record     *models.MemoryRecord
	Similarity float64
}

// CitationStore is a content-addressed blob store for retrieved evidence.
type CitationStore interface {
	Put(ctx context.Context, ref models.CitationRef, content []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	VerifyHash(ctx context.Context, ref models.CitationRef) (bool, error)
}

// TransactionManager wraps a unit of work in a database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator generates unique, prefixed IDs for entities.
type IDGenerator interface {
	GenerateTurnID() string
	GenerateMemoryID() string
	GenerateClusterID() string
	GenerateToolUseID() string
	GenerateCitationID() string
}

// GenerationNotifier receives progress notifications as a turn moves through
// the pipeline; implementations stream these to a connected client.
type GenerationNotifier interface {
	NotifyPlanning(turnID, userID string)
	NotifyPlanReady(turnID string, plan *models.ActionPlan)
	NotifyWallVerdict(turnID string, verdict WallVerdict)
	NotifyToolUseStart(turnID, toolName string, arguments map[string]any)
	NotifyToolUseComplete(turnID string, result *models.ExecutionResult)
	NotifyVerdict(turnID string, verdict *models.Verdict)
	NotifyReply(turnID, replyText string)
}

// WallVerdictKind is the Validation Wall's terminal decision kind.
type WallVerdictKind string

const (
	WallApproved            WallVerdictKind = "approved"
	WallNeedsConfirmation   WallVerdictKind = "needs_confirmation"
	WallNeedsOwnerAuth      WallVerdictKind = "needs_owner_auth"
	WallRejected            WallVerdictKind = "rejected"
)

// WallVerdict is the Validation Wall's output for one ActionPlan.
type WallVerdict struct {
	Kind   WallVerdictKind
	Tier   string
	Code   string
	Detail string
}

func (v WallVerdict) Approved() bool { return v.Kind == WallApproved }
