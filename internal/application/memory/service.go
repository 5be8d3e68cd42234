package memory

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

// Tunables, named per spec.md §4.2's defaults.
const (
	DefaultRecentTurns      = 8
	DefaultSemanticHits     = 5
	DefaultSimilarityFloor  = 0.25
	DefaultForgetFloor      = 0.7
	DefaultClusterJoinFloor = 0.55
	DefaultContextBudget    = 4000 // characters
	minNewestTurnsKept      = 2
)

// Service is the Memory Service: durable per-user experience store with
// semantic retrieval and context assembly. It owns importance scoring,
// online clustering, and context assembly; backends only own storage and
// nearest-neighbor search.
type Service struct {
	backend   ports.MemoryBackend
	embedding ports.EmbeddingModel
	ids       ports.IDGenerator

	// pending is the write-ahead queue commit() drains into when the
	// backend is briefly unavailable, so a backend hiccup never drops a
	// just-completed Turn on the floor.
	pending chan ports.PendingMemoryWrite
}

func NewService(backend ports.MemoryBackend, embedding ports.EmbeddingModel, ids ports.IDGenerator) *Service {
	s := &Service{
		backend:   backend,
		embedding: embedding,
		ids:       ids,
		pending:   make(chan ports.PendingMemoryWrite, 256),
	}
	go s.drainPending()
	return s
}

// Commit computes importance, embeds the turn, assigns a cluster, and
// writes the record. On backend failure it buffers to the write-ahead
// queue and retries with exponential backoff rather than losing the turn.
func (s *Service) Commit(ctx context.Context, turn *models.Turn) (string, error) {
	id := s.ids.GenerateMemoryID()

	toolName := ""
	if turn.Plan != nil {
		toolName = turn.Plan.ToolName
	}

	rec := models.NewMemoryRecord(id, turn.UserID, turn.Utterance, turn.ReplyText, toolName, turn.Success)

	embedding, embedErr := s.embedding.Embed(ctx, turn.Utterance+" "+turn.ReplyText)
	if embedErr == nil {
		rec.SetEmbedding(embedding)
	}

	riskTier := ""
	if turn.Plan != nil {
		riskTier = turn.Plan.Meta.RiskHint
	}
	rec.SetImportance(s.calculateImportance(ctx, rec, riskTier))

	if embedErr == nil {
		if clusterID, err := s.assignCluster(ctx, rec); err == nil {
			rec.AssignCluster(clusterID)
		}
	}

	if err := s.backend.Put(ctx, rec); err != nil {
		log.Printf("[memory] backend unavailable, buffering turn %s: %v", turn.ID, err)
		select {
		case s.pending <- ports.PendingMemoryWrite{Record: rec}:
		default:
			log.Printf("[memory] write-ahead queue full, dropping turn %s", turn.ID)
		}
		return rec.ID, domain.NewDomainError(domain.ErrBackendUnavailable, "memory backend unavailable, buffered for retry")
	}

	s.updateProfile(ctx, rec)
	return rec.ID, nil
}

// Recent returns the last k records by timestamp, newest first.
func (s *Service) Recent(ctx context.Context, userID string, k int) ([]*models.MemoryRecord, error) {
	if k <= 0 {
		k = DefaultRecentTurns
	}
	return s.backend.ListByUser(ctx, userID, k)
}

// Search embeds query and returns nearest-neighbor records above the
// similarity floor, at most k.
func (s *Service) Search(ctx context.Context, userID, query string, k int) ([]ports.VectorMatch, error) {
	if k <= 0 {
		k = DefaultSemanticHits
	}
	vec, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrEmbeddingsFailed, "failed to embed search query")
	}

	matches, err := s.backend.VectorQuery(ctx, userID, vec, k)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrMemorySearchFailed, "memory search failed")
	}

	filtered := matches[:0]
	for _, m := range matches {
		if m.Similarity >= DefaultSimilarityFloor {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// Forget removes a record by id, or by semantic match above a stricter
// floor when id is empty and query is given. Returns the count removed.
func (s *Service) Forget(ctx context.Context, userID, id, query string) (int, error) {
	if id != "" {
		if err := s.backend.DeleteByID(ctx, userID, id); err != nil {
			return 0, domain.NewDomainError(err, "failed to delete memory record")
		}
		return 1, nil
	}

	if query == "" {
		return 0, domain.NewDomainError(domain.ErrInvalidInput, "forget requires an id or a query")
	}

	vec, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return 0, domain.NewDomainError(domain.ErrEmbeddingsFailed, "failed to embed forget query")
	}

	matches, err := s.backend.VectorQuery(ctx, userID, vec, 50)
	if err != nil {
		return 0, domain.NewDomainError(domain.ErrMemorySearchFailed, "memory search failed")
	}

	removed := 0
	for _, m := range matches {
		if m.Similarity < DefaultForgetFloor {
			continue
		}
		if err := s.backend.DeleteByID(ctx, userID, m.Record.ID); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

// Profile returns the user's derived aggregate.
func (s *Service) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	return s.backend.GetProfile(ctx, userID)
}

func (s *Service) updateProfile(ctx context.Context, rec *models.MemoryRecord) {
	profile, err := s.backend.GetProfile(ctx, rec.UserID)
	if err != nil {
		profile = models.NewUserProfile(rec.UserID)
	}

	label := ""
	if rec.ClusterID != nil {
		if cluster, err := s.lookupCluster(ctx, rec.UserID, *rec.ClusterID); err == nil {
			label = cluster.Label
		}
	}

	profile.Record(rec, label)
	if err := s.backend.PutProfile(ctx, profile); err != nil {
		log.Printf("[memory] failed to persist profile for user %s: %v", rec.UserID, err)
	}
}

func (s *Service) lookupCluster(ctx context.Context, userID, clusterID string) (*models.Cluster, error) {
	clusters, err := s.backend.ListClusters(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, c := range clusters {
		if c.ID == clusterID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("cluster %s not found", clusterID)
}

// calculateImportance implements spec.md §4.2's weighted-sum formula:
// success +0.3, tool risk >= review +0.2, novelty +0.3*d, recency-decayed
// base 0.2. Clamped to [0,1] by MemoryRecord.SetImportance.
func (s *Service) calculateImportance(ctx context.Context, rec *models.MemoryRecord, riskTier string) float32 {
	var importance float32

	if rec.Success {
		importance += 0.3
	}

	switch models.RiskTier(riskTier) {
	case models.RiskReview, models.RiskConfirm, models.RiskOwnerRoot:
		importance += 0.2
	}

	if rec.HasEmbedding() {
		if novelty, err := s.novelty(ctx, rec); err == nil {
			importance += 0.3 * float32(novelty)
		}
	}

	importance += 0.2 * recencyFactor(rec.Timestamp)

	return importance
}

// novelty is the distance (1 - max similarity) to the nearest existing
// embedding for this user; a record with no close neighbor is maximally
// novel.
func (s *Service) novelty(ctx context.Context, rec *models.MemoryRecord) (float64, error) {
	matches, err := s.backend.VectorQuery(ctx, rec.UserID, rec.Embedding, 1)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 1.0, nil
	}
	return 1.0 - matches[0].Similarity, nil
}

// recencyFactor is an exponential decay over 45 days, matching the
// teacher's CalculateImportance recency curve (0.5 at ~31 days).
func recencyFactor(ts time.Time) float32 {
	days := time.Since(ts).Hours() / 24
	if days <= 0 {
		return 1.0
	}
	return float32(math.Exp(-days / 45.0))
}

// assignCluster implements the online nearest-centroid join: joins the
// nearest existing cluster if similarity >= join floor, updating its
// running-mean centroid; otherwise creates a new cluster labeled by a
// keyword match of the utterance against the fixed taxonomy.
func (s *Service) assignCluster(ctx context.Context, rec *models.MemoryRecord) (string, error) {
	clusters, err := s.backend.ListClusters(ctx, rec.UserID)
	if err != nil {
		return "", err
	}

	best, bestSim := bestCluster(clusters, rec.Embedding)
	if best != nil && bestSim >= DefaultClusterJoinFloor {
		updateCentroid(best, rec.Embedding)
		best.Count++
		best.UpdatedAt = time.Now()
		if err := s.backend.PutCluster(ctx, best); err != nil {
			return "", err
		}
		return best.ID, nil
	}

	newCluster := &models.Cluster{
		ID:        s.ids.GenerateClusterID(),
		UserID:    rec.UserID,
		Label:     nearestTaxonomyLabel(rec.Utterance),
		Centroid:  append([]float32(nil), rec.Embedding...),
		Count:     1,
		UpdatedAt: time.Now(),
	}
	if err := s.backend.PutCluster(ctx, newCluster); err != nil {
		return "", err
	}
	return newCluster.ID, nil
}

func bestCluster(clusters []*models.Cluster, embedding []float32) (*models.Cluster, float64) {
	var best *models.Cluster
	bestSim := -1.0
	for _, c := range clusters {
		sim := cosineSimilarity(c.Centroid, embedding)
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}
	return best, bestSim
}

// updateCentroid folds embedding into the cluster's running mean.
func updateCentroid(c *models.Cluster, embedding []float32) {
	if len(c.Centroid) != len(embedding) {
		c.Centroid = append([]float32(nil), embedding...)
		return
	}
	n := float32(c.Count + 1)
	for i := range c.Centroid {
		c.Centroid[i] = c.Centroid[i] + (embedding[i]-c.Centroid[i])/n
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// nearestTaxonomyLabel is a crude keyword match against the fixed taxonomy;
// the taxonomy itself is fixed at build time per spec.md §4.2.
func nearestTaxonomyLabel(utterance string) string {
	lower := utterance
	for _, label := range models.ClusterTaxonomy {
		if containsWord(lower, label) {
			return label
		}
	}
	return "other"
}

func containsWord(haystack, word string) bool {
	for i := 0; i+len(word) <= len(haystack); i++ {
		match := true
		for j := 0; j < len(word); j++ {
			hc, wc := haystack[i+j], word[j]
			if 'A' <= hc && hc <= 'Z' {
				hc += 'a' - 'A'
			}
			if hc != wc {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// drainPending retries buffered writes with exponential backoff; it never
// returns, running for the lifetime of the Service.
func (s *Service) drainPending() {
	backoff := time.Second
	const maxBackoff = time.Minute

	for write := range s.pending {
		ctx := context.Background()
		for {
			if err := s.backend.Put(ctx, write.Record); err != nil {
				time.Sleep(backoff)
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = time.Second
			break
		}
	}
}
