// Package memstore is an in-process, linear-scan implementation of
// ports.MemoryBackend. It exists to prove the interface is a real
// capability boundary rather than a postgres-shaped one: anything that
// only needs MemoryBackend (the Memory Service, its tests) works
// identically against this store, with no database at all. It is suitable
// for single-process deployments, local development, and tests; it holds
// everything in memory and loses all state on restart.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

// Store is a thread-safe, per-process ports.MemoryBackend. Zero value is
// not usable; construct with New.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*models.MemoryRecord
	clusters map[string]*models.Cluster
	profiles map[string]*models.UserProfile
}

func New() *Store {
	return &Store{
		records:  make(map[string]*models.MemoryRecord),
		clusters: make(map[string]*models.Cluster),
		profiles: make(map[string]*models.UserProfile),
	}
}

func (s *Store) Put(ctx context.Context, rec *models.MemoryRecord) error {
	if rec == nil || rec.ID == "" {
		return domain.NewDomainError(domain.ErrInvalidID, "memory record must have an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) GetByID(ctx context.Context, userID, id string) (*models.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.UserID != userID || rec.DeletedAt != nil {
		return nil, domain.NewDomainError(domain.ErrMemoryNotFound, fmt.Sprintf("memory record %q not found", id))
	}
	return rec, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*models.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MemoryRecord
	for _, rec := range s.records {
		if rec.UserID == userID && rec.DeletedAt == nil {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) VectorQuery(ctx context.Context, userID string, vector []float32, k int) ([]ports.VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []ports.VectorMatch
	for _, rec := range s.records {
		if rec.UserID != userID || rec.DeletedAt != nil || !rec.HasEmbedding() {
			continue
		}
		matches = append(matches, ports.VectorMatch{
			Record:     rec,
			Similarity: cosineSimilarity(rec.Embedding, vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *Store) DeleteByID(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.UserID != userID {
		return domain.NewDomainError(domain.ErrMemoryNotFound, fmt.Sprintf("memory record %q not found", id))
	}
	now := rec.Timestamp
	rec.DeletedAt = &now
	return nil
}

func (s *Store) ListClusters(ctx context.Context, userID string) ([]*models.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Cluster
	for _, c := range s.clusters {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) PutCluster(ctx context.Context, cluster *models.Cluster) error {
	if cluster == nil || cluster.ID == "" {
		return domain.NewDomainError(domain.ErrInvalidID, "cluster must have an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[cluster.ID] = cluster
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return models.NewUserProfile(userID), nil
	}
	return p, nil
}

func (s *Store) PutProfile(ctx context.Context, profile *models.UserProfile) error {
	if profile == nil || profile.UserID == "" {
		return domain.NewDomainError(domain.ErrInvalidID, "profile must have a user id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
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
