package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/domain/models"
)

// CitationStore is an in-process, content-addressed blob store for cited
// evidence, implementing ports.CitationStore. Like Store, it loses
// everything on restart; it exists so Research and the Verifier have a real
// store to exercise when no database is configured.
type CitationStore struct {
	mu      sync.RWMutex
	content map[string][]byte
}

func NewCitationStore() *CitationStore {
	return &CitationStore{content: make(map[string][]byte)}
}

// Put stores content keyed by its sha256 hash. If ref.ContentHash is
// already set, it must match the hash this function computes; a mismatch
// means the caller's CitationRef no longer describes the bytes it claims to.
func (c *CitationStore) Put(ctx context.Context, ref models.CitationRef, content []byte) (string, error) {
	hash := sha256.Sum256(content)
	computed := hex.EncodeToString(hash[:])
	if ref.ContentHash != "" && ref.ContentHash != computed {
		return "", domain.NewDomainError(domain.ErrCitationHashMismatch,
			fmt.Sprintf("citation %s declared hash %s but content hashes to %s", ref.SourceURI, ref.ContentHash, computed))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.content[computed] = append([]byte(nil), content...)
	return computed, nil
}

func (c *CitationStore) Get(ctx context.Context, hash string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	content, ok := c.content[hash]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCitationNotFound, fmt.Sprintf("no citation content for hash %q", hash))
	}
	return append([]byte(nil), content...), nil
}

// VerifyHash resolves ref.ContentHash against the store and recomputes the
// hash of what it finds, so a caller never has to trust a ref's own claim.
func (c *CitationStore) VerifyHash(ctx context.Context, ref models.CitationRef) (bool, error) {
	content, err := c.Get(ctx, ref.ContentHash)
	if err != nil {
		if errors.Is(err, domain.ErrCitationNotFound) {
			return false, nil
		}
		return false, err
	}
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:]) == ref.ContentHash, nil
}
