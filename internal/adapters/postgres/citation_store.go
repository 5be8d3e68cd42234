package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/domain/models"
)

// CitationStore is the Postgres implementation of ports.CitationStore: a
// content-addressed table keyed by sha256 hash, storing the exact bytes a
// CitationRef's ByteSpan was cut from so the Verifier can later resolve and
// re-check it independent of the ExecutionResult that produced it.
type CitationStore struct {
	BaseRepository
}

func NewCitationStore(pool *pgxpool.Pool) *CitationStore {
	return &CitationStore{BaseRepository: NewBaseRepository(pool)}
}

// Put stores content under its sha256 hash, upserting on hash collision
// (identical content, no-op) and rejecting a ref whose declared ContentHash
// disagrees with the content actually supplied.
func (r *CitationStore) Put(ctx context.Context, ref models.CitationRef, content []byte) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	hash := sha256.Sum256(content)
	computed := hex.EncodeToString(hash[:])
	if ref.ContentHash != "" && ref.ContentHash != computed {
		return "", domain.NewDomainError(domain.ErrCitationHashMismatch,
			fmt.Sprintf("citation %s declared hash %s but content hashes to %s", ref.SourceURI, ref.ContentHash, computed))
	}

	query := `
		INSERT INTO cogexec_citation (content_hash, source_uri, byte_span_start, byte_span_end, content)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_hash) DO NOTHING`

	_, err := r.conn(ctx).Exec(ctx, query, computed, ref.SourceURI, ref.ByteSpan[0], ref.ByteSpan[1], content)
	if err != nil {
		return "", err
	}
	return computed, nil
}

func (r *CitationStore) Get(ctx context.Context, hash string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var content []byte
	err := r.conn(ctx).QueryRow(ctx, `SELECT content FROM cogexec_citation WHERE content_hash = $1`, hash).Scan(&content)
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.NewDomainError(domain.ErrCitationNotFound, fmt.Sprintf("no citation content for hash %q", hash))
		}
		return nil, err
	}
	return content, nil
}

// VerifyHash resolves ref.ContentHash against the table and recomputes the
// hash of the stored bytes, per spec.md §3's citation-hash invariant: a
// Verdict's evidence must resolve to a record whose content truly hashes
// to what the CitationRef claims.
func (r *CitationStore) VerifyHash(ctx context.Context, ref models.CitationRef) (bool, error) {
	content, err := r.Get(ctx, ref.ContentHash)
	if err != nil {
		var domErr *domain.DomainError
		if errors.As(err, &domErr) && errors.Is(domErr.Err, domain.ErrCitationNotFound) {
			return false, nil
		}
		return false, err
	}
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:]) == ref.ContentHash, nil
}
