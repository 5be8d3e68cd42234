package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
	"github.com/pgvector/pgvector-go"
)

// MemoryBackend is the Postgres implementation of ports.MemoryBackend,
// storing per-user memory records with pgvector cosine-distance search.
type MemoryBackend struct {
	BaseRepository
}

func NewMemoryBackend(pool *pgxpool.Pool) *MemoryBackend {
	return &MemoryBackend{BaseRepository: NewBaseRepository(pool)}
}

func (r *MemoryBackend) Put(ctx context.Context, rec *models.MemoryRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var embedding *pgvector.Vector
	if len(rec.Embedding) > 0 {
		v := pgvector.NewVector(rec.Embedding)
		embedding = &v
	}

	query := `
		INSERT INTO cogexec_memory (
			id, user_id, ts, utterance, reply, tool_name, success,
			embedding, cluster_id, importance
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := r.conn(ctx).Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Timestamp,
		rec.Utterance,
		rec.Reply,
		nullString(rec.ToolName),
		rec.Success,
		embedding,
		nullString(derefString(rec.ClusterID)),
		rec.Importance,
	)
	return err
}

func (r *MemoryBackend) GetByID(ctx context.Context, userID, id string) (*models.MemoryRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, user_id, ts, utterance, reply, tool_name, success, embedding, cluster_id, importance, deleted_at
		FROM cogexec_memory
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	return r.scanRecord(r.conn(ctx).QueryRow(ctx, query, id, userID))
}

func (r *MemoryBackend) ListByUser(ctx context.Context, userID string, limit int) ([]*models.MemoryRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, user_id, ts, utterance, reply, tool_name, success, embedding, cluster_id, importance, deleted_at
		FROM cogexec_memory
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY ts DESC
		LIMIT $2`

	rows, err := r.conn(ctx).Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanRecords(rows)
}

func (r *MemoryBackend) VectorQuery(ctx context.Context, userID string, vector []float32, k int) ([]ports.VectorMatch, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if len(vector) == 0 {
		return nil, errors.New("embedding cannot be empty")
	}
	if k <= 0 {
		k = 10
	}

	v := pgvector.NewVector(vector)
	query := `
		SELECT id, user_id, ts, utterance, reply, tool_name, success, embedding, cluster_id, importance, deleted_at,
		       1 - (embedding <=> $2) AS similarity
		FROM cogexec_memory
		WHERE user_id = $1 AND deleted_at IS NULL AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3`

	rows, err := r.conn(ctx).Query(ctx, query, userID, v, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []ports.VectorMatch
	for rows.Next() {
		rec, similarity, err := r.scanRecordWithSimilarity(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, ports.VectorMatch{Record: rec, Similarity: similarity})
	}
	return matches, rows.Err()
}

func (r *MemoryBackend) DeleteByID(ctx context.Context, userID, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE cogexec_memory
		SET deleted_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	_, err := r.conn(ctx).Exec(ctx, query, id, userID)
	return err
}

func (r *MemoryBackend) ListClusters(ctx context.Context, userID string) ([]*models.Cluster, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, user_id, label, centroid, member_count, updated_at
		FROM cogexec_memory_cluster
		WHERE user_id = $1`

	rows, err := r.conn(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []*models.Cluster
	for rows.Next() {
		var c models.Cluster
		var centroid *pgvector.Vector
		if err := rows.Scan(&c.ID, &c.UserID, &c.Label, &centroid, &c.Count, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if centroid != nil {
			c.Centroid = centroid.Slice()
		}
		clusters = append(clusters, &c)
	}
	return clusters, rows.Err()
}

func (r *MemoryBackend) PutCluster(ctx context.Context, cluster *models.Cluster) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	v := pgvector.NewVector(cluster.Centroid)
	query := `
		INSERT INTO cogexec_memory_cluster (id, user_id, label, centroid, member_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			centroid = EXCLUDED.centroid,
			member_count = EXCLUDED.member_count,
			updated_at = EXCLUDED.updated_at`

	_, err := r.conn(ctx).Exec(ctx, query, cluster.ID, cluster.UserID, cluster.Label, v, cluster.Count, cluster.UpdatedAt)
	return err
}

func (r *MemoryBackend) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT dominant_themes, tool_histogram, success_count, total_count, first_seen, last_seen
		FROM cogexec_user_profile
		WHERE user_id = $1`

	var themes, histogram []byte
	p := models.NewUserProfile(userID)
	err := r.conn(ctx).QueryRow(ctx, query, userID).Scan(&themes, &histogram, &p.SuccessCount, &p.TotalCount, &p.FirstSeen, &p.LastSeen)
	if err != nil {
		if checkNoRows(err) {
			return p, nil
		}
		return nil, err
	}
	if err := unmarshalJSONField(themes, &p.DominantThemes); err != nil {
		return nil, err
	}
	if err := unmarshalJSONField(histogram, &p.ToolHistogram); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *MemoryBackend) PutProfile(ctx context.Context, p *models.UserProfile) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	themes, err := marshalJSONField(&p.DominantThemes)
	if err != nil {
		return err
	}
	histogram, err := marshalJSONField(&p.ToolHistogram)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cogexec_user_profile (user_id, dominant_themes, tool_histogram, success_count, total_count, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			dominant_themes = EXCLUDED.dominant_themes,
			tool_histogram = EXCLUDED.tool_histogram,
			success_count = EXCLUDED.success_count,
			total_count = EXCLUDED.total_count,
			first_seen = EXCLUDED.first_seen,
			last_seen = EXCLUDED.last_seen`

	_, err = r.conn(ctx).Exec(ctx, query, p.UserID, themes, histogram, p.SuccessCount, p.TotalCount, p.FirstSeen, p.LastSeen)
	return err
}

func (r *MemoryBackend) scanRecord(row pgx.Row) (*models.MemoryRecord, error) {
	var m models.MemoryRecord
	var embedding *pgvector.Vector
	var toolName, clusterID sql.NullString

	err := row.Scan(&m.ID, &m.UserID, &m.Timestamp, &m.Utterance, &m.Reply, &toolName, &m.Success, &embedding, &clusterID, &m.Importance, &m.DeletedAt)
	if err != nil {
		if checkNoRows(err) {
			return nil, pgx.ErrNoRows
		}
		return nil, err
	}
	if embedding != nil {
		m.Embedding = embedding.Slice()
	}
	if toolName.Valid {
		m.ToolName = toolName.String
	}
	if clusterID.Valid {
		cid := clusterID.String
		m.ClusterID = &cid
	}
	return &m, nil
}

func (r *MemoryBackend) scanRecords(rows pgx.Rows) ([]*models.MemoryRecord, error) {
	var records []*models.MemoryRecord
	for rows.Next() {
		var m models.MemoryRecord
		var embedding *pgvector.Vector
		var toolName, clusterID sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &m.Timestamp, &m.Utterance, &m.Reply, &toolName, &m.Success, &embedding, &clusterID, &m.Importance, &m.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan memory record: %w", err)
		}
		if embedding != nil {
			m.Embedding = embedding.Slice()
		}
		if toolName.Valid {
			m.ToolName = toolName.String
		}
		if clusterID.Valid {
			cid := clusterID.String
			m.ClusterID = &cid
		}
		records = append(records, &m)
	}
	return records, rows.Err()
}

func (r *MemoryBackend) scanRecordWithSimilarity(rows pgx.Rows) (*models.MemoryRecord, float64, error) {
	var m models.MemoryRecord
	var embedding *pgvector.Vector
	var toolName, clusterID sql.NullString
	var similarity float64
	if err := rows.Scan(&m.ID, &m.UserID, &m.Timestamp, &m.Utterance, &m.Reply, &toolName, &m.Success, &embedding, &clusterID, &m.Importance, &m.DeletedAt, &similarity); err != nil {
		return nil, 0, fmt.Errorf("scan memory record: %w", err)
	}
	if embedding != nil {
		m.Embedding = embedding.Slice()
	}
	if toolName.Valid {
		m.ToolName = toolName.String
	}
	if clusterID.Valid {
		cid := clusterID.String
		m.ClusterID = &cid
	}
	return &m, similarity, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
