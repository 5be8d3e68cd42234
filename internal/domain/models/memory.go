package models

import "time"

// MemoryRecord is one committed experience in a user's long-term store.
// Records are never mutated after commit; forget() removes by id, it never
// edits an existing id in place.
type MemoryRecord struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Timestamp  time.Time  `json:"timestamp"`
	Utterance  string     `json:"utterance"`
	Reply      string     `json:"reply"`
	ToolName   string     `json:"tool_name,omitempty"`
	Success    bool       `json:"success"`
	Embedding  []float32  `json:"-"`
	ClusterID  *string    `json:"cluster_id,omitempty"`
	Importance float32    `json:"importance"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

func NewMemoryRecord(id, userID, utterance, reply, toolName string, success bool) *MemoryRecord {
	return &MemoryRecord{
		ID:        id,
		UserID:    userID,
		Timestamp: time.Now(),
		Utterance: utterance,
		Reply:     reply,
		ToolName:  toolName,
		Success:   success,
	}
}

func (m *MemoryRecord) SetEmbedding(v []float32) {
	m.Embedding = v
}

// SetImportance clamps to [0,1], matching the teacher's Memory.SetImportance guard.
func (m *MemoryRecord) SetImportance(importance float32) {
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}
	m.Importance = importance
}

func (m *MemoryRecord) AssignCluster(clusterID string) {
	m.ClusterID = &clusterID
}

func (m *MemoryRecord) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// Cluster is a per-user group of semantically cohesive records, labeled from
// a fixed taxonomy and maintained as a running-mean centroid.
type Cluster struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Label     string    `json:"label"`
	Centroid  []float32 `json:"-"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fixed label taxonomy, set at build time per spec.md §4.2.
var ClusterTaxonomy = []string{
	"time", "weather", "programming", "memory", "personal", "research", "ops", "other",
}

// UserProfile is a derived per-user aggregate, recomputed lazily or updated
// incrementally on commit.
type UserProfile struct {
	UserID          string         `json:"user_id"`
	DominantThemes  map[string]int `json:"dominant_themes"`
	ToolHistogram   map[string]int `json:"tool_histogram"`
	SuccessCount    int            `json:"success_count"`
	TotalCount      int            `json:"total_count"`
	FirstSeen       time.Time      `json:"first_seen"`
	LastSeen        time.Time      `json:"last_seen"`
}

func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:         userID,
		DominantThemes: make(map[string]int),
		ToolHistogram:  make(map[string]int),
	}
}

func (p *UserProfile) SuccessRate() float64 {
	if p.TotalCount == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.TotalCount)
}

// Record folds one committed MemoryRecord into the running aggregate.
func (p *UserProfile) Record(rec *MemoryRecord, clusterLabel string) {
	if p.FirstSeen.IsZero() || rec.Timestamp.Before(p.FirstSeen) {
		p.FirstSeen = rec.Timestamp
	}
	if rec.Timestamp.After(p.LastSeen) {
		p.LastSeen = rec.Timestamp
	}
	p.TotalCount++
	if rec.Success {
		p.SuccessCount++
	}
	if rec.ToolName != "" {
		p.ToolHistogram[rec.ToolName]++
	}
	if clusterLabel != "" {
		p.DominantThemes[clusterLabel]++
	}
}
