package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

// ContextBundle is everything AssembleContext hands the Planner: recent
// turns, semantic hits, one exemplar per distinct cluster touched, and a
// profile summary. Degraded is set when the vector backend failed and the
// bundle fell back to recent-only context.
type ContextBundle struct {
	RecentTurns      []*models.MemoryRecord
	SemanticHits     []ports.VectorMatch
	ClusterExemplars []*models.MemoryRecord
	ProfileSummary   string
	Degraded         bool
}

// Render flattens the bundle into the plain-text context string the
// Planner's strategies consume.
func (b *ContextBundle) Render() string {
	var out strings.Builder

	if b.Degraded {
		out.WriteString("[context degraded: semantic memory unavailable, recent turns only]\n")
	}

	if len(b.RecentTurns) > 0 {
		out.WriteString("Recent turns:\n")
		for _, rec := range b.RecentTurns {
			fmt.Fprintf(&out, "- %s -> %s\n", rec.Utterance, rec.Reply)
		}
	}

	if len(b.SemanticHits) > 0 {
		out.WriteString("Related past turns:\n")
		for _, hit := range b.SemanticHits {
			fmt.Fprintf(&out, "- (%.2f) %s -> %s\n", hit.Similarity, hit.Record.Utterance, hit.Record.Reply)
		}
	}

	if len(b.ClusterExemplars) > 0 {
		out.WriteString("Topic exemplars:\n")
		for _, rec := range b.ClusterExemplars {
			fmt.Fprintf(&out, "- %s\n", rec.Utterance)
		}
	}

	if b.ProfileSummary != "" {
		fmt.Fprintf(&out, "Profile: %s\n", b.ProfileSummary)
	}

	return out.String()
}

// AssembleContext implements spec.md §4.2's five-step context assembly:
// N recent turns, M semantic hits above the similarity floor, one exemplar
// per distinct cluster among the selected records, a profile summary, all
// trimmed to budget characters by dropping the lowest-importance semantic
// hits first, then the oldest recent turns (never the newest two turns or
// the profile summary). A vector-query failure degrades gracefully to
// recent-only context rather than failing the turn.
func (s *Service) AssembleContext(ctx context.Context, userID, query string, budget int) (*ContextBundle, error) {
	if budget <= 0 {
		budget = DefaultContextBudget
	}

	recent, err := s.Recent(ctx, userID, DefaultRecentTurns)
	if err != nil {
		recent = nil
	}

	bundle := &ContextBundle{RecentTurns: recent}

	hits, err := s.Search(ctx, userID, query, DefaultSemanticHits)
	if err != nil {
		bundle.Degraded = true
	} else {
		bundle.SemanticHits = hits
	}

	bundle.ClusterExemplars = exemplarsByCluster(recent, hits)

	if profile, err := s.Profile(ctx, userID); err == nil {
		bundle.ProfileSummary = renderProfileSummary(profile)
	}

	trimToBudget(bundle, budget)

	return bundle, nil
}

// exemplarsByCluster returns, for each distinct cluster id touched by the
// selected recent+semantic records, the single highest-importance record
// in that cluster.
func exemplarsByCluster(recent []*models.MemoryRecord, hits []ports.VectorMatch) []*models.MemoryRecord {
	best := make(map[string]*models.MemoryRecord)

	consider := func(rec *models.MemoryRecord) {
		if rec.ClusterID == nil {
			return
		}
		cid := *rec.ClusterID
		if cur, ok := best[cid]; !ok || rec.Importance > cur.Importance {
			best[cid] = rec
		}
	}

	for _, rec := range recent {
		consider(rec)
	}
	for _, hit := range hits {
		consider(hit.Record)
	}

	out := make([]*models.MemoryRecord, 0, len(best))
	for _, rec := range best {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// renderProfileSummary surfaces the dominant themes and the top-3 tools by
// use count, per spec.md §4.2's profile-summary requirement.
func renderProfileSummary(profile *models.UserProfile) string {
	if profile == nil || profile.TotalCount == 0 {
		return ""
	}

	themes := topN(profile.DominantThemes, 3)
	tools := topN(profile.ToolHistogram, 3)

	var b strings.Builder
	fmt.Fprintf(&b, "%d turns, %.0f%% success", profile.TotalCount, profile.SuccessRate()*100)
	if len(themes) > 0 {
		fmt.Fprintf(&b, "; themes: %s", strings.Join(themes, ", "))
	}
	if len(tools) > 0 {
		fmt.Fprintf(&b, "; top tools: %s", strings.Join(tools, ", "))
	}
	return b.String()
}

func topN(counts map[string]int, n int) []string {
	type kv struct {
		key   string
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for k, v := range counts {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].key < kvs[j].key
	})
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, e := range kvs {
		out[i] = e.key
	}
	return out
}

// trimToBudget drops the lowest-importance semantic hits first, then the
// oldest recent turns, until the rendered bundle fits budget characters.
// The newest two recent turns and the profile summary are never dropped.
func trimToBudget(bundle *ContextBundle, budget int) {
	for len(bundle.Render()) > budget {
		if len(bundle.SemanticHits) > 0 {
			lowest := 0
			for i, hit := range bundle.SemanticHits {
				if hit.Record.Importance < bundle.SemanticHits[lowest].Record.Importance {
					lowest = i
				}
			}
			bundle.SemanticHits = append(bundle.SemanticHits[:lowest], bundle.SemanticHits[lowest+1:]...)
			continue
		}

		if len(bundle.RecentTurns) > minNewestTurnsKept {
			bundle.RecentTurns = bundle.RecentTurns[:len(bundle.RecentTurns)-1]
			continue
		}

		if len(bundle.ClusterExemplars) > 0 {
			bundle.ClusterExemplars = bundle.ClusterExemplars[:len(bundle.ClusterExemplars)-1]
			continue
		}

		break
	}
}
