package memstore

import (
	"context"
	"testing"

	"github.com/longregen/cogexec/internal/domain/models"
)

func TestStore_PutAndGetByID(t *testing.T) {
	s := New()
	rec := models.NewMemoryRecord("mem_1", "u1", "hello", "hi", "", true)

	if err := s.Put(context.Background(), rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.GetByID(context.Background(), "u1", "mem_1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Utterance != "hello" {
		t.Errorf("expected utterance 'hello', got %q", got.Utterance)
	}
}

func TestStore_GetByID_WrongUser(t *testing.T) {
	s := New()
	rec := models.NewMemoryRecord("mem_1", "u1", "hello", "hi", "", true)
	_ = s.Put(context.Background(), rec)

	if _, err := s.GetByID(context.Background(), "u2", "mem_1"); err == nil {
		t.Error("expected error for mismatched user")
	}
}

func TestStore_ListByUser_OrdersNewestFirst(t *testing.T) {
	s := New()
	older := models.NewMemoryRecord("mem_1", "u1", "first", "r1", "", true)
	newer := models.NewMemoryRecord("mem_2", "u1", "second", "r2", "", true)
	newer.Timestamp = older.Timestamp.Add(1)

	_ = s.Put(context.Background(), older)
	_ = s.Put(context.Background(), newer)

	out, err := s.ListByUser(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(out) != 2 || out[0].ID != "mem_2" {
		t.Errorf("expected newest first, got %v", out)
	}
}

func TestStore_VectorQuery_RanksBySimilarity(t *testing.T) {
	s := New()
	close := models.NewMemoryRecord("mem_close", "u1", "a", "b", "", true)
	close.SetEmbedding([]float32{1, 0, 0})
	far := models.NewMemoryRecord("mem_far", "u1", "c", "d", "", true)
	far.SetEmbedding([]float32{0, 1, 0})

	_ = s.Put(context.Background(), close)
	_ = s.Put(context.Background(), far)

	matches, err := s.VectorQuery(context.Background(), "u1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("VectorQuery failed: %v", err)
	}
	if len(matches) != 2 || matches[0].Record.ID != "mem_close" {
		t.Errorf("expected mem_close ranked first, got %v", matches)
	}
}

func TestStore_DeleteByID_SoftDeletes(t *testing.T) {
	s := New()
	rec := models.NewMemoryRecord("mem_1", "u1", "hello", "hi", "", true)
	_ = s.Put(context.Background(), rec)

	if err := s.DeleteByID(context.Background(), "u1", "mem_1"); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}

	if _, err := s.GetByID(context.Background(), "u1", "mem_1"); err == nil {
		t.Error("expected deleted record to be invisible to GetByID")
	}
}

func TestStore_ClusterAndProfileRoundtrip(t *testing.T) {
	s := New()
	cluster := &models.Cluster{ID: "cls_1", UserID: "u1", Label: "time", Centroid: []float32{1, 0}}
	if err := s.PutCluster(context.Background(), cluster); err != nil {
		t.Fatalf("PutCluster failed: %v", err)
	}

	clusters, err := s.ListClusters(context.Background(), "u1")
	if err != nil || len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %v, err=%v", clusters, err)
	}

	profile := models.NewUserProfile("u1")
	profile.TotalCount = 5
	if err := s.PutProfile(context.Background(), profile); err != nil {
		t.Fatalf("PutProfile failed: %v", err)
	}

	got, err := s.GetProfile(context.Background(), "u1")
	if err != nil || got.TotalCount != 5 {
		t.Fatalf("expected persisted profile, got %v, err=%v", got, err)
	}
}

func TestStore_GetProfile_ReturnsZeroValueWhenMissing(t *testing.T) {
	s := New()
	profile, err := s.GetProfile(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("expected no error for missing profile, got %v", err)
	}
	if profile.TotalCount != 0 {
		t.Errorf("expected zero-value profile, got %v", profile)
	}
}
