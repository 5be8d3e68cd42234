package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/longregen/cogexec/internal/ports"
)

func TestSink_WriteAppendsJSONLine(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	defer sink.Close()

	entry := ports.AuditEntry{TurnID: "turn_1", UserID: "u1", Tool: "calculator", Decision: "approved"}
	if err := sink.Write(context.Background(), entry); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("failed to read audit log: %v", err)
	}

	var got ports.AuditEntry
	if err := json.Unmarshal(data[:len(data)-1], &got); err != nil {
		t.Fatalf("failed to parse audit line: %v", err)
	}
	if got.TurnID != "turn_1" {
		t.Errorf("expected turn_1, got %s", got.TurnID)
	}
}

func TestSink_RotateArchivesAndResetsLiveFile(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	defer sink.Close()

	for i := 0; i < 3; i++ {
		if err := sink.Write(context.Background(), ports.AuditEntry{TurnID: "t", UserID: "u1"}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if err := sink.Rotate(context.Background()); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	var hasArchive, hasLive bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".msgpack" {
			hasArchive = true
		}
		if e.Name() == "audit.jsonl" {
			hasLive = true
		}
	}
	if !hasArchive {
		t.Error("expected a msgpack archive segment after rotation")
	}
	if !hasLive {
		t.Error("expected a fresh live file after rotation")
	}

	if err := sink.Write(context.Background(), ports.AuditEntry{TurnID: "after-rotate", UserID: "u1"}); err != nil {
		t.Fatalf("Write after rotate failed: %v", err)
	}
}

func TestSink_RotatesWhenSizeExceeded(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.MaxBytes = 1 // force rotation on the next write after the first
	sink, err := NewSink(cfg)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	defer sink.Close()

	for i := 0; i < 2; i++ {
		if err := sink.Write(context.Background(), ports.AuditEntry{TurnID: "t", UserID: "u1"}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".msgpack" {
			found = true
		}
	}
	if !found {
		t.Error("expected size-triggered rotation to produce an archive segment")
	}
}
