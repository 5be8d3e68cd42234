// Package audit implements the Validation Wall's append-only audit log: a
// JSON-lines file for live writes, rotated by size or day into msgpack-
// compacted archive segments. A single writer queue serializes all writes
// so entries for a given user are observed in turn order, per spec.md §5.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/ports"
)

// Config controls rotation thresholds.
type Config struct {
	Dir         string        // directory holding the live log and archives
	MaxBytes    int64         // rotate when the live file exceeds this size
	MaxAge      time.Duration // rotate when the live file is older than this
	filePrefix  string
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:        dir,
		MaxBytes:   64 << 20, // 64 MiB
		MaxAge:     24 * time.Hour,
		filePrefix: "audit",
	}
}

// Sink is a ports.AuditSink backed by a local JSON-lines file. Every write
// is serialized through a single mutex, matching spec.md §5's "single
// writer queue" ordering guarantee.
type Sink struct {
	mu        sync.Mutex
	cfg       Config
	file      *os.File
	writer    *bufio.Writer
	openedAt  time.Time
	written   int64
}

func NewSink(cfg Config) (*Sink, error) {
	if cfg.filePrefix == "" {
		cfg.filePrefix = "audit"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	s := &Sink{cfg: cfg}
	if err := s.openLiveFile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) livePath() string {
	return filepath.Join(s.cfg.Dir, s.cfg.filePrefix+".jsonl")
}

func (s *Sink) openLiveFile() error {
	f, err := os.OpenFile(s.livePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, statErr := f.Stat()
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	s.file = f
	s.writer = bufio.NewWriter(f)
	s.openedAt = time.Now()
	s.written = size
	return nil
}

// Write appends one entry as a JSON line. A write failure surfaces as
// domain.ErrAuditFailure, which the Wall's Risk Gating tier must propagate
// rather than swallow.
func (s *Sink) Write(ctx context.Context, entry ports.AuditEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return domain.NewDomainError(domain.ErrAuditFailure, fmt.Sprintf("marshal audit entry: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shouldRotateLocked() {
		if err := s.rotateLocked(); err != nil {
			return domain.NewDomainError(domain.ErrAuditFailure, fmt.Sprintf("rotate audit log: %v", err))
		}
	}

	n, err := s.writer.Write(append(line, '\n'))
	if err != nil {
		return domain.NewDomainError(domain.ErrAuditFailure, fmt.Sprintf("write audit entry: %v", err))
	}
	if err := s.writer.Flush(); err != nil {
		return domain.NewDomainError(domain.ErrAuditFailure, fmt.Sprintf("flush audit entry: %v", err))
	}
	s.written += int64(n)
	return nil
}

func (s *Sink) shouldRotateLocked() bool {
	if s.cfg.MaxBytes > 0 && s.written >= s.cfg.MaxBytes {
		return true
	}
	if s.cfg.MaxAge > 0 && time.Since(s.openedAt) >= s.cfg.MaxAge {
		return true
	}
	return false
}

// Rotate closes the live file, compacts its lines into a msgpack archive
// segment (denser on disk than repeated JSON-lines), and opens a fresh
// live file. Safe to call directly as the administrative rotateAuditLog
// operation from spec.md §6.
func (s *Sink) Rotate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked()
}

func (s *Sink) rotateLocked() error {
	if err := s.writer.Flush(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}

	entries, err := readJSONLines(s.livePath())
	if err != nil {
		return fmt.Errorf("read audit log for archival: %w", err)
	}

	if len(entries) > 0 {
		archivePath := filepath.Join(s.cfg.Dir, fmt.Sprintf("%s-%s.msgpack", s.cfg.filePrefix, time.Now().UTC().Format("20060102T150405")))
		packed, err := msgpack.Marshal(entries)
		if err != nil {
			return fmt.Errorf("marshal archive segment: %w", err)
		}
		if err := os.WriteFile(archivePath, packed, 0o644); err != nil {
			return fmt.Errorf("write archive segment: %w", err)
		}
	}

	if err := os.Remove(s.livePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove rotated live file: %w", err)
	}

	return s.openLiveFile()
}

func readJSONLines(path string) ([]ports.AuditEntry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []ports.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry ports.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// Close flushes and closes the live file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}
