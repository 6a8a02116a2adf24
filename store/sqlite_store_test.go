package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_GetMissingTask(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetTask(context.Background(), "no-such-task")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSQLiteStore_UpsertMergesFields(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.UpsertTask(ctx, "task-1", map[string]any{
		"email":      "student@example.com",
		"round":      1,
		"brief":      "build a site",
		"created_at": "2026-08-24 10:00:00",
	})
	if err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	// A second upsert touching different fields must not clobber the
	// first batch.
	err = s.UpsertTask(ctx, "task-1", map[string]any{
		"repo_name": "task-1-abcd1234",
		"owner":     "someone",
	})
	if err != nil {
		t.Fatalf("second UpsertTask failed: %v", err)
	}

	rec, err := s.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if rec.Email != "student@example.com" {
		t.Errorf("email lost on merge: got %q", rec.Email)
	}
	if rec.RepoName != "task-1-abcd1234" {
		t.Errorf("repo_name not stored: got %q", rec.RepoName)
	}
	if rec.Round != 1 {
		t.Errorf("round mismatch: got %d, want 1", rec.Round)
	}
	if rec.CreatedAt != "2026-08-24 10:00:00" {
		t.Errorf("created_at mismatch: got %q", rec.CreatedAt)
	}
	if rec.UpdatedAt == "" {
		t.Error("updated_at should be stamped by the store")
	}
}

func TestSQLiteStore_UpdatedAtNotCallerSettable(t *testing.T) {
	s := setupTestStore(t)

	err := s.UpsertTask(context.Background(), "task-1", map[string]any{
		"updated_at": "1999-01-01 00:00:00",
	})
	if err == nil {
		t.Fatal("expected rejection of caller-supplied updated_at")
	}
}

func TestSQLiteStore_ArchiveRoundOne(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.UpsertTask(ctx, "task-1", map[string]any{
		"email":          "student@example.com",
		"round":          1,
		"nonce":          "n-1",
		"brief":          "build a site",
		"evaluation_url": "https://eval.example.com/cb",
		"checks":         `["loads"]`,
		"attachments":    `[]`,
		"commit_hash":    "abc1234",
		"created_at":     "2026-08-24 10:00:00",
	})
	if err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	archived, err := s.ArchiveRoundOne(ctx, "task-1")
	if err != nil {
		t.Fatalf("ArchiveRoundOne failed: %v", err)
	}
	if !archived {
		t.Fatal("first archival should copy fields")
	}

	rec, err := s.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if rec.Round1Email != rec.Email {
		t.Errorf("round1_email mismatch: got %q, want %q", rec.Round1Email, rec.Email)
	}
	if rec.Round1CommitHash != "abc1234" {
		t.Errorf("round1_commit_hash mismatch: got %q", rec.Round1CommitHash)
	}
	if rec.Round1CreatedAt != "2026-08-24 10:00:00" {
		t.Errorf("round1_created_at mismatch: got %q", rec.Round1CreatedAt)
	}

	// Mutate a current field, then archive again: the archive must be
	// write-once.
	if err := s.UpsertTask(ctx, "task-1", map[string]any{"commit_hash": "fff9999"}); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}
	archived, err = s.ArchiveRoundOne(ctx, "task-1")
	if err != nil {
		t.Fatalf("second ArchiveRoundOne failed: %v", err)
	}
	if archived {
		t.Error("second archival should be a no-op")
	}
	rec, err = s.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if rec.Round1CommitHash != "abc1234" {
		t.Errorf("archive overwritten: got %q, want abc1234", rec.Round1CommitHash)
	}
}

func TestSQLiteStore_ArchiveMissingTask(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.ArchiveRoundOne(context.Background(), "ghost")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}
