package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/taskforge/taskforge/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements TaskStore using SQLite for persistence.
type SQLiteStore struct {
	db *sql.DB
}

// upsertColumns is the set of columns callers may write through
// UpsertTask. created_at is included because intake stamps it once at
// submission; updated_at is deliberately absent.
var upsertColumns = map[string]bool{
	"email":          true,
	"round":          true,
	"nonce":          true,
	"brief":          true,
	"evaluation_url": true,
	"checks":         true,
	"attachments":    true,

	"llm_output_path": true,
	"created_files":   true,
	"commit_message":  true,
	"commit_hash":     true,

	"created_at": true,

	"repo_name":       true,
	"repo_clone_url":  true,
	"base_path":       true,
	"owner":           true,
	"repo_local_path": true,
	"pages_url":       true,
}

// NewSQLiteStore opens (or creates) the task database at path and
// initializes its schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		task_id TEXT PRIMARY KEY,
		email TEXT,
		round INTEGER,
		nonce TEXT,
		brief TEXT,
		evaluation_url TEXT,
		checks TEXT DEFAULT '[]',
		attachments TEXT DEFAULT '[]',

		llm_output_path TEXT,
		created_files TEXT,
		commit_message TEXT,

		commit_hash TEXT,

		created_at TEXT,
		updated_at TEXT,

		round1_email TEXT,
		round1_nonce TEXT,
		round1_brief TEXT,
		round1_evaluation_url TEXT,
		round1_checks TEXT,
		round1_attachments TEXT,
		round1_llm_output_path TEXT,
		round1_created_files TEXT,
		round1_commit_message TEXT,
		round1_commit_hash TEXT,
		round1_created_at TEXT,
		round1_updated_at TEXT,

		repo_name TEXT,
		repo_clone_url TEXT,
		base_path TEXT,
		owner TEXT,
		repo_local_path TEXT,
		pages_url TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertTask merges fields into the record for taskID, creating it when
// absent. updated_at is refreshed unconditionally; an attempt to set it
// (or any unknown column) is rejected.
func (s *SQLiteStore) UpsertTask(ctx context.Context, taskID string, fields map[string]any) error {
	if taskID == "" {
		return errors.New("task id must not be empty")
	}
	if len(fields) == 0 {
		return errors.New("fields must not be empty")
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !upsertColumns[col] {
			return fmt.Errorf("column %q is not writable", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	now := models.FormatDBTime(time.Now())

	insertCols := append([]string{"task_id"}, cols...)
	insertCols = append(insertCols, "updated_at")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(insertCols)), ", ")

	updates := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	updates = append(updates, "updated_at = excluded.updated_at")

	query := fmt.Sprintf(
		"INSERT INTO tasks (%s) VALUES (%s) ON CONFLICT(task_id) DO UPDATE SET %s",
		strings.Join(insertCols, ", "), placeholders, strings.Join(updates, ", "),
	)

	args := make([]any, 0, len(insertCols))
	args = append(args, taskID)
	for _, col := range cols {
		args = append(args, fields[col])
	}
	args = append(args, now)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert task %s: %w", taskID, err)
	}
	return nil
}

// GetTask retrieves the record for taskID.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (models.TaskRecord, error) {
	query := `
	SELECT task_id,
		COALESCE(email, ''), COALESCE(round, 0), COALESCE(nonce, ''),
		COALESCE(brief, ''), COALESCE(evaluation_url, ''),
		COALESCE(checks, '[]'), COALESCE(attachments, '[]'),
		COALESCE(llm_output_path, ''), COALESCE(created_files, ''),
		COALESCE(commit_message, ''), COALESCE(commit_hash, ''),
		COALESCE(created_at, ''), COALESCE(updated_at, ''),
		COALESCE(round1_email, ''), COALESCE(round1_nonce, ''),
		COALESCE(round1_brief, ''), COALESCE(round1_evaluation_url, ''),
		COALESCE(round1_checks, ''), COALESCE(round1_attachments, ''),
		COALESCE(round1_llm_output_path, ''), COALESCE(round1_created_files, ''),
		COALESCE(round1_commit_message, ''), COALESCE(round1_commit_hash, ''),
		COALESCE(round1_created_at, ''), COALESCE(round1_updated_at, ''),
		COALESCE(repo_name, ''), COALESCE(repo_clone_url, ''),
		COALESCE(base_path, ''), COALESCE(owner, ''),
		COALESCE(repo_local_path, ''), COALESCE(pages_url, '')
	FROM tasks WHERE task_id = ?`

	var t models.TaskRecord
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&t.TaskID,
		&t.Email, &t.Round, &t.Nonce,
		&t.Brief, &t.EvaluationURL,
		&t.Checks, &t.Attachments,
		&t.LLMOutputPath, &t.CreatedFiles,
		&t.CommitMessage, &t.CommitHash,
		&t.CreatedAt, &t.UpdatedAt,
		&t.Round1Email, &t.Round1Nonce,
		&t.Round1Brief, &t.Round1EvaluationURL,
		&t.Round1Checks, &t.Round1Attachments,
		&t.Round1LLMOutputPath, &t.Round1CreatedFiles,
		&t.Round1CommitMessage, &t.Round1CommitHash,
		&t.Round1CreatedAt, &t.Round1UpdatedAt,
		&t.RepoName, &t.RepoCloneURL,
		&t.BasePath, &t.Owner,
		&t.RepoLocalPath, &t.PagesURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TaskRecord{}, ErrTaskNotFound
	}
	if err != nil {
		return models.TaskRecord{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return t, nil
}

// ArchiveRoundOne copies current field values into the round1_* columns.
// The WHERE guard makes the copy write-once: a populated archive is never
// overwritten, and false is returned for the no-op case.
func (s *SQLiteStore) ArchiveRoundOne(ctx context.Context, taskID string) (bool, error) {
	if _, err := s.GetTask(ctx, taskID); err != nil {
		return false, err
	}

	query := `
	UPDATE tasks SET
		round1_email = email,
		round1_nonce = nonce,
		round1_brief = brief,
		round1_evaluation_url = evaluation_url,
		round1_checks = checks,
		round1_attachments = attachments,
		round1_llm_output_path = llm_output_path,
		round1_created_files = created_files,
		round1_commit_message = commit_message,
		round1_commit_hash = commit_hash,
		round1_created_at = created_at,
		round1_updated_at = updated_at
	WHERE task_id = ? AND round1_created_at IS NULL`

	res, err := s.db.ExecContext(ctx, query, taskID)
	if err != nil {
		return false, fmt.Errorf("archive round 1 for task %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive round 1 for task %s: %w", taskID, err)
	}
	return n > 0, nil
}
