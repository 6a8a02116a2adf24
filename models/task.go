package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DBTimeLayout is the timestamp format persisted in the record store:
// UTC, second precision, no timezone suffix.
const DBTimeLayout = "2006-01-02 15:04:05"

// Attachment is a file provided with a submission, encoded as a data URI.
type Attachment struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
}

// TaskRecord is the single mutable entity of the system, keyed by the
// externally assigned task identifier. Field names mirror the store
// columns.
type TaskRecord struct {
	TaskID        string `json:"task_id"`
	Email         string `json:"email"`
	Round         int    `json:"round"`
	Nonce         string `json:"nonce"`
	Brief         string `json:"brief"`
	EvaluationURL string `json:"evaluation_url"`
	Checks        string `json:"checks"`      // JSON array of checklist items
	Attachments   string `json:"attachments"` // JSON array of Attachment

	LLMOutputPath string `json:"llm_output_path"`
	CreatedFiles  string `json:"created_files"` // JSON array of relative paths
	CommitMessage string `json:"commit_message"`

	// CommitHash reflects the last pushed commit only.
	CommitHash string `json:"commit_hash"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`

	// Round-1 archive fields, populated exactly once when round 1
	// finishes and immutable thereafter.
	Round1Email         string `json:"round1_email"`
	Round1Nonce         string `json:"round1_nonce"`
	Round1Brief         string `json:"round1_brief"`
	Round1EvaluationURL string `json:"round1_evaluation_url"`
	Round1Checks        string `json:"round1_checks"`
	Round1Attachments   string `json:"round1_attachments"`
	Round1LLMOutputPath string `json:"round1_llm_output_path"`
	Round1CreatedFiles  string `json:"round1_created_files"`
	Round1CommitMessage string `json:"round1_commit_message"`
	Round1CommitHash    string `json:"round1_commit_hash"`
	Round1CreatedAt     string `json:"round1_created_at"`
	Round1UpdatedAt     string `json:"round1_updated_at"`

	RepoName      string `json:"repo_name"`
	RepoCloneURL  string `json:"repo_clone_url"`
	BasePath      string `json:"base_path"`
	Owner         string `json:"owner"`
	RepoLocalPath string `json:"repo_local_path"`
	PagesURL      string `json:"pages_url"`
}

// ParseChecks decodes the stored checks JSON into a string list.
func (t *TaskRecord) ParseChecks() ([]string, error) {
	if strings.TrimSpace(t.Checks) == "" {
		return nil, nil
	}
	var checks []string
	if err := json.Unmarshal([]byte(t.Checks), &checks); err != nil {
		return nil, fmt.Errorf("parse checks: %w", err)
	}
	return checks, nil
}

// ParseAttachments decodes the stored attachments JSON.
func (t *TaskRecord) ParseAttachments() ([]Attachment, error) {
	return parseAttachmentsJSON(t.Attachments)
}

// ParseRound1Attachments decodes the archived round-1 attachments JSON.
func (t *TaskRecord) ParseRound1Attachments() ([]Attachment, error) {
	return parseAttachmentsJSON(t.Round1Attachments)
}

func parseAttachmentsJSON(raw string) ([]Attachment, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var atts []Attachment
	if err := json.Unmarshal([]byte(raw), &atts); err != nil {
		return nil, fmt.Errorf("parse attachments: %w", err)
	}
	return atts, nil
}

// ParseCreatedAt parses the record's creation timestamp.
func (t *TaskRecord) ParseCreatedAt() (time.Time, error) {
	ts, err := time.Parse(DBTimeLayout, t.CreatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", t.CreatedAt, err)
	}
	return ts, nil
}

// SubmitTaskRequest is the intake payload for POST /submit-task.
type SubmitTaskRequest struct {
	Email         string       `json:"email" validate:"required,email"`
	Secret        string       `json:"secret" validate:"required"`
	Task          string       `json:"task" validate:"required"`
	Round         int          `json:"round" validate:"required,min=1"`
	Nonce         string       `json:"nonce" validate:"required"`
	Brief         string       `json:"brief" validate:"required"`
	Checks        []string     `json:"checks"`
	EvaluationURL string       `json:"evaluation_url" validate:"required,url"`
	Attachments   []Attachment `json:"attachments" validate:"dive"`
}

// SubmitTaskResponse is returned by POST /submit-task.
type SubmitTaskResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// global validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateStruct performs validation on any struct with validation tags.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, e := range validationErrors {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s'", e.StructNamespace(), e.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// FormatDBTime renders a timestamp in the store's layout, truncated to
// whole seconds in UTC.
func FormatDBTime(ts time.Time) string {
	return ts.UTC().Truncate(time.Second).Format(DBTimeLayout)
}
