// Package notify posts round-completion payloads to the evaluation
// callback URL with exponential backoff.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/taskforge/taskforge/models"
	"github.com/taskforge/taskforge/types"
)

// Payload is the fixed-shape round outcome sent to the evaluation
// service.
type Payload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

// Notifier delivers completion notifications with capped exponential
// backoff. The final attempt's failure propagates to the caller.
type Notifier struct {
	client        *http.Client
	maxAttempts   int
	initialDelay  time.Duration
	backoffFactor float64
	logger        *slog.Logger
}

// NewNotifier builds a notifier from configuration.
func NewNotifier(cfg types.NotifyConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:        &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		maxAttempts:   cfg.MaxAttempts,
		initialDelay:  time.Duration(cfg.InitialDelaySeconds) * time.Second,
		backoffFactor: cfg.BackoffFactor,
		logger:        logger,
	}
}

// Notify builds the payload from the task record and POSTs it to the
// record's evaluation URL.
func (n *Notifier) Notify(ctx context.Context, rec *models.TaskRecord) error {
	payload := Payload{
		Email:     rec.Email,
		Task:      rec.TaskID,
		Round:     rec.Round,
		Nonce:     rec.Nonce,
		RepoURL:   rec.RepoCloneURL,
		CommitSHA: rec.CommitHash,
		PagesURL:  rec.PagesURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	delay := n.initialDelay
	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		lastErr = n.post(ctx, rec.EvaluationURL, body)
		if lastErr == nil {
			n.logger.Info("evaluation service notified",
				"task", rec.TaskID, "round", rec.Round, "attempt", attempt)
			return nil
		}
		n.logger.Warn("notification attempt failed",
			"task", rec.TaskID, "attempt", attempt, "error", lastErr)

		if attempt == n.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * n.backoffFactor)
	}
	return fmt.Errorf("notify evaluation service for task %s: %w", rec.TaskID, lastErr)
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
