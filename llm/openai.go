package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/taskforge/taskforge/types"
)

const (
	statusCompleted = "completed"
	// continuePrompt asks the model to resume a truncated response.
	continuePrompt = "Please continue exactly where you left off."
)

// OpenAIProvider implements CompletionProvider against the OpenAI
// Responses API.
type OpenAIProvider struct {
	apiKey            string
	apiURL            string
	model             string
	maxOutputTokens   int
	maxContinuations  int
	continuationPause time.Duration
	client            *http.Client
	logger            *slog.Logger
}

// NewOpenAIProvider creates a provider from configuration. A missing API
// key is a configuration error, distinct from any later call failure.
func NewOpenAIProvider(cfg types.LLMConfig, logger *slog.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, types.NewTaskError(types.CodeConfig, "missing LLM API key", nil)
	}
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	pause := time.Duration(cfg.ContinuationPauseMs) * time.Millisecond
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		apiKey:            cfg.APIKey,
		apiURL:            cfg.APIURL,
		model:             cfg.ModelName,
		maxOutputTokens:   cfg.MaxOutputTokens,
		maxContinuations:  cfg.MaxContinuations,
		continuationPause: pause,
		client:            &http.Client{Timeout: timeout},
		logger:            logger,
	}, nil
}

// requestPayload is the Responses API request body.
type requestPayload struct {
	Model              string          `json:"model"`
	Input              []inputTurn     `json:"input"`
	MaxOutputTokens    int             `json:"max_output_tokens"`
	Reasoning          reasoningConfig `json:"reasoning"`
	PreviousResponseID string          `json:"previous_response_id,omitempty"`
}

type reasoningConfig struct {
	Effort string `json:"effort"`
}

type inputTurn struct {
	Role    string         `json:"role"`
	Content []contentPiece `json:"content"`
}

type contentPiece struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// responsePayload is the subset of the Responses API reply we consume:
// the response id, and per-block status plus output text pieces.
type responsePayload struct {
	ID     string        `json:"id"`
	Output []outputBlock `json:"output"`
}

type outputBlock struct {
	Status  string        `json:"status"`
	Content []outputPiece `json:"content"`
}

type outputPiece struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func inputText(role, text string) inputTurn {
	return inputTurn{
		Role:    role,
		Content: []contentPiece{{Type: "input_text", Text: text}},
	}
}

// Generate sends the conversation and reassembles the full output text,
// issuing continuation requests while the response reports a
// non-completed status. When the continuation ceiling is reached the
// accumulated partial text is returned with a warning rather than an
// error.
func (p *OpenAIProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	conversation := []inputTurn{
		inputText("system", systemPrompt),
		inputText("user", userPrompt),
	}

	var (
		fullText     strings.Builder
		responseID   string
		finishReason string
	)

	start := time.Now()
	continuations := 0
	for continuations <= p.maxContinuations {
		resp, err := p.call(ctx, conversation, responseID)
		if err != nil {
			return "", err
		}

		var chunk string
		responseID, chunk, finishReason = extractTextAndStatus(resp)
		fullText.WriteString(chunk)

		if finishReason != "" && !strings.EqualFold(finishReason, statusCompleted) {
			continuations++
			conversation = []inputTurn{inputText("user", continuePrompt)}
			// Politeness delay between continuation calls, not a retry
			// backoff.
			if p.continuationPause > 0 {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(p.continuationPause):
				}
			}
			continue
		}
		break
	}

	if finishReason != "" && !strings.EqualFold(finishReason, statusCompleted) {
		p.logger.Warn("completion still truncated after continuation ceiling",
			"status", finishReason, "continuations", continuations)
	}
	p.logger.Info("completion finished",
		"elapsed", time.Since(start).Round(10*time.Millisecond).String(),
		"continuations", continuations)

	return strings.TrimSpace(fullText.String()), nil
}

// call issues a single Responses API request. previousResponseID chains a
// continuation to the prior response.
func (p *OpenAIProvider) call(ctx context.Context, conversation []inputTurn, previousResponseID string) (responsePayload, error) {
	payload := requestPayload{
		Model:              p.model,
		Input:              conversation,
		MaxOutputTokens:    p.maxOutputTokens,
		Reasoning:          reasoningConfig{Effort: "minimal"},
		PreviousResponseID: previousResponseID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return responsePayload{}, fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return responsePayload{}, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return responsePayload{}, fmt.Errorf("completion request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return responsePayload{}, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responsePayload{}, fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var parsed responsePayload
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return responsePayload{}, fmt.Errorf("decode completion response: %w", err)
	}
	return parsed, nil
}

// extractTextAndStatus pulls the response id, concatenated output text
// and the first block status from a response. The status doubles as the
// finish reason: anything other than "completed" means truncation.
func extractTextAndStatus(resp responsePayload) (id, text, status string) {
	var chunks []string
	for _, block := range resp.Output {
		if status == "" {
			status = block.Status
		}
		for _, piece := range block.Content {
			if piece.Type == "output_text" {
				chunks = append(chunks, piece.Text)
			}
		}
	}
	return resp.ID, strings.Join(chunks, ""), status
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... [truncated]"
}
