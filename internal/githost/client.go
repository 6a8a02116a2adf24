// Package githost wraps the GitHub REST API operations the provisioner
// needs: repository creation, Pages enablement, and Pages build status.
package githost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taskforge/taskforge/types"
)

// ErrNameTaken signals a repository-name collision (422 with an
// "already exists" body). Callers retry with a fresh name.
var ErrNameTaken = errors.New("repository name already exists")

// APIError is a non-collision failure of a host API call.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Operation, e.StatusCode, e.Body)
}

// RepoInfo is the identity of a created repository.
type RepoInfo struct {
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
	Owner   struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// PagesInfo describes a repository's Pages site.
type PagesInfo struct {
	HTMLURL string `json:"html_url"`
	Status  string `json:"status"`
}

// Client talks to the repository host API with a bearer credential.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a host client. A missing token is a configuration
// error, distinct from any remote-call failure.
func NewClient(cfg types.GitHubConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, types.NewTaskError(types.CodeConfig, "missing GitHub token", nil)
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Token exposes the bearer credential for tokened git push URLs.
func (c *Client) Token() string { return c.token }

func (c *Client) do(ctx context.Context, method, url string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// CreateRepository creates a public repository under the authenticated
// user. A 422 response whose body mentions an existing name maps to
// ErrNameTaken.
func (c *Client) CreateRepository(ctx context.Context, name, description string) (RepoInfo, error) {
	payload := map[string]any{
		"name":        name,
		"description": description,
		"private":     false,
		"auto_init":   false,
	}

	status, body, err := c.do(ctx, http.MethodPost, c.baseURL+"/user/repos", payload)
	if err != nil {
		return RepoInfo{}, fmt.Errorf("create repository: %w", err)
	}

	switch {
	case status == http.StatusCreated:
		var info RepoInfo
		if err := json.Unmarshal(body, &info); err != nil {
			return RepoInfo{}, fmt.Errorf("decode create-repository response: %w", err)
		}
		return info, nil
	case status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(string(body)), "name already exists"):
		return RepoInfo{}, ErrNameTaken
	default:
		return RepoInfo{}, &APIError{Operation: "create repository", StatusCode: status, Body: string(body)}
	}
}

// EnablePages turns on static hosting from the main branch root.
func (c *Client) EnablePages(ctx context.Context, owner, repo string) (PagesInfo, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pages", c.baseURL, owner, repo)
	payload := map[string]any{
		"source": map[string]string{"branch": "main", "path": "/"},
	}

	status, body, err := c.do(ctx, http.MethodPost, url, payload)
	if err != nil {
		return PagesInfo{}, fmt.Errorf("enable pages: %w", err)
	}
	if status != http.StatusCreated && status != http.StatusNoContent {
		return PagesInfo{}, &APIError{Operation: "enable pages", StatusCode: status, Body: string(body)}
	}

	var info PagesInfo
	if len(body) > 0 {
		if err := json.Unmarshal(body, &info); err != nil {
			return PagesInfo{}, fmt.Errorf("decode enable-pages response: %w", err)
		}
	}
	return info, nil
}

// PagesStatus fetches the Pages build status string ("built" once the
// site is published).
func (c *Client) PagesStatus(ctx context.Context, owner, repo string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pages", c.baseURL, owner, repo)

	status, body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("pages status: %w", err)
	}
	if status != http.StatusOK {
		return "", &APIError{Operation: "pages status", StatusCode: status, Body: string(body)}
	}

	var info PagesInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("decode pages-status response: %w", err)
	}
	if info.Status == "" {
		return "unknown", nil
	}
	return info.Status, nil
}
