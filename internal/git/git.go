// Package git provides shell-based wrappers for the git operations the
// provisioner performs on task checkouts. It uses os/exec behind a
// Commander seam so push/commit behavior is testable without a remote.
package git

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Commander is an interface for executing commands.
// This allows mocking in tests.
type Commander interface {
	Run(name string, args ...string) (string, error)
	RunInDir(dir, name string, args ...string) (string, error)
}

// ShellCommander executes real shell commands.
type ShellCommander struct{}

// Run executes a command in the current directory.
func (c *ShellCommander) Run(name string, args ...string) (string, error) {
	return c.RunInDir("", name, args...)
}

// RunInDir executes a command in the specified directory.
func (c *ShellCommander) RunInDir(dir, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg != "" {
			return "", fmt.Errorf("%w: %s", err, errMsg)
		}
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Client wraps git CLI operations on task checkouts.
type Client struct {
	commander Commander
}

// NewClient creates a git client backed by real shell commands.
func NewClient() *Client {
	return &Client{commander: &ShellCommander{}}
}

// NewClientWithCommander creates a client with a custom commander (for testing).
func NewClientWithCommander(commander Commander) *Client {
	return &Client{commander: commander}
}

// Clone clones a repository into targetDir.
func (c *Client) Clone(cloneURL, targetDir string) error {
	if _, err := c.commander.Run("git", "clone", cloneURL, targetDir); err != nil {
		return fmt.Errorf("clone %s: %w", cloneURL, err)
	}
	return nil
}

// hasStagedChanges reports whether the index differs from HEAD.
func (c *Client) hasStagedChanges(repoPath string) (bool, error) {
	out, err := c.commander.RunInDir(repoPath, "git", "diff", "--cached", "--name-only")
	if err != nil {
		return false, fmt.Errorf("check staged changes: %w", err)
	}
	return out != "", nil
}

// CommitAndPush stages everything, commits when the stage is non-empty,
// and pushes to the remote main branch over a tokened URL. It returns
// the 7-character short hash of the pushed commit, or the empty string
// when there was nothing to commit (a silent no-op, not an error).
func (c *Client) CommitAndPush(repoPath, owner, repoName, token, message string) (string, error) {
	remoteURL := fmt.Sprintf("https://%s:%s@github.com/%s/%s.git", owner, token, owner, repoName)

	if _, err := c.commander.RunInDir(repoPath, "git", "checkout", "-B", "main"); err != nil {
		return "", fmt.Errorf("checkout main: %w", err)
	}
	if _, err := c.commander.RunInDir(repoPath, "git", "add", "--all"); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}

	staged, err := c.hasStagedChanges(repoPath)
	if err != nil {
		return "", err
	}
	if !staged {
		return "", nil
	}

	if _, err := c.commander.RunInDir(repoPath, "git", "commit", "-m", message); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if _, err := c.commander.RunInDir(repoPath, "git", "push", remoteURL, "HEAD:main"); err != nil {
		return "", fmt.Errorf("push: %w", err)
	}

	hash, err := c.commander.RunInDir(repoPath, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve commit hash: %w", err)
	}
	if len(hash) > 7 {
		hash = hash[:7]
	}
	return hash, nil
}
