// Package round orchestrates the full lifecycle of a task round:
// repository provisioning, seeding, LLM generation, materialization,
// publication, and the completion callback.
package round

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/taskforge/taskforge/internal/githost"
	"github.com/taskforge/taskforge/internal/materialize"
	"github.com/taskforge/taskforge/internal/workspace"
	"github.com/taskforge/taskforge/llm"
	"github.com/taskforge/taskforge/models"
	"github.com/taskforge/taskforge/prompts"
	"github.com/taskforge/taskforge/store"
	"github.com/taskforge/taskforge/types"
)

const (
	seedCommitMessage        = "Add initial instructions and attachments"
	attachmentsCommitMessage = "Add additional attachments for round 2"
	defaultCommitMessage     = "Initial commit from LLM"
)

// HostClient is the repository-host surface the controller needs.
type HostClient interface {
	CreateRepository(ctx context.Context, name, description string) (githost.RepoInfo, error)
	EnablePages(ctx context.Context, owner, repo string) (githost.PagesInfo, error)
	PagesStatus(ctx context.Context, owner, repo string) (string, error)
	Token() string
}

// GitClient performs local checkout operations and pushes.
type GitClient interface {
	Clone(cloneURL, targetDir string) error
	CommitAndPush(repoPath, owner, repoName, token, message string) (string, error)
}

// CompletionNotifier delivers the round outcome to the evaluation
// callback.
type CompletionNotifier interface {
	Notify(ctx context.Context, rec *models.TaskRecord) error
}

// Controller drives a task through one round. All collaborators are
// injected; the controller owns only sequencing, deadline arithmetic,
// and error classification.
type Controller struct {
	store    store.TaskStore
	host     HostClient
	git      GitClient
	llm      llm.CompletionProvider
	notifier CompletionNotifier
	fs       afero.Fs
	clock    Clock
	logger   *slog.Logger

	basePath    string
	timeout     time.Duration
	buffer      time.Duration
	llmEstimate time.Duration
	pagesWait   time.Duration
	maxCreates  int
}

// NewController wires a round controller from configuration and
// collaborators.
func NewController(
	st store.TaskStore,
	host HostClient,
	git GitClient,
	provider llm.CompletionProvider,
	notifier CompletionNotifier,
	fs afero.Fs,
	clock Clock,
	cfg *types.AppConfig,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:       st,
		host:        host,
		git:         git,
		llm:         provider,
		notifier:    notifier,
		fs:          fs,
		clock:       clock,
		logger:      logger,
		basePath:    cfg.Repos.BasePath,
		timeout:     time.Duration(cfg.Round.TimeoutSeconds) * time.Second,
		buffer:      time.Duration(cfg.Round.BufferSeconds) * time.Second,
		llmEstimate: time.Duration(cfg.LLM.RequestTimeoutSeconds) * time.Second,
		pagesWait:   time.Duration(cfg.Round.PagesBuildWaitSeconds) * time.Second,
		maxCreates:  cfg.Round.MaxRepoCreateAttempts,
	}
}

// Process runs the round recorded for taskID. The record must already
// exist; its round field selects the execution path.
func (c *Controller) Process(ctx context.Context, taskID string) error {
	rec, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return types.NewTaskError(types.CodeNotFound, fmt.Sprintf("task %s not found", taskID), err)
		}
		return types.NewTaskError(types.CodeInternal, "load task record", err)
	}

	c.logger.Info("processing task", "task", taskID, "round", rec.Round)
	switch rec.Round {
	case 1:
		err = c.runRoundOne(ctx, &rec)
	case 2:
		err = c.runRoundTwo(ctx, &rec)
	default:
		return types.NewTaskError(types.CodeUnsupportedRound,
			fmt.Sprintf("round %d is not supported", rec.Round), nil)
	}
	if err != nil {
		c.logger.Error("round failed", "task", taskID, "round", rec.Round, "error", err)
		return err
	}
	c.logger.Info("round complete", "task", taskID, "round", rec.Round)
	return nil
}

func (c *Controller) runRoundOne(ctx context.Context, rec *models.TaskRecord) error {
	info, err := c.createUniqueRepo(ctx, rec)
	if err != nil {
		return err
	}

	localPath := filepath.Join(c.basePath, info.Name)
	err = c.store.UpsertTask(ctx, rec.TaskID, map[string]any{
		"repo_name":      info.Name,
		"repo_clone_url": info.HTMLURL,
		"base_path":      c.basePath,
		"owner":          info.Owner.Login,
	})
	if err != nil {
		return types.NewTaskError(types.CodeInternal, "record repository identity", err)
	}

	if err := c.seedCheckout(ctx, rec, info, localPath); err != nil {
		return err
	}

	pagesURL, err := c.enablePages(ctx, info.Owner.Login, info.Name)
	if err != nil {
		return err
	}
	if err := c.store.UpsertTask(ctx, rec.TaskID, map[string]any{"pages_url": pagesURL}); err != nil {
		return types.NewTaskError(types.CodeInternal, "record pages url", err)
	}

	if err := c.runLLMCycle(ctx, rec.TaskID, 1, func(fresh *models.TaskRecord) (string, error) {
		return prompts.BuildRoundOne(fresh)
	}); err != nil {
		return err
	}

	archived, err := c.store.ArchiveRoundOne(ctx, rec.TaskID)
	if err != nil {
		c.logger.Warn("round-1 archival failed", "task", rec.TaskID, "error", err)
	} else if !archived {
		c.logger.Info("round-1 archive already populated", "task", rec.TaskID)
	}

	return c.finishRound(ctx, rec.TaskID)
}

func (c *Controller) runRoundTwo(ctx context.Context, rec *models.TaskRecord) error {
	if rec.RepoLocalPath == "" || rec.RepoName == "" || rec.Owner == "" {
		return types.NewTaskError(types.CodeInternal,
			fmt.Sprintf("task %s has no round-1 repository state", rec.TaskID), nil)
	}

	atts, err := rec.ParseAttachments()
	if err != nil {
		return types.NewTaskError(types.CodeInternal, "parse round-2 attachments", err)
	}
	if len(atts) > 0 {
		if err := workspace.SaveAttachments(c.fs, rec.RepoLocalPath, atts); err != nil {
			return types.NewTaskError(types.CodeInternal, "save round-2 attachments", err)
		}
		sha, err := c.git.CommitAndPush(rec.RepoLocalPath, rec.Owner, rec.RepoName,
			c.host.Token(), attachmentsCommitMessage)
		if err != nil {
			return types.NewTaskError(types.CodeInternal, "push round-2 attachments", err)
		}
		if sha != "" {
			if err := c.store.UpsertTask(ctx, rec.TaskID, map[string]any{"commit_hash": sha}); err != nil {
				return types.NewTaskError(types.CodeInternal, "record attachment commit", err)
			}
		}
	}

	if err := c.runLLMCycle(ctx, rec.TaskID, 2, func(fresh *models.TaskRecord) (string, error) {
		return prompts.BuildRoundTwo(fresh, c.roundOneOutput(fresh))
	}); err != nil {
		return err
	}

	return c.finishRound(ctx, rec.TaskID)
}

// roundOneOutput reads the archived round-1 raw output for use as the
// repository's current state in the round-2 prompt. A missing or
// unreadable file degrades to empty context rather than failing the
// round.
func (c *Controller) roundOneOutput(rec *models.TaskRecord) string {
	if rec.Round1LLMOutputPath == "" {
		return ""
	}
	data, err := afero.ReadFile(c.fs, rec.Round1LLMOutputPath)
	if err != nil {
		c.logger.Warn("round-1 output unreadable", "task", rec.TaskID, "path", rec.Round1LLMOutputPath, "error", err)
		return ""
	}
	return string(data)
}

// createUniqueRepo creates a repository named after the task with a
// random suffix, retrying on name collisions up to the configured
// ceiling. Non-collision failures are remote errors and abort
// immediately.
func (c *Controller) createUniqueRepo(ctx context.Context, rec *models.TaskRecord) (githost.RepoInfo, error) {
	description := "Autogenerated repository for task " + rec.TaskID
	for attempt := 1; attempt <= c.maxCreates; attempt++ {
		name := rec.TaskID + "-" + repoSuffix()
		info, err := c.host.CreateRepository(ctx, name, description)
		if err == nil {
			c.logger.Info("repository created", "task", rec.TaskID, "repo", info.Name, "attempt", attempt)
			return info, nil
		}
		if errors.Is(err, githost.ErrNameTaken) {
			c.logger.Warn("repository name collision", "task", rec.TaskID, "name", name, "attempt", attempt)
			continue
		}
		return githost.RepoInfo{}, types.NewTaskError(types.CodeBadGateway, "create repository", err)
	}
	return githost.RepoInfo{}, types.NewTaskError(types.CodeInternal,
		fmt.Sprintf("exhausted %d attempts to create a unique repository", c.maxCreates), nil)
}

// repoSuffix returns 8 random hex characters.
func repoSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// seedCheckout clones the fresh repository, writes the seed file set
// and submitted attachments, and pushes the initial commit.
func (c *Controller) seedCheckout(ctx context.Context, rec *models.TaskRecord, info githost.RepoInfo, localPath string) error {
	if err := c.git.Clone(info.HTMLURL, localPath); err != nil {
		return types.NewTaskError(types.CodeInternal, "clone repository", err)
	}
	if err := c.store.UpsertTask(ctx, rec.TaskID, map[string]any{"repo_local_path": localPath}); err != nil {
		return types.NewTaskError(types.CodeInternal, "record checkout path", err)
	}

	checks, err := rec.ParseChecks()
	if err != nil {
		return types.NewTaskError(types.CodeInternal, "parse checks", err)
	}
	if err := workspace.WriteSeedFiles(c.fs, localPath, rec.TaskID, rec.Brief, checks); err != nil {
		return types.NewTaskError(types.CodeInternal, "write seed files", err)
	}

	atts, err := rec.ParseAttachments()
	if err != nil {
		return types.NewTaskError(types.CodeInternal, "parse attachments", err)
	}
	if err := workspace.SaveAttachments(c.fs, localPath, atts); err != nil {
		return types.NewTaskError(types.CodeInternal, "save attachments", err)
	}

	sha, err := c.git.CommitAndPush(localPath, info.Owner.Login, info.Name, c.host.Token(), seedCommitMessage)
	if err != nil {
		return types.NewTaskError(types.CodeInternal, "push seed commit", err)
	}
	if sha != "" {
		if err := c.store.UpsertTask(ctx, rec.TaskID, map[string]any{"commit_hash": sha}); err != nil {
			return types.NewTaskError(types.CodeInternal, "record seed commit", err)
		}
	}
	return nil
}

// enablePages turns on static hosting and returns the site URL,
// falling back to the canonical github.io form when the API response
// omits it.
func (c *Controller) enablePages(ctx context.Context, owner, repo string) (string, error) {
	info, err := c.host.EnablePages(ctx, owner, repo)
	if err != nil {
		return "", types.NewTaskError(types.CodeBadGateway, "enable pages", err)
	}
	if info.HTMLURL != "" {
		return info.HTMLURL, nil
	}
	return fmt.Sprintf("https://%s.github.io/%s/", owner, repo), nil
}

// runLLMCycle attempts generation until one attempt fully succeeds or
// the remaining round budget cannot fit another attempt. The budget is
// re-checked at the top of every iteration, so a slow failed attempt
// cannot start another one past the deadline. Exhausting the budget is
// not an error: the round proceeds to notification with whatever was
// pushed.
func (c *Controller) runLLMCycle(ctx context.Context, taskID string, round int, build func(*models.TaskRecord) (string, error)) error {
	for {
		rec, err := c.store.GetTask(ctx, taskID)
		if err != nil {
			return types.NewTaskError(types.CodeInternal, "reload task record", err)
		}
		createdAt, err := rec.ParseCreatedAt()
		if err != nil {
			return types.NewTaskError(types.CodeInternal, "task record has no usable created_at", err)
		}

		timeLeft := c.timeout - c.clock.Now().UTC().Sub(createdAt)
		if c.llmEstimate+c.buffer > timeLeft {
			c.logger.Warn("skipping generation, round budget exhausted",
				"task", taskID, "round", round, "time_left", timeLeft)
			return nil
		}

		if err := c.generateOnce(ctx, &rec, round, build); err != nil {
			c.logger.Warn("generation attempt failed", "task", taskID, "round", round, "error", err)
			continue
		}
		return nil
	}
}

// generateOnce runs one full generation attempt: prompt, completion,
// raw-output persistence, materialization, and push. Any failure makes
// the whole attempt retryable; durable checkpoints written before the
// failure stand.
func (c *Controller) generateOnce(ctx context.Context, rec *models.TaskRecord, round int, build func(*models.TaskRecord) (string, error)) error {
	prompt, err := build(rec)
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}

	output, err := c.llm.Generate(ctx, prompts.SystemPrompt, prompt)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	rawPath, err := workspace.SaveRawOutput(c.fs, rec.RepoLocalPath, round, output)
	if err != nil {
		return err
	}
	if err := c.store.UpsertTask(ctx, rec.TaskID, map[string]any{"llm_output_path": rawPath}); err != nil {
		return fmt.Errorf("record output path: %w", err)
	}

	res, err := materialize.Files(c.fs, output, rec.RepoLocalPath)
	if err != nil {
		return err
	}

	created := res.CreatedFiles
	if created == nil {
		created = []string{}
	}
	createdJSON, err := json.Marshal(created)
	if err != nil {
		return fmt.Errorf("encode created files: %w", err)
	}
	fields := map[string]any{"created_files": string(createdJSON)}
	if res.CommitMessage != "" {
		fields["commit_message"] = res.CommitMessage
	}
	if err := c.store.UpsertTask(ctx, rec.TaskID, fields); err != nil {
		return fmt.Errorf("record materialization: %w", err)
	}

	message := res.CommitMessage
	if message == "" {
		message = defaultCommitMessage
	}
	sha, err := c.git.CommitAndPush(rec.RepoLocalPath, rec.Owner, rec.RepoName, c.host.Token(), message)
	if err != nil {
		return fmt.Errorf("push generated files: %w", err)
	}
	if sha != "" {
		if err := c.store.UpsertTask(ctx, rec.TaskID, map[string]any{"commit_hash": sha}); err != nil {
			return fmt.Errorf("record generated commit: %w", err)
		}
	}
	return nil
}

// finishRound waits out the Pages build when the budget allows, probes
// the build status once, and notifies the evaluation callback.
func (c *Controller) finishRound(ctx context.Context, taskID string) error {
	rec, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return types.NewTaskError(types.CodeInternal, "reload task record", err)
	}

	if createdAt, err := rec.ParseCreatedAt(); err == nil {
		timeLeft := c.timeout - c.clock.Now().UTC().Sub(createdAt)
		if c.pagesWait+c.buffer > timeLeft {
			c.logger.Warn("skipping pages build wait, round budget exhausted",
				"task", taskID, "time_left", timeLeft)
		} else if err := c.clock.Sleep(ctx, c.pagesWait); err != nil {
			return types.NewTaskError(types.CodeInternal, "interrupted while waiting for pages build", err)
		}
	}

	if rec.Owner != "" && rec.RepoName != "" {
		if status, err := c.host.PagesStatus(ctx, rec.Owner, rec.RepoName); err != nil {
			c.logger.Warn("pages status probe failed", "task", taskID, "error", err)
		} else {
			c.logger.Info("pages build status", "task", taskID, "status", status)
		}
	}

	if err := c.notifier.Notify(ctx, &rec); err != nil {
		return types.NewTaskError(types.CodeBadGateway, "notify evaluation service", err)
	}
	return nil
}
