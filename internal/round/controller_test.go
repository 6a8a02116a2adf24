package round

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/taskforge/taskforge/internal/githost"
	"github.com/taskforge/taskforge/models"
	"github.com/taskforge/taskforge/store"
	"github.com/taskforge/taskforge/types"
)

const validOutput = `<files>
<file path="index.html"><![CDATA[<h1>Hi</h1>]]></file>
<file path="commit_message">Add site</file>
</files>`

type fakeStore struct {
	recs     map[string]models.TaskRecord
	upserts  []map[string]any
	archived []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: map[string]models.TaskRecord{}}
}

func (s *fakeStore) GetTask(_ context.Context, taskID string) (models.TaskRecord, error) {
	rec, ok := s.recs[taskID]
	if !ok {
		return models.TaskRecord{}, store.ErrTaskNotFound
	}
	return rec, nil
}

func (s *fakeStore) UpsertTask(_ context.Context, taskID string, fields map[string]any) error {
	rec := s.recs[taskID]
	rec.TaskID = taskID
	for k, v := range fields {
		val, _ := v.(string)
		switch k {
		case "repo_name":
			rec.RepoName = val
		case "repo_clone_url":
			rec.RepoCloneURL = val
		case "base_path":
			rec.BasePath = val
		case "owner":
			rec.Owner = val
		case "repo_local_path":
			rec.RepoLocalPath = val
		case "pages_url":
			rec.PagesURL = val
		case "llm_output_path":
			rec.LLMOutputPath = val
		case "created_files":
			rec.CreatedFiles = val
		case "commit_message":
			rec.CommitMessage = val
		case "commit_hash":
			rec.CommitHash = val
		}
	}
	s.recs[taskID] = rec
	s.upserts = append(s.upserts, fields)
	return nil
}

func (s *fakeStore) ArchiveRoundOne(_ context.Context, taskID string) (bool, error) {
	s.archived = append(s.archived, taskID)
	return true, nil
}

func (s *fakeStore) Close() error { return nil }

type fakeHost struct {
	createErrs []error
	created    []string
}

func (h *fakeHost) CreateRepository(_ context.Context, name, _ string) (githost.RepoInfo, error) {
	idx := len(h.created)
	h.created = append(h.created, name)
	if idx < len(h.createErrs) && h.createErrs[idx] != nil {
		return githost.RepoInfo{}, h.createErrs[idx]
	}
	info := githost.RepoInfo{Name: name, HTMLURL: "https://github.com/me/" + name}
	info.Owner.Login = "me"
	return info, nil
}

func (h *fakeHost) EnablePages(_ context.Context, owner, repo string) (githost.PagesInfo, error) {
	return githost.PagesInfo{HTMLURL: "https://" + owner + ".github.io/" + repo + "/"}, nil
}

func (h *fakeHost) PagesStatus(_ context.Context, _, _ string) (string, error) {
	return "built", nil
}

func (h *fakeHost) Token() string { return "tok" }

type push struct {
	path    string
	message string
}

type fakeGit struct {
	clones []string
	pushes []push
}

func (g *fakeGit) Clone(_, targetDir string) error {
	g.clones = append(g.clones, targetDir)
	return nil
}

func (g *fakeGit) CommitAndPush(repoPath, _, _, _, message string) (string, error) {
	g.pushes = append(g.pushes, push{path: repoPath, message: message})
	return "abc1234", nil
}

type fakeLLM struct {
	outputs []string
	prompts []string
}

func (l *fakeLLM) Generate(_ context.Context, _, userPrompt string) (string, error) {
	idx := len(l.prompts)
	l.prompts = append(l.prompts, userPrompt)
	if idx < len(l.outputs) {
		return l.outputs[idx], nil
	}
	return validOutput, nil
}

type fakeNotifier struct {
	recs []models.TaskRecord
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, rec *models.TaskRecord) error {
	n.recs = append(n.recs, *rec)
	return n.err
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

type harness struct {
	store    *fakeStore
	host     *fakeHost
	git      *fakeGit
	llm      *fakeLLM
	notifier *fakeNotifier
	clock    *fakeClock
	fs       afero.Fs
	ctrl     *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(),
		host:     &fakeHost{},
		git:      &fakeGit{},
		llm:      &fakeLLM{},
		notifier: &fakeNotifier{},
		clock:    &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		fs:       afero.NewMemMapFs(),
	}
	cfg := &types.AppConfig{
		Repos: types.ReposConfig{BasePath: "/work"},
		LLM:   types.LLMConfig{RequestTimeoutSeconds: 60},
		Round: types.RoundConfig{
			TimeoutSeconds:        600,
			BufferSeconds:         30,
			MaxRepoCreateAttempts: 3,
			PagesBuildWaitSeconds: 40,
		},
	}
	h.ctrl = NewController(h.store, h.host, h.git, h.llm, h.notifier, h.fs, h.clock, cfg, nil)
	return h
}

func (h *harness) seedTask(round int) {
	h.store.recs["task-1"] = models.TaskRecord{
		TaskID:        "task-1",
		Email:         "student@example.com",
		Round:         round,
		Nonce:         "n-1",
		Brief:         "build a landing page",
		Checks:        `["has a title"]`,
		EvaluationURL: "https://eval.example/cb",
		CreatedAt:     models.FormatDBTime(h.clock.now),
	}
}

func taskErrCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	var te *types.TaskError
	if !errors.As(err, &te) {
		t.Fatalf("expected TaskError, got %T: %v", err, err)
	}
	return te.Code
}

func TestProcess_UnknownTask(t *testing.T) {
	h := newHarness(t)
	err := h.ctrl.Process(context.Background(), "ghost")
	if code := taskErrCode(t, err); code != types.CodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", code)
	}
}

func TestProcess_UnsupportedRoundLeavesRecordUntouched(t *testing.T) {
	h := newHarness(t)
	h.seedTask(3)

	err := h.ctrl.Process(context.Background(), "task-1")
	if code := taskErrCode(t, err); code != types.CodeUnsupportedRound {
		t.Errorf("expected UNSUPPORTED_ROUND, got %s", code)
	}
	if len(h.store.upserts) != 0 {
		t.Errorf("record must not be modified, saw %d upserts", len(h.store.upserts))
	}
	if len(h.notifier.recs) != 0 {
		t.Error("no notification expected")
	}
}

func TestRoundOne_HappyPath(t *testing.T) {
	h := newHarness(t)
	h.seedTask(1)

	if err := h.ctrl.Process(context.Background(), "task-1"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(h.host.created) != 1 {
		t.Fatalf("expected 1 create call, got %d", len(h.host.created))
	}
	name := h.host.created[0]
	if !strings.HasPrefix(name, "task-1-") || len(name) != len("task-1-")+8 {
		t.Errorf("unexpected repository name %q", name)
	}

	rec := h.store.recs["task-1"]
	if rec.RepoName != name || rec.Owner != "me" {
		t.Errorf("repository identity not recorded: %+v", rec)
	}
	if rec.RepoCloneURL != "https://github.com/me/"+name {
		t.Errorf("unexpected clone url %q", rec.RepoCloneURL)
	}
	if rec.PagesURL != "https://me.github.io/"+name+"/" {
		t.Errorf("unexpected pages url %q", rec.PagesURL)
	}
	if rec.CommitHash != "abc1234" {
		t.Errorf("unexpected commit hash %q", rec.CommitHash)
	}
	if rec.CommitMessage != "Add site" {
		t.Errorf("unexpected commit message %q", rec.CommitMessage)
	}
	if rec.CreatedFiles != `["index.html"]` {
		t.Errorf("unexpected created files %q", rec.CreatedFiles)
	}

	wantPushes := []string{
		"Add initial instructions and attachments",
		"Add site",
	}
	if len(h.git.pushes) != len(wantPushes) {
		t.Fatalf("expected %d pushes, got %d", len(wantPushes), len(h.git.pushes))
	}
	for i, want := range wantPushes {
		if h.git.pushes[i].message != want {
			t.Errorf("push %d message = %q, want %q", i, h.git.pushes[i].message, want)
		}
	}

	content, err := afero.ReadFile(h.fs, "/work/"+name+"/index.html")
	if err != nil {
		t.Fatalf("generated file missing: %v", err)
	}
	if string(content) != "<h1>Hi</h1>" {
		t.Errorf("unexpected generated content %q", content)
	}

	if len(h.store.archived) != 1 || h.store.archived[0] != "task-1" {
		t.Errorf("round-1 archive not taken: %v", h.store.archived)
	}
	if len(h.clock.sleeps) != 1 || h.clock.sleeps[0] != 40*time.Second {
		t.Errorf("expected single 40s pages wait, got %v", h.clock.sleeps)
	}
	if len(h.notifier.recs) != 1 || h.notifier.recs[0].Round != 1 {
		t.Fatalf("expected one round-1 notification, got %+v", h.notifier.recs)
	}
	if h.notifier.recs[0].PagesURL == "" {
		t.Error("notification record missing pages url")
	}
}

func TestRoundOne_CollisionRetriesWithFreshNames(t *testing.T) {
	h := newHarness(t)
	h.seedTask(1)
	h.host.createErrs = []error{githost.ErrNameTaken, githost.ErrNameTaken, nil}

	if err := h.ctrl.Process(context.Background(), "task-1"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(h.host.created) != 3 {
		t.Fatalf("expected 3 create attempts, got %d", len(h.host.created))
	}
	seen := map[string]bool{}
	for _, name := range h.host.created {
		if seen[name] {
			t.Errorf("repeated candidate name %q", name)
		}
		seen[name] = true
	}
	if h.store.recs["task-1"].RepoName != h.host.created[2] {
		t.Error("record must carry the name that succeeded")
	}
}

func TestRoundOne_CollisionCeilingIsInternalError(t *testing.T) {
	h := newHarness(t)
	h.seedTask(1)
	h.host.createErrs = []error{githost.ErrNameTaken, githost.ErrNameTaken, githost.ErrNameTaken}

	err := h.ctrl.Process(context.Background(), "task-1")
	if code := taskErrCode(t, err); code != types.CodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", code)
	}
	if len(h.host.created) != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", len(h.host.created))
	}
	if len(h.llm.prompts) != 0 || len(h.notifier.recs) != 0 {
		t.Error("no generation or notification after creation failure")
	}
}

func TestRoundOne_CreateFailureIsBadGateway(t *testing.T) {
	h := newHarness(t)
	h.seedTask(1)
	h.host.createErrs = []error{&githost.APIError{Operation: "create repository", StatusCode: 403, Body: "forbidden"}}

	err := h.ctrl.Process(context.Background(), "task-1")
	if code := taskErrCode(t, err); code != types.CodeBadGateway {
		t.Errorf("expected BAD_GATEWAY, got %s", code)
	}
	if len(h.host.created) != 1 {
		t.Errorf("non-collision failure must not be retried, got %d attempts", len(h.host.created))
	}
}

func TestRoundOne_ExhaustedBudgetSkipsGeneration(t *testing.T) {
	h := newHarness(t)
	h.seedTask(1)
	rec := h.store.recs["task-1"]
	rec.CreatedAt = models.FormatDBTime(h.clock.now.Add(-10 * time.Minute))
	h.store.recs["task-1"] = rec

	if err := h.ctrl.Process(context.Background(), "task-1"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(h.llm.prompts) != 0 {
		t.Errorf("expected no generation past the deadline, got %d calls", len(h.llm.prompts))
	}
	if len(h.clock.sleeps) != 0 {
		t.Errorf("pages wait must also be skipped, got %v", h.clock.sleeps)
	}
	if len(h.git.pushes) != 1 {
		t.Errorf("only the seed push expected, got %d", len(h.git.pushes))
	}
	if len(h.notifier.recs) != 1 {
		t.Fatal("notification must still be sent")
	}
	if h.notifier.recs[0].CommitHash != "abc1234" {
		t.Errorf("notification should carry the seed commit, got %q", h.notifier.recs[0].CommitHash)
	}
}

func TestRoundOne_MalformedOutputRetried(t *testing.T) {
	h := newHarness(t)
	h.seedTask(1)
	h.llm.outputs = []string{"this is not xml", validOutput}

	if err := h.ctrl.Process(context.Background(), "task-1"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(h.llm.prompts) != 2 {
		t.Fatalf("expected 2 generation attempts, got %d", len(h.llm.prompts))
	}
	if h.store.recs["task-1"].CommitMessage != "Add site" {
		t.Errorf("second attempt's result not recorded: %+v", h.store.recs["task-1"])
	}
}

func TestRoundTwo_MissingRepoStateFails(t *testing.T) {
	h := newHarness(t)
	h.seedTask(2)

	err := h.ctrl.Process(context.Background(), "task-1")
	if code := taskErrCode(t, err); code != types.CodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", code)
	}
	if len(h.notifier.recs) != 0 {
		t.Error("no notification expected")
	}
}

func TestRoundTwo_HappyPath(t *testing.T) {
	h := newHarness(t)
	h.seedTask(2)
	rec := h.store.recs["task-1"]
	rec.RepoName = "task-1-ab12cd34"
	rec.RepoCloneURL = "https://github.com/me/task-1-ab12cd34"
	rec.Owner = "me"
	rec.RepoLocalPath = "/work/task-1-ab12cd34"
	rec.Round1LLMOutputPath = "/work/task-1-ab12cd34/.llm_output_round_1.txt"
	rec.Round1Attachments = `[{"name":"old.txt","url":"data:text/plain,old"}]`
	rec.Attachments = `[{"name":"new.txt","url":"data:text/plain,new"}]`
	h.store.recs["task-1"] = rec

	round1Output := `<files><file path="index.html">previous round content</file></files>`
	if err := afero.WriteFile(h.fs, rec.Round1LLMOutputPath, []byte(round1Output), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := h.ctrl.Process(context.Background(), "task-1"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(h.host.created) != 0 {
		t.Errorf("round 2 must not create repositories, got %v", h.host.created)
	}

	wantPushes := []string{
		"Add additional attachments for round 2",
		"Add site",
	}
	if len(h.git.pushes) != len(wantPushes) {
		t.Fatalf("expected %d pushes, got %d", len(wantPushes), len(h.git.pushes))
	}
	for i, want := range wantPushes {
		if h.git.pushes[i].message != want {
			t.Errorf("push %d message = %q, want %q", i, h.git.pushes[i].message, want)
		}
	}

	saved, err := afero.ReadFile(h.fs, "/work/task-1-ab12cd34/new.txt")
	if err != nil || string(saved) != "new" {
		t.Errorf("round-2 attachment not saved: %q, %v", saved, err)
	}

	if len(h.llm.prompts) != 1 {
		t.Fatalf("expected 1 generation, got %d", len(h.llm.prompts))
	}
	if !strings.Contains(h.llm.prompts[0], "previous round content") {
		t.Error("round-2 prompt must include the round-1 output")
	}
	if !strings.Contains(h.llm.prompts[0], "path: old.txt") || !strings.Contains(h.llm.prompts[0], "path: new.txt") {
		t.Error("round-2 prompt must union both rounds' attachments")
	}

	if len(h.store.archived) != 0 {
		t.Errorf("round 2 must not archive, got %v", h.store.archived)
	}
	if len(h.notifier.recs) != 1 || h.notifier.recs[0].Round != 2 {
		t.Fatalf("expected one round-2 notification, got %+v", h.notifier.recs)
	}
}
