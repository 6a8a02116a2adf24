package githost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taskforge/taskforge/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(types.GitHubConfig{Token: "tok", APIBaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c, srv
}

func TestNewClient_MissingToken(t *testing.T) {
	_, err := NewClient(types.GitHubConfig{APIBaseURL: "https://api.github.com"})
	if err == nil {
		t.Fatal("expected configuration error")
	}
	te, ok := err.(*types.TaskError)
	if !ok || te.Code != types.CodeConfig {
		t.Errorf("expected CONFIG_ERROR, got %v", err)
	}
}

func TestCreateRepository_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/repos" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing bearer auth: %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"name":"task-1-ab12cd34","html_url":"https://github.com/me/task-1-ab12cd34","owner":{"login":"me"}}`))
	})

	info, err := c.CreateRepository(context.Background(), "task-1-ab12cd34", "Auto-generated for task task-1")
	if err != nil {
		t.Fatalf("CreateRepository failed: %v", err)
	}
	if info.Owner.Login != "me" {
		t.Errorf("owner mismatch: %q", info.Owner.Login)
	}
	if info.HTMLURL != "https://github.com/me/task-1-ab12cd34" {
		t.Errorf("html_url mismatch: %q", info.HTMLURL)
	}
}

func TestCreateRepository_NameCollision(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Repository creation failed.","errors":[{"message":"name already exists on this account"}]}`))
	})

	_, err := c.CreateRepository(context.Background(), "taken", "d")
	if !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
}

func TestCreateRepository_OtherFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"rate limited"}`))
	})

	_, err := c.CreateRepository(context.Background(), "x", "d")
	if err == nil {
		t.Fatal("expected failure")
	}
	if errors.Is(err, ErrNameTaken) {
		t.Error("403 must not map to a name collision")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected APIError 403, got %v", err)
	}
}

func TestEnablePages(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/me/task-1/pages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"html_url":"https://me.github.io/task-1/","status":"building"}`))
	})

	info, err := c.EnablePages(context.Background(), "me", "task-1")
	if err != nil {
		t.Fatalf("EnablePages failed: %v", err)
	}
	if info.HTMLURL != "https://me.github.io/task-1/" {
		t.Errorf("pages url mismatch: %q", info.HTMLURL)
	}
}

func TestPagesStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		_, _ = w.Write([]byte(`{"status":"built"}`))
	})

	status, err := c.PagesStatus(context.Background(), "me", "task-1")
	if err != nil {
		t.Fatalf("PagesStatus failed: %v", err)
	}
	if status != "built" {
		t.Errorf("status mismatch: %q", status)
	}
}
