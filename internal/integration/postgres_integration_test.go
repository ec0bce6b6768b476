package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"taskdesk/taskctl/internal/api"
	"taskdesk/taskctl/internal/board"
	"taskdesk/taskctl/internal/devbackend"
	"taskdesk/taskctl/internal/session"
	"taskdesk/taskctl/internal/task"
)

func openTestPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration tests")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := db.Ping(); err != nil {
		t.Fatalf("db.Ping() error: %v", err)
	}
	return db
}

// wiredClient mirrors the production wiring against an in-process backend.
type wiredClient struct {
	session *session.Store
	api     *api.Client
	board   *board.Board
}

func newWiredClient(t *testing.T, storage session.Storage) *wiredClient {
	t.Helper()

	tokens, err := devbackend.NewIssuer("integration-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error: %v", err)
	}
	srv := httptest.NewServer(devbackend.NewHandler(devbackend.Deps{
		Store:  devbackend.NewStore(),
		Tokens: tokens,
	}))
	t.Cleanup(srv.Close)

	base, err := api.New(api.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("api.New() error: %v", err)
	}
	store, err := session.NewStore(base, storage, session.StoreConfig{})
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	t.Cleanup(store.Close)

	client := base.WithHeaderSource(store)
	b, err := board.New(client, board.Config{})
	if err != nil {
		t.Fatalf("board.New() error: %v", err)
	}
	return &wiredClient{session: store, api: client, board: b}
}

func TestClientAgainstDevBackend(t *testing.T) {
	ctx := context.Background()
	c := newWiredClient(t, session.NewMemoryStorage())

	if _, err := c.board.Load(ctx); !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("expected unauthorized load before login, got %v", err)
	}

	if err := c.session.Signup(ctx, session.SignupRequest{Username: "alice", Email: "alice@example.com", Password: "secret123"}); err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	var transitions []string
	unsubscribe := c.session.Subscribe(func(s *session.Session) {
		if s == nil {
			transitions = append(transitions, "logout")
			return
		}
		transitions = append(transitions, "login:"+s.Username)
	})
	defer unsubscribe()

	sess, err := c.session.Login(ctx, session.Credentials{Username: "alice", Password: "secret123"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if !c.session.IsAuthenticated() || sess.UserID == 0 {
		t.Fatalf("expected authenticated session, got %+v", sess)
	}

	form := task.NewForm()
	form.Title = "Buy milk"
	form.DueDate = "2026-03-09"
	created, err := c.board.Submit(ctx, form, 0)
	if err != nil {
		t.Fatalf("Submit(create) error: %v", err)
	}
	if created.Status != task.StatusPending || created.DueDate.Date() != "2026-03-09" {
		t.Fatalf("unexpected created task %+v", created)
	}
	if got := c.board.Visible(); len(got) != 1 || got[0].ID != created.ID {
		t.Fatalf("expected board to reload after create, got %+v", got)
	}

	edit := task.FormFromTask(created)
	edit.Status = task.StatusInProgress
	if _, err := c.board.Submit(ctx, edit, created.ID); err != nil {
		t.Fatalf("Submit(update) error: %v", err)
	}
	c.board.SetFilters(task.StatusInProgress, "")
	if got, err := c.board.Load(ctx); err != nil || len(got) != 1 {
		t.Fatalf("expected one in-progress task, got %+v, %v", got, err)
	}

	current, err := c.api.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if changed, err := c.board.Complete(ctx, current); err != nil || !changed {
		t.Fatalf("Complete() = %v, %v", changed, err)
	}
	done, err := c.api.GetTask(ctx, created.ID)
	if err != nil || done.Status != task.StatusDone {
		t.Fatalf("expected DONE after complete, got %+v, %v", done, err)
	}

	if err := c.board.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := c.api.GetTask(ctx, created.ID); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := c.session.Logout(); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if c.session.IsAuthenticated() {
		t.Fatalf("expected logged out")
	}
	if len(transitions) != 2 || transitions[0] != "login:alice" || transitions[1] != "logout" {
		t.Fatalf("unexpected transitions %v", transitions)
	}
}

func TestSearchMatchesDescriptionThroughBackend(t *testing.T) {
	ctx := context.Background()
	c := newWiredClient(t, session.NewMemoryStorage())

	if err := c.session.Signup(ctx, session.SignupRequest{Username: "bob", Email: "bob@example.com", Password: "secret123"}); err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	if _, err := c.session.Login(ctx, session.Credentials{Username: "bob", Password: "secret123"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	for _, f := range []struct{ title, description string }{
		{"Milestone review", ""},
		{"Groceries", "check milestones"},
		{"Walk dog", ""},
	} {
		form := task.NewForm()
		form.Title = f.title
		form.Description = f.description
		form.DueDate = "2026-03-09"
		if _, err := c.board.Submit(ctx, form, 0); err != nil {
			t.Fatalf("Submit(%q) error: %v", f.title, err)
		}
	}

	c.board.SetFilters("", "MILE")
	got, err := c.board.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	titles := map[string]bool{}
	for _, tk := range got {
		titles[tk.Title] = true
	}
	if len(got) != 2 || !titles["Milestone review"] || !titles["Groceries"] {
		t.Fatalf("expected title and description matches, got %+v", got)
	}
}

func TestPostgresSessionStorageRoundTrip(t *testing.T) {
	db := openTestPostgres(t)

	profile := fmt.Sprintf("itest_%d", time.Now().UnixNano())
	storage, err := session.NewPostgresStorage(db, profile)
	if err != nil {
		t.Fatalf("NewPostgresStorage() error: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM client_session_state WHERE profile = $1`, profile)
	})

	c := newWiredClient(t, storage)
	ctx := context.Background()
	if err := c.session.Signup(ctx, session.SignupRequest{Username: "pgalice", Email: "pgalice@example.com", Password: "secret123"}); err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	if _, err := c.session.Login(ctx, session.Credentials{Username: "pgalice", Password: "secret123"}); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	reopened, err := session.NewPostgresStorage(db, profile)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	restored, err := session.NewStore(c.api, reopened, session.StoreConfig{})
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	if err := restored.Rehydrate(); err != nil {
		t.Fatalf("Rehydrate() error: %v", err)
	}
	got, ok := restored.Current()
	if !ok || got.Username != "pgalice" {
		t.Fatalf("expected session restored from postgres, got %+v ok=%v", got, ok)
	}

	if err := restored.Logout(); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if _, err := reopened.Get(session.KeyAuthToken); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected token row removed, got %v", err)
	}
}
