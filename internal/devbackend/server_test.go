package devbackend

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskdesk/taskctl/internal/session"
	"taskdesk/taskctl/internal/task"
)

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Record(_, action, _, outcome, _ string) error {
	a.actions = append(a.actions, action+":"+outcome)
	return nil
}

func newTestHandler(t *testing.T) (http.Handler, *Store, *recordingAudit) {
	t.Helper()
	store := NewStore()
	store.bcryptCost = bcrypt.MinCost
	tokens, err := NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error: %v", err)
	}
	audit := &recordingAudit{}
	h := loggingMiddleware(slog.New(slog.DiscardHandler), NewHandler(Deps{Store: store, Tokens: tokens, Audit: audit}))
	return h, store, audit
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signupAndSignin(t *testing.T, h http.Handler, username string) session.AuthResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", session.SignupRequest{
		Username: username, Email: username + "@example.com", Password: "secret123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodPost, "/api/auth/signin", "", session.Credentials{Username: username, Password: "secret123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("signin status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp session.AuthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode signin response: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id response header")
	}
}

func TestSigninIssuesToken(t *testing.T) {
	h, _, audit := newTestHandler(t)
	resp := signupAndSignin(t, h, "alice")
	if resp.AccessToken == "" || resp.TokenType != "Bearer" || resp.Username != "alice" || resp.ID == 0 {
		t.Fatalf("unexpected signin response %+v", resp)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/auth/signin", "", session.Credentials{Username: "alice", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
	if len(audit.actions) != 3 || audit.actions[2] != "backend.auth.signin:failed" {
		t.Fatalf("unexpected audit trail %v", audit.actions)
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	h, _, _ := newTestHandler(t)
	signupAndSignin(t, h, "alice")
	rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", "", session.SignupRequest{
		Username: "alice", Email: "new@example.com", Password: "secret123",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != "Error: Username is already taken!" {
		t.Fatalf("unexpected message %q", body["message"])
	}
}

func TestTaskRoutesRequireToken(t *testing.T) {
	h, _, _ := newTestHandler(t)
	for _, tc := range []struct{ method, path, token string }{
		{http.MethodGet, "/api/tasks", ""},
		{http.MethodGet, "/api/tasks", "garbage"},
		{http.MethodDelete, "/api/tasks/1", ""},
	} {
		rec := doJSON(t, h, tc.method, tc.path, tc.token, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s token=%q: expected 401, got %d", tc.method, tc.path, tc.token, rec.Code)
		}
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	h, _, _ := newTestHandler(t)
	alice := signupAndSignin(t, h, "alice")
	bob := signupAndSignin(t, h, "bob")

	rec := doJSON(t, h, http.MethodPost, "/api/tasks", alice.AccessToken, map[string]any{
		"titulo":         "Buy milk",
		"descricao":      "2 litres",
		"dataVencimento": "2026-03-09T00:00:00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	var created task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created task: %v", err)
	}
	if created.Status != task.StatusPending || created.DueDate.Date() != "2026-03-09" {
		t.Fatalf("unexpected created task %+v", created)
	}
	var raw map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &raw)
	if raw["status"] != "PENDENTE" {
		t.Fatalf("expected backend status spelling on the wire, got %v", raw["status"])
	}

	path := "/api/tasks/" + jsonNumber(created.ID)
	if rec := doJSON(t, h, http.MethodGet, path, bob.AccessToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's task, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/tasks?status=PENDENTE", alice.AccessToken, nil)
	var listed []task.Task
	_ = json.Unmarshal(rec.Body.Bytes(), &listed)
	if rec.Code != http.StatusOK || len(listed) != 1 {
		t.Fatalf("expected one pending task, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPut, path+"/complete", alice.AccessToken, struct{}{})
	var completed task.Task
	_ = json.Unmarshal(rec.Body.Bytes(), &completed)
	if rec.Code != http.StatusOK || completed.Status != task.StatusDone {
		t.Fatalf("expected completed task, got %d %+v", rec.Code, completed)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/tasks?status=bogus", alice.AccessToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, path, alice.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected delete 200, got %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, path, alice.AccessToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateTaskRejectsInvalidBody(t *testing.T) {
	h, _, _ := newTestHandler(t)
	alice := signupAndSignin(t, h, "alice")

	rec := doJSON(t, h, http.MethodPost, "/api/tasks", alice.AccessToken, map[string]any{"titulo": "No due date"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without due date, got %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPut, "/api/tasks/abc", alice.AccessToken, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		ok     bool
	}{
		{"Bearer abc", true},
		{"bearer abc", true},
		{"Bearer", false},
		{"Basic abc", false},
		{"Bearer    ", false},
		{"", false},
	}
	for _, tc := range cases {
		_, err := extractBearerToken(tc.header)
		if (err == nil) != tc.ok {
			t.Fatalf("extractBearerToken(%q) err=%v, want ok=%v", tc.header, err, tc.ok)
		}
	}
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
