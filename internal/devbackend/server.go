package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdesk/taskctl/internal/config"
	"taskdesk/taskctl/internal/session"
	"taskdesk/taskctl/internal/task"
)

const maxRequestBody = 1 << 20

type AuditLogger interface {
	Record(user, action, target, outcome, detail string) error
}

type Deps struct {
	Store  *Store
	Tokens *Issuer
	Audit  AuditLogger
	Logger *slog.Logger
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.DevServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	handler := NewHandler(deps)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      loggingMiddleware(logger, handler),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	registerAuthHandlers(mux, deps)
	registerTaskHandlers(mux, deps)

	return mux
}

func registerAuthHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("POST /api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var req session.Credentials
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Username) == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}

		u, err := deps.Store.Authenticate(req.Username, req.Password)
		if err != nil {
			auditReq(deps.Audit, r, req.Username, "auth.signin", "", "failed", "invalid credentials")
			writeError(w, http.StatusUnauthorized, "Bad credentials")
			return
		}
		raw, _, err := deps.Tokens.Issue(u)
		if err != nil {
			auditReq(deps.Audit, r, u.Username, "auth.signin", "", "failed", err.Error())
			writeError(w, http.StatusInternalServerError, "signin failed")
			return
		}
		auditReq(deps.Audit, r, u.Username, "auth.signin", "", "success", "")

		writeJSON(w, http.StatusOK, session.AuthResponse{
			AccessToken: raw,
			TokenType:   "Bearer",
			ID:          u.ID,
			Username:    u.Username,
			Email:       u.Email,
		})
	})

	mux.HandleFunc("POST /api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		var req session.SignupRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		u, err := deps.Store.CreateUser(req.Username, req.Email, req.Password)
		if err != nil {
			auditReq(deps.Audit, r, req.Username, "auth.signup", "", "failed", err.Error())
			switch {
			case errors.Is(err, ErrUsernameTaken):
				writeMessage(w, http.StatusBadRequest, "Error: Username is already taken!")
			case errors.Is(err, ErrEmailTaken):
				writeMessage(w, http.StatusBadRequest, "Error: Email is already in use!")
			case errors.Is(err, ErrInvalidInput):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "signup failed")
			}
			return
		}
		auditReq(deps.Audit, r, u.Username, "auth.signup", strconv.FormatInt(u.ID, 10), "success", "")
		writeMessage(w, http.StatusOK, "User registered successfully!")
	})
}

func registerTaskHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		status, err := task.ParseStatus(r.URL.Query().Get("status"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		writeJSON(w, http.StatusOK, deps.Store.ListTasks(claims.UserID, status, r.URL.Query().Get("search")))
	})

	mux.HandleFunc("GET /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		t, err := deps.Store.GetTask(claims.UserID, id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})

	mux.HandleFunc("POST /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		var req task.Request
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		t, err := deps.Store.CreateTask(claims.UserID, req)
		if err != nil {
			auditReq(deps.Audit, r, claims.Subject, "task.create", "", "failed", err.Error())
			writeStoreError(w, err)
			return
		}
		auditReq(deps.Audit, r, claims.Subject, "task.create", strconv.FormatInt(t.ID, 10), "success", "")
		writeJSON(w, http.StatusOK, t)
	})

	mux.HandleFunc("PUT /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req task.Request
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		t, err := deps.Store.UpdateTask(claims.UserID, id, req)
		if err != nil {
			auditReq(deps.Audit, r, claims.Subject, "task.update", r.PathValue("id"), "failed", err.Error())
			writeStoreError(w, err)
			return
		}
		auditReq(deps.Audit, r, claims.Subject, "task.update", r.PathValue("id"), "success", "")
		writeJSON(w, http.StatusOK, t)
	})

	mux.HandleFunc("PUT /api/tasks/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		t, err := deps.Store.CompleteTask(claims.UserID, id)
		if err != nil {
			auditReq(deps.Audit, r, claims.Subject, "task.complete", r.PathValue("id"), "failed", err.Error())
			writeStoreError(w, err)
			return
		}
		auditReq(deps.Audit, r, claims.Subject, "task.complete", r.PathValue("id"), "success", "")
		writeJSON(w, http.StatusOK, t)
	})

	mux.HandleFunc("DELETE /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := requireUser(w, r, deps)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := deps.Store.DeleteTask(claims.UserID, id); err != nil {
			auditReq(deps.Audit, r, claims.Subject, "task.delete", r.PathValue("id"), "failed", err.Error())
			writeStoreError(w, err)
			return
		}
		auditReq(deps.Audit, r, claims.Subject, "task.delete", r.PathValue("id"), "success", "")
		writeMessage(w, http.StatusOK, "Task deleted successfully!")
	})
}

func requireUser(w http.ResponseWriter, r *http.Request, deps Deps) (Claims, bool) {
	raw, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return Claims{}, false
	}
	claims, err := deps.Tokens.Verify(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return Claims{}, false
	}
	if _, ok := deps.Store.UserByID(claims.UserID); !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return Claims{}, false
	}
	return claims, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func extractBearerToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", reqID,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func auditReq(a AuditLogger, r *http.Request, user, action, target, outcome, detail string) {
	if a == nil {
		return
	}
	parts := []string{
		"rid=" + requestIDFromContext(r.Context()),
		"ip=" + clientIP(r),
	}
	if strings.TrimSpace(detail) != "" {
		parts = append(parts, "detail="+strings.TrimSpace(detail))
	}
	_ = a.Record(user, "backend."+action, target, outcome, strings.Join(parts, " | "))
}
