package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdesk/taskctl/internal/session"
	"taskdesk/taskctl/internal/task"
)

const maxResponseSize = 4 << 20

var (
	ErrUnauthorized   = errors.New("not authorized")
	ErrNotFound       = errors.New("not found")
	ErrNoHeaderSource = errors.New("no credentials configured")
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// HeaderSource supplies the headers for authenticated calls.
type HeaderSource interface {
	AuthHeaders() http.Header
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client talks to the task backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
	userAgent  string
	headers    HeaderSource
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https, got %q", base)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = "taskctl"
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		log:        logger,
		userAgent:  agent,
	}, nil
}

// WithHeaderSource returns a copy of c that attaches src's headers to
// every authenticated call.
func (c *Client) WithHeaderSource(src HeaderSource) *Client {
	cp := *c
	cp.headers = src
	return &cp
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SignIn exchanges credentials for a token. Rejections wrap
// session.ErrInvalidCredentials.
func (c *Client) SignIn(ctx context.Context, creds session.Credentials) (session.AuthResponse, error) {
	var out session.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/signin", nil, creds, &out, false)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusBadRequest || se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			return session.AuthResponse{}, fmt.Errorf("%w: %v", session.ErrInvalidCredentials, err)
		}
		return session.AuthResponse{}, err
	}
	if out.AccessToken == "" {
		return session.AuthResponse{}, fmt.Errorf("sign-in response has no access token")
	}
	return out, nil
}

func (c *Client) SignUp(ctx context.Context, req session.SignupRequest) error {
	return c.do(ctx, http.MethodPost, "/api/auth/signup", nil, req, nil, false)
}

func (c *Client) ListTasks(ctx context.Context, q task.Query) ([]task.Task, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status.Wire())
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		params.Set("search", s)
	}

	var out []task.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", params, nil, &out, true); err != nil {
		return nil, err
	}
	if out == nil {
		out = []task.Task{}
	}
	return out, nil
}

func (c *Client) GetTask(ctx context.Context, id int64) (task.Task, error) {
	var out task.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, nil, &out, true); err != nil {
		return task.Task{}, err
	}
	return out, nil
}

func (c *Client) CreateTask(ctx context.Context, req task.Request) (task.Task, error) {
	var out task.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", nil, req, &out, true); err != nil {
		return task.Task{}, err
	}
	return out, nil
}

func (c *Client) UpdateTask(ctx context.Context, id int64, req task.Request) (task.Task, error) {
	var out task.Task
	if err := c.do(ctx, http.MethodPut, taskPath(id), nil, req, &out, true); err != nil {
		return task.Task{}, err
	}
	return out, nil
}

func (c *Client) CompleteTask(ctx context.Context, id int64) (task.Task, error) {
	var out task.Task
	if err := c.do(ctx, http.MethodPut, taskPath(id)+"/complete", nil, struct{}{}, &out, true); err != nil {
		return task.Task{}, err
	}
	return out, nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil, nil, true)
}

func taskPath(id int64) string {
	return "/api/tasks/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, in, out any, authenticated bool) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if c.headers == nil {
			return ErrNoHeaderSource
		}
		for k, vs := range c.headers.AuthHeaders() {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("api request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	c.log.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
