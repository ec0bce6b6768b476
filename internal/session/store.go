package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"taskdesk/taskctl/internal/token"
)

// Authenticator is the backend side of login and signup.
type Authenticator interface {
	SignIn(ctx context.Context, creds Credentials) (AuthResponse, error)
	SignUp(ctx context.Context, req SignupRequest) error
}

// Recorder receives session transitions for the audit journal.
type Recorder interface {
	Record(user, action, target, outcome, detail string) error
}

// Listener is called with the new session on every transition, or nil
// when the session ends.
type Listener func(*Session)

type StoreConfig struct {
	Logger   *slog.Logger
	Recorder Recorder
	NowFunc  func() time.Time
}

// Store is the single owner of "who is logged in". It persists the token
// and profile through Storage and publishes every transition to its
// listeners.
type Store struct {
	auth      Authenticator
	storage   Storage
	validator *token.Validator
	log       *slog.Logger
	recorder  Recorder
	nowFunc   func() time.Time

	mu        sync.Mutex
	current   *Session
	listeners []listenerEntry
	nextID    int
	closed    bool
}

type listenerEntry struct {
	id int
	fn Listener
}

func NewStore(auth Authenticator, storage Storage, cfg StoreConfig) (*Store, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.NowFunc
	if now == nil {
		now = time.Now
	}

	return &Store{
		auth:      auth,
		storage:   storage,
		validator: token.NewValidatorWithClock(now),
		log:       logger,
		recorder:  cfg.Recorder,
		nowFunc:   now,
	}, nil
}

// Rehydrate restores the persisted session at startup. A stored token that
// cannot be read or no longer validates, or a valid token without a
// readable profile, is cleared so the persisted state matches "logged out".
// Only a failure to clear is reported, and it is logged rather than
// returned.
func (s *Store) Rehydrate() error {
	raw, err := s.storage.Get(KeyAuthToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.publish(nil)
			return nil
		}
		s.discard(fmt.Errorf("read persisted token: %w", err))
		return nil
	}

	expiresAt, err := s.validator.Validate(raw)
	if err != nil {
		s.discard(err)
		return nil
	}

	user, err := s.readUser()
	if err != nil {
		s.discard(err)
		return nil
	}

	sess := &Session{
		Token:     raw,
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		ExpiresAt: expiresAt,
	}
	s.publish(sess)
	s.log.Debug("session restored", "username", sess.Username, "expires_at", sess.ExpiresAt)
	return nil
}

// Login exchanges credentials for a token and persists the result. On any
// failure the persisted and published state is left unchanged.
func (s *Store) Login(ctx context.Context, creds Credentials) (Session, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		return Session{}, fmt.Errorf("%w: username and password are required", ErrInvalidCredentials)
	}

	resp, err := s.auth.SignIn(ctx, creds)
	if err != nil {
		s.record(creds.Username, "session.login", "failed", err.Error())
		return Session{}, err
	}

	expiresAt, err := s.validator.Validate(resp.AccessToken)
	if err != nil {
		s.record(creds.Username, "session.login", "failed", "token rejected")
		return Session{}, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}

	sess := Session{
		Token:     resp.AccessToken,
		UserID:    resp.ID,
		Username:  resp.Username,
		Email:     resp.Email,
		CreatedAt: s.nowFunc().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := s.persist(sess); err != nil {
		s.record(creds.Username, "session.login", "failed", err.Error())
		return Session{}, err
	}

	published := sess
	s.publish(&published)
	s.log.Info("logged in", "username", sess.Username, "expires_at", sess.ExpiresAt)
	s.record(sess.Username, "session.login", "success", "")
	return sess, nil
}

// Signup registers a new account. It does not log in.
func (s *Store) Signup(ctx context.Context, req SignupRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return fmt.Errorf("username, email and password are required")
	}
	if err := s.auth.SignUp(ctx, req); err != nil {
		s.record(req.Username, "session.signup", "failed", err.Error())
		return err
	}
	s.record(req.Username, "session.signup", "success", "")
	return nil
}

// Logout always clears the in-memory session and notifies listeners. A
// storage failure is returned but does not keep the user logged in.
func (s *Store) Logout() error {
	username := ""
	if cur, ok := s.Current(); ok {
		username = cur.Username
	}

	err := s.clearPersisted()
	s.publish(nil)
	if err != nil {
		s.log.Warn("logout could not clear persisted session", "error", err)
		s.record(username, "session.logout", "failed", err.Error())
		return err
	}
	s.record(username, "session.logout", "success", "")
	return nil
}

// Current returns the published session. A session whose token has
// expired since it was published is not returned.
func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	if cur == nil {
		return Session{}, false
	}
	if cur.ExpiresAt.UnixMilli() < s.nowFunc().UnixMilli() {
		return Session{}, false
	}
	return *cur, true
}

// IsAuthenticated re-validates the persisted token on every call.
func (s *Store) IsAuthenticated() bool {
	raw, err := s.storage.Get(KeyAuthToken)
	if err != nil {
		return false
	}
	return s.validator.Valid(raw)
}

// Token returns the persisted token, valid or not.
func (s *Store) Token() (string, bool) {
	raw, err := s.storage.Get(KeyAuthToken)
	if err != nil || raw == "" {
		return "", false
	}
	return raw, true
}

// AuthHeaders returns the Authorization header for the persisted token.
// Validity is not checked; callers check IsAuthenticated first.
func (s *Store) AuthHeaders() http.Header {
	h := make(http.Header)
	if raw, ok := s.Token(); ok {
		h.Set("Authorization", "Bearer "+raw)
	}
	return h
}

// Subscribe registers fn and returns a function that removes it. fn is
// called synchronously on every transition, never while the store's lock
// is held.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || fn == nil {
		return func() {}
	}

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Close drops all listeners. The persisted session is kept.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = nil
}

func (s *Store) publish(sess *Session) {
	s.mu.Lock()
	s.current = sess
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l.fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		if sess == nil {
			fn(nil)
			continue
		}
		cp := *sess
		fn(&cp)
	}
}

func (s *Store) persist(sess Session) error {
	b, err := json.Marshal(sess.User())
	if err != nil {
		return fmt.Errorf("encode user profile: %w", err)
	}

	prevToken, tokenErr := s.storage.Get(KeyAuthToken)
	if err := s.storage.Set(KeyAuthToken, sess.Token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := s.storage.Set(KeyCurrentUser, string(b)); err != nil {
		var rollbackErr error
		if tokenErr == nil {
			rollbackErr = s.storage.Set(KeyAuthToken, prevToken)
		} else {
			rollbackErr = s.storage.Delete(KeyAuthToken)
		}
		if rollbackErr != nil {
			s.log.Warn("token rollback failed; stored token has no profile", "error", rollbackErr)
		}
		return fmt.Errorf("store user profile: %w", err)
	}
	return nil
}

func (s *Store) discard(reason error) {
	s.log.Info("discarding stored session", "reason", reason.Error())
	s.publish(nil)
	if err := s.clearPersisted(); err != nil {
		s.log.Warn("could not clear stored session", "error", err)
	}
}

func (s *Store) readUser() (User, error) {
	raw, err := s.storage.Get(KeyCurrentUser)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, fmt.Errorf("user profile missing")
		}
		return User{}, fmt.Errorf("read user profile: %w", err)
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, fmt.Errorf("decode user profile: %w", err)
	}
	if strings.TrimSpace(u.Username) == "" {
		return User{}, fmt.Errorf("user profile has no username")
	}
	return u, nil
}

func (s *Store) clearPersisted() error {
	var errs []error
	if err := s.storage.Delete(KeyAuthToken); err != nil {
		errs = append(errs, fmt.Errorf("delete token: %w", err))
	}
	if err := s.storage.Delete(KeyCurrentUser); err != nil {
		errs = append(errs, fmt.Errorf("delete user profile: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Store) record(user, action, outcome, detail string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(user, action, "", outcome, detail); err != nil {
		s.log.Warn("audit record failed", "action", action, "error", err)
	}
}
