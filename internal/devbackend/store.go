package devbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"taskdesk/taskctl/internal/task"
)

var (
	ErrNotFound           = errors.New("task not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrEmailTaken         = errors.New("email is already in use")
)

const (
	minUsernameLength = 3
	maxUsernameLength = 20
	minPasswordLength = 6
	maxPasswordLength = 40
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type storedTask struct {
	Task    task.Task `json:"task"`
	OwnerID int64     `json:"owner_id"`
}

type state struct {
	NextUserID int64        `json:"next_user_id"`
	NextTaskID int64        `json:"next_task_id"`
	Users      []User       `json:"users"`
	Tasks      []storedTask `json:"tasks"`
}

// Store keeps users and their tasks in memory, optionally mirrored to a
// JSON state file.
type Store struct {
	nowFunc    func() time.Time
	stateFile  string
	bcryptCost int

	mu         sync.RWMutex
	users      map[int64]User
	tasks      map[int64]storedTask
	nextUserID int64
	nextTaskID int64
}

func NewStore() *Store {
	return &Store{
		nowFunc:    time.Now,
		bcryptCost: bcrypt.DefaultCost,
		users:      make(map[int64]User),
		tasks:      make(map[int64]storedTask),
		nextUserID: 1,
		nextTaskID: 1,
	}
}

func NewStoreWithFile(stateFile string) (*Store, error) {
	s := NewStore()
	s.stateFile = strings.TrimSpace(stateFile)
	if s.stateFile == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	if err := s.loadState(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) CreateUser(username, email, password string) (User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := validateSignup(username, email, password); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return User{}, ErrUsernameTaken
		}
		if strings.EqualFold(u.Email, email) {
			return User{}, ErrEmailTaken
		}
	}

	prevNext := s.nextUserID
	u := User{
		ID:           s.nextUserID,
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.nowFunc().UTC(),
	}
	s.users[u.ID] = u
	s.nextUserID++
	if err := s.persistLocked(); err != nil {
		delete(s.users, u.ID)
		s.nextUserID = prevNext
		return User{}, err
	}
	return u, nil
}

func (s *Store) Authenticate(username, password string) (User, error) {
	username = strings.TrimSpace(username)
	s.mu.RLock()
	var (
		found User
		ok    bool
	)
	for _, u := range s.users {
		if u.Username == username {
			found, ok = u, true
			break
		}
	}
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return found, nil
}

func (s *Store) UserByID(id int64) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// ListTasks returns the owner's tasks, newest first. A status filter takes
// precedence over search; search matches titles only, ignoring case.
func (s *Store) ListTasks(ownerID int64, status task.Status, search string) []task.Task {
	search = strings.ToLower(strings.TrimSpace(search))

	s.mu.RLock()
	out := make([]task.Task, 0)
	for _, st := range s.tasks {
		if st.OwnerID != ownerID {
			continue
		}
		switch {
		case status != "":
			if st.Task.Status != status {
				continue
			}
		case search != "":
			if !strings.Contains(strings.ToLower(st.Task.Title), search) {
				continue
			}
		}
		out = append(out, st.Task)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	return out
}

func (s *Store) GetTask(ownerID, id int64) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tasks[id]
	if !ok || st.OwnerID != ownerID {
		return task.Task{}, ErrNotFound
	}
	return st.Task, nil
}

func (s *Store) CreateTask(ownerID int64, req task.Request) (task.Task, error) {
	if err := validateTask(req); err != nil {
		return task.Task{}, err
	}
	status := req.Status
	if status == "" {
		status = task.StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := task.Task{
		ID:          s.nextTaskID,
		Title:       req.Title,
		Description: req.Description,
		CreatedAt:   task.NewLocalTime(s.nowFunc().Truncate(time.Second)),
		DueDate:     req.DueDate,
		Status:      status,
	}
	s.tasks[t.ID] = storedTask{Task: t, OwnerID: ownerID}
	s.nextTaskID++
	if err := s.persistLocked(); err != nil {
		delete(s.tasks, t.ID)
		s.nextTaskID--
		return task.Task{}, err
	}
	return t, nil
}

// UpdateTask replaces title, description and due date. Status changes only
// when the request carries one.
func (s *Store) UpdateTask(ownerID, id int64, req task.Request) (task.Task, error) {
	if err := validateTask(req); err != nil {
		return task.Task{}, err
	}
	return s.mutate(ownerID, id, func(t *task.Task) {
		t.Title = req.Title
		t.Description = req.Description
		t.DueDate = req.DueDate
		if req.Status != "" {
			t.Status = req.Status
		}
	})
}

func (s *Store) CompleteTask(ownerID, id int64) (task.Task, error) {
	return s.mutate(ownerID, id, func(t *task.Task) {
		t.Status = task.StatusDone
	})
}

func (s *Store) DeleteTask(ownerID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[id]
	if !ok || st.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.tasks, id)
	if err := s.persistLocked(); err != nil {
		s.tasks[id] = st
		return err
	}
	return nil
}

func (s *Store) mutate(ownerID, id int64, fn func(*task.Task)) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.tasks[id]
	if !ok || prev.OwnerID != ownerID {
		return task.Task{}, ErrNotFound
	}
	next := prev
	fn(&next.Task)
	s.tasks[id] = next
	if err := s.persistLocked(); err != nil {
		s.tasks[id] = prev
		return task.Task{}, err
	}
	return next.Task, nil
}

func validateSignup(username, email, password string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLength || n > maxUsernameLength {
		return fmt.Errorf("%w: username must be %d to %d characters", ErrInvalidInput, minUsernameLength, maxUsernameLength)
	}
	if _, err := mail.ParseAddress(email); err != nil || strings.Contains(email, " ") {
		return fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	n = utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d to %d characters", ErrInvalidInput, minPasswordLength, maxPasswordLength)
	}
	return nil
}

func validateTask(req task.Request) error {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return fmt.Errorf("%w: titulo is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(req.Title) > 100 {
		return fmt.Errorf("%w: titulo must be at most 100 characters", ErrInvalidInput)
	}
	if utf8.RuneCountInString(req.Description) > 500 {
		return fmt.Errorf("%w: descricao must be at most 500 characters", ErrInvalidInput)
	}
	if req.DueDate.IsZero() {
		return fmt.Errorf("%w: dataVencimento is required", ErrInvalidInput)
	}
	if req.Status != "" && !req.Status.Valid() {
		return fmt.Errorf("%w: unknown status", ErrInvalidInput)
	}
	return nil
}

func (s *Store) loadState() error {
	if s.stateFile == "" {
		return nil
	}
	b, err := os.ReadFile(s.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dev backend state file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	var st state
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("decode dev backend state file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range st.Users {
		s.users[u.ID] = u
		if u.ID >= s.nextUserID {
			s.nextUserID = u.ID + 1
		}
	}
	for _, t := range st.Tasks {
		s.tasks[t.Task.ID] = t
		if t.Task.ID >= s.nextTaskID {
			s.nextTaskID = t.Task.ID + 1
		}
	}
	if st.NextUserID > s.nextUserID {
		s.nextUserID = st.NextUserID
	}
	if st.NextTaskID > s.nextTaskID {
		s.nextTaskID = st.NextTaskID
	}
	return nil
}

func (s *Store) persistLocked() error {
	if s.stateFile == "" {
		return nil
	}
	st := state{
		NextUserID: s.nextUserID,
		NextTaskID: s.nextTaskID,
		Users:      make([]User, 0, len(s.users)),
		Tasks:      make([]storedTask, 0, len(s.tasks)),
	}
	for _, u := range s.users {
		st.Users = append(st.Users, u)
	}
	for _, t := range s.tasks {
		st.Tasks = append(st.Tasks, t)
	}
	sort.Slice(st.Users, func(i, j int) bool { return st.Users[i].ID < st.Users[j].ID })
	sort.Slice(st.Tasks, func(i, j int) bool { return st.Tasks[i].Task.ID < st.Tasks[j].Task.ID })

	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dev backend state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.stateFile), 0o755); err != nil {
		return fmt.Errorf("mkdir dev backend state dir: %w", err)
	}
	if err := os.WriteFile(s.stateFile, b, 0o600); err != nil {
		return fmt.Errorf("write dev backend state file: %w", err)
	}
	return nil
}
