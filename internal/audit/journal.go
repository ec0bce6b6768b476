package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one line of the journal.
type Entry struct {
	At      string `json:"at"`
	User    string `json:"user,omitempty"`
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Journal appends entries as JSON lines. A journal with an empty path
// records nothing.
type Journal struct {
	path    string
	nowFunc func() time.Time
	mu      sync.Mutex
}

func NewJournal(path string) *Journal {
	return &Journal{path: strings.TrimSpace(path), nowFunc: time.Now}
}

func (j *Journal) Enabled() bool {
	return j != nil && j.path != ""
}

func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

func (j *Journal) Record(user, action, target, outcome, detail string) error {
	if !j.Enabled() {
		return nil
	}
	e := Entry{
		At:      j.nowFunc().UTC().Format(time.RFC3339),
		User:    user,
		Action:  action,
		Target:  target,
		Outcome: outcome,
		Detail:  detail,
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("mkdir audit log dir: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log entry: %w", err)
	}
	return nil
}

// tailPrealloc caps the up-front allocation for large Tail requests.
const tailPrealloc = 256

// Tail returns up to n of the most recent entries, oldest first. Lines
// that do not decode are skipped.
func (j *Journal) Tail(n int) ([]Entry, error) {
	if !j.Enabled() || n <= 0 {
		return nil, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()

	ring := make([]Entry, 0, min(n, tailPrealloc))
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log file: %w", err)
	}
	return ring, nil
}
