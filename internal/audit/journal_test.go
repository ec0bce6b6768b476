package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestJournalWritesJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	j := NewJournal(path)
	j.nowFunc = func() time.Time { return time.Date(2026, 2, 16, 9, 30, 0, 0, time.UTC) }
	if err := j.Record("admin", "task.create", "12", "success", ""); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	line := strings.TrimSpace(string(b))
	if line == "" {
		t.Fatalf("expected non-empty audit line")
	}
	var e Entry
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		t.Fatalf("decode audit line: %v", err)
	}
	if e.User != "admin" || e.Action != "task.create" || e.Target != "12" || e.Outcome != "success" {
		t.Fatalf("unexpected audit entry content: %+v", e)
	}
	if e.At != "2026-02-16T09:30:00Z" {
		t.Fatalf("unexpected timestamp %q", e.At)
	}
}

func TestJournalTailReturnsMostRecentOldestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	j := NewJournal(path)
	for _, action := range []string{"a", "b", "c", "d"} {
		if err := j.Record("admin", action, "", "success", ""); err != nil {
			t.Fatalf("Record(%s) error: %v", action, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	_, _ = f.WriteString("not json\n")
	_ = f.Close()
	if err := j.Record("admin", "e", "", "success", ""); err != nil {
		t.Fatalf("Record(e) error: %v", err)
	}

	got, err := j.Tail(3)
	if err != nil {
		t.Fatalf("Tail() error: %v", err)
	}
	var actions []string
	for _, e := range got {
		actions = append(actions, e.Action)
	}
	if strings.Join(actions, ",") != "c,d,e" {
		t.Fatalf("expected c,d,e got %v", actions)
	}
}

func TestJournalTailWithHugeLimit(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "audit.log"))
	for _, action := range []string{"a", "b"} {
		if err := j.Record("admin", action, "", "success", ""); err != nil {
			t.Fatalf("Record(%s) error: %v", action, err)
		}
	}

	got, err := j.Tail(2_000_000_000)
	if err != nil {
		t.Fatalf("Tail() error: %v", err)
	}
	if len(got) != 2 || got[0].Action != "a" || got[1].Action != "b" {
		t.Fatalf("expected a,b got %+v", got)
	}
	if cap(got) > tailPrealloc {
		t.Fatalf("expected bounded allocation, got cap %d", cap(got))
	}
}

func TestDisabledJournal(t *testing.T) {
	j := NewJournal("  ")
	if j.Enabled() {
		t.Fatalf("expected journal with empty path to be disabled")
	}
	if err := j.Record("admin", "x", "", "success", ""); err != nil {
		t.Fatalf("Record() on disabled journal error: %v", err)
	}
	entries, err := j.Tail(10)
	if err != nil || entries != nil {
		t.Fatalf("expected no entries, got %v (err=%v)", entries, err)
	}

	missing := NewJournal(filepath.Join(t.TempDir(), "none.log"))
	entries, err = missing.Tail(5)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty tail for missing file, got %v (err=%v)", entries, err)
	}
}
