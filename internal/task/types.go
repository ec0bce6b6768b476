package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LocalTimeLayout is the backend's date-time format (no zone).
const LocalTimeLayout = "2006-01-02T15:04:05"

type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"titulo"`
	Description string    `json:"descricao"`
	CreatedAt   LocalTime `json:"dataCriacao"`
	DueDate     LocalTime `json:"dataVencimento"`
	Status      Status    `json:"status"`
}

// Request is the body for create and update calls.
type Request struct {
	Title       string    `json:"titulo"`
	Description string    `json:"descricao"`
	DueDate     LocalTime `json:"dataVencimento"`
	Status      Status    `json:"status,omitempty"`
}

// Query carries the optional list filters sent as query parameters.
type Query struct {
	Status Status
	Search string
}

// LocalTime is a wall-clock date-time as exchanged with the backend.
type LocalTime struct {
	time.Time
}

func NewLocalTime(t time.Time) LocalTime {
	return LocalTime{Time: t}
}

func ParseLocalTime(s string) (LocalTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{LocalTimeLayout, "2006-01-02T15:04:05.999999999", time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return LocalTime{Time: t}, nil
		}
	}
	return LocalTime{}, fmt.Errorf("invalid date-time %q", s)
}

// Date returns the YYYY-MM-DD part, or "" for the zero value.
func (t LocalTime) Date() string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func (t LocalTime) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(LocalTimeLayout)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(LocalTimeLayout))
}

func (t *LocalTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = LocalTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode date-time: %w", err)
	}
	if s == "" {
		*t = LocalTime{}
		return nil
	}
	parsed, err := ParseLocalTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
