package task

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStatus = errors.New("unknown task status")

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusDone}

var (
	wireNames = map[Status]string{
		StatusPending:    "PENDENTE",
		StatusInProgress: "EM_ANDAMENTO",
		StatusDone:       "CONCLUIDA",
	}
	displayNames = map[Status]string{
		StatusPending:    "Pendente",
		StatusInProgress: "Em Andamento",
		StatusDone:       "Concluída",
	}
)

// ParseStatus accepts both the client names and the backend's names,
// ignoring case. An empty string parses to the empty Status.
func ParseStatus(s string) (Status, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	if s == "" {
		return "", nil
	}
	for _, st := range Statuses {
		if s == string(st) || s == wireNames[st] {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s Status) Valid() bool {
	_, ok := wireNames[s]
	return ok
}

// Wire returns the backend spelling of s.
func (s Status) Wire() string {
	if w, ok := wireNames[s]; ok {
		return w
	}
	return string(s)
}

func (s Status) Display() string {
	if d, ok := displayNames[s]; ok {
		return d
	}
	return string(s)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.Wire()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
