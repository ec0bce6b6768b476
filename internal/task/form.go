package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrInvalidForm = errors.New("invalid task form")

const (
	maxTitleLength       = 100
	maxDescriptionLength = 500
	dateLayout           = "2006-01-02"
)

// Form holds the editable fields of a task. DueDate is a plain
// YYYY-MM-DD date.
type Form struct {
	Title       string
	Description string
	DueDate     string
	Status      Status
}

// NewForm returns the empty form used for creating a task.
func NewForm() Form {
	return Form{Status: StatusPending}
}

// FormFromTask fills a form from a persisted task for editing.
func FormFromTask(t Task) Form {
	status := t.Status
	if status == "" {
		status = StatusPending
	}
	return Form{
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate.Date(),
		Status:      status,
	}
}

// Validate reports every problem with the form at once.
func (f Form) Validate() error {
	var problems []string

	title := strings.TrimSpace(f.Title)
	switch {
	case title == "":
		problems = append(problems, "title is required")
	case utf8.RuneCountInString(f.Title) > maxTitleLength:
		problems = append(problems, fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if utf8.RuneCountInString(f.Description) > maxDescriptionLength {
		problems = append(problems, fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}
	if strings.TrimSpace(f.DueDate) == "" {
		problems = append(problems, "due date is required")
	} else if _, err := time.Parse(dateLayout, strings.TrimSpace(f.DueDate)); err != nil {
		problems = append(problems, "due date must be YYYY-MM-DD")
	}
	if f.Status != "" && !f.Status.Valid() {
		problems = append(problems, fmt.Sprintf("unknown status %q", f.Status))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidForm, strings.Join(problems, "; "))
	}
	return nil
}

// Request converts a validated form into the create/update body. The due
// date is sent as midnight of the chosen day.
func (f Form) Request() (Request, error) {
	if err := f.Validate(); err != nil {
		return Request{}, err
	}
	due, err := time.Parse(dateLayout, strings.TrimSpace(f.DueDate))
	if err != nil {
		return Request{}, fmt.Errorf("%w: due date must be YYYY-MM-DD", ErrInvalidForm)
	}
	return Request{
		Title:       strings.TrimSpace(f.Title),
		Description: f.Description,
		DueDate:     NewLocalTime(due),
		Status:      f.Status,
	}, nil
}
