package task

import "strings"

// Filter returns the tasks matching both the status and the search text,
// preserving input order. An empty status or search matches everything.
// Search is a case-insensitive substring test against title and
// description. The input slice is never modified.
func Filter(tasks []Task, status Status, search string) []Task {
	query := strings.ToLower(search)

	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if status != "" && t.Status != status {
			continue
		}
		if query != "" && !matchesText(t, query) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchesText(t Task, lowered string) bool {
	return strings.Contains(strings.ToLower(t.Title), lowered) ||
		strings.Contains(strings.ToLower(t.Description), lowered)
}
