package task

import (
	"reflect"
	"testing"
)

func sampleTasks() []Task {
	return []Task{
		{ID: 1, Title: "Milestone review", Description: "quarterly", Status: StatusPending},
		{ID: 2, Title: "Groceries", Description: "check milestones", Status: StatusDone},
		{ID: 3, Title: "Taxes", Description: "file before April", Status: StatusInProgress},
		{ID: 4, Title: "Dentist", Description: "", Status: StatusDone},
	}
}

func ids(tasks []Task) []int64 {
	out := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestFilterEmptyInput(t *testing.T) {
	if got := Filter(nil, StatusDone, "x"); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
	if got := Filter([]Task{}, "", ""); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestFilterNoCriteriaKeepsOrder(t *testing.T) {
	tasks := sampleTasks()
	got := Filter(tasks, "", "")
	if !reflect.DeepEqual(got, tasks) {
		t.Fatalf("expected all tasks in order, got %v", ids(got))
	}
}

func TestFilterByStatus(t *testing.T) {
	got := Filter(sampleTasks(), StatusDone, "")
	if want := []int64{2, 4}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
}

func TestFilterBySearchIsCaseInsensitive(t *testing.T) {
	got := Filter(sampleTasks(), "", "mile")
	if want := []int64{1, 2}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}

	got = Filter(sampleTasks(), "", "APRIL")
	if want := []int64{3}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
}

func TestFilterCombinesStatusAndSearch(t *testing.T) {
	tasks := []Task{
		{ID: 1, Title: "Buy milk", Status: StatusPending},
		{ID: 2, Title: "Write report", Status: StatusDone},
		{ID: 3, Title: "Milestone plan", Status: StatusInProgress},
	}
	got := Filter(tasks, StatusPending, "m")
	if len(got) != 1 || got[0].Title != "Buy milk" {
		t.Fatalf("expected only Buy milk, got %+v", got)
	}
}

func TestFilterDoesNotModifyInput(t *testing.T) {
	tasks := sampleTasks()
	before := append([]Task(nil), tasks...)
	_ = Filter(tasks, StatusPending, "review")
	if !reflect.DeepEqual(tasks, before) {
		t.Fatalf("input slice was modified")
	}
}
