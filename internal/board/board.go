package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"taskdesk/taskctl/internal/task"
)

var ErrBusy = errors.New("another change is still in progress")

const (
	msgLoadFailed     = "Erro ao carregar tarefas"
	msgSaveFailed     = "Erro ao salvar tarefa"
	msgCompleteFailed = "Erro ao completar tarefa"
	msgDeleteFailed   = "Erro ao excluir tarefa"

	msgCreated   = "Tarefa criada com sucesso!"
	msgUpdated   = "Tarefa atualizada com sucesso!"
	msgCompleted = "Tarefa marcada como concluída!"
	msgDeleted   = "Tarefa excluída com sucesso!"
)

// Failure is a backend or network error with the message shown to the
// user.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return f.Message + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// API is the slice of the REST client the board drives.
type API interface {
	ListTasks(ctx context.Context, q task.Query) ([]task.Task, error)
	CreateTask(ctx context.Context, req task.Request) (task.Task, error)
	UpdateTask(ctx context.Context, id int64, req task.Request) (task.Task, error)
	CompleteTask(ctx context.Context, id int64) (task.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

type Recorder interface {
	Record(user, action, target, outcome, detail string) error
}

type Config struct {
	Logger   *slog.Logger
	Recorder Recorder
	// Actor names the user in audit entries.
	Actor func() string
}

// Board holds the loaded task list, the active filters and the last
// success message.
type Board struct {
	api      API
	log      *slog.Logger
	recorder Recorder
	actor    func() string

	mu      sync.Mutex
	tasks   []task.Task
	visible []task.Task
	status  task.Status
	search  string
	notice  string
	busy    bool
}

func New(api API, cfg Config) (*Board, error) {
	if api == nil {
		return nil, fmt.Errorf("task api is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	actor := cfg.Actor
	if actor == nil {
		actor = func() string { return "" }
	}
	return &Board{
		api:      api,
		log:      logger,
		recorder: cfg.Recorder,
		actor:    actor,
		tasks:    []task.Task{},
		visible:  []task.Task{},
	}, nil
}

// Load fetches the list narrowed by the status filter and applies the full
// local filter on top. Search text stays local: the backend only matches
// titles.
func (b *Board) Load(ctx context.Context) ([]task.Task, error) {
	b.mu.Lock()
	q := task.Query{Status: b.status}
	b.mu.Unlock()

	tasks, err := b.api.ListTasks(ctx, q)
	if err != nil {
		b.log.Error("load tasks failed", "status", q.Status, "error", err)
		return nil, &Failure{Message: msgLoadFailed, Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = tasks
	b.visible = task.Filter(b.tasks, b.status, b.search)
	return cloneTasks(b.visible), nil
}

// SetFilters changes the filters and re-applies them to the loaded list
// without a request.
func (b *Board) SetFilters(status task.Status, search string) []task.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
	b.search = search
	b.visible = task.Filter(b.tasks, b.status, b.search)
	return cloneTasks(b.visible)
}

func (b *Board) ClearFilters(ctx context.Context) ([]task.Task, error) {
	b.mu.Lock()
	b.status = ""
	b.search = ""
	b.mu.Unlock()
	return b.Load(ctx)
}

func (b *Board) Filters() (task.Status, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, b.search
}

func (b *Board) Visible() []task.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneTasks(b.visible)
}

// Notice returns the last success message, or "".
func (b *Board) Notice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notice
}

// Submit validates the form locally, then creates the task (editingID 0)
// or updates editingID, then reloads. An invalid form never reaches the
// backend. If only the reload fails the saved task is returned with the
// load failure.
func (b *Board) Submit(ctx context.Context, form task.Form, editingID int64) (task.Task, error) {
	req, err := form.Request()
	if err != nil {
		return task.Task{}, err
	}
	if err := b.begin(); err != nil {
		return task.Task{}, err
	}
	defer b.end()

	var (
		saved  task.Task
		action = "task.create"
		notice = msgCreated
	)
	if editingID != 0 {
		action, notice = "task.update", msgUpdated
		saved, err = b.api.UpdateTask(ctx, editingID, req)
	} else {
		saved, err = b.api.CreateTask(ctx, req)
	}
	target := idTarget(editingID)
	if err != nil {
		b.log.Error("save task failed", "action", action, "id", editingID, "error", err)
		b.record(action, target, "failed", err.Error())
		return task.Task{}, &Failure{Message: msgSaveFailed, Err: err}
	}
	if editingID == 0 {
		target = idTarget(saved.ID)
	}
	b.record(action, target, "success", "")
	b.setNotice(notice)

	if _, err := b.Load(ctx); err != nil {
		return saved, err
	}
	return saved, nil
}

// Complete marks t done. A task that is already done is left alone and no
// request is sent.
func (b *Board) Complete(ctx context.Context, t task.Task) (bool, error) {
	if t.Status == task.StatusDone {
		return false, nil
	}
	if err := b.begin(); err != nil {
		return false, err
	}
	defer b.end()

	if _, err := b.api.CompleteTask(ctx, t.ID); err != nil {
		b.log.Error("complete task failed", "id", t.ID, "error", err)
		b.record("task.complete", idTarget(t.ID), "failed", err.Error())
		return false, &Failure{Message: msgCompleteFailed, Err: err}
	}
	b.record("task.complete", idTarget(t.ID), "success", "")
	b.setNotice(msgCompleted)

	if _, err := b.Load(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (b *Board) Delete(ctx context.Context, id int64) error {
	if err := b.begin(); err != nil {
		return err
	}
	defer b.end()

	if err := b.api.DeleteTask(ctx, id); err != nil {
		b.log.Error("delete task failed", "id", id, "error", err)
		b.record("task.delete", idTarget(id), "failed", err.Error())
		return &Failure{Message: msgDeleteFailed, Err: err}
	}
	b.record("task.delete", idTarget(id), "success", "")
	b.setNotice(msgDeleted)

	_, err := b.Load(ctx)
	return err
}

func (b *Board) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy {
		return ErrBusy
	}
	b.busy = true
	b.notice = ""
	return nil
}

func (b *Board) end() {
	b.mu.Lock()
	b.busy = false
	b.mu.Unlock()
}

func (b *Board) setNotice(msg string) {
	b.mu.Lock()
	b.notice = msg
	b.mu.Unlock()
}

func (b *Board) record(action, target, outcome, detail string) {
	if b.recorder == nil {
		return
	}
	if err := b.recorder.Record(b.actor(), action, target, outcome, detail); err != nil {
		b.log.Warn("audit record failed", "action", action, "error", err)
	}
}

func idTarget(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func cloneTasks(in []task.Task) []task.Task {
	out := make([]task.Task, len(in))
	copy(out, in)
	return out
}
