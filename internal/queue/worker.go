package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/storefront-importer/internal/pipeline"
)

type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	// StateInterrupted marks a task whose run was cut short by shutdown.
	StateInterrupted State = "interrupted"
)

const defaultMaxTracked = 10000

type Processor interface {
	Process(ctx context.Context, url string) (pipeline.Result, error)
}

// Status is the externally visible progress of one task.
type Status struct {
	Task      Task             `json:"task"`
	State     State            `json:"state"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type Worker struct {
	queue      Queue
	runner     Processor
	logger     *slog.Logger
	maxTracked int

	mu       sync.Mutex
	statuses map[uuid.UUID]*Status
	order    []uuid.UUID
}

func NewWorker(q Queue, runner Processor, logger *slog.Logger) *Worker {
	return &Worker{
		queue:      q,
		runner:     runner,
		logger:     logger.With("component", "import_worker"),
		maxTracked: defaultMaxTracked,
		statuses:   make(map[uuid.UUID]*Status),
	}
}

// Enqueue registers one task per URL. Tasks pushed before a failure stay
// queued.
func (w *Worker) Enqueue(urls []string, priority int) ([]*Task, error) {
	tasks := make([]*Task, 0, len(urls))
	for _, u := range urls {
		task := NewTask(u, priority)
		w.track(task)
		if err := w.queue.Push(task); err != nil {
			w.forget(task.ID)
			return tasks, fmt.Errorf("failed to enqueue %s: %w", u, err)
		}
		tasks = append(tasks, task)
	}
	w.logger.Info("tasks enqueued", "count", len(tasks), "queue_size", w.queue.Size())
	return tasks, nil
}

func (w *Worker) Status(id uuid.UUID) (Status, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.statuses[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// Run drains the queue until ctx ends or the queue is closed.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("import worker started")
	for {
		task, err := w.queue.Pop(ctx)
		switch {
		case errors.Is(err, ErrQueueClosed):
			w.logger.Info("import worker stopping", "reason", "queue closed")
			return nil
		case err != nil:
			w.logger.Info("import worker stopping", "reason", err)
			return err
		}

		w.update(task.ID, StateRunning, nil, "")
		res, err := w.runner.Process(ctx, task.URL)
		if err != nil {
			w.update(task.ID, StateInterrupted, nil, err.Error())
			return err
		}
		w.update(task.ID, StateDone, &res, res.Reason())
	}
}

func (w *Worker) track(task *Task) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.statuses[task.ID] = &Status{Task: *task, State: StatePending, UpdatedAt: time.Now().UTC()}
	w.order = append(w.order, task.ID)
	w.evict()
}

func (w *Worker) forget(id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.statuses, id)
}

func (w *Worker) update(id uuid.UUID, state State, res *pipeline.Result, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.statuses[id]
	if !ok {
		return
	}
	s.State = state
	s.Result = res
	s.Reason = reason
	s.UpdatedAt = time.Now().UTC()
}

// evict drops the oldest finished tasks once more than maxTracked are
// known. Pending and running tasks are never evicted.
func (w *Worker) evict() {
	if len(w.statuses) <= w.maxTracked {
		return
	}
	kept := w.order[:0]
	for _, id := range w.order {
		s, ok := w.statuses[id]
		if !ok {
			continue
		}
		if len(w.statuses) > w.maxTracked && (s.State == StateDone || s.State == StateInterrupted) {
			delete(w.statuses, id)
			continue
		}
		kept = append(kept, id)
	}
	w.order = kept
}
