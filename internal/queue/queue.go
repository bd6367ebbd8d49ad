// Package queue holds pending import tasks and the worker that feeds them
// to the pipeline one at a time.
package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

type Task struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

func NewTask(url string, priority int) *Task {
	return &Task{
		ID:        uuid.New(),
		URL:       url,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue pops higher priorities first and keeps insertion order
// within one priority.
type InMemoryQueue struct {
	mu     sync.Mutex
	tasks  []*Task
	notify chan struct{}
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		notify: make(chan struct{}, 1),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	i, _ := slices.BinarySearchFunc(q.tasks, task.Priority, func(t *Task, p int) int {
		// Descending priority; equal priorities insert after existing ones.
		if t.Priority >= p {
			return -1
		}
		return 1
	})
	q.tasks = slices.Insert(q.tasks, i, task)
	q.signal()
	return nil
}

// Pop blocks until a task is available, the queue is closed and drained,
// or ctx ends.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			if len(q.tasks) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.notify)
	}
	return nil
}

// signal must be called with mu held. A closed queue wakes every waiter
// through the closed channel instead.
func (q *InMemoryQueue) signal() {
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
