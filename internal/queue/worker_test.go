package queue

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/storefront-importer/internal/pipeline"
)

type fakeRunner struct {
	mu   sync.Mutex
	urls []string
	fn   func(ctx context.Context, url string) (pipeline.Result, error)
}

func (f *fakeRunner) Process(ctx context.Context, url string) (pipeline.Result, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, url)
	}
	return pipeline.Result{URL: url, Outcome: pipeline.OutcomePersisted, ProductID: uuid.New()}, nil
}

func (f *fakeRunner) processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func TestWorker_DrainsQueue(t *testing.T) {
	q := NewInMemoryQueue()
	runner := &fakeRunner{}
	w := NewWorker(q, runner, slog.Default())

	tasks, err := w.Enqueue([]string{"https://a.example/1", "https://a.example/2"}, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	st, ok := w.Status(tasks[0].ID)
	require.True(t, ok)
	assert.Equal(t, StatePending, st.State)

	require.NoError(t, q.Close())
	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, []string{"https://a.example/1", "https://a.example/2"}, runner.processed())
	for _, task := range tasks {
		st, ok := w.Status(task.ID)
		require.True(t, ok)
		assert.Equal(t, StateDone, st.State)
		require.NotNil(t, st.Result)
		assert.Equal(t, pipeline.OutcomePersisted, st.Result.Outcome)
	}
}

func TestWorker_SkippedItemDoesNotStopWorker(t *testing.T) {
	q := NewInMemoryQueue()
	runner := &fakeRunner{fn: func(_ context.Context, url string) (pipeline.Result, error) {
		return pipeline.Result{URL: url, Outcome: pipeline.OutcomeSkipped, Err: pipeline.ErrSkipped}, nil
	}}
	w := NewWorker(q, runner, slog.Default())

	tasks, err := w.Enqueue([]string{"https://a.example/1", "https://a.example/2"}, 0)
	require.NoError(t, err)
	require.NoError(t, q.Close())
	require.NoError(t, w.Run(context.Background()))

	st, _ := w.Status(tasks[1].ID)
	assert.Equal(t, StateDone, st.State)
	assert.Equal(t, "item skipped", st.Reason)
}

func TestWorker_StopsOnCancellation(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{fn: func(ctx context.Context, url string) (pipeline.Result, error) {
		cancel()
		return pipeline.Result{URL: url}, ctx.Err()
	}}
	w := NewWorker(q, runner, slog.Default())

	tasks, err := w.Enqueue([]string{"https://a.example/1", "https://a.example/2"}, 0)
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	st, _ := w.Status(tasks[0].ID)
	assert.Equal(t, StateInterrupted, st.State)
	st, _ = w.Status(tasks[1].ID)
	assert.Equal(t, StatePending, st.State)
	assert.Equal(t, 1, q.Size())
}

func TestWorker_EnqueueOnClosedQueue(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Close())
	w := NewWorker(q, &fakeRunner{}, slog.Default())

	tasks, err := w.Enqueue([]string{"https://a.example/1"}, 0)
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Empty(t, tasks)
}

func TestWorker_EvictsOldestFinished(t *testing.T) {
	q := NewInMemoryQueue()
	w := NewWorker(q, &fakeRunner{}, slog.Default())
	w.maxTracked = 2

	first, err := w.Enqueue([]string{"https://a.example/1", "https://a.example/2"}, 0)
	require.NoError(t, err)
	for range 2 {
		task, err := q.Pop(context.Background())
		require.NoError(t, err)
		w.update(task.ID, StateDone, nil, "")
	}

	_, err = w.Enqueue([]string{"https://a.example/3"}, 0)
	require.NoError(t, err)

	_, ok := w.Status(first[0].ID)
	assert.False(t, ok)
	_, ok = w.Status(first[1].ID)
	assert.True(t, ok)
}
