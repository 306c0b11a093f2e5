package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-nav/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal потокобезопасно записывает порядок выполнения задач
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) record(name string) func(context.Context) {
	return func(context.Context) {
		j.mu.Lock()
		j.entries = append(j.entries, name)
		j.mu.Unlock()
	}
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func TestRebuildSubmittedAfterSearchesRunsFirst(t *testing.T) {
	ctx := context.Background()
	s := New(16)
	j := &journal{}

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Submit(ctx, NewSearchTask(uint64(i), fmt.Sprintf("search-%d", i), j.record(fmt.Sprintf("search-%d", i)))))
	}
	require.NoError(t, s.Submit(ctx, NewRebuildTask("rebuild", j.record("rebuild"))))

	s.Start(ctx)
	require.NoError(t, s.Shutdown(ctx, true))

	assert.Equal(t, []string{"rebuild", "search-1", "search-2", "search-3"}, j.snapshot())
}

func TestRebuildSubmittedFirstRunsFirst(t *testing.T) {
	ctx := context.Background()
	s := New(16)
	j := &journal{}

	require.NoError(t, s.Submit(ctx, NewRebuildTask("rebuild", j.record("rebuild"))))
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Submit(ctx, NewSearchTask(uint64(i), fmt.Sprintf("search-%d", i), j.record(fmt.Sprintf("search-%d", i)))))
	}

	s.Start(ctx)
	require.NoError(t, s.Shutdown(ctx, true))

	assert.Equal(t, []string{"rebuild", "search-1", "search-2", "search-3"}, j.snapshot())
}

func TestRebuildOvertakesQueuedSearchesWhileRunning(t *testing.T) {
	ctx := context.Background()
	s := New(16)
	s.Start(ctx)

	gate := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Submit(ctx, NewRebuildTask("gate", func(context.Context) {
		close(started)
		<-gate
	})))
	<-started

	// Пока воркер занят, в очереди копятся поиски, затем приходит перестроение
	var mu sync.Mutex
	version := 0
	observed := make([]int, 0, 4)
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Submit(ctx, NewSearchTask(uint64(i), "search", func(context.Context) {
			mu.Lock()
			observed = append(observed, version)
			mu.Unlock()
		})))
	}
	require.NoError(t, s.Submit(ctx, NewRebuildTask("rebuild", func(context.Context) {
		mu.Lock()
		version++
		mu.Unlock()
	})))
	close(gate)

	// Поиск, поставленный после перестроения, тоже видит новую версию
	require.NoError(t, s.Submit(ctx, NewSearchTask(4, "search-late", func(context.Context) {
		mu.Lock()
		observed = append(observed, version)
		mu.Unlock()
	})))
	require.NoError(t, s.Shutdown(ctx, true))

	assert.Equal(t, []int{1, 1, 1, 1}, observed, "все поиски должны видеть граф после перестроения")
}

func TestSameKindIsFIFO(t *testing.T) {
	ctx := context.Background()
	s := New(16)
	j := &journal{}

	require.NoError(t, s.Submit(ctx, NewRebuildTask("r1", j.record("r1"))))
	require.NoError(t, s.Submit(ctx, NewRebuildTask("r2", j.record("r2"))))
	require.NoError(t, s.Submit(ctx, NewRebuildTask("r3", j.record("r3"))))

	s.Start(ctx)
	require.NoError(t, s.Shutdown(ctx, true))
	assert.Equal(t, []string{"r1", "r2", "r3"}, j.snapshot(), "равные приоритеты выполняются в порядке постановки")
}

func TestSubmitBlocksWhenFull(t *testing.T) {
	ctx := context.Background()
	s := New(1)
	require.NoError(t, s.Submit(ctx, NewRebuildTask("first", func(context.Context) {})))

	returned := make(chan error, 1)
	go func() {
		returned <- s.Submit(ctx, NewRebuildTask("second", func(context.Context) {}))
	}()

	select {
	case <-returned:
		t.Fatal("Submit должен блокироваться при заполненной очереди")
	case <-time.After(50 * time.Millisecond):
	}

	s.Start(ctx)
	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit не разблокировался после освобождения места")
	}

	require.NoError(t, s.Shutdown(ctx, true))
	assert.Equal(t, uint64(2), s.Stats().Executed)
}

func TestSubmitHonoursContextWhenFull(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Submit(context.Background(), NewRebuildTask("first", func(context.Context) {})))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.Submit(ctx, NewRebuildTask("second", func(context.Context) {}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdownAbandonsRemaining(t *testing.T) {
	ctx := context.Background()
	s := New(16)
	s.Start(ctx)

	gate := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Submit(ctx, NewRebuildTask("gate", func(context.Context) {
		close(started)
		<-gate
	})))
	<-started

	j := &journal{}
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Submit(ctx, NewSearchTask(uint64(i), "search", j.record("search"))))
	}

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- s.Shutdown(ctx, false) }()
	assert.Eventually(t, func() bool { return s.Len() == 4 }, time.Second, time.Millisecond)
	close(gate)

	require.NoError(t, <-shutdownErr)
	assert.Empty(t, j.snapshot(), "при shutdown без drain оставшиеся задачи не выполняются")
	assert.Equal(t, uint64(3), s.Stats().Abandoned)
	assert.ErrorIs(t, s.Submit(ctx, NewRebuildTask("late", func(context.Context) {})), ErrClosed)
}

func TestPanickingTaskDoesNotStopWorker(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(nil)
	s := New(4, WithMetrics(m))
	j := &journal{}

	require.NoError(t, s.Submit(ctx, NewRebuildTask("boom", func(context.Context) { panic("boom") })))
	require.NoError(t, s.Submit(ctx, NewSearchTask(1, "after", j.record("after"))))

	s.Start(ctx)
	require.NoError(t, s.Shutdown(ctx, true))

	assert.Equal(t, []string{"after"}, j.snapshot())
	assert.Equal(t, uint64(1), s.Stats().Panicked)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskPanics))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksExecuted.WithLabelValues("search")))
}

func TestSubmitRejectsNilTask(t *testing.T) {
	s := New(1)
	assert.Error(t, s.Submit(context.Background(), nil))
}

func TestStartAfterShutdownDoesNotLaunchWorker(t *testing.T) {
	ctx := context.Background()
	s := New(4)
	j := &journal{}
	require.NoError(t, s.Submit(ctx, NewSearchTask(1, "never", j.record("never"))))

	require.NoError(t, s.Shutdown(ctx, true))
	assert.Equal(t, uint64(1), s.Stats().Abandoned, "без воркера очередь отбрасывается")

	s.Start(ctx)

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	assert.False(t, started, "воркер после Shutdown не запускается")

	select {
	case <-s.Done():
	default:
		t.Fatal("Done должен оставаться закрытым")
	}
	assert.Empty(t, j.snapshot())
}
