package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-nav/internal/logging"
	"github.com/annel0/voxel-nav/internal/metrics"
)

// ErrClosed возвращается при постановке задачи после Shutdown
var ErrClosed = errors.New("scheduler: закрыт")

// Stats агрегированные счётчики планировщика
type Stats struct {
	Submitted uint64
	Executed  uint64
	Panicked  uint64
	Abandoned uint64
	Queued    int
}

// Scheduler представляет ограниченную очередь задач с приоритетами и единственным воркером.
// Задачи выполняются строго по одной. Перестроения (приоритет 0) всегда
// обгоняют поиски (1+seq), уже стоящие в очереди или добавленные позже.
type Scheduler struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	queue    taskHeap
	capacity int
	seq      uint64
	closed   bool
	started  bool
	done     chan struct{}

	submitted atomic.Uint64
	executed  atomic.Uint64
	panicked  atomic.Uint64
	abandoned atomic.Uint64

	metrics *metrics.NavMetrics
	logger  *logging.Logger
}

// Option настраивает Scheduler
type Option func(*Scheduler)

// WithMetrics подключает Prometheus-метрики
func WithMetrics(m *metrics.NavMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger задаёт логгер компонента
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New создаёт планировщик с ёмкостью очереди capacity
func New(capacity int, opts ...Option) *Scheduler {
	if capacity <= 0 {
		capacity = 1024
	}

	s := &Scheduler{
		capacity: capacity,
		done:     make(chan struct{}),
	}
	s.notEmpty = sync.NewCond(&s.mu)
	s.notFull = sync.NewCond(&s.mu)

	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.logger == nil {
		s.logger = logging.GetComponentLogger(logging.ComponentScheduler)
	}
	return s
}

// Start запускает воркер. Повторный вызов и вызов после Shutdown ничего не делают.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.worker(ctx)
}

// Submit ставит задачу в очередь. Если очередь заполнена, вызывающая горутина
// блокируется до освобождения места (задачи не отбрасываются) или отмены ctx.
func (s *Scheduler) Submit(ctx context.Context, task *Task) error {
	if task == nil || task.Run == nil {
		return fmt.Errorf("scheduler: пустая задача")
	}

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.notFull.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.closed && len(s.queue) >= s.capacity {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.notFull.Wait()
	}
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.push(task)
	s.submitted.Add(1)
	return nil
}

// push добавляет задачу под блокировкой
func (s *Scheduler) push(task *Task) {
	s.seq++
	task.seq = s.seq
	heap.Push(&s.queue, task)
	s.metrics.TasksQueued.Set(float64(len(s.queue)))
	s.notEmpty.Signal()
}

// Shutdown ставит терминальную задачу с наивысшим приоритетом и ждёт остановки воркера.
// drain=true — воркер выполнит оставшиеся задачи, иначе они будут отброшены.
func (s *Scheduler) Shutdown(ctx context.Context, drain bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.wait(ctx)
	}
	s.closed = true
	if !s.started {
		s.abandoned.Add(uint64(len(s.queue)))
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
		return nil
	}
	// Терминальная задача обходит ограничение ёмкости
	s.push(&Task{Name: "shutdown", Kind: KindShutdown, Priority: PriorityShutdown, Run: func(context.Context) {}, drain: drain})
	s.notFull.Broadcast()
	s.mu.Unlock()

	return s.wait(ctx)
}

func (s *Scheduler) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done закрывается после остановки воркера
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Len возвращает текущую глубину очереди
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stats возвращает снимок счётчиков
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Executed:  s.executed.Load(),
		Panicked:  s.panicked.Load(),
		Abandoned: s.abandoned.Load(),
		Queued:    s.Len(),
	}
}

// next извлекает задачу с наименьшим приоритетом, ожидая при пустой очереди
func (s *Scheduler) next() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 {
		s.notEmpty.Wait()
	}
	task := heap.Pop(&s.queue).(*Task)
	s.metrics.TasksQueued.Set(float64(len(s.queue)))
	s.notFull.Signal()
	return task
}

// tryNext извлекает задачу без ожидания
func (s *Scheduler) tryNext() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil
	}
	task := heap.Pop(&s.queue).(*Task)
	s.metrics.TasksQueued.Set(float64(len(s.queue)))
	return task
}

// worker единственный потребитель очереди
func (s *Scheduler) worker(ctx context.Context) {
	defer close(s.done)
	s.logger.Debug("Воркер планировщика запущен (ёмкость %d)", s.capacity)

	for {
		task := s.next()
		if task.Kind != KindShutdown {
			s.execute(ctx, task)
			continue
		}

		if task.drain {
			for t := s.tryNext(); t != nil; t = s.tryNext() {
				s.execute(ctx, t)
			}
		} else {
			s.mu.Lock()
			s.abandoned.Add(uint64(len(s.queue)))
			s.queue = nil
			s.metrics.TasksQueued.Set(0)
			s.mu.Unlock()
		}
		s.logger.Debug("Воркер планировщика остановлен: выполнено=%d отброшено=%d",
			s.executed.Load(), s.abandoned.Load())
		return
	}
}

// execute выполняет задачу до конца; паника задачи не останавливает воркер
func (s *Scheduler) execute(ctx context.Context, task *Task) {
	start := time.Now()
	kind := task.Kind.String()

	defer func() {
		if r := recover(); r != nil {
			s.panicked.Add(1)
			s.metrics.TaskPanics.Inc()
			s.logger.Error("Паника в задаче %s (%s): %v", task.Name, kind, r)
		}
		s.executed.Add(1)
		s.metrics.TasksExecuted.WithLabelValues(kind).Inc()
		s.metrics.TaskDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	task.Run(ctx)
}
