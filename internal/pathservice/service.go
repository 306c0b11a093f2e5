package pathservice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-nav/internal/logging"
	"github.com/annel0/voxel-nav/internal/metrics"
	"github.com/annel0/voxel-nav/internal/navgraph"
	"github.com/annel0/voxel-nav/internal/pathfinder"
	"github.com/annel0/voxel-nav/internal/scheduler"
	"github.com/annel0/voxel-nav/internal/vec"
)

// Resolver находит WalkableBlock по позиции (реализуется navgraph.Manager)
type Resolver interface {
	Lookup(pos vec.Vec3) *navgraph.WalkableBlock
}

// Submitter принимает задачи на выполнение (реализуется scheduler.Scheduler)
type Submitter interface {
	Submit(ctx context.Context, task *scheduler.Task) error
}

// Handler получает результат запроса в горутине потребителя
type Handler func(id uint64, path pathfinder.Path)

// Result событие {id запроса, путь}
type Result struct {
	ID   uint64
	Path pathfinder.Path
}

// Service предоставляет асинхронный API поиска пути. Поиск выполняется задачей
// планировщика, результат попадает в потокобезопасную очередь и отдаётся
// обработчикам только из Poll, т.е. в цикле потребителя.
type Service struct {
	resolver Resolver
	sched    Submitter

	nextID atomic.Uint64

	mu       sync.Mutex
	results  []Result
	handlers map[uint64]Handler
	ready    chan struct{}

	metrics *metrics.NavMetrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// Option настраивает Service
type Option func(*Service)

// WithMetrics подключает Prometheus-метрики
func WithMetrics(m *metrics.NavMetrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger задаёт логгер
func WithLogger(l *logging.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService создаёт сервис запросов пути
func NewService(resolver Resolver, sched Submitter, opts ...Option) *Service {
	s := &Service{
		resolver: resolver,
		sched:    sched,
		handlers: make(map[uint64]Handler),
		ready:    make(chan struct{}, 1),
		tracer:   otel.Tracer("github.com/annel0/voxel-nav/internal/pathservice"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.GetComponentLogger(logging.ComponentPath)
	}
	return s
}

// RequestPath сразу возвращает монотонный id и ставит поиск в очередь
// с приоритетом 1+id. Нерезолвящиеся позиции дают INVALID, а не ошибку.
// Ошибка возвращается только если планировщик не принял задачу.
func (s *Service) RequestPath(ctx context.Context, starts []vec.Vec3, target vec.Vec3, h Handler) (uint64, error) {
	id := s.nextID.Add(1)
	s.mu.Lock()
	s.handlers[id] = h
	s.mu.Unlock()

	startsCopy := append([]vec.Vec3(nil), starts...)
	name := fmt.Sprintf("search#%d", id)
	task := scheduler.NewSearchTask(id, name, func(ctx context.Context) {
		s.search(ctx, id, startsCopy, target)
	})
	if err := s.sched.Submit(ctx, task); err != nil {
		s.Cancel(id)
		return 0, fmt.Errorf("submit %s: %w", name, err)
	}
	return id, nil
}

// search выполняется в горутине планировщика
func (s *Service) search(ctx context.Context, id uint64, starts []vec.Vec3, target vec.Vec3) {
	_, span := s.tracer.Start(ctx, "pathservice.search", trace.WithAttributes(
		attribute.Int64("nav.request_id", int64(id)),
		attribute.Int("nav.starts", len(starts)),
		attribute.String("nav.target", target.String()),
	))
	defer span.End()

	started := time.Now()
	path, expanded := s.resolveAndSearch(starts, target)

	result := "found"
	if path.IsInvalid() {
		result = "invalid"
	}
	span.SetAttributes(
		attribute.String("nav.result", result),
		attribute.Int("nav.expanded", expanded),
		attribute.Float64("nav.length", path.Length),
	)
	if s.metrics != nil {
		s.metrics.PathSearches.WithLabelValues(result).Inc()
		s.metrics.ExpandedNodes.Observe(float64(expanded))
	}
	s.logger.Debug("Поиск #%d -> %s: %s, узлов раскрыто %d за %s", id, target, result, expanded, time.Since(started))

	s.mu.Lock()
	s.results = append(s.results, Result{ID: id, Path: path})
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Service) resolveAndSearch(starts []vec.Vec3, target vec.Vec3) (pathfinder.Path, int) {
	goal := s.resolver.Lookup(target)
	if goal == nil {
		return pathfinder.Invalid, 0
	}

	blocks := make([]*navgraph.WalkableBlock, 0, len(starts))
	for _, pos := range starts {
		b := s.resolver.Lookup(pos)
		if b == nil {
			return pathfinder.Invalid, 0
		}
		blocks = append(blocks, b)
	}
	return pathfinder.Search(goal, blocks)
}

// Cancel забывает обработчик запроса: уже идущий поиск завершится,
// но его результат будет отброшен
func (s *Service) Cancel(id uint64) {
	s.mu.Lock()
	delete(s.handlers, id)
	s.mu.Unlock()
}

// Ready сигнализирует, что в очереди появились результаты
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Poll забирает накопленные результаты и вызывает обработчики в текущей
// горутине. Результаты запросов без обработчика получает fallback (если задан),
// результаты отменённых запросов отбрасываются.
// Возвращает число доставленных результатов.
func (s *Service) Poll(fallback Handler) int {
	type delivery struct {
		result  Result
		handler Handler
	}

	s.mu.Lock()
	deliveries := make([]delivery, 0, len(s.results))
	for _, r := range s.results {
		h, outstanding := s.handlers[r.ID]
		if !outstanding {
			continue
		}
		delete(s.handlers, r.ID)
		if h == nil {
			h = fallback
		}
		deliveries = append(deliveries, delivery{result: r, handler: h})
	}
	s.results = nil
	s.mu.Unlock()

	for _, d := range deliveries {
		if d.handler != nil {
			d.handler(d.result.ID, d.result.Path)
		}
	}
	return len(deliveries)
}

// Pending возвращает число запросов, результат которых ещё не отдан
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Run вызывает Poll каждый раз, когда появляются результаты, до отмены ctx.
// Удобно, когда у потребителя нет своего цикла обновления.
func (s *Service) Run(ctx context.Context, fallback Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ready:
			s.Poll(fallback)
		}
	}
}
