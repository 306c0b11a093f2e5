package navgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-nav/internal/eventbus"
	"github.com/annel0/voxel-nav/internal/logging"
	"github.com/annel0/voxel-nav/internal/metrics"
	"github.com/annel0/voxel-nav/internal/scheduler"
	"github.com/annel0/voxel-nav/internal/vec"
	"github.com/annel0/voxel-nav/internal/world"
)

// DefaultLookupDepth на сколько клеток вниз Lookup ищет блок под позицией
const DefaultLookupDepth = 3

// DefaultChangedCooldown окно сворачивания событий GraphChanged
const DefaultChangedCooldown = 400 * time.Millisecond

// Submitter принимает задачи на выполнение (реализуется scheduler.Scheduler)
type Submitter interface {
	Submit(ctx context.Context, task *scheduler.Task) error
}

// ChangeListener получает свёрнутые события изменения графа
type ChangeListener func(GraphChanged)

// Manager владеет графами всех загруженных чанков, перестраивает их по
// событиям мира и сшивает с соседями. Перестроения выполняются задачами
// планировщика, поэтому поиск пути никогда не видит граф в середине перестройки.
type Manager struct {
	source  world.VoxelSource
	sched   Submitter
	dims    Dimensions
	builder *Builder

	mu     sync.RWMutex
	chunks map[vec.Vec2]*ChunkGraph

	version  atomic.Uint64
	revision atomic.Uint64 // растёт при постановке каждого изменения в очередь
	notifier *changeNotifier

	listenersMu sync.RWMutex
	listeners   []ChangeListener

	lookupDepth int
	cooldown    time.Duration
	rules       Rules
	bus         eventbus.EventBus
	metrics     *metrics.NavMetrics
	logger      *logging.Logger
	tracer      trace.Tracer
}

// Option настраивает Manager
type Option func(*Manager)

// WithRules задаёт параметры проходимости
func WithRules(r Rules) Option { return func(m *Manager) { m.rules = r } }

// WithLookupDepth задаёт глубину поиска блока под позицией
func WithLookupDepth(depth int) Option { return func(m *Manager) { m.lookupDepth = depth } }

// WithChangedCooldown задаёт окно дебаунса GraphChanged
func WithChangedCooldown(d time.Duration) Option { return func(m *Manager) { m.cooldown = d } }

// WithEventBus публикует GraphChanged в шину событий
func WithEventBus(bus eventbus.EventBus) Option { return func(m *Manager) { m.bus = bus } }

// WithMetrics подключает Prometheus-метрики
func WithMetrics(nm *metrics.NavMetrics) Option { return func(m *Manager) { m.metrics = nm } }

// WithLogger задаёт логгер
func WithLogger(l *logging.Logger) Option { return func(m *Manager) { m.logger = l } }

// NewManager создаёт менеджер навигационного графа
func NewManager(source world.VoxelSource, sched Submitter, dims Dimensions, opts ...Option) *Manager {
	m := &Manager{
		source:      source,
		sched:       sched,
		dims:        dims,
		chunks:      make(map[vec.Vec2]*ChunkGraph),
		lookupDepth: DefaultLookupDepth,
		cooldown:    DefaultChangedCooldown,
		rules:       DefaultRules,
		tracer:      otel.Tracer("github.com/annel0/voxel-nav/internal/navgraph"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.GetComponentLogger(logging.ComponentNavGraph)
	}
	m.builder = NewBuilder(source, dims, m.rules)
	m.notifier = newChangeNotifier(m.cooldown, m.emitChanged)
	return m
}

// Dimensions возвращает размеры чанка
func (m *Manager) Dimensions() Dimensions { return m.dims }

// Version монотонно растёт с каждым перестроением
func (m *Manager) Version() uint64 { return m.version.Load() }

// Revision возвращает число запланированных изменений графа. В отличие от
// Version меняется сразу при постановке задачи, ещё до перестроения.
func (m *Manager) Revision() uint64 { return m.revision.Load() }

// Subscribe добавляет получателя GraphChanged. Вызывается из горутины таймера.
func (m *Manager) Subscribe(l ChangeListener) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenersMu.Unlock()
}

// Chunk возвращает текущий граф чанка
func (m *Manager) Chunk(coords vec.Vec2) (*ChunkGraph, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.chunks[coords]
	return g, ok
}

// ChunkCoords возвращает координаты всех чанков с графом
func (m *Manager) ChunkCoords() []vec.Vec2 {
	m.mu.RLock()
	result := make([]vec.Vec2, 0, len(m.chunks))
	for coords := range m.chunks {
		result = append(result, coords)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].X != result[j].X {
			return result[i].X < result[j].X
		}
		return result[i].Z < result[j].Z
	})
	return result
}

// Lookup находит блок, на котором стоит позиция: сначала на высоте pos.Y,
// затем до LookupDepth клеток вниз. Возвращает nil, если блока нет или
// граф чанка ещё не построен.
func (m *Manager) Lookup(pos vec.Vec3) *WalkableBlock {
	coords := pos.ChunkCoords(m.dims.SizeX, m.dims.SizeZ)

	m.mu.RLock()
	g, ok := m.chunks[coords]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	local := g.local(pos)
	for depth := 0; depth <= m.lookupDepth; depth++ {
		if b := g.BlockAt(vec.Vec3{X: local.X, Y: local.Y - depth, Z: local.Z}); b != nil {
			return b
		}
	}
	return nil
}

// OnWorldChanged ставит в очередь перестроение чанка, содержащего pos
func (m *Manager) OnWorldChanged(pos vec.Vec3) {
	m.ScheduleRebuild(context.Background(), pos.ChunkCoords(m.dims.SizeX, m.dims.SizeZ))
}

// OnChunkLoaded ставит в очередь построение графа нового чанка
func (m *Manager) OnChunkLoaded(coords vec.Vec2) {
	m.ScheduleRebuild(context.Background(), coords)
}

// OnChunkUnloaded ставит в очередь выгрузку графа чанка
func (m *Manager) OnChunkUnloaded(coords vec.Vec2) {
	m.ScheduleRemove(context.Background(), coords)
}

var _ world.Listener = (*Manager)(nil)

// ScheduleRebuild отправляет задачу перестроения чанка в планировщик.
// Может блокироваться, пока очередь переполнена.
func (m *Manager) ScheduleRebuild(ctx context.Context, coords vec.Vec2) {
	m.revision.Add(1)
	name := fmt.Sprintf("rebuild(%d,%d)", coords.X, coords.Z)
	task := scheduler.NewRebuildTask(name, func(ctx context.Context) {
		m.rebuild(ctx, coords)
	})
	if err := m.sched.Submit(ctx, task); err != nil {
		m.logger.Warn("Не удалось поставить перестроение чанка (%d,%d): %v", coords.X, coords.Z, err)
	}
}

// rebuild заново строит граф чанка и сшивает его с соседями.
// Должен выполняться только планировщиком.
func (m *Manager) rebuild(ctx context.Context, coords vec.Vec2) *ChunkGraph {
	_, span := m.tracer.Start(ctx, "navgraph.rebuild", trace.WithAttributes(
		attribute.Int("chunk.x", coords.X),
		attribute.Int("chunk.z", coords.Z),
	))
	defer span.End()

	started := time.Now()

	// новый граф собирается целиком до публикации
	g := m.builder.Build(coords)
	FindFloors(g)

	m.mu.Lock()
	if old, ok := m.chunks[coords]; ok {
		m.disconnect(old)
	}
	m.chunks[coords] = g
	links := m.connect(g)
	m.mu.Unlock()

	version := m.version.Add(1)
	took := time.Since(started)

	span.SetAttributes(
		attribute.Int("nav.blocks", g.BlockCount()),
		attribute.Int("nav.floors", len(g.floors)),
		attribute.Int("nav.border_links", links),
		attribute.Int64("nav.version", int64(version)),
	)
	if m.metrics != nil {
		m.metrics.ChunkRebuilds.Inc()
		m.metrics.WalkableBlocks.Observe(float64(g.BlockCount()))
	}
	m.logger.Debug("Чанк (%d,%d) перестроен: blocks=%d floors=%d links=%d version=%d за %s",
		coords.X, coords.Z, g.BlockCount(), len(g.floors), links, version, took)

	m.notifier.notify(coords, version)
	return g
}

// ScheduleRemove ставит в очередь выгрузку графа чанка
func (m *Manager) ScheduleRemove(ctx context.Context, coords vec.Vec2) {
	m.revision.Add(1)
	name := fmt.Sprintf("remove(%d,%d)", coords.X, coords.Z)
	task := scheduler.NewRebuildTask(name, func(context.Context) {
		m.remove(coords)
	})
	if err := m.sched.Submit(ctx, task); err != nil {
		m.logger.Warn("Не удалось поставить выгрузку чанка (%d,%d): %v", coords.X, coords.Z, err)
	}
}

// remove выгружает граф чанка и разрывает связи с соседями
func (m *Manager) remove(coords vec.Vec2) bool {
	m.mu.Lock()
	old, ok := m.chunks[coords]
	if ok {
		m.disconnect(old)
		delete(m.chunks, coords)
	}
	m.mu.Unlock()

	if ok {
		m.notifier.notify(coords, m.version.Add(1))
	}
	return ok
}

func (m *Manager) emitChanged(ev GraphChanged) {
	if m.metrics != nil {
		m.metrics.GraphChanged.Inc()
	}
	m.logger.Info("🧭 GraphChanged: version=%d chunks=%d", ev.Version, len(ev.Chunks))

	m.listenersMu.RLock()
	listeners := append([]ChangeListener(nil), m.listeners...)
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}

	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error("Ошибка сериализации GraphChanged: %v", err)
		return
	}
	env := eventbus.NewEnvelope("navgraph", eventbus.EventGraphChanged, payload)
	env.Priority = 5
	if err := m.bus.Publish(context.Background(), env); err != nil {
		m.logger.Warn("Не удалось опубликовать GraphChanged: %v", err)
	}
}

// Close отменяет отложенное событие GraphChanged
func (m *Manager) Close() {
	m.notifier.stop()
}
