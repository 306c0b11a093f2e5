package pathservice

import (
	"context"
	"sync"

	"github.com/annel0/voxel-nav/internal/pathfinder"
	"github.com/annel0/voxel-nav/internal/vec"
)

// Listener получает изменения лучшего пути
type Listener interface {
	OnPathReady(path pathfinder.Path)
	OnInvalidate()
}

// ListenerFuncs адаптер функций к Listener
type ListenerFuncs struct {
	PathReady  func(path pathfinder.Path)
	Invalidate func()
}

func (l ListenerFuncs) OnPathReady(path pathfinder.Path) {
	if l.PathReady != nil {
		l.PathReady(path)
	}
}

func (l ListenerFuncs) OnInvalidate() {
	if l.Invalidate != nil {
		l.Invalidate()
	}
}

// Requester описывает, что агрегатору нужно от Service
type Requester interface {
	RequestPath(ctx context.Context, starts []vec.Vec3, target vec.Vec3, h Handler) (uint64, error)
	Cancel(id uint64)
}

type targetState struct {
	target  vec.Vec3
	pending uint64 // 0 — ответа не ждём
	path    pathfinder.Path
}

// Aggregator ведёт для одного запрашивающего старт и набор целей и сообщает
// кратчайший из найденных путей. Обработчики результатов вызываются из
// Service.Poll, поэтому колбэки Listener приходят в цикле потребителя.
type Aggregator struct {
	requester Requester
	listener  Listener

	mu       sync.Mutex
	start    vec.Vec3
	hasStart bool
	targets  []*targetState // в порядке добавления, он же разрешает равные длины
	best     *targetState
}

// NewAggregator создаёт агрегатор
func NewAggregator(requester Requester, listener Listener) *Aggregator {
	return &Aggregator{requester: requester, listener: listener}
}

// Track начинает отслеживание заново: старые запросы и результаты забываются
func (a *Aggregator) Track(ctx context.Context, start vec.Vec3, targets []vec.Vec3) error {
	a.mu.Lock()
	a.cancelAllLocked()
	hadBest := a.best != nil
	a.targets = nil
	a.best = nil
	a.start = start
	a.hasStart = true
	a.mu.Unlock()

	if hadBest {
		a.listener.OnInvalidate()
	}
	for _, t := range targets {
		if err := a.AddTarget(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// AddTarget добавляет цель и запрашивает путь до неё
func (a *Aggregator) AddTarget(ctx context.Context, target vec.Vec3) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.find(target) != nil {
		return nil
	}
	state := &targetState{target: target}
	a.targets = append(a.targets, state)
	if !a.hasStart {
		return nil
	}
	return a.requestLocked(ctx, state)
}

// RemoveTarget перестаёт отслеживать цель. Если её путь был лучшим,
// лучший пересчитывается; если ничего не осталось — OnInvalidate.
func (a *Aggregator) RemoveTarget(target vec.Vec3) {
	a.mu.Lock()
	state := a.find(target)
	if state == nil {
		a.mu.Unlock()
		return
	}
	if state.pending != 0 {
		a.requester.Cancel(state.pending)
	}
	for i, s := range a.targets {
		if s == state {
			a.targets = append(a.targets[:i], a.targets[i+1:]...)
			break
		}
	}
	notify := a.best == state
	var next *targetState
	if notify {
		a.best = a.pickBest()
		next = a.best
	}
	a.mu.Unlock()

	if !notify {
		return
	}
	if next == nil {
		a.listener.OnInvalidate()
		return
	}
	a.listener.OnPathReady(next.path)
}

// SetStart меняет старт: все запросы и результаты забываются и запрашиваются заново.
// Уже выполняющийся поиск завершится, но его результат будет отброшен.
func (a *Aggregator) SetStart(ctx context.Context, start vec.Vec3) error {
	a.mu.Lock()
	if a.hasStart && a.start == start {
		a.mu.Unlock()
		return nil
	}
	a.start = start
	a.hasStart = true
	a.cancelAllLocked()
	hadBest := a.best != nil
	a.best = nil
	for _, s := range a.targets {
		s.path = pathfinder.Path{}
	}
	a.mu.Unlock()

	if hadBest {
		a.listener.OnInvalidate()
	}
	return a.Refresh(ctx)
}

// Refresh перезапрашивает все цели с текущего старта. Вызывающий подписывает его
// на navgraph.Manager.Subscribe, чтобы пересчитывать пути после GraphChanged.
// Старые результаты остаются в силе, пока не придут новые.
func (a *Aggregator) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasStart {
		return nil
	}
	a.cancelAllLocked()
	for _, s := range a.targets {
		if err := a.requestLocked(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Best возвращает текущий лучший путь
func (a *Aggregator) Best() (pathfinder.Path, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.best == nil {
		return pathfinder.Path{}, false
	}
	return a.best.path, true
}

// BestTarget возвращает цель текущего лучшего пути
func (a *Aggregator) BestTarget() (vec.Vec3, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.best == nil {
		return vec.Vec3{}, false
	}
	return a.best.target, true
}

// Targets возвращает отслеживаемые цели в порядке добавления
func (a *Aggregator) Targets() []vec.Vec3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := make([]vec.Vec3, len(a.targets))
	for i, s := range a.targets {
		result[i] = s.target
	}
	return result
}

// InFlight возвращает число запросов без ответа
func (a *Aggregator) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, s := range a.targets {
		if s.pending != 0 {
			n++
		}
	}
	return n
}

// requestLocked вызывается под a.mu: результат может прийти только через
// Service.Poll, который возьмёт a.mu уже после записи pending
func (a *Aggregator) requestLocked(ctx context.Context, state *targetState) error {
	id, err := a.requester.RequestPath(ctx, []vec.Vec3{a.start}, state.target, a.onResult)
	if err != nil {
		return err
	}
	state.pending = id
	return nil
}

func (a *Aggregator) onResult(id uint64, path pathfinder.Path) {
	a.mu.Lock()
	var state *targetState
	for _, s := range a.targets {
		if s.pending == id {
			state = s
			break
		}
	}
	if state == nil {
		// устаревший результат
		a.mu.Unlock()
		return
	}
	state.pending = 0
	state.path = path

	prev := a.best
	prevPath := pathfinder.Path{}
	if prev != nil {
		prevPath = prev.path
	}
	a.best = a.pickBest()
	next := a.best
	changed := next != prev || (next != nil && !samePath(next.path, prevPath))
	a.mu.Unlock()

	if !changed {
		return
	}
	if next == nil {
		a.listener.OnInvalidate()
		return
	}
	a.listener.OnPathReady(next.path)
}

// pickBest выбирает кратчайший валидный путь, при равной длине побеждает раньше добавленная цель
func (a *Aggregator) pickBest() *targetState {
	var best *targetState
	for _, s := range a.targets {
		if !s.path.IsValid() {
			continue
		}
		if best == nil || s.path.Length < best.path.Length {
			best = s
		}
	}
	return best
}

func (a *Aggregator) find(target vec.Vec3) *targetState {
	for _, s := range a.targets {
		if s.target == target {
			return s
		}
	}
	return nil
}

func (a *Aggregator) cancelAllLocked() {
	for _, s := range a.targets {
		if s.pending != 0 {
			a.requester.Cancel(s.pending)
			s.pending = 0
		}
	}
}

func samePath(a, b pathfinder.Path) bool {
	if a.Length != b.Length || len(a.Nodes) != len(b.Nodes) {
		return false
	}
	for i := range a.Nodes {
		if a.Nodes[i] != b.Nodes[i] {
			return false
		}
	}
	return true
}
