package navgraph

import (
	"sort"
	"sync"
	"time"

	"github.com/annel0/voxel-nav/internal/vec"
)

// GraphChanged сообщает, что навигационный граф изменился. Несколько
// перестроений в пределах окна сворачиваются в одно событие.
type GraphChanged struct {
	Version uint64     `json:"version"`
	Chunks  []vec.Vec2 `json:"chunks"`
	At      time.Time  `json:"at"`
}

// changeNotifier реализует дебаунс по заднему фронту: первое перестроение после тишины
// запускает таймер, все перестроения до его срабатывания попадают в одно событие.
type changeNotifier struct {
	cooldown time.Duration
	emit     func(GraphChanged)

	mu      sync.Mutex
	pending map[vec.Vec2]struct{}
	version uint64
	timer   *time.Timer
	stopped bool
}

func newChangeNotifier(cooldown time.Duration, emit func(GraphChanged)) *changeNotifier {
	return &changeNotifier{
		cooldown: cooldown,
		emit:     emit,
		pending:  make(map[vec.Vec2]struct{}),
	}
}

func (n *changeNotifier) notify(coords vec.Vec2, version uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return
	}
	n.pending[coords] = struct{}{}
	if version > n.version {
		n.version = version
	}
	if n.timer == nil {
		n.timer = time.AfterFunc(n.cooldown, n.flush)
	}
}

func (n *changeNotifier) flush() {
	n.mu.Lock()
	if n.stopped || len(n.pending) == 0 {
		n.timer = nil
		n.mu.Unlock()
		return
	}
	ev := GraphChanged{Version: n.version, At: time.Now()}
	for coords := range n.pending {
		ev.Chunks = append(ev.Chunks, coords)
	}
	n.pending = make(map[vec.Vec2]struct{})
	n.timer = nil
	n.mu.Unlock()

	sort.Slice(ev.Chunks, func(i, j int) bool {
		if ev.Chunks[i].X != ev.Chunks[j].X {
			return ev.Chunks[i].X < ev.Chunks[j].X
		}
		return ev.Chunks[i].Z < ev.Chunks[j].Z
	})
	n.emit(ev)
}

// stop отменяет отложенное событие
func (n *changeNotifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopped = true
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
