package navgraph

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-nav/internal/vec"
)

// Entrance хранит представительную точку перехода с одного этажа на соседний
type Entrance struct {
	Block *WalkableBlock // блок на этаже From
	From  *Floor
	To    *Floor
}

// Floor представляет максимальное связное множество блоков чанка по горизонтальным
// и диагональным переходам на одной высоте. Шаги по вертикали этажи не объединяют.
type Floor struct {
	id     int
	coords vec.Vec2
	graph  *ChunkGraph
	blocks []*WalkableBlock

	mu        sync.RWMutex
	entrances map[*Floor]*Entrance
}

func newFloor(id int, g *ChunkGraph) *Floor {
	return &Floor{
		id:        id,
		coords:    g.Coords,
		graph:     g,
		entrances: make(map[*Floor]*Entrance),
	}
}

// ID уникален в пределах одного перестроения чанка
func (f *Floor) ID() int { return f.id }

// Chunk возвращает координаты чанка этажа
func (f *Floor) Chunk() vec.Vec2 { return f.coords }

// Blocks возвращает блоки этажа в порядке обнаружения
func (f *Floor) Blocks() []*WalkableBlock { return f.blocks }

// addEntrance запоминает первый найденный переход на этаж to
func (f *Floor) addEntrance(block *WalkableBlock, to *Floor) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.entrances[to]; exists {
		return
	}
	f.entrances[to] = &Entrance{Block: block, From: f, To: to}
}

// removeLinksTo удаляет переходы на этажи указанного графа
func (f *Floor) removeLinksTo(g *ChunkGraph) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for to := range f.entrances {
		if to.graph == g {
			delete(f.entrances, to)
		}
	}
}

// EntranceTo возвращает переход на этаж other
func (f *Floor) EntranceTo(other *Floor) (*Entrance, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	e, ok := f.entrances[other]
	return e, ok
}

// IsNeighbor проверяет, граничит ли этаж с other
func (f *Floor) IsNeighbor(other *Floor) bool {
	_, ok := f.EntranceTo(other)
	return ok
}

// Entrances возвращает переходы, отсортированные по чанку и id целевого этажа
func (f *Floor) Entrances() []*Entrance {
	f.mu.RLock()
	result := make([]*Entrance, 0, len(f.entrances))
	for _, e := range f.entrances {
		result = append(result, e)
	}
	f.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return floorLess(result[i].To, result[j].To)
	})
	return result
}

// Neighbors возвращает соседние этажи (в чанке и в соседних чанках)
func (f *Floor) Neighbors() []*Floor {
	entrances := f.Entrances()
	result := make([]*Floor, len(entrances))
	for i, e := range entrances {
		result[i] = e.To
	}
	return result
}

func floorLess(a, b *Floor) bool {
	if a.coords.X != b.coords.X {
		return a.coords.X < b.coords.X
	}
	if a.coords.Z != b.coords.Z {
		return a.coords.Z < b.coords.Z
	}
	return a.id < b.id
}

// Reachable грубо проверяет достижимость этажа to из from обходом графа этажей
func Reachable(from, to *Floor) bool {
	if from == nil || to == nil {
		return false
	}
	if from == to {
		return true
	}

	visited := map[*Floor]struct{}{from: {}}
	queue := []*Floor{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range current.Neighbors() {
			if next == to {
				return true
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return false
}
