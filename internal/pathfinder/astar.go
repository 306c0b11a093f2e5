package pathfinder

import (
	"container/heap"

	"github.com/annel0/voxel-nav/internal/navgraph"
)

// FindPath ищет кратчайший путь от любого из стартов до цели.
func FindPath(target *navgraph.WalkableBlock, starts []*navgraph.WalkableBlock) Path {
	path, _ := Search(target, starts)
	return path
}

// Search работает как FindPath и дополнительно возвращает число раскрытых узлов.
// Стоимость ребра и эвристика считаются как евклидово расстояние между позициями.
func Search(target *navgraph.WalkableBlock, starts []*navgraph.WalkableBlock) (Path, int) {
	if target == nil {
		return Invalid, 0
	}

	var seeds []*navgraph.WalkableBlock
	for _, s := range starts {
		if s == nil {
			continue
		}
		if s == target {
			return newPath([]*navgraph.WalkableBlock{target}), 0
		}
		seeds = append(seeds, s)
	}
	if !anyReachable(target, seeds) {
		return Invalid, 0
	}

	goal := target.Position()
	var seq uint64
	openSet := &priorityQueue{}
	items := make(map[*navgraph.WalkableBlock]*queueItem)
	parents := make(map[*navgraph.WalkableBlock]*navgraph.WalkableBlock)
	closed := make(map[*navgraph.WalkableBlock]struct{})

	for _, s := range seeds {
		if _, dup := items[s]; dup {
			continue
		}
		item := &queueItem{node: s, gScore: 0, fCost: s.Position().DistanceTo(goal), seq: seq}
		seq++
		items[s] = item
		heap.Push(openSet, item)
	}

	expanded := 0
	for openSet.Len() > 0 {
		current := heap.Pop(openSet).(*queueItem)
		if current.node == target {
			return newPath(reconstruct(parents, target)), expanded
		}
		closed[current.node] = struct{}{}
		expanded++

		for d := navgraph.Direction(0); d < navgraph.DirectionCount; d++ {
			next := current.node.Neighbor(d)
			if next == nil {
				continue
			}
			if _, done := closed[next]; done {
				continue
			}

			g := current.gScore + current.node.Position().DistanceTo(next.Position())
			item, seen := items[next]
			if !seen {
				item = &queueItem{node: next, gScore: g, fCost: g + next.Position().DistanceTo(goal), seq: seq}
				seq++
				items[next] = item
				parents[next] = current.node
				heap.Push(openSet, item)
				continue
			}
			if g < item.gScore {
				item.gScore = g
				item.fCost = g + next.Position().DistanceTo(goal)
				parents[next] = current.node
				heap.Fix(openSet, item.index)
			}
		}
	}
	return Invalid, expanded
}

// reconstruct собирает путь от цели к старту
func reconstruct(parents map[*navgraph.WalkableBlock]*navgraph.WalkableBlock, target *navgraph.WalkableBlock) []*navgraph.WalkableBlock {
	nodes := []*navgraph.WalkableBlock{target}
	for current := target; ; {
		parent, ok := parents[current]
		if !ok {
			return nodes
		}
		nodes = append(nodes, parent)
		current = parent
	}
}

// anyReachable отсекает заведомо недостижимую цель по графу этажей
func anyReachable(target *navgraph.WalkableBlock, starts []*navgraph.WalkableBlock) bool {
	goal := target.Floor()
	for _, s := range starts {
		if navgraph.Reachable(s.Floor(), goal) {
			return true
		}
	}
	return false
}
