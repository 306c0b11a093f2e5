package pathfinder

import (
	"github.com/annel0/voxel-nav/internal/navgraph"
)

// LineOfSight проверяет, что от a до b можно пройти по прямой: клетки
// отрезка Брезенхема на плоскости X/Z должны идти по существующим связям графа.
// Смена высоты допускается только там, где её разрешает связь.
func LineOfSight(a, b *navgraph.WalkableBlock) bool {
	if a == nil || b == nil {
		return false
	}
	from, to := a.Position(), b.Position()

	dx, dz := abs(to.X-from.X), abs(to.Z-from.Z)
	sx, sz := sign(to.X-from.X), sign(to.Z-from.Z)
	errTerm := dx - dz

	current := a
	x, z := from.X, from.Z
	for x != to.X || z != to.Z {
		stepX, stepZ := 0, 0
		e2 := 2 * errTerm
		if e2 > -dz {
			errTerm -= dz
			stepX = sx
		}
		if e2 < dx {
			errTerm += dx
			stepZ = sz
		}

		d, ok := directionOf(stepX, stepZ)
		if !ok {
			return false
		}
		next := current.Neighbor(d)
		if next == nil {
			return false
		}
		current = next
		x += stepX
		z += stepZ
	}
	return current == b
}

// Smooth жадно выбрасывает промежуточные узлы: от цели к старту берётся
// самый дальний узел, видимый из текущего. Первый и последний узлы сохраняются.
func Smooth(nodes []*navgraph.WalkableBlock) []*navgraph.WalkableBlock {
	if len(nodes) <= 2 {
		return append([]*navgraph.WalkableBlock(nil), nodes...)
	}

	smoothed := []*navgraph.WalkableBlock{nodes[0]}
	current := 0
	for current < len(nodes)-1 {
		farthest := current + 1
		for next := len(nodes) - 1; next > current+1; next-- {
			if LineOfSight(nodes[current], nodes[next]) {
				farthest = next
				break
			}
		}
		smoothed = append(smoothed, nodes[farthest])
		current = farthest
	}
	return smoothed
}

func directionOf(x, z int) (navgraph.Direction, bool) {
	for d := navgraph.Direction(0); d < navgraph.DirectionCount; d++ {
		off := d.Offset()
		if off.X == x && off.Z == z {
			return d, true
		}
	}
	return 0, false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
