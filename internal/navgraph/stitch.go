package navgraph

import (
	"github.com/annel0/voxel-nav/internal/vec"
)

// chunkNeighbors перечисляет соседние чанки для сшивки, только четыре ортогональных.
// Диагональные связи через угол в диагональный чанк не создаются.
var chunkNeighbors = [4]vec.Vec2{
	{X: 0, Z: -1},
	{X: 1, Z: 0},
	{X: 0, Z: 1},
	{X: -1, Z: 0},
}

// disconnect убирает все связи соседних чанков с блоками и этажами g.
// Вызывается под m.mu.
func (m *Manager) disconnect(g *ChunkGraph) {
	for _, block := range g.border {
		for d := Direction(0); d < DirectionCount; d++ {
			other := block.Neighbor(d)
			if other == nil || other.graph() == g {
				continue
			}
			other.setNeighbor(d.Opposite(), nil)
			block.setNeighbor(d, nil)
		}
	}

	for _, off := range chunkNeighbors {
		neighbor, ok := m.chunks[g.Coords.Add(off)]
		if !ok {
			continue
		}
		for _, floor := range neighbor.floors {
			floor.removeLinksTo(g)
		}
	}
}

// connect сшивает граничные блоки g с уже загруженными ортогональными соседями
// и добавляет межчанковые переходы между этажами. Вызывается под m.mu.
func (m *Manager) connect(g *ChunkGraph) int {
	links := 0
	for _, block := range g.border {
		local := g.local(block.pos)
		for d := Direction(0); d < DirectionCount; d++ {
			off := d.Offset()
			nx, nz := local.X+off.X, local.Z+off.Z
			if g.inColumns(nx, nz) {
				continue
			}

			target := vec.Vec3{X: block.pos.X + off.X, Y: block.pos.Y, Z: block.pos.Z + off.Z}
			coords := target.ChunkCoords(m.dims.SizeX, m.dims.SizeZ)
			if !isOrthogonal(g.Coords, coords) {
				continue
			}
			neighbor, ok := m.chunks[coords]
			if !ok {
				continue
			}

			tl := neighbor.local(target)
			other := neighbor.blockNear(tl.X, tl.Z, target.Y)
			if other == nil || !m.builder.canLink(block.pos, other.pos, d) {
				continue
			}

			block.setNeighbor(d, other)
			other.setNeighbor(d.Opposite(), block)
			block.Floor().addEntrance(block, other.Floor())
			other.Floor().addEntrance(other, block.Floor())
			links++
		}
	}
	return links
}

func isOrthogonal(a, b vec.Vec2) bool {
	dx, dz := b.X-a.X, b.Z-a.Z
	return (dx == 0) != (dz == 0) && dx >= -1 && dx <= 1 && dz >= -1 && dz <= 1
}
