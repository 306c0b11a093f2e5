package navgraph

import (
	"github.com/annel0/voxel-nav/internal/vec"
	"github.com/annel0/voxel-nav/internal/world"
)

// Builder строит навигационные графы чанков по вокселям мира
type Builder struct {
	source world.VoxelSource
	dims   Dimensions
	rules  Rules
}

// NewBuilder создаёт построитель графов
func NewBuilder(source world.VoxelSource, dims Dimensions, rules Rules) *Builder {
	return &Builder{source: source, dims: dims, rules: rules}
}

func (b *Builder) traversable(pos vec.Vec3) bool {
	return b.source.GetVoxel(pos).Traversable
}

// clear проверяет, что n клеток колонки начиная с pos.Y свободны
func (b *Builder) clear(pos vec.Vec3, n int) bool {
	for i := 0; i < n; i++ {
		if !b.traversable(vec.Vec3{X: pos.X, Y: pos.Y + i, Z: pos.Z}) {
			return false
		}
	}
	return true
}

// Build строит граф чанка: блоки, связи внутри чанка и список граничных блоков.
// Этажи не вычисляются, для этого есть FindFloors.
func (b *Builder) Build(coords vec.Vec2) *ChunkGraph {
	g := newChunkGraph(coords, b.dims)

	for x := 0; x < b.dims.SizeX; x++ {
		for z := 0; z < b.dims.SizeZ; z++ {
			g.columns[x*b.dims.SizeZ+z] = b.scanColumn(g.origin.Add(vec.Vec3{X: x, Z: z}))
			g.count += len(g.columns[x*b.dims.SizeZ+z])
		}
	}

	for x := 0; x < b.dims.SizeX; x++ {
		for z := 0; z < b.dims.SizeZ; z++ {
			for _, block := range g.Column(x, z) {
				b.linkInside(g, block, x, z)
			}
		}
	}
	return g
}

// scanColumn идёт по колонке сверху вниз, считая подряд идущие свободные клетки.
// Блок появляется над твёрдой клеткой, если над ней не меньше Clearance свободных.
func (b *Builder) scanColumn(base vec.Vec3) []*WalkableBlock {
	var blocks []*WalkableBlock

	// выше мира всегда открытое небо
	run := b.rules.Clearance
	for y := b.dims.Height - 1; y >= 0; y-- {
		pos := vec.Vec3{X: base.X, Y: y, Z: base.Z}
		if b.traversable(pos) {
			run++
			continue
		}
		if run >= b.rules.Clearance && y+1 < b.dims.Height {
			blocks = append(blocks, newWalkableBlock(pos.Add(vec.Vec3{Y: 1})))
		}
		run = 0
	}

	// по возрастанию высоты
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return blocks
}

func (b *Builder) linkInside(g *ChunkGraph, block *WalkableBlock, x, z int) {
	bordered := false
	for d := Direction(0); d < DirectionCount; d++ {
		off := d.Offset()
		nx, nz := x+off.X, z+off.Z
		if !g.inColumns(nx, nz) {
			bordered = true
			continue
		}
		other := g.blockNear(nx, nz, block.pos.Y)
		if other != nil && b.canLink(block.pos, other.pos, d) {
			block.setNeighbor(d, other)
		}
	}
	if bordered {
		g.border = append(g.border, block)
	}
}

// canLink решает, связаны ли два блока соседних колонок. Правило симметрично:
// canLink(a, b, d) == canLink(b, a, d.Opposite()).
func (b *Builder) canLink(from, to vec.Vec3, d Direction) bool {
	dy := to.Y - from.Y
	if dy < -1 || dy > 1 {
		return false
	}

	if d.IsDiagonal() {
		if dy != 0 {
			return false
		}
		// срезать угол можно только если оба угловых столбца свободны
		c1, c2 := d.Corners()
		o1, o2 := c1.Offset(), c2.Offset()
		corner1 := vec.Vec3{X: from.X + o1.X, Y: from.Y, Z: from.Z + o1.Z}
		corner2 := vec.Vec3{X: from.X + o2.X, Y: from.Y, Z: from.Z + o2.Z}
		return b.clear(corner1, b.rules.Clearance) && b.clear(corner2, b.rules.Clearance)
	}

	if dy == 0 {
		return true
	}

	// шаг вверх или вниз: над нижним блоком нужно место для подъёма
	lower := from
	if to.Y < from.Y {
		lower = to
	}
	return b.clear(lower, b.rules.StepHeadroom)
}
