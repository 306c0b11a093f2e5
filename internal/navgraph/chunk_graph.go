package navgraph

import (
	"sort"

	"github.com/annel0/voxel-nav/internal/vec"
)

// Dimensions размеры чанка в вокселях
type Dimensions struct {
	SizeX  int
	Height int
	SizeZ  int
}

// Rules параметры проходимости
type Rules struct {
	Clearance    int // свободных клеток над блоком, чтобы на нём стоять
	StepHeadroom int // свободных клеток над нижним блоком для шага на ±1
}

// DefaultRules описывает юнита высотой в две клетки
var DefaultRules = Rules{Clearance: 2, StepHeadroom: 3}

// ChunkGraph хранит навигационный граф одного чанка. Строится целиком до публикации
// и после этого меняются только связи граничных блоков при сшивке.
type ChunkGraph struct {
	Coords vec.Vec2

	dims    Dimensions
	origin  vec.Vec3
	columns [][]*WalkableBlock // x*SizeZ+z, блоки по возрастанию высоты
	border  []*WalkableBlock
	floors  []*Floor
	count   int
}

func newChunkGraph(coords vec.Vec2, dims Dimensions) *ChunkGraph {
	return &ChunkGraph{
		Coords:  coords,
		dims:    dims,
		origin:  vec.Vec3{X: coords.X * dims.SizeX, Y: 0, Z: coords.Z * dims.SizeZ},
		columns: make([][]*WalkableBlock, dims.SizeX*dims.SizeZ),
	}
}

// Dimensions возвращает размеры чанка
func (g *ChunkGraph) Dimensions() Dimensions { return g.dims }

// Origin возвращает мировые координаты локального (0,0,0)
func (g *ChunkGraph) Origin() vec.Vec3 { return g.origin }

// BlockCount возвращает число WalkableBlock в чанке
func (g *ChunkGraph) BlockCount() int { return g.count }

// Floors возвращает этажи в порядке id
func (g *ChunkGraph) Floors() []*Floor { return g.floors }

// BorderBlocks возвращает блоки, у которых хотя бы одно направление ведёт за пределы чанка
func (g *ChunkGraph) BorderBlocks() []*WalkableBlock { return g.border }

func (g *ChunkGraph) inColumns(x, z int) bool {
	return x >= 0 && x < g.dims.SizeX && z >= 0 && z < g.dims.SizeZ
}

// Column возвращает блоки колонки (локальные x, z) по возрастанию высоты
func (g *ChunkGraph) Column(x, z int) []*WalkableBlock {
	if !g.inColumns(x, z) {
		return nil
	}
	return g.columns[x*g.dims.SizeZ+z]
}

// BlockAt возвращает блок ровно на локальной позиции
func (g *ChunkGraph) BlockAt(local vec.Vec3) *WalkableBlock {
	for _, b := range g.Column(local.X, local.Z) {
		if b.pos.Y == local.Y {
			return b
		}
		if b.pos.Y > local.Y {
			break
		}
	}
	return nil
}

// blockNear ищет блок колонки на высоте y-1..y+1. Правила построения
// гарантируют, что такой блок не больше одного.
func (g *ChunkGraph) blockNear(x, z, y int) *WalkableBlock {
	for _, b := range g.Column(x, z) {
		if b.pos.Y >= y-1 && b.pos.Y <= y+1 {
			return b
		}
		if b.pos.Y > y+1 {
			break
		}
	}
	return nil
}

// Blocks возвращает все блоки в порядке обхода: x, затем z, затем высота
func (g *ChunkGraph) Blocks() []*WalkableBlock {
	result := make([]*WalkableBlock, 0, g.count)
	for _, column := range g.columns {
		result = append(result, column...)
	}
	return result
}

// local переводит мировую позицию в локальную для этого чанка
func (g *ChunkGraph) local(pos vec.Vec3) vec.Vec3 {
	return pos.Sub(g.origin)
}

func sortFloors(floors []*Floor) {
	sort.Slice(floors, func(i, j int) bool { return floorLess(floors[i], floors[j]) })
}
