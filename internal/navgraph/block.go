package navgraph

import (
	"sync/atomic"

	"github.com/annel0/voxel-nav/internal/vec"
)

// Direction одно из 8 направлений соседства на плоскости X/Z
type Direction int

const (
	North Direction = iota // -Z
	East                   // +X
	South                  // +Z
	West                   // -X
	NorthEast
	SouthEast
	SouthWest
	NorthWest

	DirectionCount
)

var directionOffsets = [DirectionCount]vec.Vec2{
	North:     {X: 0, Z: -1},
	East:      {X: 1, Z: 0},
	South:     {X: 0, Z: 1},
	West:      {X: -1, Z: 0},
	NorthEast: {X: 1, Z: -1},
	SouthEast: {X: 1, Z: 1},
	SouthWest: {X: -1, Z: 1},
	NorthWest: {X: -1, Z: -1},
}

// Offset возвращает смещение колонки в этом направлении
func (d Direction) Offset() vec.Vec2 {
	return directionOffsets[d]
}

// IsDiagonal true для NE, SE, SW, NW
func (d Direction) IsDiagonal() bool {
	return d >= NorthEast
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	if d.IsDiagonal() {
		return NorthEast + (d-NorthEast+2)%4
	}
	return (d + 2) % 4
}

// Corners возвращает два кардинальных направления, образующих диагональ
func (d Direction) Corners() (Direction, Direction) {
	switch d {
	case NorthEast:
		return North, East
	case SouthEast:
		return South, East
	case SouthWest:
		return South, West
	default:
		return North, West
	}
}

// WalkableBlock описывает позицию, на которой может стоять юнит: твёрдый воксель под ней
// и свободное пространство над ней. Позиция неизменна; связи с соседями
// выставляются при построении чанка и при сшивке с соседними чанками.
type WalkableBlock struct {
	pos       vec.Vec3
	neighbors [DirectionCount]atomic.Pointer[WalkableBlock]
	floor     atomic.Pointer[Floor]
}

func newWalkableBlock(pos vec.Vec3) *WalkableBlock {
	return &WalkableBlock{pos: pos}
}

// Position возвращает мировые координаты блока
func (b *WalkableBlock) Position() vec.Vec3 {
	return b.pos
}

// Neighbor возвращает соседа в направлении d или nil
func (b *WalkableBlock) Neighbor(d Direction) *WalkableBlock {
	return b.neighbors[d].Load()
}

// Neighbors возвращает всех соседей в порядке направлений
func (b *WalkableBlock) Neighbors() []*WalkableBlock {
	result := make([]*WalkableBlock, 0, DirectionCount)
	for d := Direction(0); d < DirectionCount; d++ {
		if n := b.neighbors[d].Load(); n != nil {
			result = append(result, n)
		}
	}
	return result
}

// Floor возвращает этаж, которому принадлежит блок
func (b *WalkableBlock) Floor() *Floor {
	return b.floor.Load()
}

func (b *WalkableBlock) setNeighbor(d Direction, n *WalkableBlock) {
	b.neighbors[d].Store(n)
}

// graph возвращает граф чанка, владеющий блоком
func (b *WalkableBlock) graph() *ChunkGraph {
	if f := b.floor.Load(); f != nil {
		return f.graph
	}
	return nil
}

func (b *WalkableBlock) String() string {
	return "WalkableBlock" + b.pos.String()
}
