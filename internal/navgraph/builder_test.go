package navgraph

import (
	"testing"

	"github.com/annel0/voxel-nav/internal/vec"
	"github.com/annel0/voxel-nav/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSingle(t *testing.T, c *world.Chunk) *ChunkGraph {
	t.Helper()
	w := world.NewVoxelWorld(c.SizeX, c.Height, c.SizeZ)
	w.LoadChunk(c)
	b := NewBuilder(w, Dimensions{SizeX: c.SizeX, Height: c.Height, SizeZ: c.SizeZ}, DefaultRules)
	g := b.Build(c.Coords)
	FindFloors(g)
	return g
}

func TestEmptyAndSolidChunksHaveNoBlocks(t *testing.T) {
	air := world.NewChunk(vec.Vec2{}, 3, 4, 3)
	assert.Equal(t, 0, buildSingle(t, air).BlockCount(), "чанк из воздуха пуст")

	solid := world.NewChunk(vec.Vec2{}, 3, 4, 3)
	for x := 0; x < 3; x++ {
		for z := 0; z < 3; z++ {
			solid.FillColumn(x, z, 4)
		}
	}
	g := buildSingle(t, solid)
	assert.Equal(t, 0, g.BlockCount(), "сплошной чанк пуст")
	assert.Empty(t, g.Floors())
}

func TestEveryBlockHasSolidBelowAndClearanceAbove(t *testing.T) {
	c := flatChunk(vec.Vec2{}, 4, 8, 4)
	c.FillColumn(1, 1, 3)
	c.SetSolid(vec.Vec3{X: 2, Y: 4, Z: 2}, true)
	c.SetSolid(vec.Vec3{X: 3, Y: 2, Z: 0}, true) // потолок ниже нормы

	w := world.NewVoxelWorld(4, 8, 4)
	w.LoadChunk(c)
	g := NewBuilder(w, Dimensions{SizeX: 4, Height: 8, SizeZ: 4}, DefaultRules).Build(vec.Vec2{})

	require.NotZero(t, g.BlockCount())
	for _, b := range g.Blocks() {
		assert.False(t, w.GetVoxel(b.pos.Below()).Traversable, "под блоком %s твёрдая клетка", b.pos)
		for i := 0; i < DefaultRules.Clearance; i++ {
			assert.True(t, w.GetVoxel(b.pos.Add(vec.Vec3{Y: i})).Traversable, "над блоком %s свободно", b.pos)
		}
	}
	assert.Nil(t, g.BlockAt(vec.Vec3{X: 3, Y: 1, Z: 0}), "без двух свободных клеток стоять нельзя")
	assert.NotNil(t, g.BlockAt(vec.Vec3{X: 2, Y: 5, Z: 2}), "на парящей клетке можно стоять")
}

func TestCornerPillarBlocksDiagonal(t *testing.T) {
	c := flatChunk(vec.Vec2{}, 3, 4, 3)
	c.FillColumn(0, 0, 4)
	g := buildSingle(t, c)

	assert.Equal(t, 8, g.BlockCount())
	assert.Nil(t, g.BlockAt(vec.Vec3{X: 0, Y: 1, Z: 0}))

	north := g.BlockAt(vec.Vec3{X: 1, Y: 1, Z: 0})
	west := g.BlockAt(vec.Vec3{X: 0, Y: 1, Z: 1})
	center := g.BlockAt(vec.Vec3{X: 1, Y: 1, Z: 1})
	require.NotNil(t, north)
	require.NotNil(t, west)
	require.NotNil(t, center)

	assert.Nil(t, north.Neighbor(SouthWest), "диагональ через угол столба отсутствует")
	assert.Nil(t, west.Neighbor(NorthEast), "диагональ через угол столба отсутствует")
	assert.Nil(t, center.Neighbor(NorthWest))

	assert.Same(t, center, north.Neighbor(South), "прямые связи сохраняются")
	assert.Same(t, center, west.Neighbor(East), "прямые связи сохраняются")
	assert.Same(t, g.BlockAt(vec.Vec3{X: 2, Y: 1, Z: 0}), center.Neighbor(NorthEast), "остальные диагонали на месте")
}

func TestLinksAreSymmetric(t *testing.T) {
	c := flatChunk(vec.Vec2{}, 4, 8, 4)
	c.FillColumn(2, 2, 2)
	c.FillColumn(3, 2, 3)
	c.FillColumn(0, 3, 4)
	g := buildSingle(t, c)

	for _, b := range g.Blocks() {
		for d := Direction(0); d < DirectionCount; d++ {
			if n := b.Neighbor(d); n != nil {
				assert.Same(t, b, n.Neighbor(d.Opposite()), "связь %s -> %s симметрична", b.pos, n.pos)
				dy := n.pos.Y - b.pos.Y
				assert.True(t, dy >= -1 && dy <= 1)
				if d.IsDiagonal() {
					assert.Zero(t, dy, "диагональ только на одной высоте")
				}
			}
		}
	}
}

func TestStepNeedsHeadroom(t *testing.T) {
	open := world.NewChunk(vec.Vec2{}, 2, 6, 1)
	open.FillColumn(0, 0, 1)
	open.FillColumn(1, 0, 2)
	g := buildSingle(t, open)
	low := g.BlockAt(vec.Vec3{X: 0, Y: 1, Z: 0})
	high := g.BlockAt(vec.Vec3{X: 1, Y: 2, Z: 0})
	require.NotNil(t, low)
	require.NotNil(t, high)
	assert.Same(t, high, low.Neighbor(East), "шаг вверх на одну клетку")

	ceiling := world.NewChunk(vec.Vec2{}, 2, 6, 1)
	ceiling.FillColumn(0, 0, 1)
	ceiling.FillColumn(1, 0, 2)
	ceiling.SetSolid(vec.Vec3{X: 0, Y: 3, Z: 0}, true)
	g = buildSingle(t, ceiling)
	low = g.BlockAt(vec.Vec3{X: 0, Y: 1, Z: 0})
	require.NotNil(t, low)
	assert.Nil(t, low.Neighbor(East), "низкий потолок не даёт подняться")
}

func TestDirectionOpposite(t *testing.T) {
	for d := Direction(0); d < DirectionCount; d++ {
		off := d.Offset()
		back := d.Opposite().Offset()
		assert.Equal(t, vec.Vec2{X: -off.X, Z: -off.Z}, back, "направление %d", d)
		assert.Equal(t, d, d.Opposite().Opposite())
	}
}
