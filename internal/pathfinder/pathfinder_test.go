package pathfinder

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-nav/internal/logging"
	"github.com/annel0/voxel-nav/internal/navgraph"
	"github.com/annel0/voxel-nav/internal/scheduler"
	"github.com/annel0/voxel-nav/internal/vec"
	"github.com/annel0/voxel-nav/internal/world"
)

type inlineSubmitter struct{}

func (inlineSubmitter) Submit(ctx context.Context, task *scheduler.Task) error {
	task.Run(ctx)
	return nil
}

// newGraph строит граф по чанкам; edit правит каждый чанк перед загрузкой
func newGraph(t *testing.T, sx, h, sz int, coords []vec.Vec2, edit func(c *world.Chunk)) *navgraph.Manager {
	t.Helper()
	w := world.NewVoxelWorld(sx, h, sz)
	m := navgraph.NewManager(w, inlineSubmitter{}, navgraph.Dimensions{SizeX: sx, Height: h, SizeZ: sz},
		navgraph.WithLogger(logging.NewWriterLogger("navgraph", io.Discard, logging.ERROR)))
	w.AddListener(m)
	t.Cleanup(m.Close)

	for _, cc := range coords {
		c := world.NewChunk(cc, sx, h, sz)
		for x := 0; x < sx; x++ {
			for z := 0; z < sz; z++ {
				c.FillColumn(x, z, 1)
			}
		}
		if edit != nil {
			edit(c)
		}
		w.LoadChunk(c)
	}
	return m
}

func block(t *testing.T, m *navgraph.Manager, x, y, z int) *navgraph.WalkableBlock {
	t.Helper()
	b := m.Lookup(vec.Vec3{X: x, Y: y, Z: z})
	require.NotNil(t, b, "нет блока в (%d,%d,%d)", x, y, z)
	return b
}

func TestStraightCorridor(t *testing.T) {
	m := newGraph(t, 5, 4, 1, []vec.Vec2{{}}, nil)
	start, target := block(t, m, 0, 1, 0), block(t, m, 4, 1, 0)

	path := FindPath(target, []*navgraph.WalkableBlock{start})

	require.True(t, path.IsValid())
	assert.Len(t, path.Nodes, 5, "5 узлов в коридоре из 5 клеток")
	assert.InDelta(t, 4.0, path.Length, 1e-9)
	assert.Same(t, target, path.Target(), "путь идёт от цели к старту")
	assert.Same(t, start, path.Start())
	assert.Equal(t, []vec.Vec3{{X: 4, Y: 1}, {X: 0, Y: 1}}, path.WaypointPositions(), "прямой коридор сглаживается до двух точек")
}

func TestDisconnectedTargetIsInvalid(t *testing.T) {
	m := newGraph(t, 5, 4, 1, []vec.Vec2{{}}, func(c *world.Chunk) {
		c.FillColumn(2, 0, 4)
	})

	path := FindPath(block(t, m, 4, 1, 0), []*navgraph.WalkableBlock{block(t, m, 0, 1, 0)})
	assert.True(t, path.IsInvalid())
	assert.False(t, path.IsPending(), "INVALID отличается от ещё не посчитанного пути")
	assert.True(t, Path{}.IsPending())
	assert.Equal(t, "Path(INVALID)", path.String())
}

func TestStartEqualsTarget(t *testing.T) {
	m := newGraph(t, 3, 4, 3, []vec.Vec2{{}}, nil)
	b := block(t, m, 1, 1, 1)

	path := FindPath(b, []*navgraph.WalkableBlock{b})
	require.True(t, path.IsValid())
	assert.Len(t, path.Nodes, 1)
	assert.Zero(t, path.Length)
	assert.Len(t, path.Waypoints, 1)
}

func TestNoStartsOrNilTarget(t *testing.T) {
	m := newGraph(t, 3, 4, 3, []vec.Vec2{{}}, nil)
	assert.True(t, FindPath(block(t, m, 1, 1, 1), nil).IsInvalid())
	assert.True(t, FindPath(nil, []*navgraph.WalkableBlock{block(t, m, 0, 1, 0)}).IsInvalid())
}

func TestMultipleStartsPickClosest(t *testing.T) {
	m := newGraph(t, 5, 4, 1, []vec.Vec2{{}}, nil)
	far, near := block(t, m, 0, 1, 0), block(t, m, 3, 1, 0)
	target := block(t, m, 4, 1, 0)

	path := FindPath(target, []*navgraph.WalkableBlock{far, near})
	require.True(t, path.IsValid())
	assert.Same(t, near, path.Start())
	assert.InDelta(t, 1.0, path.Length, 1e-9)
}

func TestDiagonalCostsMore(t *testing.T) {
	m := newGraph(t, 5, 4, 5, []vec.Vec2{{}}, nil)
	path := FindPath(block(t, m, 3, 1, 3), []*navgraph.WalkableBlock{block(t, m, 0, 1, 0)})

	require.True(t, path.IsValid())
	assert.Len(t, path.Nodes, 4)
	assert.InDelta(t, 3*math.Sqrt2, path.Length, 1e-9)
}

func TestStepCostsActualDisplacement(t *testing.T) {
	m := newGraph(t, 2, 6, 1, []vec.Vec2{{}}, func(c *world.Chunk) {
		c.FillColumn(1, 0, 2)
	})
	path := FindPath(block(t, m, 1, 2, 0), []*navgraph.WalkableBlock{block(t, m, 0, 1, 0)})

	require.True(t, path.IsValid())
	assert.InDelta(t, math.Sqrt2, path.Length, 1e-9)
}

func TestPathCrossesChunks(t *testing.T) {
	m := newGraph(t, 3, 4, 3, []vec.Vec2{{X: 0}, {X: 1}}, nil)
	path := FindPath(block(t, m, 5, 1, 1), []*navgraph.WalkableBlock{block(t, m, 0, 1, 1)})

	require.True(t, path.IsValid())
	assert.InDelta(t, 5.0, path.Length, 1e-9)
	assert.Len(t, path.Nodes, 6)
}

func TestSmoothingAroundWall(t *testing.T) {
	m := newGraph(t, 7, 4, 7, []vec.Vec2{{}}, func(c *world.Chunk) {
		for z := 0; z < 5; z++ {
			c.FillColumn(3, z, 4)
		}
	})
	start, target := block(t, m, 0, 1, 0), block(t, m, 6, 1, 0)

	path := FindPath(target, []*navgraph.WalkableBlock{start})
	require.True(t, path.IsValid())

	wp := path.Waypoints
	require.GreaterOrEqual(t, len(wp), 3, "стена не даёт пройти напрямую")
	assert.Less(t, len(wp), len(path.Nodes), "сглаживание убирает промежуточные узлы")
	assert.Same(t, target, wp[0])
	assert.Same(t, start, wp[len(wp)-1])
	for i := 1; i < len(wp); i++ {
		assert.True(t, LineOfSight(wp[i-1], wp[i]), "между соседними точками есть прямая видимость")
	}
	for _, b := range path.Nodes {
		assert.GreaterOrEqual(t, b.Position().Z, 0)
	}
}

func TestLineOfSight(t *testing.T) {
	m := newGraph(t, 5, 4, 5, []vec.Vec2{{}}, func(c *world.Chunk) {
		c.FillColumn(2, 2, 4)
	})

	assert.True(t, LineOfSight(block(t, m, 0, 1, 0), block(t, m, 4, 1, 0)))
	assert.True(t, LineOfSight(block(t, m, 0, 1, 0), block(t, m, 4, 1, 1)))
	assert.False(t, LineOfSight(block(t, m, 0, 1, 2), block(t, m, 4, 1, 2)), "столб на пути")
	assert.False(t, LineOfSight(block(t, m, 1, 1, 1), block(t, m, 3, 1, 3)), "диагональ через столб")
}
