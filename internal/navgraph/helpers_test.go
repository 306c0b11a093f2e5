package navgraph

import (
	"context"
	"fmt"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/annel0/voxel-nav/internal/logging"
	"github.com/annel0/voxel-nav/internal/scheduler"
	"github.com/annel0/voxel-nav/internal/vec"
	"github.com/annel0/voxel-nav/internal/world"
)

// inlineSubmitter выполняет задачи сразу в вызывающей горутине
type inlineSubmitter struct{}

func (inlineSubmitter) Submit(ctx context.Context, task *scheduler.Task) error {
	task.Run(ctx)
	return nil
}

func quietLogger() *logging.Logger {
	return logging.NewWriterLogger("navgraph", io.Discard, logging.ERROR)
}

func newTestManager(t *testing.T, w *world.VoxelWorld, opts ...Option) *Manager {
	t.Helper()
	sx, h, sz := w.ChunkSize()
	opts = append([]Option{WithLogger(quietLogger()), WithChangedCooldown(20 * time.Millisecond)}, opts...)
	m := NewManager(w, inlineSubmitter{}, Dimensions{SizeX: sx, Height: h, SizeZ: sz}, opts...)
	w.AddListener(m)
	t.Cleanup(m.Close)
	return m
}

// flatChunk строит чанк с полом толщиной в одну клетку
func flatChunk(coords vec.Vec2, sx, h, sz int) *world.Chunk {
	c := world.NewChunk(coords, sx, h, sz)
	for x := 0; x < sx; x++ {
		for z := 0; z < sz; z++ {
			c.FillColumn(x, z, 1)
		}
	}
	return c
}

// edges возвращает все связи графа в стабильном виде для сравнения
func edges(g *ChunkGraph) []string {
	var result []string
	for _, b := range g.Blocks() {
		for d := Direction(0); d < DirectionCount; d++ {
			if n := b.Neighbor(d); n != nil {
				result = append(result, fmt.Sprintf("%s-%d-%s", b.pos, d, n.pos))
			}
		}
	}
	sort.Strings(result)
	return result
}

func positions(blocks []*WalkableBlock) []vec.Vec3 {
	result := make([]vec.Vec3, len(blocks))
	for i, b := range blocks {
		result[i] = b.pos
	}
	return result
}
