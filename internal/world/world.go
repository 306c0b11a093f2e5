package world

import (
	"sync"

	"github.com/annel0/voxel-nav/internal/vec"
)

// Voxel описывает клетку мира с точки зрения навигации
type Voxel struct {
	Traversable bool
}

// VoxelSource описывает единственное, что навигации нужно от мира
type VoxelSource interface {
	GetVoxel(pos vec.Vec3) Voxel
}

// VoxelWorld представляет эталонную in-memory реализацию воксельного мира
type VoxelWorld struct {
	sizeX, height, sizeZ int

	chunks map[vec.Vec2]*Chunk
	mu     sync.RWMutex

	listeners   []Listener
	listenersMu sync.RWMutex
}

// NewVoxelWorld создаёт пустой мир с заданным размером чанков
func NewVoxelWorld(sizeX, height, sizeZ int) *VoxelWorld {
	return &VoxelWorld{
		sizeX:  sizeX,
		height: height,
		sizeZ:  sizeZ,
		chunks: make(map[vec.Vec2]*Chunk),
	}
}

// ChunkSize возвращает размеры чанка
func (w *VoxelWorld) ChunkSize() (sizeX, height, sizeZ int) {
	return w.sizeX, w.height, w.sizeZ
}

// AddListener подписывает получателя на изменения мира
func (w *VoxelWorld) AddListener(l Listener) {
	w.listenersMu.Lock()
	w.listeners = append(w.listeners, l)
	w.listenersMu.Unlock()
}

func (w *VoxelWorld) snapshotListeners() []Listener {
	w.listenersMu.RLock()
	defer w.listenersMu.RUnlock()
	return append([]Listener(nil), w.listeners...)
}

// GetVoxel возвращает состояние клетки. Клетки незагруженных чанков и выше
// мира считаются воздухом, клетки ниже нуля — твёрдыми.
func (w *VoxelWorld) GetVoxel(pos vec.Vec3) Voxel {
	if pos.Y < 0 {
		return Voxel{Traversable: false}
	}
	if pos.Y >= w.height {
		return Voxel{Traversable: true}
	}

	w.mu.RLock()
	chunk, exists := w.chunks[pos.ChunkCoords(w.sizeX, w.sizeZ)]
	w.mu.RUnlock()

	if !exists {
		return Voxel{Traversable: true}
	}
	return Voxel{Traversable: !chunk.IsSolid(pos.LocalInChunk(w.sizeX, w.sizeZ))}
}

// GetChunk возвращает загруженный чанк
func (w *VoxelWorld) GetChunk(coords vec.Vec2) (*Chunk, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	chunk, exists := w.chunks[coords]
	return chunk, exists
}

// Chunks возвращает координаты всех загруженных чанков
func (w *VoxelWorld) Chunks() []vec.Vec2 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	coords := make([]vec.Vec2, 0, len(w.chunks))
	for c := range w.chunks {
		coords = append(coords, c)
	}
	return coords
}

// LoadChunk делает чанк доступным и уведомляет подписчиков
func (w *VoxelWorld) LoadChunk(chunk *Chunk) {
	w.mu.Lock()
	w.chunks[chunk.Coords] = chunk
	w.mu.Unlock()

	for _, l := range w.snapshotListeners() {
		l.OnChunkLoaded(chunk.Coords)
	}
}

// UnloadChunk убирает чанк из мира и уведомляет подписчиков.
// Возвращает выгруженный чанк, чтобы вызывающий мог его сохранить.
func (w *VoxelWorld) UnloadChunk(coords vec.Vec2) (*Chunk, bool) {
	w.mu.Lock()
	chunk, exists := w.chunks[coords]
	delete(w.chunks, coords)
	w.mu.Unlock()

	if !exists {
		return nil, false
	}
	for _, l := range w.snapshotListeners() {
		l.OnChunkUnloaded(coords)
	}
	return chunk, true
}

// SetSolid изменяет воксель по глобальным координатам и уведомляет подписчиков.
// Изменение в незагруженном чанке игнорируется.
func (w *VoxelWorld) SetSolid(pos vec.Vec3, solid bool) bool {
	if pos.Y < 0 || pos.Y >= w.height {
		return false
	}

	w.mu.RLock()
	chunk, exists := w.chunks[pos.ChunkCoords(w.sizeX, w.sizeZ)]
	w.mu.RUnlock()
	if !exists {
		return false
	}

	chunk.SetSolid(pos.LocalInChunk(w.sizeX, w.sizeZ), solid)

	for _, l := range w.snapshotListeners() {
		l.OnWorldChanged(pos)
	}
	return true
}
