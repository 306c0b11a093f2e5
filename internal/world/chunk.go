package world

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/annel0/voxel-nav/internal/vec"
)

// Chunk представляет воксельный столб мира размером SizeX x Height x SizeZ.
// Хранит только признак "твёрдый" для каждой клетки в виде битовой маски.
type Chunk struct {
	Coords vec.Vec2 // Координаты чанка в мире

	SizeX  int
	Height int
	SizeZ  int

	solid []uint64

	ChangeCounter int          // Счетчик изменений
	Mu            sync.RWMutex // Мьютекс для безопасного доступа
}

// NewChunk создаёт пустой (полностью воздушный) чанк
func NewChunk(coords vec.Vec2, sizeX, height, sizeZ int) *Chunk {
	cells := sizeX * height * sizeZ
	return &Chunk{
		Coords: coords,
		SizeX:  sizeX,
		Height: height,
		SizeZ:  sizeZ,
		solid:  make([]uint64, (cells+63)/64),
	}
}

func (c *Chunk) index(local vec.Vec3) int {
	return (local.X*c.SizeZ+local.Z)*c.Height + local.Y
}

// InBounds проверяет, что локальная координата лежит внутри чанка
func (c *Chunk) InBounds(local vec.Vec3) bool {
	return local.X >= 0 && local.X < c.SizeX &&
		local.Z >= 0 && local.Z < c.SizeZ &&
		local.Y >= 0 && local.Y < c.Height
}

// IsSolid возвращает true, если клетка непроходима
func (c *Chunk) IsSolid(local vec.Vec3) bool {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	if !c.InBounds(local) {
		return local.Y < 0
	}
	i := c.index(local)
	return c.solid[i/64]&(1<<(uint(i)%64)) != 0
}

// SetSolid устанавливает или снимает признак твёрдости клетки
func (c *Chunk) SetSolid(local vec.Vec3, solid bool) {
	if !c.InBounds(local) {
		return
	}

	c.Mu.Lock()
	defer c.Mu.Unlock()

	i := c.index(local)
	if solid {
		c.solid[i/64] |= 1 << (uint(i) % 64)
	} else {
		c.solid[i/64] &^= 1 << (uint(i) % 64)
	}
	c.ChangeCounter++
}

// FillColumn делает твёрдыми клетки столбца [0, top)
func (c *Chunk) FillColumn(x, z, top int) {
	for y := 0; y < top && y < c.Height; y++ {
		c.SetSolid(vec.Vec3{X: x, Y: y, Z: z}, true)
	}
}

// HasChanges возвращает true, если в чанке есть несохранённые изменения
func (c *Chunk) HasChanges() bool {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	return c.ChangeCounter > 0
}

// ClearChanges сбрасывает счётчик изменений
func (c *Chunk) ClearChanges() {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	c.ChangeCounter = 0
}

// MarshalBinary сериализует размеры и битовую маску чанка
func (c *Chunk) MarshalBinary() ([]byte, error) {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	buf := make([]byte, 0, 12+len(c.solid)*8)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.SizeX))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Height))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.SizeZ))
	for _, word := range c.solid {
		buf = binary.LittleEndian.AppendUint64(buf, word)
	}
	return buf, nil
}

// UnmarshalBinary восстанавливает чанк из MarshalBinary
func (c *Chunk) UnmarshalBinary(data []byte) error {
	if len(data) < 12 {
		return fmt.Errorf("данные чанка слишком короткие: %d байт", len(data))
	}
	sizeX := int(binary.LittleEndian.Uint32(data[0:]))
	height := int(binary.LittleEndian.Uint32(data[4:]))
	sizeZ := int(binary.LittleEndian.Uint32(data[8:]))
	words := (sizeX*height*sizeZ + 63) / 64
	if len(data) != 12+words*8 {
		return fmt.Errorf("неверная длина данных чанка: %d, ожидалось %d", len(data), 12+words*8)
	}

	solid := make([]uint64, words)
	for i := range solid {
		solid[i] = binary.LittleEndian.Uint64(data[12+i*8:])
	}

	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.SizeX, c.Height, c.SizeZ = sizeX, height, sizeZ
	c.solid = solid
	return nil
}
