package world

import (
	"math/rand"

	"github.com/annel0/voxel-nav/internal/vec"
	"github.com/aquilax/go-perlin"
)

// BiomeType представляет тип биома
type BiomeType int

const (
	BiomePlains BiomeType = iota
	BiomeForest
	BiomeMountains
)

// Константы рельефа
const (
	BaseHeight    = 32   // Высота поверхности в низинах
	TerraceStep   = 0.08 // Шаг шума на одну ступень террасы
	MountainStart = 0.70 // Выше - горы с нависающими уступами
)

// Generator генерирует воксельный ландшафт: террасы высотой в блок,
// деревья-столбы и каменные навесы (второй "этаж") в горах.
type Generator struct {
	Seed          int64   // Сид для генерации шума
	NoiseScale    float64 // Масштаб основного шума (высота)
	BiomeScale    float64 // Масштаб шума биомов
	ForestDensity float64 // Плотность деревьев в лесу (от 0 до 1)

	height *perlin.Perlin
	biome  *perlin.Perlin
}

// NewGenerator создаёт новый генератор мира
func NewGenerator(seed int64) *Generator {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав

	return &Generator{
		Seed:          seed,
		NoiseScale:    0.04,
		BiomeScale:    0.015,
		ForestDensity: 0.06,
		height:        perlin.NewPerlin(alpha, beta, n, seed),
		biome:         perlin.NewPerlin(alpha, beta, n, seed+42),
	}
}

// noise01 возвращает значение шума в диапазоне от 0 до 1
func noise01(p *perlin.Perlin, x, z float64) float64 {
	return (p.Noise2D(x, z) + 1.0) / 2.0
}

// SurfaceHeight возвращает высоту поверхности в колонке (первая воздушная клетка)
func (g *Generator) SurfaceHeight(globalX, globalZ int) int {
	h := noise01(g.height, float64(globalX)*g.NoiseScale, float64(globalZ)*g.NoiseScale)
	// Квантуем шум в террасы: соседние колонки отличаются на 0 или 1 блок чаще всего
	return BaseHeight + int(h/TerraceStep)
}

// GenerateChunk генерирует чанк по его координатам
func (g *Generator) GenerateChunk(coords vec.Vec2, sizeX, height, sizeZ int) *Chunk {
	chunk := NewChunk(coords, sizeX, height, sizeZ)

	// Локальный генератор случайных чисел для детерминированности
	chunkSeed := g.Seed + int64(coords.X*31) + int64(coords.Z*17)
	rng := rand.New(rand.NewSource(chunkSeed))

	startX := coords.X * sizeX
	startZ := coords.Z * sizeZ

	for x := 0; x < sizeX; x++ {
		for z := 0; z < sizeZ; z++ {
			globalX := startX + x
			globalZ := startZ + z

			surface := g.SurfaceHeight(globalX, globalZ)
			if surface >= height {
				surface = height - 1
			}
			chunk.FillColumn(x, z, surface)

			biomeValue := noise01(g.biome, float64(globalX)*g.BiomeScale, float64(globalZ)*g.BiomeScale)
			switch g.getBiomeType(surface, biomeValue) {
			case BiomeForest:
				if rng.Float64() < g.ForestDensity {
					g.placeTree(chunk, x, z, surface, rng)
				}
			case BiomeMountains:
				g.placeOverhang(chunk, x, z, surface)
			}
		}
	}

	chunk.ClearChanges()
	return chunk
}

// getBiomeType определяет тип биома на основе высоты и значения шума
func (g *Generator) getBiomeType(surface int, biomeValue float64) BiomeType {
	if float64(surface-BaseHeight)*TerraceStep > MountainStart {
		return BiomeMountains
	}
	if biomeValue > 0.55 {
		return BiomeForest
	}
	return BiomePlains
}

// placeTree ставит ствол дерева высотой 3-5 блоков
func (g *Generator) placeTree(chunk *Chunk, x, z, surface int, rng *rand.Rand) {
	treeHeight := 3 + rng.Intn(3)
	for y := surface; y < surface+treeHeight && y < chunk.Height; y++ {
		chunk.SetSolid(vec.Vec3{X: x, Y: y, Z: z}, true)
	}
}

// placeOverhang добавляет каменную плиту над поверхностью там, где второй шум выше порога.
// Под плитой остаётся проход, на плите появляется второй уровень.
func (g *Generator) placeOverhang(chunk *Chunk, x, z, surface int) {
	globalX := float64(chunk.Coords.X*chunk.SizeX + x)
	globalZ := float64(chunk.Coords.Z*chunk.SizeZ + z)
	if noise01(g.biome, globalX*0.1, globalZ*0.1) < 0.6 {
		return
	}
	slab := surface + 4
	if slab < chunk.Height {
		chunk.SetSolid(vec.Vec3{X: x, Y: slab, Z: z}, true)
	}
}
