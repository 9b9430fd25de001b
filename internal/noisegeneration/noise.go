// Package noisegeneration генерирует карту высот рельефа на шуме Перлина.
// Используется хостом мира для заполнения нетривиального блочного
// содержимого демонстрационного мира.
package noisegeneration

import (
	"github.com/aquilax/go-perlin"
)

// NoiseMap представляет карту шума для генерации ландшафта
type NoiseMap struct {
	perlin      *perlin.Perlin
	scale       float64 // Масштаб (чем меньше, тем более плавный ландшафт)
	persistence float64 // Множитель амплитуды между октавами (обычно < 1.0)
	lacunarity  float64 // Множитель частоты между октавами (обычно > 1.0)
}

// NewNoiseMap создает новую карту шума с заданными параметрами
func NewNoiseMap(seed int64, scale float64) *NoiseMap {
	// Параметры для perlin.NewPerlin:
	// alpha - персистентность (влияет на детализацию)
	// beta - лакунарность (влияет на частоту деталей)
	// n - количество октав (слоев шума)
	// seed - начальное значение для генерации
	alpha := 2.0
	beta := 2.0
	n := int32(3)

	return &NoiseMap{
		perlin:      perlin.NewPerlin(alpha, beta, n, seed),
		scale:       scale,
		persistence: 0.5,
		lacunarity:  2.0,
	}
}

// GetOctave2D возвращает значение шума с заданным количеством октав,
// нормализованное к диапазону [-1, 1]
func (nm *NoiseMap) GetOctave2D(x, y float64, octaves int) float64 {
	scaledX := x * nm.scale
	scaledY := y * nm.scale

	amplitude := 1.0
	frequency := 1.0
	total := 0.0
	maxValue := 0.0 // Для нормализации

	for i := 0; i < octaves; i++ {
		total += nm.perlin.Noise2D(scaledX*frequency, scaledY*frequency) * amplitude
		maxValue += amplitude

		amplitude *= nm.persistence
		frequency *= nm.lacunarity
	}

	return total / maxValue
}

// GetOctaveNormalized2D возвращает значение шума в диапазоне [0, 1]
func (nm *NoiseMap) GetOctaveNormalized2D(x, y float64, octaves int) float64 {
	return (nm.GetOctave2D(x, y, octaves) + 1.0) / 2.0
}

// HeightMap — генератор высоты поверхности рельефа
type HeightMap struct {
	noise   *NoiseMap
	baseY   int32
	ampY    int32
	octaves int
}

// NewHeightMap создает генератор высот: поверхность колеблется вокруг
// baseY с амплитудой ampY
func NewHeightMap(seed int64, baseY, ampY int32) *HeightMap {
	return &HeightMap{
		noise:   NewNoiseMap(seed, 0.01),
		baseY:   baseY,
		ampY:    ampY,
		octaves: 4,
	}
}

// SurfaceY возвращает высоту поверхности в колонке (x, z)
func (hm *HeightMap) SurfaceY(x, z int32) int32 {
	h := hm.noise.GetOctaveNormalized2D(float64(x), float64(z), hm.octaves)
	return hm.baseY + int32(h*float64(hm.ampY))
}

// SurfaceBlock возвращает дескриптор поверхностного блока по
// относительной высоте поверхности в колонке
func SurfaceBlock(normalizedHeight float64) string {
	switch {
	case normalizedHeight < 0.3:
		return "minecraft:water"
	case normalizedHeight < 0.4:
		return "minecraft:sand"
	case normalizedHeight > 0.75:
		return "minecraft:stone"
	default:
		return "minecraft:grass_block"
	}
}

// Height01 возвращает нормализованную высоту колонки для выбора
// поверхностного блока
func (hm *HeightMap) Height01(x, z int32) float64 {
	return hm.noise.GetOctaveNormalized2D(float64(x), float64(z), hm.octaves)
}
