// Package geom содержит базовые геометрические типы игрового мира:
// позиции блоков, ограничивающие боксы и локации.
package geom

import "fmt"

// BlockPos представляет целочисленную позицию блока в мире
type BlockPos struct {
	X int32
	Y int32
	Z int32
}

// String возвращает читаемое представление позиции
func (p BlockPos) String() string {
	return fmt.Sprintf("[%d, %d, %d]", p.X, p.Y, p.Z)
}

// Box представляет выровненный по осям бокс (границы включительно).
// Инвариант: Min.X <= Max.X, Min.Y <= Max.Y, Min.Z <= Max.Z.
type Box struct {
	Min BlockPos
	Max BlockPos
}

// NewBox создает бокс из двух произвольных углов, нормализуя координаты
func NewBox(a, b BlockPos) Box {
	return Box{
		Min: BlockPos{X: min32(a.X, b.X), Y: min32(a.Y, b.Y), Z: min32(a.Z, b.Z)},
		Max: BlockPos{X: max32(a.X, b.X), Y: max32(a.Y, b.Y), Z: max32(a.Z, b.Z)},
	}
}

// Contains проверяет, лежит ли позиция внутри бокса (границы включительно)
func (b Box) Contains(p BlockPos) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Volume возвращает количество блоков внутри бокса
func (b Box) Volume() int64 {
	dx := int64(b.Max.X-b.Min.X) + 1
	dy := int64(b.Max.Y-b.Min.Y) + 1
	dz := int64(b.Max.Z-b.Min.Z) + 1
	return dx * dy * dz
}

// ForEach обходит все позиции бокса в фиксированном порядке: X по
// возрастанию снаружи, затем Y, затем Z. Этот порядок является контрактом
// формата снапшотов: индекс i всегда соответствует одному и тому же
// относительному смещению внутри бокса.
func (b Box) ForEach(fn func(p BlockPos)) {
	for x := b.Min.X; x <= b.Max.X; x++ {
		for y := b.Min.Y; y <= b.Max.Y; y++ {
			for z := b.Min.Z; z <= b.Max.Z; z++ {
				fn(BlockPos{X: x, Y: y, Z: z})
			}
		}
	}
}

// Center возвращает позицию блока в центре бокса
func (b Box) Center() BlockPos {
	return BlockPos{
		X: b.Min.X + (b.Max.X-b.Min.X)/2,
		Y: b.Min.Y + (b.Max.Y-b.Min.Y)/2,
		Z: b.Min.Z + (b.Max.Z-b.Min.Z)/2,
	}
}

// Location представляет позицию блока в конкретном мире
type Location struct {
	World string
	Pos   BlockPos
}

// String возвращает читаемое представление локации
func (l Location) String() string {
	return fmt.Sprintf("%s:%s", l.World, l.Pos)
}

// Transform представляет точную позицию с ориентацией (для телепортации)
type Transform struct {
	World string
	X     float64
	Y     float64
	Z     float64
	Yaw   float32
	Pitch float32
}

// TransformAt создает Transform в центре указанного блока
func TransformAt(world string, p BlockPos) Transform {
	return Transform{
		World: world,
		X:     float64(p.X) + 0.5,
		Y:     float64(p.Y),
		Z:     float64(p.Z) + 0.5,
	}
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
