package geom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/go-chamber-server/internal/geom"
)

func TestNewBoxNormalizesCorners(t *testing.T) {
	box := geom.NewBox(
		geom.BlockPos{X: 9, Y: 0, Z: 3},
		geom.BlockPos{X: 0, Y: 9, Z: -3},
	)

	assert.Equal(t, geom.BlockPos{X: 0, Y: 0, Z: -3}, box.Min, "Min должен быть покомпонентным минимумом углов")
	assert.Equal(t, geom.BlockPos{X: 9, Y: 9, Z: 3}, box.Max, "Max должен быть покомпонентным максимумом углов")
}

func TestBoxContainsInclusiveBounds(t *testing.T) {
	box := geom.NewBox(geom.BlockPos{X: 0, Y: 0, Z: 0}, geom.BlockPos{X: 9, Y: 9, Z: 9})

	// Границы включительны
	assert.True(t, box.Contains(geom.BlockPos{X: 0, Y: 0, Z: 0}), "Минимальный угол входит в бокс")
	assert.True(t, box.Contains(geom.BlockPos{X: 9, Y: 9, Z: 9}), "Максимальный угол входит в бокс")
	assert.True(t, box.Contains(geom.BlockPos{X: 5, Y: 3, Z: 7}), "Внутренняя точка входит в бокс")

	assert.False(t, box.Contains(geom.BlockPos{X: 10, Y: 5, Z: 5}), "Точка за границей X не входит")
	assert.False(t, box.Contains(geom.BlockPos{X: 5, Y: -1, Z: 5}), "Точка за границей Y не входит")
	assert.False(t, box.Contains(geom.BlockPos{X: 5, Y: 5, Z: 10}), "Точка за границей Z не входит")
}

func TestBoxVolume(t *testing.T) {
	box := geom.NewBox(geom.BlockPos{X: 0, Y: 0, Z: 0}, geom.BlockPos{X: 9, Y: 9, Z: 9})
	assert.Equal(t, int64(1000), box.Volume(), "Бокс 10x10x10 содержит 1000 блоков")

	point := geom.NewBox(geom.BlockPos{X: 3, Y: 3, Z: 3}, geom.BlockPos{X: 3, Y: 3, Z: 3})
	assert.Equal(t, int64(1), point.Volume(), "Вырожденный бокс содержит один блок")
}

// Порядок обхода — контракт формата снапшотов: X внешний, Z внутренний,
// все оси по возрастанию
func TestBoxForEachTraversalOrder(t *testing.T) {
	box := geom.NewBox(geom.BlockPos{X: 0, Y: 0, Z: 0}, geom.BlockPos{X: 1, Y: 1, Z: 1})

	var visited []geom.BlockPos
	box.ForEach(func(p geom.BlockPos) {
		visited = append(visited, p)
	})

	require.Len(t, visited, 8, "Обход должен посетить каждый блок ровно один раз")

	expected := []geom.BlockPos{
		{X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 1},
		{X: 0, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 1},
		{X: 1, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 1},
		{X: 1, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 1},
	}
	assert.Equal(t, expected, visited, "Порядок обхода фиксирован: X, затем Y, затем Z по возрастанию")
}

func TestBoxCenter(t *testing.T) {
	box := geom.NewBox(geom.BlockPos{X: 0, Y: 0, Z: 0}, geom.BlockPos{X: 9, Y: 9, Z: 9})
	assert.Equal(t, geom.BlockPos{X: 4, Y: 4, Z: 4}, box.Center(), "Центр округляется вниз")
}

func TestTransformAtBlockCenter(t *testing.T) {
	tr := geom.TransformAt("overworld", geom.BlockPos{X: 5, Y: 64, Z: -3})

	assert.Equal(t, "overworld", tr.World)
	assert.Equal(t, 5.5, tr.X, "Трансформация указывает в центр блока по X")
	assert.Equal(t, 64.0, tr.Y, "По Y трансформация остаётся на уровне блока")
	assert.Equal(t, -2.5, tr.Z, "Трансформация указывает в центр блока по Z")
}
