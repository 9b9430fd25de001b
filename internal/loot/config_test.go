package loot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/go-chamber-server/internal/loot"
)

func writeTable(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadDirModernFormat(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, "rare.yaml", `
name: rare
pools:
  - min_rolls: 1
    max_rolls: 3
    guaranteed:
      - item: trial_key
        min: 1
        max: 1
    entries:
      - item: diamond
        min: 1
        max: 4
        weight: 3
      - item: emerald
        min: 2
        max: 6
        weight: 7
        enabled: false
      - command: "effect give %player% strength 60"
        weight: 1
  - min_rolls: 0
    max_rolls: 1
    entries:
      - item: golden_apple
        min: 1
        max: 1
        weight: 1
`)

	tables := loot.NewTables()
	require.NoError(t, tables.LoadDir(dir))

	table, ok := tables.Resolve("rare")
	require.True(t, ok, "Таблица должна разрешаться по объявленному имени")
	require.Len(t, table.Pools, 2)

	p := table.Pools[0]
	assert.Equal(t, 1, p.MinRolls)
	assert.Equal(t, 3, p.MaxRolls)
	require.Len(t, p.Guaranteed, 1)
	assert.Equal(t, "trial_key", p.Guaranteed[0].ID)
	require.Len(t, p.Entries, 3)
	assert.True(t, p.Entries[0].Enabled, "Enabled по умолчанию true")
	assert.False(t, p.Entries[1].Enabled)
	assert.Equal(t, "effect give %player% strength 60", p.Entries[2].Command)
}

func TestLoadDirLegacyFormatNormalized(t *testing.T) {
	dir := t.TempDir()
	// Легаси-формат: items и броски на верхнем уровне
	writeTable(t, dir, "old.yml", `
min_rolls: 1
max_rolls: 2
items:
  - item: bread
    min: 1
    max: 3
    weight: 5
`)

	tables := loot.NewTables()
	require.NoError(t, tables.LoadDir(dir))

	table, ok := tables.Resolve("old")
	require.True(t, ok, "Имя по умолчанию — имя файла без расширения")
	require.Len(t, table.Pools, 1, "Легаси-таблица нормализуется в один пул")
	assert.Equal(t, 1, table.Pools[0].MinRolls)
	assert.Equal(t, 2, table.Pools[0].MaxRolls)
	require.Len(t, table.Pools[0].Entries, 1)
	assert.Equal(t, "bread", table.Pools[0].Entries[0].Item.ID)
}

func TestLoadDirSkipsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, "mixed.yaml", `
name: mixed
pools:
  - min_rolls: 1
    max_rolls: 1
    entries:
      - min: 1
        max: 1
        weight: 3
      - item: backwards
        min: 5
        max: 1
        weight: 2
      - item: fine
        min: 1
        max: 1
        weight: 1
`)

	tables := loot.NewTables()
	require.NoError(t, tables.LoadDir(dir))

	table, ok := tables.Resolve("mixed")
	require.True(t, ok)
	require.Len(t, table.Pools[0].Entries, 1, "Испорченные записи пропускаются, корректные остаются")
	assert.Equal(t, "fine", table.Pools[0].Entries[0].Item.ID)
}

func TestLoadDirSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, "broken.yaml", "{ это не yaml")
	writeTable(t, dir, "empty.yaml", `
name: empty
pools:
  - min_rolls: 3
    max_rolls: 1
`)
	writeTable(t, dir, "notes.txt", "не таблица вовсе")
	writeTable(t, dir, "good.yaml", `
name: good
items:
  - item: coal
    min: 1
    max: 1
    weight: 1
`)

	tables := loot.NewTables()
	require.NoError(t, tables.LoadDir(dir), "Испорченные файлы не фатальны для загрузки")

	_, ok := tables.Resolve("broken")
	assert.False(t, ok)
	_, ok = tables.Resolve("empty")
	assert.False(t, ok, "Таблица без единого корректного пула отбрасывается")
	_, ok = tables.Resolve("notes")
	assert.False(t, ok)
	_, ok = tables.Resolve("good")
	assert.True(t, ok)
}

func TestPutReplacesTable(t *testing.T) {
	tables := loot.NewTables()
	tables.Put(&loot.Table{Name: "common", Pools: []loot.Pool{{MaxRolls: 1}}})
	tables.Put(&loot.Table{Name: "common", Pools: []loot.Pool{{MaxRolls: 5}}})

	table, ok := tables.Resolve("common")
	require.True(t, ok)
	assert.Equal(t, 5, table.Pools[0].MaxRolls, "Put заменяет таблицу целиком")
	assert.ElementsMatch(t, []string{"common"}, tables.Names())
}
