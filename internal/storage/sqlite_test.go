package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/go-chamber-server/internal/chamber"
	"github.com/annelo/go-chamber-server/internal/geom"
	"github.com/annelo/go-chamber-server/internal/stats"
	"github.com/annelo/go-chamber-server/internal/storage"
	"github.com/annelo/go-chamber-server/internal/vault"
)

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Инициализация хранилища не должна вызывать ошибку")
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testChamber(name string) *chamber.Chamber {
	return &chamber.Chamber{
		Name:  name,
		World: "overworld",
		Box: geom.NewBox(
			geom.BlockPos{X: 0, Y: 0, Z: 0},
			geom.BlockPos{X: 9, Y: 9, Z: 9},
		),
		ResetInterval: time.Hour,
		CreatedAt:     time.Unix(1700000000, 0),
	}
}

func TestChamberInsertAndLoad(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	c := testChamber("trial1")
	c.Exit = &geom.Transform{World: "overworld", X: 4.5, Y: 10, Z: 4.5, Yaw: 90}
	file := "chamber_trial1.snap"
	c.SnapshotFile = &file

	id, err := repo.InsertChamber(ctx, c)
	require.NoError(t, err)
	require.Greater(t, id, int64(0), "Вставка должна возвращать суррогатный id")

	chambers, err := repo.Chambers(ctx)
	require.NoError(t, err)
	require.Len(t, chambers, 1)

	got := chambers[0]
	assert.Equal(t, "trial1", got.Name)
	assert.Equal(t, c.Box, got.Box)
	assert.Equal(t, time.Hour, got.ResetInterval)
	require.NotNil(t, got.Exit, "Выход должен сохраняться")
	assert.Equal(t, 4.5, got.Exit.X)
	assert.Equal(t, float32(90), got.Exit.Yaw)
	require.NotNil(t, got.SnapshotFile)
	assert.Equal(t, file, *got.SnapshotFile)
	assert.Nil(t, got.LastReset, "Несброшенная камера имеет пустой last_reset")
	assert.Equal(t, c.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestChamberNullableFieldsAbsent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.InsertChamber(ctx, testChamber("bare"))
	require.NoError(t, err)

	chambers, err := repo.Chambers(ctx)
	require.NoError(t, err)
	require.Len(t, chambers, 1)
	assert.Nil(t, chambers[0].Exit, "Отсутствующий выход читается как nil")
	assert.Nil(t, chambers[0].SnapshotFile, "Отсутствующий снапшот читается как nil")
}

func TestChamberNameUnique(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.InsertChamber(ctx, testChamber("dup"))
	require.NoError(t, err)

	_, err = repo.InsertChamber(ctx, testChamber("dup"))
	require.Error(t, err, "Повторное имя должно нарушать ограничение уникальности")
}

func TestDeleteChamberCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.InsertChamber(ctx, testChamber("trial1"))
	require.NoError(t, err)

	vaultID, err := repo.InsertVault(ctx, &chamber.Vault{
		ChamberID: id,
		Pos:       geom.BlockPos{X: 5, Y: 5, Z: 5},
		Type:      chamber.VaultNormal,
		LootTable: "common",
	})
	require.NoError(t, err)

	_, err = repo.InsertSpawner(ctx, &chamber.Spawner{
		ChamberID: id,
		Pos:       geom.BlockPos{X: 3, Y: 1, Z: 3},
		Type:      "zombie",
	})
	require.NoError(t, err)

	player := uuid.New()
	require.NoError(t, repo.UpsertPlayerVault(ctx, &vault.Cooldown{
		PlayerUUID:  player,
		VaultID:     vaultID,
		LastOpened:  time.Unix(1700000000, 0),
		TimesOpened: 1,
	}))

	require.NoError(t, repo.DeleteChamber(ctx, id))

	vaults, err := repo.Vaults(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, vaults, "Хранилища должны удаляться каскадно")

	spawners, err := repo.Spawners(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, spawners, "Спавнеры должны удаляться каскадно")

	cd, err := repo.PlayerVault(ctx, player, vaultID)
	require.NoError(t, err)
	assert.Nil(t, cd, "Записи кулдаунов должны удаляться каскадно вслед за хранилищем")
}

func TestUpdateChamberLastResetAndSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.InsertChamber(ctx, testChamber("trial1"))
	require.NoError(t, err)

	resetAt := time.Unix(1700003600, 0)
	require.NoError(t, repo.UpdateChamberLastReset(ctx, id, resetAt))
	require.NoError(t, repo.UpdateChamberSnapshot(ctx, id, "chamber_trial1.snap"))

	chambers, err := repo.Chambers(ctx)
	require.NoError(t, err)
	require.Len(t, chambers, 1)
	require.NotNil(t, chambers[0].LastReset)
	assert.Equal(t, resetAt.Unix(), chambers[0].LastReset.Unix())
	require.NotNil(t, chambers[0].SnapshotFile)
	assert.Equal(t, "chamber_trial1.snap", *chambers[0].SnapshotFile)
}

func TestVaultTypeRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.InsertChamber(ctx, testChamber("trial1"))
	require.NoError(t, err)

	_, err = repo.InsertVault(ctx, &chamber.Vault{
		ChamberID: id, Pos: geom.BlockPos{X: 1, Y: 1, Z: 1},
		Type: chamber.VaultNormal, LootTable: "common",
	})
	require.NoError(t, err)
	_, err = repo.InsertVault(ctx, &chamber.Vault{
		ChamberID: id, Pos: geom.BlockPos{X: 2, Y: 1, Z: 1},
		Type: chamber.VaultOminous, LootTable: "rare",
	})
	require.NoError(t, err)

	vaults, err := repo.Vaults(ctx, id)
	require.NoError(t, err)
	require.Len(t, vaults, 2)
	assert.Equal(t, chamber.VaultNormal, vaults[0].Type)
	assert.Equal(t, chamber.VaultOminous, vaults[1].Type)
}

func TestPlayerVaultUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.InsertChamber(ctx, testChamber("trial1"))
	require.NoError(t, err)
	vaultID, err := repo.InsertVault(ctx, &chamber.Vault{
		ChamberID: id, Pos: geom.BlockPos{X: 1, Y: 1, Z: 1},
		Type: chamber.VaultNormal, LootTable: "common",
	})
	require.NoError(t, err)

	player := uuid.New()

	// Запись отсутствует: nil без ошибки
	cd, err := repo.PlayerVault(ctx, player, vaultID)
	require.NoError(t, err)
	assert.Nil(t, cd, "Отсутствующий кулдаун читается как nil без ошибки")

	first := time.Unix(1700000000, 0)
	require.NoError(t, repo.UpsertPlayerVault(ctx, &vault.Cooldown{
		PlayerUUID: player, VaultID: vaultID, LastOpened: first, TimesOpened: 1,
	}))

	second := first.Add(13 * time.Hour)
	require.NoError(t, repo.UpsertPlayerVault(ctx, &vault.Cooldown{
		PlayerUUID: player, VaultID: vaultID, LastOpened: second, TimesOpened: 2,
	}))

	cd, err = repo.PlayerVault(ctx, player, vaultID)
	require.NoError(t, err)
	require.NotNil(t, cd)
	assert.Equal(t, second.Unix(), cd.LastOpened.Unix(), "Повторная запись обновляет last_opened")
	assert.Equal(t, int64(2), cd.TimesOpened, "Счётчик открытий накапливается")
}

func TestStatsDeltaAccumulates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	player := uuid.New()

	require.NoError(t, repo.AddStatsDelta(ctx, player, stats.Delta{NormalVaultsOpened: 1, MobsKilled: 3}))
	require.NoError(t, repo.AddStatsDelta(ctx, player, stats.Delta{NormalVaultsOpened: 1, ChambersCompleted: 1, TimeSpent: 120}))

	s, err := repo.PlayerStats(ctx, player)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, int64(2), s.NormalVaultsOpened, "Приращения должны складываться")
	assert.Equal(t, int64(3), s.MobsKilled)
	assert.Equal(t, int64(1), s.ChambersCompleted)
	assert.Equal(t, int64(120), s.TimeSpent)

	missing, err := repo.PlayerStats(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing, "Статистика незнакомого игрока читается как nil без ошибки")
}

func TestTopByChambersCompleted(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	players := make([]uuid.UUID, 5)
	for i := range players {
		players[i] = uuid.New()
		require.NoError(t, repo.AddStatsDelta(ctx, players[i], stats.Delta{
			ChambersCompleted: int64(i + 1),
		}))
	}

	top, err := repo.TopByChambersCompleted(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3, "Запрос возвращает не больше n записей")
	assert.Equal(t, int64(5), top[0].ChambersCompleted, "Лидер идёт первым")
	assert.Equal(t, int64(4), top[1].ChambersCompleted)
	assert.Equal(t, int64(3), top[2].ChambersCompleted)
}
