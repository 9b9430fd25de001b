package chamber_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/go-chamber-server/internal/chamber"
	"github.com/annelo/go-chamber-server/internal/geom"
)

// fakeRepo — хранилище в памяти, реализующее необходимый для реестра
// контракт
type fakeRepo struct {
	nextID   int64
	chambers map[int64]*chamber.Chamber
	vaults   map[int64][]*chamber.Vault
	spawners map[int64][]*chamber.Spawner
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		chambers: make(map[int64]*chamber.Chamber),
		vaults:   make(map[int64][]*chamber.Vault),
		spawners: make(map[int64][]*chamber.Spawner),
	}
}

func (r *fakeRepo) Chambers(ctx context.Context) ([]*chamber.Chamber, error) {
	out := make([]*chamber.Chamber, 0, len(r.chambers))
	for id := int64(1); id <= r.nextID; id++ {
		if c, ok := r.chambers[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeRepo) Vaults(ctx context.Context, chamberID int64) ([]*chamber.Vault, error) {
	return r.vaults[chamberID], nil
}

func (r *fakeRepo) Spawners(ctx context.Context, chamberID int64) ([]*chamber.Spawner, error) {
	return r.spawners[chamberID], nil
}

func (r *fakeRepo) InsertChamber(ctx context.Context, c *chamber.Chamber) (int64, error) {
	r.nextID++
	copied := *c
	copied.ID = r.nextID
	r.chambers[r.nextID] = &copied
	return r.nextID, nil
}

func (r *fakeRepo) InsertVault(ctx context.Context, v *chamber.Vault) (int64, error) {
	r.nextID++
	r.vaults[v.ChamberID] = append(r.vaults[v.ChamberID], v)
	return r.nextID, nil
}

func (r *fakeRepo) InsertSpawner(ctx context.Context, s *chamber.Spawner) (int64, error) {
	r.nextID++
	r.spawners[s.ChamberID] = append(r.spawners[s.ChamberID], s)
	return r.nextID, nil
}

func (r *fakeRepo) DeleteChamber(ctx context.Context, id int64) error {
	delete(r.chambers, id)
	delete(r.vaults, id)
	delete(r.spawners, id)
	return nil
}

func (r *fakeRepo) UpdateChamberLastReset(ctx context.Context, id int64, t time.Time) error {
	return nil
}

func (r *fakeRepo) UpdateChamberSnapshot(ctx context.Context, id int64, file string) error {
	return nil
}

func makeChamber(name string, min, max geom.BlockPos) *chamber.Chamber {
	return &chamber.Chamber{
		Name:          name,
		World:         "overworld",
		Box:           geom.NewBox(min, max),
		ResetInterval: time.Hour,
	}
}

func TestRegisterAndFind(t *testing.T) {
	reg := chamber.NewRegistry(newFakeRepo())
	ctx := context.Background()

	c := makeChamber("trial1", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})
	require.NoError(t, reg.Register(ctx, c))
	assert.Greater(t, c.ID, int64(0), "Регистрация должна присвоить id")

	found, ok := reg.FindContaining(geom.Location{World: "overworld", Pos: geom.BlockPos{X: 5, Y: 5, Z: 5}})
	require.True(t, ok)
	assert.Equal(t, "trial1", found.Name)

	_, ok = reg.FindContaining(geom.Location{World: "nether", Pos: geom.BlockPos{X: 5, Y: 5, Z: 5}})
	assert.False(t, ok, "Камера другого мира не должна находиться")

	_, ok = reg.FindContaining(geom.Location{World: "overworld", Pos: geom.BlockPos{X: 50, Y: 5, Z: 5}})
	assert.False(t, ok, "Точка вне бокса не должна находиться")
}

func TestRegisterDuplicateName(t *testing.T) {
	reg := chamber.NewRegistry(newFakeRepo())
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, makeChamber("dup", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})))

	err := reg.Register(ctx, makeChamber("dup", geom.BlockPos{X: 20}, geom.BlockPos{X: 29, Y: 9, Z: 9}))
	assert.ErrorIs(t, err, chamber.ErrDuplicateName, "Повторное имя должно отклоняться")
}

func TestRegisterRequiresPositiveInterval(t *testing.T) {
	reg := chamber.NewRegistry(newFakeRepo())

	c := makeChamber("bad", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})
	c.ResetInterval = 0
	assert.Error(t, reg.Register(context.Background(), c), "Нулевой интервал сброса должен отклоняться")
}

// При перекрытии боксов детерминированно побеждает первая
// зарегистрированная камера
func TestOverlapFirstRegisteredWins(t *testing.T) {
	reg := chamber.NewRegistry(newFakeRepo())
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, makeChamber("first", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})))
	require.NoError(t, reg.Register(ctx, makeChamber("second", geom.BlockPos{X: 5, Y: 5, Z: 5}, geom.BlockPos{X: 14, Y: 14, Z: 14})))

	// Точка в пересечении боксов
	shared := geom.Location{World: "overworld", Pos: geom.BlockPos{X: 7, Y: 7, Z: 7}}
	for i := 0; i < 10; i++ {
		found, ok := reg.FindContaining(shared)
		require.True(t, ok)
		assert.Equal(t, "first", found.Name, "Побеждает первая зарегистрированная камера, стабильно")
	}
}

func TestRegisterVaultInsideBox(t *testing.T) {
	reg := chamber.NewRegistry(newFakeRepo())
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, makeChamber("trial1", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})))

	good := &chamber.Vault{Pos: geom.BlockPos{X: 5, Y: 5, Z: 5}, Type: chamber.VaultNormal, LootTable: "common"}
	require.NoError(t, reg.RegisterVault(ctx, "trial1", good))

	bad := &chamber.Vault{Pos: geom.BlockPos{X: 50, Y: 5, Z: 5}, Type: chamber.VaultNormal, LootTable: "common"}
	err := reg.RegisterVault(ctx, "trial1", bad)
	var outside chamber.ErrVaultOutsideChamber
	assert.ErrorAs(t, err, &outside, "Хранилище вне бокса должно отклоняться")

	err = reg.RegisterVault(ctx, "нет такой", good)
	var notFound chamber.ErrNotFound
	assert.ErrorAs(t, err, &notFound, "Неизвестная камера должна отклоняться")
}

func TestVaultAt(t *testing.T) {
	reg := chamber.NewRegistry(newFakeRepo())
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, makeChamber("trial1", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})))
	v := &chamber.Vault{Pos: geom.BlockPos{X: 3, Y: 4, Z: 5}, Type: chamber.VaultOminous, LootTable: "rare"}
	require.NoError(t, reg.RegisterVault(ctx, "trial1", v))

	found, owner, ok := reg.VaultAt(geom.Location{World: "overworld", Pos: geom.BlockPos{X: 3, Y: 4, Z: 5}})
	require.True(t, ok)
	assert.Equal(t, v.ID, found.ID)
	assert.Equal(t, "trial1", owner.Name)

	_, _, ok = reg.VaultAt(geom.Location{World: "overworld", Pos: geom.BlockPos{X: 1, Y: 1, Z: 1}})
	assert.False(t, ok, "Позиция без хранилища не должна находиться")
}

func TestDeleteRemovesFromCache(t *testing.T) {
	reg := chamber.NewRegistry(newFakeRepo())
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, makeChamber("trial1", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})))
	require.NoError(t, reg.Delete(ctx, "trial1"))

	_, ok := reg.Get("trial1")
	assert.False(t, ok, "Удалённая камера пропадает из кеша")

	var notFound chamber.ErrNotFound
	assert.ErrorAs(t, reg.Delete(ctx, "trial1"), &notFound, "Повторное удаление — ошибка НеНайдена")
}

func TestPreloadRestoresCache(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()

	first := chamber.NewRegistry(repo)
	require.NoError(t, first.Register(ctx, makeChamber("a", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})))
	require.NoError(t, first.Register(ctx, makeChamber("b", geom.BlockPos{X: 20}, geom.BlockPos{X: 29, Y: 9, Z: 9})))
	require.NoError(t, first.RegisterVault(ctx, "a",
		&chamber.Vault{Pos: geom.BlockPos{X: 1, Y: 1, Z: 1}, Type: chamber.VaultNormal, LootTable: "common"}))

	// Новый реестр поверх того же хранилища: кеш восстанавливается
	second := chamber.NewRegistry(repo)
	require.NoError(t, second.Preload(ctx))

	all := second.All()
	require.Len(t, all, 2, "Preload должен загрузить все камеры")
	assert.Equal(t, "a", all[0].Name, "Порядок регистрации сохраняется")

	_, _, ok := second.VaultAt(geom.Location{World: "overworld", Pos: geom.BlockPos{X: 1, Y: 1, Z: 1}})
	assert.True(t, ok, "Хранилища должны загружаться вместе с камерами")
}

// Выданные читателям указатели — неизменяемые снимки: мутации реестра
// подменяют запись, а не правят опубликованный объект
func TestMutationsPublishFreshSnapshots(t *testing.T) {
	reg := chamber.NewRegistry(newFakeRepo())
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, makeChamber("trial1", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})))
	v := &chamber.Vault{Pos: geom.BlockPos{X: 5, Y: 5, Z: 5}, Type: chamber.VaultNormal, LootTable: "common"}
	require.NoError(t, reg.RegisterVault(ctx, "trial1", v))

	before, ok := reg.Get("trial1")
	require.True(t, ok)
	vaultBefore, _, ok := reg.VaultAt(geom.Location{World: "overworld", Pos: v.Pos})
	require.True(t, ok)

	reset := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, reg.SetLastReset(ctx, "trial1", reset))
	require.NoError(t, reg.SetSnapshotFile(ctx, "trial1", "chamber_trial1.snap"))
	reg.SetVaultLootTable(v.ID, "rare")

	assert.Nil(t, before.LastReset, "Снимок до мутации не меняется")
	assert.Nil(t, before.SnapshotFile)
	assert.Equal(t, "common", vaultBefore.LootTable)

	after, ok := reg.Get("trial1")
	require.True(t, ok)
	require.NotNil(t, after.LastReset)
	assert.Equal(t, reset, *after.LastReset)
	require.NotNil(t, after.SnapshotFile)
	assert.Equal(t, "chamber_trial1.snap", *after.SnapshotFile)

	vaultAfter, _, ok := reg.VaultAt(geom.Location{World: "overworld", Pos: v.Pos})
	require.True(t, ok)
	assert.Equal(t, "rare", vaultAfter.LootTable, "Повторный запрос видит обновление")
}

// gatedRepo зависает в UpdateChamberLastReset до явного освобождения:
// имитация медленной записи в персистентность
type gatedRepo struct {
	*fakeRepo
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepo) UpdateChamberLastReset(ctx context.Context, id int64, t time.Time) error {
	close(r.entered)
	<-r.release
	return r.fakeRepo.UpdateChamberLastReset(ctx, id, t)
}

// Чтения кеша не ждут записи в хранилище: запись держит только свой
// мьютекс сериализации, кеш остаётся доступен
func TestReadsNotBlockedByRepositoryWrite(t *testing.T) {
	repo := &gatedRepo{
		fakeRepo: newFakeRepo(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	reg := chamber.NewRegistry(repo)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, makeChamber("trial1", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})))

	errCh := make(chan error, 1)
	go func() {
		errCh <- reg.SetLastReset(ctx, "trial1", time.Now())
	}()
	<-repo.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := reg.Get("trial1"); !ok {
			t.Error("камера пропала из кеша во время записи")
		}
		if _, ok := reg.FindContaining(geom.Location{World: "overworld", Pos: geom.BlockPos{X: 5, Y: 5, Z: 5}}); !ok {
			t.Error("поиск по локации не нашёл камеру во время записи")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("читатели заблокированы записью в хранилище")
	}

	close(repo.release)
	require.NoError(t, <-errCh)
}

// Конкурентные читатели и писатели не конфликтуют: проверяется детектором
// гонок
func TestConcurrentReadersAndWriters(t *testing.T) {
	reg := chamber.NewRegistry(newFakeRepo())
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, makeChamber("trial1", geom.BlockPos{}, geom.BlockPos{X: 9, Y: 9, Z: 9})))

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, c := range reg.All() {
				_ = c.LastReset
				_ = c.SnapshotFile
			}
			reg.FindContaining(geom.Location{World: "overworld", Pos: geom.BlockPos{X: 5, Y: 5, Z: 5}})
		}
	}()

	for i := 0; i < 200; i++ {
		require.NoError(t, reg.SetLastReset(ctx, "trial1", time.Now()))
		require.NoError(t, reg.SetSnapshotFile(ctx, "trial1", "chamber_trial1.snap"))
	}

	close(stop)
	wg.Wait()
}
