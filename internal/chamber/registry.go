package chamber

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/annelo/go-chamber-server/internal/geom"
)

// Repository определяет контракт долговременного хранилища записей камер.
// Реализация предоставляется пакетом internal/storage.
type Repository interface {
	// Chambers возвращает все зарегистрированные камеры
	Chambers(ctx context.Context) ([]*Chamber, error)

	// Vaults возвращает все хранилища камеры
	Vaults(ctx context.Context, chamberID int64) ([]*Vault, error)

	// Spawners возвращает все спавнеры камеры
	Spawners(ctx context.Context, chamberID int64) ([]*Spawner, error)

	// InsertChamber сохраняет камеру и возвращает её суррогатный id
	InsertChamber(ctx context.Context, c *Chamber) (int64, error)

	// InsertVault сохраняет хранилище и возвращает его id
	InsertVault(ctx context.Context, v *Vault) (int64, error)

	// InsertSpawner сохраняет спавнер и возвращает его id
	InsertSpawner(ctx context.Context, s *Spawner) (int64, error)

	// DeleteChamber удаляет камеру; хранилища и спавнеры удаляются
	// каскадно на уровне схемы
	DeleteChamber(ctx context.Context, id int64) error

	// UpdateChamberLastReset обновляет время последнего сброса
	UpdateChamberLastReset(ctx context.Context, id int64, t time.Time) error

	// UpdateChamberSnapshot обновляет ссылку на файл снапшота
	UpdateChamberSnapshot(ctx context.Context, id int64, file string) error
}

// ErrDuplicateName возвращается при попытке зарегистрировать камеру с уже
// занятым именем
var ErrDuplicateName = errors.New("камера с таким именем уже существует")

// ErrNotFound возвращается, когда камера не найдена в реестре
type ErrNotFound struct {
	Name string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("камера %q не найдена", e.Name)
}

// ErrVaultOutsideChamber возвращается при попытке зарегистрировать
// хранилище вне бокса владеющей камеры
type ErrVaultOutsideChamber struct {
	Chamber string
	Pos     geom.BlockPos
}

func (e ErrVaultOutsideChamber) Error() string {
	return fmt.Sprintf("позиция хранилища %s вне бокса камеры %q", e.Pos, e.Chamber)
}

// Registry владеет канонической копией всех камер в памяти. Записи
// загружаются один раз при старте (Preload) и поддерживаются методами
// мутации со сквозной записью в Repository. Чтения (запросы
// принадлежности) дёшевы и конкурентны: обработчики движения игроков
// вызывают их на высокой частоте.
//
// Объекты кеша после публикации не мутируются: методы мутации подменяют
// запись свежей копией, поэтому выданный читателю указатель — консистентный
// снимок, который можно читать с любой горутины без блокировок. Срез
// последующих обновлений читатель получает повторным запросом.
type Registry struct {
	repo Repository

	// writeMu сериализует мутации между собой. Запись в Repository
	// выполняется под writeMu, но без кеш-мьютекса: читатели не ждут I/O
	writeMu sync.Mutex

	mu sync.RWMutex
	// chambers хранится в порядке регистрации: при перекрытии боксов
	// детерминированно побеждает первая зарегистрированная камера
	chambers []*Chamber
	byName   map[string]*Chamber
	vaults   map[int64][]*Vault
	spawners map[int64][]*Spawner
}

// NewRegistry создает пустой реестр поверх хранилища записей
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:     repo,
		byName:   make(map[string]*Chamber),
		vaults:   make(map[int64][]*Vault),
		spawners: make(map[int64][]*Spawner),
	}
}

// Preload загружает все камеры и их зависимые записи из хранилища в кеш.
// Вызывается один раз при старте до запуска координатора сбросов.
func (r *Registry) Preload(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	chambers, err := r.repo.Chambers(ctx)
	if err != nil {
		return fmt.Errorf("ошибка при загрузке камер: %w", err)
	}

	byName := make(map[string]*Chamber, len(chambers))
	vaults := make(map[int64][]*Vault, len(chambers))
	spawners := make(map[int64][]*Spawner, len(chambers))

	for _, c := range chambers {
		vs, err := r.repo.Vaults(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("ошибка при загрузке хранилищ камеры %q: %w", c.Name, err)
		}
		ss, err := r.repo.Spawners(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("ошибка при загрузке спавнеров камеры %q: %w", c.Name, err)
		}

		byName[c.Name] = c
		vaults[c.ID] = vs
		spawners[c.ID] = ss
	}

	r.mu.Lock()
	r.chambers = chambers
	r.byName = byName
	r.vaults = vaults
	r.spawners = spawners
	r.mu.Unlock()

	log.Printf("[Registry] загружено камер: %d", len(chambers))
	return nil
}

// Register регистрирует новую камеру: сквозная запись в хранилище, затем
// обновление кеша. Имя обязано быть уникальным.
func (r *Registry) Register(ctx context.Context, c *Chamber) error {
	if c.ResetInterval <= 0 {
		return fmt.Errorf("интервал сброса камеры %q должен быть положительным", c.Name)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, exists := r.Get(c.Name); exists {
		return ErrDuplicateName
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	id, err := r.repo.InsertChamber(ctx, c)
	if err != nil {
		return fmt.Errorf("ошибка при сохранении камеры %q: %w", c.Name, err)
	}
	c.ID = id

	// в кеш публикуется приватная копия: объект вызывающего остаётся
	// его собственным и на снимки читателей не влияет
	stored := *c
	r.mu.Lock()
	r.chambers = append(r.chambers, &stored)
	r.byName[stored.Name] = &stored
	r.mu.Unlock()
	return nil
}

// RegisterVault регистрирует хранилище внутри камеры. Позиция обязана
// лежать внутри бокса камеры.
func (r *Registry) RegisterVault(ctx context.Context, chamberName string, v *Vault) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	c, exists := r.Get(chamberName)
	if !exists {
		return ErrNotFound{Name: chamberName}
	}
	if !c.Box.Contains(v.Pos) {
		return ErrVaultOutsideChamber{Chamber: chamberName, Pos: v.Pos}
	}

	v.ChamberID = c.ID
	id, err := r.repo.InsertVault(ctx, v)
	if err != nil {
		return fmt.Errorf("ошибка при сохранении хранилища камеры %q: %w", chamberName, err)
	}
	v.ID = id

	stored := *v
	r.mu.Lock()
	r.vaults[c.ID] = append(r.vaults[c.ID], &stored)
	r.mu.Unlock()
	return nil
}

// RegisterSpawner регистрирует спавнер внутри камеры
func (r *Registry) RegisterSpawner(ctx context.Context, chamberName string, s *Spawner) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	c, exists := r.Get(chamberName)
	if !exists {
		return ErrNotFound{Name: chamberName}
	}
	if !c.Box.Contains(s.Pos) {
		return fmt.Errorf("позиция спавнера %s вне бокса камеры %q", s.Pos, chamberName)
	}

	s.ChamberID = c.ID
	id, err := r.repo.InsertSpawner(ctx, s)
	if err != nil {
		return fmt.Errorf("ошибка при сохранении спавнера камеры %q: %w", chamberName, err)
	}
	s.ID = id

	stored := *s
	r.mu.Lock()
	r.spawners[c.ID] = append(r.spawners[c.ID], &stored)
	r.mu.Unlock()
	return nil
}

// Delete удаляет камеру; зависимые хранилища и спавнеры удаляются
// каскадно на уровне схемы хранилища
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	c, exists := r.Get(name)
	if !exists {
		return ErrNotFound{Name: name}
	}

	if err := r.repo.DeleteChamber(ctx, c.ID); err != nil {
		return fmt.Errorf("ошибка при удалении камеры %q: %w", name, err)
	}

	r.mu.Lock()
	delete(r.byName, name)
	delete(r.vaults, c.ID)
	delete(r.spawners, c.ID)
	for i, ch := range r.chambers {
		if ch.ID == c.ID {
			r.chambers = append(r.chambers[:i], r.chambers[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	return nil
}

// SetLastReset обновляет время последнего сброса: сквозная запись в
// хранилище, затем кеш
func (r *Registry) SetLastReset(ctx context.Context, name string, t time.Time) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	c, exists := r.Get(name)
	if !exists {
		return ErrNotFound{Name: name}
	}

	if err := r.repo.UpdateChamberLastReset(ctx, c.ID, t); err != nil {
		return fmt.Errorf("ошибка при обновлении времени сброса камеры %q: %w", name, err)
	}

	reset := t
	updated := *c
	updated.LastReset = &reset
	r.replaceChamber(&updated)
	return nil
}

// SetSnapshotFile обновляет ссылку на файл снапшота камеры
func (r *Registry) SetSnapshotFile(ctx context.Context, name string, file string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	c, exists := r.Get(name)
	if !exists {
		return ErrNotFound{Name: name}
	}

	if err := r.repo.UpdateChamberSnapshot(ctx, c.ID, file); err != nil {
		return fmt.Errorf("ошибка при обновлении снапшота камеры %q: %w", name, err)
	}

	f := file
	updated := *c
	updated.SnapshotFile = &f
	r.replaceChamber(&updated)
	return nil
}

// replaceChamber подменяет запись камеры в кеше свежей копией. Выданные
// ранее указатели остаются валидными снимками и не мутируются.
func (r *Registry) replaceChamber(updated *Chamber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[updated.Name]; !ok {
		// камера удалена между чтением и подменой — кеш не трогаем
		return
	}
	r.byName[updated.Name] = updated
	for i, ch := range r.chambers {
		if ch.ID == updated.ID {
			r.chambers[i] = updated
			break
		}
	}
}

// Get возвращает камеру по имени
func (r *Registry) Get(name string) (*Chamber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// All возвращает срез всех камер в порядке регистрации
func (r *Registry) All() []*Chamber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Chamber, len(r.chambers))
	copy(out, r.chambers)
	return out
}

// FindContaining возвращает первую (в порядке регистрации) камеру,
// содержащую локацию. Боксы камер не должны перекрываться; при
// перекрытии результат детерминирован порядком регистрации.
func (r *Registry) FindContaining(loc geom.Location) (*Chamber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.chambers {
		if c.Contains(loc) {
			return c, true
		}
	}
	return nil, false
}

// CachedChamberAt — вариант FindContaining только по кешу, никогда не
// обращающийся к хранилищу. Используется высокочастотными читателями,
// которым нельзя блокироваться.
func (r *Registry) CachedChamberAt(loc geom.Location) (*Chamber, bool) {
	return r.FindContaining(loc)
}

// Vaults возвращает хранилища камеры
func (r *Registry) Vaults(chamberID int64) []*Vault {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Vault, len(r.vaults[chamberID]))
	copy(out, r.vaults[chamberID])
	return out
}

// VaultAt возвращает хранилище по локации вместе с владеющей камерой
func (r *Registry) VaultAt(loc geom.Location) (*Vault, *Chamber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.chambers {
		if !c.Contains(loc) {
			continue
		}
		for _, v := range r.vaults[c.ID] {
			if v.Pos == loc.Pos {
				return v, c, true
			}
		}
	}
	return nil, nil, false
}

// SetVaultLootTable переназначает таблицу лута хранилища (перезагрузка
// конфигурации); остальные поля хранилища неизменяемы
func (r *Registry) SetVaultLootTable(vaultID int64, table string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cid, vs := range r.vaults {
		for i, v := range vs {
			if v.ID == vaultID {
				updated := *v
				updated.LootTable = table
				r.vaults[cid][i] = &updated
				return
			}
		}
	}
}
