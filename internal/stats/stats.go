// Package stats содержит агрегатор статистики игроков: ядро только
// отправляет события (открытые хранилища, пройденные камеры, убийства,
// смерти, время), никогда не читая их обратно для собственной логики.
package stats

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/annelo/go-chamber-server/internal/chamber"
	"github.com/annelo/go-chamber-server/internal/scheduler"
)

// PlayerStats — накопленные счётчики одного игрока
type PlayerStats struct {
	PlayerUUID          uuid.UUID
	ChambersCompleted   int64
	NormalVaultsOpened  int64
	OminousVaultsOpened int64
	MobsKilled          int64
	Deaths              int64
	TimeSpent           int64 // Секунды
	LastUpdated         time.Time
}

// Delta — приращение счётчиков; ядро добавляет только дельты
type Delta struct {
	ChambersCompleted   int64
	NormalVaultsOpened  int64
	OminousVaultsOpened int64
	MobsKilled          int64
	Deaths              int64
	TimeSpent           int64
}

// Store определяет узкий контракт хранилища статистики
type Store interface {
	// AddStatsDelta добавляет приращение к счётчикам игрока, создавая
	// запись при первом событии
	AddStatsDelta(ctx context.Context, player uuid.UUID, d Delta) error

	// PlayerStats возвращает счётчики игрока; nil без ошибки, если
	// записи ещё нет
	PlayerStats(ctx context.Context, player uuid.UUID) (*PlayerStats, error)

	// TopByChambersCompleted возвращает n лучших игроков по пройденным
	// камерам
	TopByChambersCompleted(ctx context.Context, n int) ([]*PlayerStats, error)
}

// Aggregator — интерфейс агрегатора, потребляемый ядром
type Aggregator interface {
	RecordVaultOpened(player uuid.UUID, t chamber.VaultType)
	RecordChamberCompleted(player uuid.UUID)
	RecordMobKilled(player uuid.UUID)
	RecordDeath(player uuid.UUID)
	RecordTimeSpent(player uuid.UUID, seconds int64)

	// GetStats — путь чтения, используемый только отчётными функциями
	// вне ядра
	GetStats(ctx context.Context, player uuid.UUID) (*PlayerStats, error)
}

// AsyncAggregator пишет события статистики через асинхронный путь
// планировщика: события не имеют права блокировать мировой поток, а
// отказ записи логируется и отбрасывается (события best-effort, в
// отличие от записей кулдаунов).
type AsyncAggregator struct {
	store Store
	sched scheduler.Scheduler
}

// NewAsyncAggregator создает агрегатор поверх хранилища статистики
func NewAsyncAggregator(store Store, sched scheduler.Scheduler) *AsyncAggregator {
	return &AsyncAggregator{store: store, sched: sched}
}

func (a *AsyncAggregator) record(player uuid.UUID, d Delta) {
	a.sched.RunAsync(func() {
		if err := a.store.AddStatsDelta(context.Background(), player, d); err != nil {
			log.Printf("[Stats] ошибка записи статистики игрока %s: %v", player, err)
		}
	})
}

// RecordVaultOpened учитывает открытое хранилище по типу
func (a *AsyncAggregator) RecordVaultOpened(player uuid.UUID, t chamber.VaultType) {
	switch t {
	case chamber.VaultOminous:
		a.record(player, Delta{OminousVaultsOpened: 1})
	default:
		a.record(player, Delta{NormalVaultsOpened: 1})
	}
}

// RecordChamberCompleted учитывает пройденную камеру
func (a *AsyncAggregator) RecordChamberCompleted(player uuid.UUID) {
	a.record(player, Delta{ChambersCompleted: 1})
}

// RecordMobKilled учитывает убитого моба
func (a *AsyncAggregator) RecordMobKilled(player uuid.UUID) {
	a.record(player, Delta{MobsKilled: 1})
}

// RecordDeath учитывает смерть игрока
func (a *AsyncAggregator) RecordDeath(player uuid.UUID) {
	a.record(player, Delta{Deaths: 1})
}

// RecordTimeSpent учитывает проведённое в камерах время
func (a *AsyncAggregator) RecordTimeSpent(player uuid.UUID, seconds int64) {
	a.record(player, Delta{TimeSpent: seconds})
}

// GetStats возвращает счётчики игрока из хранилища
func (a *AsyncAggregator) GetStats(ctx context.Context, player uuid.UUID) (*PlayerStats, error) {
	return a.store.PlayerStats(ctx, player)
}
