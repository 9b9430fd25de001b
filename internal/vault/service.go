// Package vault реализует движок хранилищ-наград: валидация типа ключа,
// кулдауны на пару (игрок, хранилище), генерация лута и сквозная запись
// состояния.
package vault

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annelo/go-chamber-server/internal/chamber"
	"github.com/annelo/go-chamber-server/internal/geom"
	"github.com/annelo/go-chamber-server/internal/loot"
	"github.com/annelo/go-chamber-server/internal/stats"
)

// Cooldown — запись о вскрытиях хранилища игроком. Создаётся при первом
// открытии, обновляется при каждом последующем, никогда не удаляется
// (историческая запись).
type Cooldown struct {
	PlayerUUID  uuid.UUID
	VaultID     int64
	LastOpened  time.Time
	TimesOpened int64
}

// Store определяет узкий контракт хранилища записей кулдаунов
type Store interface {
	// PlayerVault возвращает запись пары (игрок, хранилище); nil без
	// ошибки, если игрок ещё не открывал это хранилище
	PlayerVault(ctx context.Context, player uuid.UUID, vaultID int64) (*Cooldown, error)

	// UpsertPlayerVault создаёт или обновляет запись пары
	UpsertPlayerVault(ctx context.Context, c *Cooldown) error
}

// Config — настройки движка хранилищ
type Config struct {
	// ValidateKeyType включает проверку соответствия ключа типу хранилища
	ValidateKeyType bool

	// NormalCooldown и OminousCooldown — длительности кулдауна по типам
	NormalCooldown  time.Duration
	OminousCooldown time.Duration

	// Clock подменяет источник времени; nil означает time.Now
	Clock func() time.Time
}

// RejectReason — структурированная причина отказа игроку. Отказы не
// являются ошибками: они не логируются как ошибки и показываются только
// инициировавшему игроку.
type RejectReason int

const (
	RejectVaultNotFound RejectReason = iota
	RejectWrongKeyType
	RejectCooldown
)

// String возвращает читаемое имя причины отказа
func (r RejectReason) String() string {
	switch r {
	case RejectVaultNotFound:
		return "vault_not_found"
	case RejectWrongKeyType:
		return "wrong_key_type"
	case RejectCooldown:
		return "cooldown"
	}
	return fmt.Sprintf("reject(%d)", int(r))
}

// Rejection — отказ во вскрытии хранилища
type Rejection struct {
	Reason RejectReason

	// Remaining заполнено только для RejectCooldown
	Remaining time.Duration
}

// OpenResult — итог успешного вскрытия
type OpenResult struct {
	Vault       *chamber.Vault
	Loot        *loot.Result
	TimesOpened int64
}

// Service — движок хранилищ-наград
type Service struct {
	registry *chamber.Registry
	store    Store
	tables   *loot.Tables
	stats    stats.Aggregator
	cfg      Config
	logger   *zap.SugaredLogger

	// Генератор не потокобезопасен, броски сериализуются
	rollMu sync.Mutex
	roller *loot.Roller

	now func() time.Time
}

// NewService создает движок хранилищ
func NewService(registry *chamber.Registry, store Store, tables *loot.Tables, agg stats.Aggregator, cfg Config) *Service {
	logger := zap.NewNop().Sugar()
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}
	return &Service{
		registry: registry,
		store:    store,
		tables:   tables,
		stats:    agg,
		cfg:      cfg,
		logger:   logger,
		roller:   loot.NewRoller(rand.New(rand.NewSource(time.Now().UnixNano()))),
		now:      now,
	}
}

// SetLogger подменяет логгер сервиса (по умолчанию no-op)
func (s *Service) SetLogger(logger *zap.SugaredLogger) {
	s.logger = logger
}

// cooldownFor возвращает длительность кулдауна для типа хранилища.
// Сопоставление исчерпывающее по вариантам типа.
func (s *Service) cooldownFor(t chamber.VaultType) time.Duration {
	switch t {
	case chamber.VaultOminous:
		return s.cfg.OminousCooldown
	default:
		return s.cfg.NormalCooldown
	}
}

// Open обрабатывает взаимодействие игрока с блоком хранилища. Возвращает
// либо результат вскрытия, либо структурированный отказ, либо ошибку
// (отказ и ошибка взаимоисключающи с результатом). До успешной проверки
// ключа и кулдауна состояние не меняется. Вызывать вне мирового потока:
// метод обращается к персистентности.
func (s *Service) Open(ctx context.Context, player uuid.UUID, key chamber.KeyType, loc geom.Location) (*OpenResult, *Rejection, error) {
	v, ch, ok := s.registry.VaultAt(loc)
	if !ok {
		return nil, &Rejection{Reason: RejectVaultNotFound}, nil
	}

	if s.cfg.ValidateKeyType && key.VaultType() != v.Type {
		return nil, &Rejection{Reason: RejectWrongKeyType}, nil
	}

	now := s.now()
	prev, err := s.store.PlayerVault(ctx, player, v.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("чтение кулдауна хранилища %d: %w", v.ID, err)
	}
	if prev != nil {
		elapsed := now.Sub(prev.LastOpened)
		if cd := s.cooldownFor(v.Type); elapsed < cd {
			return nil, &Rejection{Reason: RejectCooldown, Remaining: cd - elapsed}, nil
		}
	}

	table, ok := s.tables.Resolve(v.LootTable)
	if !ok {
		// Ошибка конфигурации, а не отказ игроку
		return nil, nil, fmt.Errorf("таблица лута %q хранилища %d не найдена", v.LootTable, v.ID)
	}

	s.rollMu.Lock()
	result := s.roller.RollTable(table)
	s.rollMu.Unlock()

	record := &Cooldown{
		PlayerUUID:  player,
		VaultID:     v.ID,
		LastOpened:  now,
		TimesOpened: 1,
	}
	if prev != nil {
		record.TimesOpened = prev.TimesOpened + 1
	}
	// Сквозная запись: отказ персистентности поднимается, а не глотается
	if err := s.store.UpsertPlayerVault(ctx, record); err != nil {
		return nil, nil, fmt.Errorf("запись кулдауна хранилища %d: %w", v.ID, err)
	}

	s.stats.RecordVaultOpened(player, v.Type)

	s.logger.Infow("хранилище открыто",
		"player", player.String(),
		"chamber", ch.Name,
		"vault", v.ID,
		"type", v.Type.String(),
		"items", len(result.Items),
		"commands", len(result.Commands),
		"times_opened", record.TimesOpened,
	)

	return &OpenResult{Vault: v, Loot: result, TimesOpened: record.TimesOpened}, nil, nil
}
