// Package chamber содержит доменную модель камер (ограниченных регионов с
// периодическим сбросом), их хранилищ-наград и реестр с кешем для быстрых
// конкурентных запросов принадлежности.
package chamber

import (
	"fmt"
	"time"

	"github.com/annelo/go-chamber-server/internal/geom"
)

// Chamber представляет именованный ограниченный регион, подлежащий
// периодическому сбросу. Бокс неизменяем после регистрации: изменение
// размеров камеры выполняется только через перерегистрацию.
type Chamber struct {
	ID   int64
	Name string

	// World — идентификатор мира, в котором находится камера
	World string

	// Box — выровненный по осям бокс камеры (границы включительно)
	Box geom.Box

	// Exit — точка эвакуации занятых игроков; nil, если не настроена
	Exit *geom.Transform

	// SnapshotFile — имя файла сохранённого снапшота; nil, если снапшот
	// ещё не снят
	SnapshotFile *string

	// ResetInterval — интервал между сбросами, всегда > 0
	ResetInterval time.Duration

	// LastReset — время последнего успешного сброса; nil до первого сброса
	LastReset *time.Time

	CreatedAt time.Time
}

// Contains проверяет, лежит ли локация внутри камеры (с учётом мира)
func (c *Chamber) Contains(loc geom.Location) bool {
	return loc.World == c.World && c.Box.Contains(loc.Pos)
}

// ExitTransform возвращает точку эвакуации. Если выход не настроен,
// используется безопасная точка по умолчанию: центр бокса по X/Z, один
// блок над верхней границей.
func (c *Chamber) ExitTransform() geom.Transform {
	if c.Exit != nil {
		return *c.Exit
	}
	center := c.Box.Center()
	return geom.TransformAt(c.World, geom.BlockPos{X: center.X, Y: c.Box.Max.Y + 1, Z: center.Z})
}

// VaultType представляет тип хранилища-награды: ровно два варианта
type VaultType int32

const (
	VaultNormal VaultType = iota
	VaultOminous
)

// String возвращает имя типа хранилища
func (t VaultType) String() string {
	switch t {
	case VaultNormal:
		return "normal"
	case VaultOminous:
		return "ominous"
	}
	return fmt.Sprintf("vault(%d)", int32(t))
}

// ParseVaultType разбирает имя типа хранилища
func ParseVaultType(s string) (VaultType, error) {
	switch s {
	case "normal":
		return VaultNormal, nil
	case "ominous":
		return VaultOminous, nil
	}
	return 0, fmt.Errorf("неизвестный тип хранилища: %q", s)
}

// KeyType представляет тип ключа, которым открывается хранилище
type KeyType int32

const (
	KeyTrial KeyType = iota
	KeyOminousTrial
)

// String возвращает имя типа ключа
func (k KeyType) String() string {
	switch k {
	case KeyTrial:
		return "trial_key"
	case KeyOminousTrial:
		return "ominous_trial_key"
	}
	return fmt.Sprintf("key(%d)", int32(k))
}

// ParseKeyType разбирает имя типа ключа
func ParseKeyType(s string) (KeyType, error) {
	switch s {
	case "trial_key", "trial":
		return KeyTrial, nil
	case "ominous_trial_key", "ominous":
		return KeyOminousTrial, nil
	}
	return 0, fmt.Errorf("неизвестный тип ключа: %q", s)
}

// VaultType возвращает тип хранилища, которое открывает данный ключ.
// Соответствие исчерпывающее: каждый вариант ключа отображается ровно в
// один вариант хранилища.
func (k KeyType) VaultType() VaultType {
	switch k {
	case KeyOminousTrial:
		return VaultOminous
	default:
		return VaultNormal
	}
}

// Vault представляет хранилище-награду внутри камеры. Позиция обязана
// лежать внутри бокса владеющей камеры; это проверяется при регистрации.
// После регистрации хранилище неизменяемо, кроме ссылки на таблицу лута,
// которая может быть переназначена при перезагрузке конфигурации.
type Vault struct {
	ID        int64
	ChamberID int64
	Pos       geom.BlockPos
	Type      VaultType

	// LootTable — имя таблицы лута; разрешается в момент броска, а не
	// регистрации, поэтому таблицы можно перезагружать на лету
	LootTable string
}

// Spawner представляет спавнер мобов внутри камеры
type Spawner struct {
	ID        int64
	ChamberID int64
	Pos       geom.BlockPos
	Type      string
}
