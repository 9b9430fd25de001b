// Package worldinterfaces содержит общие интерфейсы хоста мира для
// избегания циклических зависимостей между пакетами
package worldinterfaces

import (
	"github.com/google/uuid"

	"github.com/annelo/go-chamber-server/internal/geom"
)

// BlockState описывает состояние одного блока: непрозрачный дескриптор
// состояния и необязательные структурированные данные (контейнеры,
// спавнеры, декорированные горшки). Payload равен nil для обычных блоков.
type BlockState struct {
	State   string
	Payload map[string]string
}

// BlockAccess определяет доступ к живому состоянию блоков мира.
// Все вызовы должны выполняться на контексте, владеющем регионом
// (см. internal/scheduler) — пакеты ядра сами этого не проверяют.
type BlockAccess interface {
	// BlockAt возвращает состояние блока по локации
	BlockAt(loc geom.Location) (BlockState, error)

	// SetBlockAt записывает состояние блока по локации
	SetBlockAt(loc geom.Location, st BlockState) error
}

// Entity определяет подвижную сущность мира, к которой можно привязать
// выполнение задачи планировщика
type Entity interface {
	// ID возвращает уникальный идентификатор сущности
	ID() uuid.UUID

	// Valid сообщает, существует ли сущность всё ещё в мире
	Valid() bool

	// Location возвращает текущую локацию сущности
	Location() geom.Location
}

// Player определяет игрока, находящегося в мире
type Player interface {
	Entity

	// Name возвращает имя игрока
	Name() string

	// Teleport перемещает игрока в указанную точку.
	// Должен вызываться на контексте, владеющем сущностью.
	Teleport(t geom.Transform) error

	// SendMessage отправляет игроку текстовое сообщение
	SendMessage(msg string)
}

// HostWorld определяет полный интерфейс хоста: доступ к блокам, запросы
// занятости и проба модели исполнения
type HostWorld interface {
	BlockAccess

	// PlayersIn возвращает всех игроков внутри бокса указанного мира
	PlayersIn(world string, box geom.Box) []Player

	// PartitionedExecution сообщает, исполняет ли хост мир в
	// регионализированной модели (много потоков-владельцев регионов).
	// Проба выполняется один раз при старте для выбора планировщика.
	PartitionedExecution() bool
}
