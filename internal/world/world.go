// Package world предоставляет встроенный в память хост мира: блочное
// хранилище с чанковой раскладкой, реестр находящихся в мире игроков и
// пробу модели исполнения. Единственный конкретный хост, используемый
// сервером и тестами.
package world

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/annelo/go-chamber-server/internal/geom"
	"github.com/annelo/go-chamber-server/internal/noisegeneration"
	"github.com/annelo/go-chamber-server/internal/playermanager"
	"github.com/annelo/go-chamber-server/internal/worldinterfaces"
)

// AirState — дескриптор блока по умолчанию для незаписанных позиций
const AirState = "minecraft:air"

// chunkKey адресует чанк 16x16 колонок внутри именованного мира
type chunkKey struct {
	world  string
	cx, cz int32
}

func chunkOf(world string, pos geom.BlockPos) chunkKey {
	return chunkKey{world: world, cx: pos.X >> 4, cz: pos.Z >> 4}
}

// chunk хранит записанные блоки своей области. Незаписанные позиции
// считаются воздухом и не занимают память.
type chunk struct {
	blocks map[geom.BlockPos]worldinterfaces.BlockState
}

// MemoryWorld — хост мира в памяти
type MemoryWorld struct {
	partitioned bool

	mu      sync.RWMutex
	chunks  map[chunkKey]*chunk
	players *playermanager.PlayerManager
	handles map[uuid.UUID]*PlayerHandle
}

// NewMemoryWorld создает пустой мир. Флаг partitioned определяет ответ
// пробы модели исполнения и не меняется после создания.
func NewMemoryWorld(partitioned bool) *MemoryWorld {
	return &MemoryWorld{
		partitioned: partitioned,
		chunks:      make(map[chunkKey]*chunk),
		players:     playermanager.NewPlayerManager(),
		handles:     make(map[uuid.UUID]*PlayerHandle),
	}
}

// PartitionedExecution сообщает модель исполнения хоста
func (w *MemoryWorld) PartitionedExecution() bool {
	return w.partitioned
}

// BlockAt возвращает состояние блока; незаписанные позиции — воздух
func (w *MemoryWorld) BlockAt(loc geom.Location) (worldinterfaces.BlockState, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if c, ok := w.chunks[chunkOf(loc.World, loc.Pos)]; ok {
		if st, ok := c.blocks[loc.Pos]; ok {
			return st, nil
		}
	}
	return worldinterfaces.BlockState{State: AirState}, nil
}

// SetBlockAt записывает состояние блока. Запись воздуха без данных
// освобождает позицию.
func (w *MemoryWorld) SetBlockAt(loc geom.Location, st worldinterfaces.BlockState) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := chunkOf(loc.World, loc.Pos)
	c, ok := w.chunks[key]
	if !ok {
		c = &chunk{blocks: make(map[geom.BlockPos]worldinterfaces.BlockState)}
		w.chunks[key] = c
	}

	if st.State == AirState && len(st.Payload) == 0 {
		delete(c.blocks, loc.Pos)
		return nil
	}
	c.blocks[loc.Pos] = st
	return nil
}

// FillTerrain заполняет бокс рельефом на шуме Перлина: камень до
// поверхности, поверхностный блок по высоте колонки, воздух выше
func (w *MemoryWorld) FillTerrain(worldName string, box geom.Box, seed int64) error {
	hm := noisegeneration.NewHeightMap(seed, (box.Min.Y+box.Max.Y)/2, (box.Max.Y-box.Min.Y)/2)

	for x := box.Min.X; x <= box.Max.X; x++ {
		for z := box.Min.Z; z <= box.Max.Z; z++ {
			surface := hm.SurfaceY(x, z)
			if surface > box.Max.Y {
				surface = box.Max.Y
			}
			top := noisegeneration.SurfaceBlock(hm.Height01(x, z))

			for y := box.Min.Y; y <= surface; y++ {
				state := "minecraft:stone"
				if y == surface {
					state = top
				}
				loc := geom.Location{World: worldName, Pos: geom.BlockPos{X: x, Y: y, Z: z}}
				if err := w.SetBlockAt(loc, worldinterfaces.BlockState{State: state}); err != nil {
					return fmt.Errorf("заполнение рельефа в %s: %w", loc.Pos, err)
				}
			}
		}
	}
	return nil
}

// Join добавляет игрока в мир и возвращает его хендл
func (w *MemoryWorld) Join(name string, loc geom.Location) (*PlayerHandle, error) {
	id := uuid.New()
	if err := w.players.AddPlayer(id, name, loc); err != nil {
		return nil, err
	}

	h := &PlayerHandle{id: id, name: name, world: w}
	w.mu.Lock()
	w.handles[id] = h
	w.mu.Unlock()
	return h, nil
}

// Leave удаляет игрока из мира; его хендл становится недействительным
func (w *MemoryWorld) Leave(id uuid.UUID) error {
	w.mu.Lock()
	delete(w.handles, id)
	w.mu.Unlock()
	return w.players.RemovePlayer(id)
}

// MovePlayer обновляет позицию игрока
func (w *MemoryWorld) MovePlayer(id uuid.UUID, loc geom.Location) error {
	return w.players.UpdatePlayerLocation(id, loc)
}

// PlayersIn возвращает игроков внутри бокса указанного мира
func (w *MemoryWorld) PlayersIn(worldName string, box geom.Box) []worldinterfaces.Player {
	inside := w.players.PlayersIn(worldName, box)

	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]worldinterfaces.Player, 0, len(inside))
	for _, p := range inside {
		if h, ok := w.handles[p.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}

// PlayerHandle реализует worldinterfaces.Player поверх MemoryWorld
type PlayerHandle struct {
	id    uuid.UUID
	name  string
	world *MemoryWorld

	msgMu sync.Mutex
	inbox []string
}

// ID возвращает идентификатор игрока
func (h *PlayerHandle) ID() uuid.UUID { return h.id }

// Name возвращает имя игрока
func (h *PlayerHandle) Name() string { return h.name }

// Valid сообщает, находится ли игрок всё ещё в мире
func (h *PlayerHandle) Valid() bool {
	h.world.mu.RLock()
	defer h.world.mu.RUnlock()
	_, ok := h.world.handles[h.id]
	return ok
}

// Location возвращает текущую локацию игрока
func (h *PlayerHandle) Location() geom.Location {
	p, err := h.world.players.GetPlayer(h.id)
	if err != nil {
		return geom.Location{}
	}
	return p.Location
}

// Teleport перемещает игрока в указанную точку. Дробные координаты
// приводятся к блоку полом, а не усечением: -0.5 лежит в блоке -1
func (h *PlayerHandle) Teleport(t geom.Transform) error {
	loc := geom.Location{
		World: t.World,
		Pos: geom.BlockPos{
			X: int32(math.Floor(t.X)),
			Y: int32(math.Floor(t.Y)),
			Z: int32(math.Floor(t.Z)),
		},
	}
	return h.world.players.UpdatePlayerLocation(h.id, loc)
}

// SendMessage доставляет игроку текстовое сообщение
func (h *PlayerHandle) SendMessage(msg string) {
	h.msgMu.Lock()
	h.inbox = append(h.inbox, msg)
	h.msgMu.Unlock()
}

// Messages возвращает копию всех полученных игроком сообщений
func (h *PlayerHandle) Messages() []string {
	h.msgMu.Lock()
	defer h.msgMu.Unlock()
	out := make([]string, len(h.inbox))
	copy(out, h.inbox)
	return out
}
