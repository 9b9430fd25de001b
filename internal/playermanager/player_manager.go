package playermanager

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/annelo/go-chamber-server/internal/geom"
)

// PlayerData содержит информацию об игроке
type PlayerData struct {
	ID       uuid.UUID
	Name     string
	Location geom.Location
	// Можно добавить дополнительные поля (инвентарь, характеристики и т.д.)
}

// PlayerManager управляет данными находящихся в мире игроков и отвечает
// на пространственные запросы занятости (кто сейчас внутри бокса)
type PlayerManager struct {
	players map[uuid.UUID]*PlayerData
	mu      sync.RWMutex
}

// NewPlayerManager создает новый экземпляр менеджера игроков
func NewPlayerManager() *PlayerManager {
	return &PlayerManager{
		players: make(map[uuid.UUID]*PlayerData),
	}
}

// AddPlayer добавляет нового игрока в менеджер
func (pm *PlayerManager) AddPlayer(id uuid.UUID, name string, loc geom.Location) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	// Проверяем, существует ли уже игрок с таким ID
	if _, exists := pm.players[id]; exists {
		return errors.New("игрок с таким ID уже существует")
	}

	pm.players[id] = &PlayerData{
		ID:       id,
		Name:     name,
		Location: loc,
	}
	return nil
}

// GetPlayer возвращает данные игрока по ID
func (pm *PlayerManager) GetPlayer(id uuid.UUID) (*PlayerData, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	player, exists := pm.players[id]
	if !exists {
		return nil, errors.New("игрок не найден")
	}

	return player, nil
}

// UpdatePlayerLocation обновляет позицию игрока
func (pm *PlayerManager) UpdatePlayerLocation(id uuid.UUID, loc geom.Location) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	player, exists := pm.players[id]
	if !exists {
		return errors.New("игрок не найден")
	}

	player.Location = loc
	return nil
}

// RemovePlayer удаляет игрока из менеджера
func (pm *PlayerManager) RemovePlayer(id uuid.UUID) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.players[id]; !exists {
		return errors.New("игрок не найден")
	}

	delete(pm.players, id)
	return nil
}

// GetAllPlayers возвращает список всех игроков
func (pm *PlayerManager) GetAllPlayers() []*PlayerData {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	players := make([]*PlayerData, 0, len(pm.players))
	for _, player := range pm.players {
		players = append(players, player)
	}

	return players
}

// PlayersIn возвращает игроков, находящихся внутри бокса в указанном
// мире. Частый читатель: вызывается тиком координатора сбросов.
func (pm *PlayerManager) PlayersIn(world string, box geom.Box) []*PlayerData {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var inside []*PlayerData
	for _, player := range pm.players {
		if player.Location.World == world && box.Contains(player.Location.Pos) {
			inside = append(inside, player)
		}
	}
	return inside
}
