// Package storage реализует долговременное реляционное хранилище записей
// камер, хранилищ-наград, кулдаунов и статистики игроков поверх SQLite.
// Пакет предоставляет контракты, определённые потребителями:
// chamber.Repository, vault.Store и stats.Store.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/annelo/go-chamber-server/internal/chamber"
	"github.com/annelo/go-chamber-server/internal/geom"
	"github.com/annelo/go-chamber-server/internal/stats"
	"github.com/annelo/go-chamber-server/internal/vault"
)

// Схема хранилища. Форма таблиц и индексов — контракт персистентности:
// внешние ключи каскадируют удаление зависимых записей камеры.
const schema = `
CREATE TABLE IF NOT EXISTS chambers (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT    NOT NULL UNIQUE,
	world          TEXT    NOT NULL,
	min_x          INTEGER NOT NULL,
	min_y          INTEGER NOT NULL,
	min_z          INTEGER NOT NULL,
	max_x          INTEGER NOT NULL,
	max_y          INTEGER NOT NULL,
	max_z          INTEGER NOT NULL,
	exit_x         REAL,
	exit_y         REAL,
	exit_z         REAL,
	exit_yaw       REAL,
	exit_pitch     REAL,
	snapshot_file  TEXT,
	reset_interval INTEGER NOT NULL,
	last_reset     INTEGER,
	created_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vaults (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chamber_id INTEGER NOT NULL REFERENCES chambers(id) ON DELETE CASCADE,
	x          INTEGER NOT NULL,
	y          INTEGER NOT NULL,
	z          INTEGER NOT NULL,
	type       TEXT    NOT NULL,
	loot_table TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS spawners (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chamber_id INTEGER NOT NULL REFERENCES chambers(id) ON DELETE CASCADE,
	x          INTEGER NOT NULL,
	y          INTEGER NOT NULL,
	z          INTEGER NOT NULL,
	type       TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS player_vaults (
	player_uuid  TEXT    NOT NULL,
	vault_id     INTEGER NOT NULL REFERENCES vaults(id) ON DELETE CASCADE,
	last_opened  INTEGER NOT NULL,
	times_opened INTEGER NOT NULL,
	PRIMARY KEY (player_uuid, vault_id)
);

CREATE TABLE IF NOT EXISTS player_stats (
	player_uuid           TEXT PRIMARY KEY,
	chambers_completed    INTEGER NOT NULL DEFAULT 0,
	normal_vaults_opened  INTEGER NOT NULL DEFAULT 0,
	ominous_vaults_opened INTEGER NOT NULL DEFAULT 0,
	mobs_killed           INTEGER NOT NULL DEFAULT 0,
	deaths                INTEGER NOT NULL DEFAULT 0,
	time_spent            INTEGER NOT NULL DEFAULT 0,
	last_updated          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vaults_chamber_id      ON vaults(chamber_id);
CREATE INDEX IF NOT EXISTS idx_vaults_type            ON vaults(type);
CREATE INDEX IF NOT EXISTS idx_player_vaults_player   ON player_vaults(player_uuid);
CREATE INDEX IF NOT EXISTS idx_spawners_chamber_id    ON spawners(chamber_id);
`

// SQLiteRepository — реализация хранилища поверх встраиваемого SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository открывает (и при необходимости создаёт) базу по
// указанному пути и применяет схему
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть базу данных: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось подключиться к базе данных: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось применить схему: %w", err)
	}

	log.Printf("[Storage] база данных инициализирована: %s", path)
	return &SQLiteRepository{db: db}, nil
}

// Close закрывает соединение с базой
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Chambers возвращает все камеры в порядке возрастания id (порядок
// регистрации)
func (r *SQLiteRepository) Chambers(ctx context.Context) ([]*chamber.Chamber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, world, min_x, min_y, min_z, max_x, max_y, max_z,
		       exit_x, exit_y, exit_z, exit_yaw, exit_pitch,
		       snapshot_file, reset_interval, last_reset, created_at
		FROM chambers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("запрос камер: %w", err)
	}
	defer rows.Close()

	var out []*chamber.Chamber
	for rows.Next() {
		c, err := scanChamber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("чтение камер: %w", err)
	}
	return out, nil
}

func scanChamber(rows *sql.Rows) (*chamber.Chamber, error) {
	var (
		c                   chamber.Chamber
		exitX, exitY, exitZ sql.NullFloat64
		exitYaw, exitPitch  sql.NullFloat64
		snapshotFile        sql.NullString
		resetInterval       int64
		lastReset           sql.NullInt64
		createdAt           int64
	)
	err := rows.Scan(&c.ID, &c.Name, &c.World,
		&c.Box.Min.X, &c.Box.Min.Y, &c.Box.Min.Z,
		&c.Box.Max.X, &c.Box.Max.Y, &c.Box.Max.Z,
		&exitX, &exitY, &exitZ, &exitYaw, &exitPitch,
		&snapshotFile, &resetInterval, &lastReset, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("чтение записи камеры: %w", err)
	}

	if exitX.Valid && exitY.Valid && exitZ.Valid {
		c.Exit = &geom.Transform{
			World: c.World,
			X:     exitX.Float64,
			Y:     exitY.Float64,
			Z:     exitZ.Float64,
			Yaw:   float32(exitYaw.Float64),
			Pitch: float32(exitPitch.Float64),
		}
	}
	if snapshotFile.Valid {
		f := snapshotFile.String
		c.SnapshotFile = &f
	}
	c.ResetInterval = time.Duration(resetInterval) * time.Second
	if lastReset.Valid {
		t := time.Unix(lastReset.Int64, 0)
		c.LastReset = &t
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}

// InsertChamber сохраняет камеру и возвращает её id. Нарушение
// уникальности имени поднимается как ошибка запроса.
func (r *SQLiteRepository) InsertChamber(ctx context.Context, c *chamber.Chamber) (int64, error) {
	var exitX, exitY, exitZ, exitYaw, exitPitch interface{}
	if c.Exit != nil {
		exitX, exitY, exitZ = c.Exit.X, c.Exit.Y, c.Exit.Z
		exitYaw, exitPitch = float64(c.Exit.Yaw), float64(c.Exit.Pitch)
	}
	var snapshotFile interface{}
	if c.SnapshotFile != nil {
		snapshotFile = *c.SnapshotFile
	}
	var lastReset interface{}
	if c.LastReset != nil {
		lastReset = c.LastReset.Unix()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO chambers (name, world, min_x, min_y, min_z, max_x, max_y, max_z,
		                      exit_x, exit_y, exit_z, exit_yaw, exit_pitch,
		                      snapshot_file, reset_interval, last_reset, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.World,
		c.Box.Min.X, c.Box.Min.Y, c.Box.Min.Z,
		c.Box.Max.X, c.Box.Max.Y, c.Box.Max.Z,
		exitX, exitY, exitZ, exitYaw, exitPitch,
		snapshotFile, int64(c.ResetInterval/time.Second), lastReset, c.CreatedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("вставка камеры %q: %w", c.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("id вставленной камеры: %w", err)
	}
	return id, nil
}

// DeleteChamber удаляет камеру; хранилища, спавнеры и записи кулдаунов
// удаляются каскадно
func (r *SQLiteRepository) DeleteChamber(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chambers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("удаление камеры %d: %w", id, err)
	}
	return nil
}

// UpdateChamberLastReset обновляет время последнего сброса камеры
func (r *SQLiteRepository) UpdateChamberLastReset(ctx context.Context, id int64, t time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE chambers SET last_reset = ? WHERE id = ?`, t.Unix(), id); err != nil {
		return fmt.Errorf("обновление last_reset камеры %d: %w", id, err)
	}
	return nil
}

// UpdateChamberSnapshot обновляет ссылку на файл снапшота камеры
func (r *SQLiteRepository) UpdateChamberSnapshot(ctx context.Context, id int64, file string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE chambers SET snapshot_file = ? WHERE id = ?`, file, id); err != nil {
		return fmt.Errorf("обновление snapshot_file камеры %d: %w", id, err)
	}
	return nil
}

// Vaults возвращает хранилища камеры
func (r *SQLiteRepository) Vaults(ctx context.Context, chamberID int64) ([]*chamber.Vault, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chamber_id, x, y, z, type, loot_table
		FROM vaults WHERE chamber_id = ? ORDER BY id`, chamberID)
	if err != nil {
		return nil, fmt.Errorf("запрос хранилищ камеры %d: %w", chamberID, err)
	}
	defer rows.Close()

	var out []*chamber.Vault
	for rows.Next() {
		var v chamber.Vault
		var typ string
		if err := rows.Scan(&v.ID, &v.ChamberID, &v.Pos.X, &v.Pos.Y, &v.Pos.Z, &typ, &v.LootTable); err != nil {
			return nil, fmt.Errorf("чтение записи хранилища: %w", err)
		}
		vt, err := chamber.ParseVaultType(typ)
		if err != nil {
			return nil, fmt.Errorf("запись хранилища %d: %w", v.ID, err)
		}
		v.Type = vt
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("чтение хранилищ: %w", err)
	}
	return out, nil
}

// InsertVault сохраняет хранилище и возвращает его id
func (r *SQLiteRepository) InsertVault(ctx context.Context, v *chamber.Vault) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO vaults (chamber_id, x, y, z, type, loot_table)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ChamberID, v.Pos.X, v.Pos.Y, v.Pos.Z, v.Type.String(), v.LootTable)
	if err != nil {
		return 0, fmt.Errorf("вставка хранилища камеры %d: %w", v.ChamberID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("id вставленного хранилища: %w", err)
	}
	return id, nil
}

// Spawners возвращает спавнеры камеры
func (r *SQLiteRepository) Spawners(ctx context.Context, chamberID int64) ([]*chamber.Spawner, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chamber_id, x, y, z, type
		FROM spawners WHERE chamber_id = ? ORDER BY id`, chamberID)
	if err != nil {
		return nil, fmt.Errorf("запрос спавнеров камеры %d: %w", chamberID, err)
	}
	defer rows.Close()

	var out []*chamber.Spawner
	for rows.Next() {
		var s chamber.Spawner
		if err := rows.Scan(&s.ID, &s.ChamberID, &s.Pos.X, &s.Pos.Y, &s.Pos.Z, &s.Type); err != nil {
			return nil, fmt.Errorf("чтение записи спавнера: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("чтение спавнеров: %w", err)
	}
	return out, nil
}

// InsertSpawner сохраняет спавнер и возвращает его id
func (r *SQLiteRepository) InsertSpawner(ctx context.Context, s *chamber.Spawner) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO spawners (chamber_id, x, y, z, type)
		VALUES (?, ?, ?, ?, ?)`,
		s.ChamberID, s.Pos.X, s.Pos.Y, s.Pos.Z, s.Type)
	if err != nil {
		return 0, fmt.Errorf("вставка спавнера камеры %d: %w", s.ChamberID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("id вставленного спавнера: %w", err)
	}
	return id, nil
}

// PlayerVault возвращает запись кулдауна пары (игрок, хранилище); nil
// без ошибки, если записи нет
func (r *SQLiteRepository) PlayerVault(ctx context.Context, player uuid.UUID, vaultID int64) (*vault.Cooldown, error) {
	var (
		c          vault.Cooldown
		lastOpened int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT last_opened, times_opened FROM player_vaults
		WHERE player_uuid = ? AND vault_id = ?`,
		player.String(), vaultID).Scan(&lastOpened, &c.TimesOpened)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("запрос кулдауна (%s, %d): %w", player, vaultID, err)
	}
	c.PlayerUUID = player
	c.VaultID = vaultID
	c.LastOpened = time.Unix(lastOpened, 0)
	return &c, nil
}

// UpsertPlayerVault создаёт или обновляет запись кулдауна
func (r *SQLiteRepository) UpsertPlayerVault(ctx context.Context, c *vault.Cooldown) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO player_vaults (player_uuid, vault_id, last_opened, times_opened)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (player_uuid, vault_id)
		DO UPDATE SET last_opened = excluded.last_opened, times_opened = excluded.times_opened`,
		c.PlayerUUID.String(), c.VaultID, c.LastOpened.Unix(), c.TimesOpened)
	if err != nil {
		return fmt.Errorf("запись кулдауна (%s, %d): %w", c.PlayerUUID, c.VaultID, err)
	}
	return nil
}

// AddStatsDelta добавляет приращение к счётчикам игрока, создавая запись
// при первом событии
func (r *SQLiteRepository) AddStatsDelta(ctx context.Context, player uuid.UUID, d stats.Delta) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO player_stats (player_uuid, chambers_completed, normal_vaults_opened,
		                          ominous_vaults_opened, mobs_killed, deaths, time_spent, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_uuid) DO UPDATE SET
			chambers_completed    = chambers_completed + excluded.chambers_completed,
			normal_vaults_opened  = normal_vaults_opened + excluded.normal_vaults_opened,
			ominous_vaults_opened = ominous_vaults_opened + excluded.ominous_vaults_opened,
			mobs_killed           = mobs_killed + excluded.mobs_killed,
			deaths                = deaths + excluded.deaths,
			time_spent            = time_spent + excluded.time_spent,
			last_updated          = excluded.last_updated`,
		player.String(), d.ChambersCompleted, d.NormalVaultsOpened,
		d.OminousVaultsOpened, d.MobsKilled, d.Deaths, d.TimeSpent, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("запись статистики игрока %s: %w", player, err)
	}
	return nil
}

// PlayerStats возвращает счётчики игрока; nil без ошибки, если записи нет
func (r *SQLiteRepository) PlayerStats(ctx context.Context, player uuid.UUID) (*stats.PlayerStats, error) {
	var (
		s           stats.PlayerStats
		lastUpdated int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT chambers_completed, normal_vaults_opened, ominous_vaults_opened,
		       mobs_killed, deaths, time_spent, last_updated
		FROM player_stats WHERE player_uuid = ?`, player.String()).Scan(
		&s.ChambersCompleted, &s.NormalVaultsOpened, &s.OminousVaultsOpened,
		&s.MobsKilled, &s.Deaths, &s.TimeSpent, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("запрос статистики игрока %s: %w", player, err)
	}
	s.PlayerUUID = player
	s.LastUpdated = time.Unix(lastUpdated, 0)
	return &s, nil
}

// TopByChambersCompleted возвращает n лучших игроков по пройденным камерам
func (r *SQLiteRepository) TopByChambersCompleted(ctx context.Context, n int) ([]*stats.PlayerStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT player_uuid, chambers_completed, normal_vaults_opened, ominous_vaults_opened,
		       mobs_killed, deaths, time_spent, last_updated
		FROM player_stats ORDER BY chambers_completed DESC, player_uuid LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("запрос таблицы лидеров: %w", err)
	}
	defer rows.Close()

	var out []*stats.PlayerStats
	for rows.Next() {
		var (
			s           stats.PlayerStats
			rawUUID     string
			lastUpdated int64
		)
		if err := rows.Scan(&rawUUID, &s.ChambersCompleted, &s.NormalVaultsOpened,
			&s.OminousVaultsOpened, &s.MobsKilled, &s.Deaths, &s.TimeSpent, &lastUpdated); err != nil {
			return nil, fmt.Errorf("чтение записи статистики: %w", err)
		}
		id, err := uuid.Parse(rawUUID)
		if err != nil {
			return nil, fmt.Errorf("некорректный uuid %q в player_stats: %w", rawUUID, err)
		}
		s.PlayerUUID = id
		s.LastUpdated = time.Unix(lastUpdated, 0)
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("чтение таблицы лидеров: %w", err)
	}
	return out, nil
}
