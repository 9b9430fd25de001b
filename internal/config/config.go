// Package config загружает настройки сервера из YAML-файла
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration — обёртка time.Duration, читающая из YAML строки вида "30s",
// "12h"
type Duration time.Duration

// UnmarshalYAML реализует yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("некорректная длительность %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std возвращает стандартный time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config — настройки сервера камер
type Config struct {
	// DatabasePath — путь к файлу базы SQLite
	DatabasePath string `yaml:"database_path"`

	// SnapshotsDir — каталог файлов снапшотов камер
	SnapshotsDir string `yaml:"snapshots_dir"`

	// LootDir — каталог YAML-определений таблиц лута
	LootDir string `yaml:"loot_dir"`

	// CheckInterval — период тика координатора сбросов
	CheckInterval Duration `yaml:"check_interval"`

	// Warnings — пороги предупреждений в оставшемся времени
	Warnings []Duration `yaml:"warnings"`

	// Evacuate — телепортировать игроков на выход перед сбросом
	Evacuate bool `yaml:"evacuate"`

	// ValidateKeys — проверять соответствие ключа типу хранилища
	ValidateKeys bool `yaml:"validate_keys"`

	// NormalCooldown и OminousCooldown — кулдауны открытия по типам
	NormalCooldown  Duration `yaml:"normal_cooldown"`
	OminousCooldown Duration `yaml:"ominous_cooldown"`

	// LeaderboardTTL и LeaderboardSize — кеш таблицы лидеров
	LeaderboardTTL  Duration `yaml:"leaderboard_ttl"`
	LeaderboardSize int      `yaml:"leaderboard_size"`
}

// Default возвращает конфигурацию по умолчанию
func Default() Config {
	return Config{
		DatabasePath:    "chambers.db",
		SnapshotsDir:    "snapshots",
		LootDir:         "loot",
		CheckInterval:   Duration(time.Second),
		Warnings:        []Duration{Duration(300 * time.Second), Duration(60 * time.Second), Duration(10 * time.Second)},
		Evacuate:        true,
		ValidateKeys:    true,
		NormalCooldown:  Duration(43200 * time.Second),
		OminousCooldown: Duration(43200 * time.Second),
		LeaderboardTTL:  Duration(60 * time.Second),
		LeaderboardSize: 10,
	}
}

// Load читает конфигурацию из файла поверх значений по умолчанию.
// Отсутствующий файл не является ошибкой: возвращаются значения по
// умолчанию.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("чтение файла конфигурации %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("разбор файла конфигурации %s: %w", path, err)
	}
	return cfg, nil
}

// WarningDurations возвращает пороги предупреждений как time.Duration
func (c Config) WarningDurations() []time.Duration {
	out := make([]time.Duration, len(c.Warnings))
	for i, w := range c.Warnings {
		out[i] = w.Std()
	}
	return out
}
