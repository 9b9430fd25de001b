package loot

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

// Tables — множество загруженных таблиц лута. Разрешение имени таблицы
// происходит в момент броска, а не регистрации хранилища, поэтому Reload
// подменяет таблицы на лету без перерегистрации.
type Tables struct {
	mu     sync.RWMutex
	byName map[string]*Table
}

// NewTables создает пустое множество таблиц
func NewTables() *Tables {
	return &Tables{byName: make(map[string]*Table)}
}

// Resolve возвращает таблицу по имени
func (t *Tables) Resolve(name string) (*Table, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	table, ok := t.byName[name]
	return table, ok
}

// Names возвращает имена всех загруженных таблиц
func (t *Tables) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.byName))
	for name := range t.byName {
		out = append(out, name)
	}
	return out
}

// Put добавляет или заменяет таблицу
func (t *Tables) Put(table *Table) {
	t.mu.Lock()
	t.byName[table.Name] = table
	t.mu.Unlock()
}

// LoadDir загружает все *.yaml/*.yml таблицы из директории. Ошибки
// конфигурации не фатальны: испорченный файл или запись пропускаются с
// предупреждением, загрузка продолжается.
func (t *Tables) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("чтение директории таблиц лута: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		table, err := loadTableFile(filepath.Join(dir, name))
		if err != nil {
			log.Printf("[Loot] пропускаем таблицу %s: %v", name, err)
			continue
		}
		t.Put(table)
		loaded++
	}

	log.Printf("[Loot] загружено таблиц лута: %d", loaded)
	return nil
}

// Описание файла таблицы. Современный формат задаёт pools; легаси-формат
// задаёт items/min_rolls/max_rolls на верхнем уровне и нормализуется в
// таблицу с одним пулом.
type tableFile struct {
	Name  string    `yaml:"name"`
	Pools []poolDef `yaml:"pools"`

	// Легаси-поля одно-пульной таблицы
	MinRolls   int        `yaml:"min_rolls"`
	MaxRolls   int        `yaml:"max_rolls"`
	Guaranteed []itemDef  `yaml:"guaranteed"`
	Items      []entryDef `yaml:"items"`
}

type poolDef struct {
	MinRolls   int        `yaml:"min_rolls"`
	MaxRolls   int        `yaml:"max_rolls"`
	Guaranteed []itemDef  `yaml:"guaranteed"`
	Entries    []entryDef `yaml:"entries"`
}

type entryDef struct {
	itemDef `yaml:",inline"`
	Weight  int    `yaml:"weight"`
	Enabled *bool  `yaml:"enabled"`
	Command string `yaml:"command"`
}

type itemDef struct {
	Item       string      `yaml:"item"`
	Min        int         `yaml:"min"`
	Max        int         `yaml:"max"`
	Durability *rangeDef   `yaml:"durability"`
	Enchants   *enchantDef `yaml:"enchants"`
	Potion     *potionDef  `yaml:"potion"`
}

type rangeDef struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type enchantDef struct {
	PickOne bool            `yaml:"pick_one"`
	Pool    []enchantOptDef `yaml:"pool"`
}

type enchantOptDef struct {
	ID       string `yaml:"id"`
	MinLevel int    `yaml:"min_level"`
	MaxLevel int    `yaml:"max_level"`
	Weight   int    `yaml:"weight"`
}

type potionDef struct {
	Variants []variantDef `yaml:"variants"`
}

type variantDef struct {
	ID     string `yaml:"id"`
	Weight int    `yaml:"weight"`
}

func loadTableFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var def tableFile
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("разбор YAML: %w", err)
	}

	name := def.Name
	if name == "" {
		// Имя по умолчанию — имя файла без расширения
		base := filepath.Base(path)
		name = strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
	}

	table := &Table{Name: name}

	pools := def.Pools
	if len(pools) == 0 {
		// Легаси-формат: один пул из верхнеуровневых полей
		pools = []poolDef{{
			MinRolls:   def.MinRolls,
			MaxRolls:   def.MaxRolls,
			Guaranteed: def.Guaranteed,
			Entries:    def.Items,
		}}
	}

	for pi, pd := range pools {
		pool, err := buildPool(name, pi, pd)
		if err != nil {
			log.Printf("[Loot] таблица %q: пропускаем пул %d: %v", name, pi, err)
			continue
		}
		table.Pools = append(table.Pools, pool)
	}

	if len(table.Pools) == 0 {
		return nil, fmt.Errorf("таблица не содержит ни одного корректного пула")
	}
	return table, nil
}

func buildPool(table string, idx int, pd poolDef) (Pool, error) {
	if pd.MinRolls < 0 || pd.MaxRolls < pd.MinRolls {
		return Pool{}, fmt.Errorf("некорректный диапазон бросков [%d, %d]", pd.MinRolls, pd.MaxRolls)
	}

	pool := Pool{MinRolls: pd.MinRolls, MaxRolls: pd.MaxRolls}

	for _, gd := range pd.Guaranteed {
		item, err := buildItem(gd)
		if err != nil {
			log.Printf("[Loot] таблица %q, пул %d: пропускаем гарантированный предмет: %v", table, idx, err)
			continue
		}
		pool.Guaranteed = append(pool.Guaranteed, item)
	}

	for ei, ed := range pd.Entries {
		entry, err := buildEntry(ed)
		if err != nil {
			log.Printf("[Loot] таблица %q, пул %d: пропускаем запись %d: %v", table, idx, ei, err)
			continue
		}
		pool.Entries = append(pool.Entries, entry)
	}

	return pool, nil
}

func buildEntry(ed entryDef) (Entry, error) {
	if ed.Weight < 0 {
		return Entry{}, fmt.Errorf("отрицательный вес %d", ed.Weight)
	}

	entry := Entry{Weight: ed.Weight, Enabled: true}
	if ed.Enabled != nil {
		entry.Enabled = *ed.Enabled
	}

	if ed.Command != "" {
		entry.Command = ed.Command
		return entry, nil
	}

	item, err := buildItem(ed.itemDef)
	if err != nil {
		return Entry{}, err
	}
	entry.Item = item
	return entry, nil
}

func buildItem(id itemDef) (Item, error) {
	if id.Item == "" {
		return Item{}, fmt.Errorf("запись без идентификатора предмета")
	}
	if id.Max < id.Min {
		return Item{}, fmt.Errorf("некорректный диапазон количества [%d, %d]", id.Min, id.Max)
	}

	item := Item{ID: id.Item, MinCount: id.Min, MaxCount: id.Max}

	if id.Durability != nil {
		if id.Durability.Max < id.Durability.Min {
			return Item{}, fmt.Errorf("некорректный диапазон прочности [%d, %d]", id.Durability.Min, id.Durability.Max)
		}
		item.Durability = &Range{Min: id.Durability.Min, Max: id.Durability.Max}
	}

	if id.Enchants != nil && len(id.Enchants.Pool) > 0 {
		spec := &EnchantSpec{PickOne: id.Enchants.PickOne}
		for _, od := range id.Enchants.Pool {
			if od.ID == "" {
				return Item{}, fmt.Errorf("зачарование без идентификатора")
			}
			spec.Pool = append(spec.Pool, EnchantOption{
				ID:       od.ID,
				MinLevel: od.MinLevel,
				MaxLevel: od.MaxLevel,
				Weight:   od.Weight,
			})
		}
		item.Enchants = spec
	}

	if id.Potion != nil && len(id.Potion.Variants) > 0 {
		spec := &PotionSpec{}
		for _, vd := range id.Potion.Variants {
			spec.Variants = append(spec.Variants, Variant{ID: vd.ID, Weight: vd.Weight})
		}
		item.Potion = spec
	}

	return item, nil
}
