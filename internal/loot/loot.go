// Package loot реализует движок генерации наград: таблицы лута из
// конфигурации, независимо бросаемые пулы и взвешенный выбор с
// кулдаун-гейтами на стороне пакета vault.
package loot

// Table — таблица лута: именованный набор пулов. Таблицы порождаются
// конфигурацией, неизменяемы между перезагрузками и не персистятся как
// живые записи. Легаси-таблицы с одним набором предметов представлены
// внутренне как таблица с одним пулом.
type Table struct {
	Name  string
	Pools []Pool
}

// Pool — независимо бросаемая группа наград: гарантированные предметы
// плюс взвешенный набор, из которого делается от MinRolls до MaxRolls
// выборов включительно
type Pool struct {
	MinRolls   int
	MaxRolls   int
	Guaranteed []Item
	Entries    []Entry
}

// Entry — взвешенная запись пула: либо предмет, либо командная награда.
// Выключенные записи исключаются и из суммы весов, и из розыгрыша.
type Entry struct {
	Item    Item
	Weight  int
	Enabled bool

	// Command — командная награда: выполняется как побочный эффект, а не
	// кладётся в инвентарь. Пустая строка означает предметную запись.
	Command string
}

// Item описывает конфигурацию предмета: диапазон количества и
// необязательные случайные подсвойства
type Item struct {
	ID       string
	MinCount int
	MaxCount int

	// Durability — диапазон прочности; разыгрывается равномерно, только
	// когда заданы обе границы
	Durability *Range

	// Enchants — случайные зачарования предмета
	Enchants *EnchantSpec

	// Potion — выбор варианта зелья/стрелы с эффектом
	Potion *PotionSpec
}

// Range — целочисленный диапазон включительно
type Range struct {
	Min int
	Max int
}

// EnchantSpec описывает случайные зачарования: либо каждый вариант пула
// применяется со своим диапазоном уровней, либо (PickOne) взвешенно
// выбирается ровно один
type EnchantSpec struct {
	PickOne bool
	Pool    []EnchantOption
}

// EnchantOption — один вариант зачарования
type EnchantOption struct {
	ID       string
	MinLevel int
	MaxLevel int
	Weight   int
}

// PotionSpec — взвешенный выбор варианта зелья
type PotionSpec struct {
	Variants []Variant
}

// Variant — взвешенный вариант
type Variant struct {
	ID     string
	Weight int
}

// Enchant — разыгранное зачарование на сгенерированном предмете
type Enchant struct {
	ID    string
	Level int
}

// ItemStack — сгенерированный предмет, передаваемый вызывающему
type ItemStack struct {
	ID       string
	Count    int
	Enchants []Enchant
	Potion   string

	// Durability значима, только когда HasDurability == true
	Durability    int
	HasDurability bool
}

// Result — итог броска таблицы: предметы и командные награды
type Result struct {
	Items    []ItemStack
	Commands []string
}
