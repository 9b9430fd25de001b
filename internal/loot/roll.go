package loot

import "math/rand"

// Roller генерирует награды из таблиц лута. Не потокобезопасен: каждый
// вызывающий владеет своим экземпляром (или синхронизирует доступ сам).
type Roller struct {
	rnd *rand.Rand
}

// NewRoller создает генератор наград поверх источника случайности
func NewRoller(rnd *rand.Rand) *Roller {
	return &Roller{rnd: rnd}
}

// RollTable бросает все пулы таблицы и возвращает сгенерированные
// предметы и командные награды. Каждый пул бросается независимо: сначала
// выдаются все гарантированные предметы, затем делается случайное число
// выборов из взвешенного набора.
func (r *Roller) RollTable(t *Table) *Result {
	res := &Result{}
	for i := range t.Pools {
		r.rollPool(&t.Pools[i], res)
	}
	return res
}

func (r *Roller) rollPool(p *Pool, res *Result) {
	for i := range p.Guaranteed {
		res.Items = append(res.Items, r.rollItem(&p.Guaranteed[i]))
	}

	rolls := r.rollRange(p.MinRolls, p.MaxRolls)
	for i := 0; i < rolls; i++ {
		idx := r.pickWeighted(len(p.Entries), func(j int) int {
			e := &p.Entries[j]
			if !e.Enabled {
				return 0
			}
			return e.Weight
		})
		if idx < 0 {
			// Все записи выключены либо суммарный вес нулевой
			return
		}

		e := &p.Entries[idx]
		if e.Command != "" {
			res.Commands = append(res.Commands, e.Command)
			continue
		}
		res.Items = append(res.Items, r.rollItem(&e.Item))
	}
}

// rollItem разыгрывает количество и случайные подсвойства предмета теми
// же взвешенными/диапазонными примитивами
func (r *Roller) rollItem(it *Item) ItemStack {
	stack := ItemStack{
		ID:    it.ID,
		Count: r.rollRange(it.MinCount, it.MaxCount),
	}
	if stack.Count < 1 {
		stack.Count = 1
	}

	if it.Enchants != nil && len(it.Enchants.Pool) > 0 {
		stack.Enchants = r.rollEnchants(it.Enchants)
	}

	if it.Potion != nil && len(it.Potion.Variants) > 0 {
		idx := r.pickWeighted(len(it.Potion.Variants), func(j int) int {
			return it.Potion.Variants[j].Weight
		})
		if idx >= 0 {
			stack.Potion = it.Potion.Variants[idx].ID
		}
	}

	// Прочность разыгрывается равномерно, только когда заданы обе границы
	if it.Durability != nil {
		stack.Durability = r.rollRange(it.Durability.Min, it.Durability.Max)
		stack.HasDurability = true
	}

	return stack
}

func (r *Roller) rollEnchants(spec *EnchantSpec) []Enchant {
	if spec.PickOne {
		idx := r.pickWeighted(len(spec.Pool), func(j int) int {
			return spec.Pool[j].Weight
		})
		if idx < 0 {
			return nil
		}
		opt := &spec.Pool[idx]
		return []Enchant{{ID: opt.ID, Level: r.rollRange(opt.MinLevel, opt.MaxLevel)}}
	}

	out := make([]Enchant, 0, len(spec.Pool))
	for i := range spec.Pool {
		opt := &spec.Pool[i]
		out = append(out, Enchant{ID: opt.ID, Level: r.rollRange(opt.MinLevel, opt.MaxLevel)})
	}
	return out
}

// rollRange возвращает равномерное значение из [min, max] включительно.
// Вырожденный диапазон возвращается как есть.
func (r *Roller) rollRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + r.rnd.Intn(max-min+1)
}

// pickWeighted выполняет кумулятивный взвешенный выбор: суммирует веса
// всех кандидатов, берёт равномерное значение в [0, total) и идёт по
// кумулятивным суммам до первого кандидата, чья сумма превышает выпавшее
// значение. Равенства разрешаются в пользу объявленного раньше; кандидат
// с нулевым весом не выбирается никогда. Возвращает -1 при нулевой сумме.
func (r *Roller) pickWeighted(n int, weightAt func(i int) int) int {
	total := 0
	for i := 0; i < n; i++ {
		if w := weightAt(i); w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}

	draw := r.rnd.Intn(total)
	cum := 0
	for i := 0; i < n; i++ {
		if w := weightAt(i); w > 0 {
			cum += w
			if cum > draw {
				return i
			}
		}
	}
	// Недостижимо при корректных весах
	return -1
}
