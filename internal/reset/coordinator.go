// Package reset реализует координатор сбросов камер: машину состояний
// Idle → Warning(n) → Resetting → Idle на камеру, управляемую глобальным
// периодическим тиком. Тик читает только временные метки кеша и никогда
// не трогает живой мир напрямую — вся мутация уходит через планировщик.
package reset

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annelo/go-chamber-server/internal/chamber"
	"github.com/annelo/go-chamber-server/internal/scheduler"
	"github.com/annelo/go-chamber-server/internal/snapshot"
	"github.com/annelo/go-chamber-server/internal/worldinterfaces"
)

// State — фаза цикла сброса камеры
type State int

const (
	StateIdle State = iota
	StateWarning
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarning:
		return "warning"
	case StateResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// Options настраивают поведение координатора
type Options struct {
	// CheckInterval — период глобального тика оценки таймеров
	CheckInterval time.Duration

	// Warnings — пороги предупреждений в оставшемся времени до сброса.
	// Каждый порог срабатывает не более одного раза за цикл.
	Warnings []time.Duration

	// Evacuate — телепортировать ли занимающих камеру игроков на выход
	// перед восстановлением
	Evacuate bool
}

// DefaultOptions — пороги 5 минут / 1 минута / 10 секунд, тик раз в секунду
func DefaultOptions() Options {
	return Options{
		CheckInterval: time.Second,
		Warnings:      []time.Duration{300 * time.Second, 60 * time.Second, 10 * time.Second},
		Evacuate:      true,
	}
}

// cycleState — состояние текущего цикла сброса одной камеры. Доступ
// только под мьютексом координатора.
type cycleState struct {
	// initialized выставляется при первой оценке камеры: пороги, уже
	// пройденные к этому моменту (например после рестарта сервера),
	// помечаются как сработавшие без рассылки
	initialized bool
	fired       map[time.Duration]bool
	state       State
	// flagged выставляется после неудачного восстановления: камера
	// будет повторно сброшена на следующем тике
	flagged bool
}

// Coordinator ведёт таймеры всех камер. Камеры оцениваются независимо:
// медленное восстановление одной камеры уходит на её владеющий контекст
// и не задерживает оценку остальных.
type Coordinator struct {
	registry  *chamber.Registry
	snapshots *snapshot.Service
	sched     scheduler.Scheduler
	world     worldinterfaces.HostWorld
	opts      Options

	mu     sync.Mutex
	cycles map[int64]*cycleState

	tick scheduler.Handle

	// now подменяется в тестах
	now func() time.Time
}

// NewCoordinator создает координатор сбросов
func NewCoordinator(registry *chamber.Registry, snapshots *snapshot.Service, sched scheduler.Scheduler, world worldinterfaces.HostWorld, opts Options) *Coordinator {
	warnings := make([]time.Duration, len(opts.Warnings))
	copy(warnings, opts.Warnings)
	// Убывание оставшегося времени: ранние предупреждения первыми
	sort.Slice(warnings, func(i, j int) bool { return warnings[i] > warnings[j] })
	opts.Warnings = warnings

	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Second
	}

	return &Coordinator{
		registry:  registry,
		snapshots: snapshots,
		sched:     sched,
		world:     world,
		opts:      opts,
		cycles:    make(map[int64]*cycleState),
		now:       time.Now,
	}
}

// Start запускает глобальный периодический тик
func (c *Coordinator) Start() {
	c.tick = c.sched.RunPeriodic(c.Tick, c.opts.CheckInterval, c.opts.CheckInterval)
	log.Printf("[Reset] координатор запущен, период проверки %s", c.opts.CheckInterval)
}

// Stop отменяет тик; начатые восстановления завершаются планировщиком
func (c *Coordinator) Stop() {
	if c.tick != nil {
		c.tick.Cancel()
	}
}

// ChamberState возвращает текущую фазу цикла камеры
func (c *Coordinator) ChamberState(chamberID int64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cs, ok := c.cycles[chamberID]; ok {
		return cs.state
	}
	return StateIdle
}

// Tick оценивает таймеры всех камер. Глобальный и свободный от
// контекста: читает только временные метки кеша.
func (c *Coordinator) Tick() {
	now := c.now()
	for _, ch := range c.registry.All() {
		c.evaluate(ch, now)
	}
}

func (c *Coordinator) evaluate(ch *chamber.Chamber, now time.Time) {
	base := ch.CreatedAt
	if ch.LastReset != nil {
		base = *ch.LastReset
	}
	remaining := base.Add(ch.ResetInterval).Sub(now)

	c.mu.Lock()
	cs, ok := c.cycles[ch.ID]
	if !ok {
		cs = &cycleState{fired: make(map[time.Duration]bool)}
		c.cycles[ch.ID] = cs
	}

	if cs.state == StateResetting {
		c.mu.Unlock()
		return
	}

	// Первая оценка после старта: пороги, пройденные до запуска
	// координатора, пропускаются, а не рассылаются задним числом
	if !cs.initialized {
		cs.initialized = true
		for _, t := range c.opts.Warnings {
			if remaining < t {
				cs.fired[t] = true
			}
		}
	}

	if remaining <= 0 || cs.flagged {
		cs.state = StateResetting
		cs.flagged = false
		c.mu.Unlock()
		c.beginReset(ch)
		return
	}

	// Новые пройденные пороги, по убыванию оставшегося времени
	var due []time.Duration
	for _, t := range c.opts.Warnings {
		if remaining <= t && !cs.fired[t] {
			cs.fired[t] = true
			due = append(due, t)
		}
	}
	if len(due) > 0 {
		cs.state = StateWarning
	}
	c.mu.Unlock()

	for _, t := range due {
		c.broadcastWarning(ch, t)
	}
}

// broadcastWarning рассылает предупреждение занимающим камеру игрокам
func (c *Coordinator) broadcastWarning(ch *chamber.Chamber, threshold time.Duration) {
	c.sched.RunGlobal(func() {
		occupants := c.world.PlayersIn(ch.World, ch.Box)
		msg := fmt.Sprintf("Камера %s будет сброшена через %s!", ch.Name, threshold)
		for _, p := range occupants {
			p.SendMessage(msg)
		}
		log.Printf("[Reset] камера %q: предупреждение за %s (игроков внутри: %d)",
			ch.Name, threshold, len(occupants))
	})
}

// ForceReset немедленно запускает цикл сброса камеры, минуя таймер
func (c *Coordinator) ForceReset(name string) error {
	ch, ok := c.registry.Get(name)
	if !ok {
		return chamber.ErrNotFound{Name: name}
	}

	c.mu.Lock()
	cs, exists := c.cycles[ch.ID]
	if !exists {
		cs = &cycleState{fired: make(map[time.Duration]bool), initialized: true}
		c.cycles[ch.ID] = cs
	}
	if cs.state == StateResetting {
		c.mu.Unlock()
		return fmt.Errorf("камера %q уже восстанавливается", name)
	}
	cs.state = StateResetting
	cs.flagged = false
	c.mu.Unlock()

	c.beginReset(ch)
	return nil
}

// beginReset выполняет цикл сброса: эвакуация занимающих игроков на
// владеющих ими контекстах, затем восстановление. Запись блоков не
// начинается, пока последний телепорт не завершён (или подтверждено
// отсутствие игроков) — нельзя восстанавливать блоки под ещё стоящим
// игроком.
func (c *Coordinator) beginReset(ch *chamber.Chamber) {
	c.sched.RunGlobal(func() {
		occupants := c.world.PlayersIn(ch.World, ch.Box)
		if !c.opts.Evacuate || len(occupants) == 0 {
			c.restore(ch)
			return
		}

		exit := ch.ExitTransform()
		var pending atomic.Int64
		pending.Store(int64(len(occupants)))
		proceed := func() {
			if pending.Add(-1) == 0 {
				c.restore(ch)
			}
		}

		log.Printf("[Reset] камера %q: эвакуация %d игроков", ch.Name, len(occupants))
		for _, p := range occupants {
			p := p
			c.sched.RunAtEntity(p, func() {
				p.SendMessage(fmt.Sprintf("Камера %s сбрасывается, вы перемещены на выход.", ch.Name))
				if err := p.Teleport(exit); err != nil {
					log.Printf("[Reset] не удалось телепортировать игрока %s: %v", p.Name(), err)
				}
				proceed()
			}, proceed)
		}
	})
}

// restore делегирует восстановление сервису снапшотов и завершает цикл
func (c *Coordinator) restore(ch *chamber.Chamber) {
	c.snapshots.Restore(ch, func(err error) {
		switch {
		case err == nil:
			c.completeCycle(ch)
		case errors.Is(err, snapshot.ErrNoSnapshot):
			// Камера без снапшота: восстанавливать нечего, но цикл
			// продвигается, иначе таймер будет срабатывать каждый тик
			log.Printf("[Reset] камера %q: снапшот не сохранён, сброс пропущен", ch.Name)
			c.completeCycle(ch)
		default:
			log.Printf("[Reset] камера %q: ошибка восстановления: %v", ch.Name, err)
			c.flagForRetry(ch)
		}
	})
}

// completeCycle обновляет время последнего сброса и возвращает камеру в
// Idle. Запись в хранилище уходит на асинхронный путь.
func (c *Coordinator) completeCycle(ch *chamber.Chamber) {
	resetAt := c.now()
	c.sched.RunAsync(func() {
		if err := c.registry.SetLastReset(context.Background(), ch.Name, resetAt); err != nil {
			// Блоки уже восстановлены; несохранённая метка означает
			// лишь преждевременный повтор цикла после рестарта
			log.Printf("[Reset] камера %q: не удалось сохранить время сброса: %v", ch.Name, err)
		}

		c.mu.Lock()
		if cs, ok := c.cycles[ch.ID]; ok {
			cs.state = StateIdle
			cs.flagged = false
			cs.fired = make(map[time.Duration]bool)
		}
		c.mu.Unlock()

		log.Printf("[Reset] камера %q: сброс завершён", ch.Name)
	})
}

// flagForRetry помечает камеру для повторного сброса на следующем тике
func (c *Coordinator) flagForRetry(ch *chamber.Chamber) {
	c.mu.Lock()
	if cs, ok := c.cycles[ch.ID]; ok {
		cs.state = StateIdle
		cs.flagged = true
	}
	c.mu.Unlock()
}
