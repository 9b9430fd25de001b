// Package scheduler предоставляет абстракцию планирования задач, единую
// для двух моделей исполнения мира: один глобальный поток либо множество
// потоков-владельцев регионов. Остальное ядро никогда не ветвится по
// активной модели — этот пакет является единственным швом, изолирующим
// регионализированную конкурентность от логики камер.
package scheduler

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annelo/go-chamber-server/internal/geom"
	"github.com/annelo/go-chamber-server/internal/worldinterfaces"
)

// Task представляет единицу работы для планировщика
type Task func()

// Handle позволяет отменить запланированную задачу
type Handle interface {
	// Cancel отменяет задачу, если она ещё не выполнена
	Cancel()

	// IsCancelled сообщает, была ли задача отменена
	IsCancelled() bool
}

// Scheduler определяет контракт планирования, не зависящий от модели
// исполнения. Любая мутация живого мира (блоки, сущности, телепорты)
// обязана проходить через RunAtLocation/RunAtEntity.
type Scheduler interface {
	// RunGlobal выполняет задачу один раз вне привязки к региону
	RunGlobal(task Task)

	// RunAsync выполняет задачу полностью вне мировых потоков.
	// Обязательна для I/O-работы (вызовы персистентности).
	RunAsync(task Task)

	// RunDelayed выполняет задачу один раз после задержки
	RunDelayed(task Task, delay time.Duration) Handle

	// RunPeriodic выполняет задачу периодически после начальной задержки
	RunPeriodic(task Task, initialDelay, period time.Duration) Handle

	// RunAtLocation выполняет задачу на контексте, владеющем регионом,
	// содержащим локацию. Обязательна для любой мутации блоков.
	RunAtLocation(loc geom.Location, task Task)

	// RunAtLocationDelayed — отложенный вариант RunAtLocation
	RunAtLocationDelayed(loc geom.Location, task Task, delay time.Duration) Handle

	// RunAtEntity выполняет задачу на контексте, владеющем сущностью.
	// Если сущность удалена из мира до запуска, вместо task выполняется
	// onRetired (имеет смысл только в регионализированной модели).
	RunAtEntity(e worldinterfaces.Entity, task Task, onRetired Task)

	// RunAtEntityDelayed — отложенный вариант RunAtEntity
	RunAtEntityDelayed(e worldinterfaces.Entity, task Task, onRetired Task, delay time.Duration) Handle

	// CancelAll отменяет все невыполненные задачи с хендлами,
	// принадлежащие этому экземпляру планировщика
	CancelAll()

	// Shutdown отменяет хендлы и дожидается завершения начатой работы
	Shutdown()
}

// New выбирает реализацию планировщика, опрашивая хост один раз при
// старте. Выбор никогда не меняется во время работы.
func New(host worldinterfaces.HostWorld) Scheduler {
	if host.PartitionedExecution() {
		log.Printf("[Scheduler] хост регионализирован, используем PartitionedScheduler")
		return NewPartitioned()
	}
	log.Printf("[Scheduler] хост однопоточный, используем SingleThreadScheduler")
	return NewSingleThread()
}

// taskLoop — очередь задач с одной выделенной горутиной-исполнителем.
// Задачи выполняются строго в порядке поступления; паника внутри задачи
// не останавливает цикл.
type taskLoop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	stopped bool
	done    sync.WaitGroup
}

func newTaskLoop() *taskLoop {
	l := &taskLoop{}
	l.cond = sync.NewCond(&l.mu)
	l.done.Add(1)
	go l.run()
	return l
}

func (l *taskLoop) run() {
	defer l.done.Done()
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.stopped {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		runProtected(task)
	}
}

// enqueue добавляет задачу в очередь. Задача, добавленная изнутри
// выполняющейся задачи, будет выполнена тем же потоком в том же проходе —
// то есть немедленно по отношению к работе других акторов.
func (l *taskLoop) enqueue(task Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
}

// stop запрещает новые задачи и дожидается опустошения очереди
func (l *taskLoop) stop() {
	l.mu.Lock()
	l.stopped = true
	l.cond.Broadcast()
	l.mu.Unlock()
	l.done.Wait()
}

func runProtected(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scheduler] паника в задаче: %v", r)
		}
	}()
	task()
}

// handleSet хранит все выданные хендлы планировщика
type handleSet struct {
	mu      sync.Mutex
	handles map[*taskHandle]struct{}
}

func newHandleSet() *handleSet {
	return &handleSet{handles: make(map[*taskHandle]struct{})}
}

func (s *handleSet) add(h *taskHandle) {
	s.mu.Lock()
	s.handles[h] = struct{}{}
	s.mu.Unlock()
}

func (s *handleSet) remove(h *taskHandle) {
	s.mu.Lock()
	delete(s.handles, h)
	s.mu.Unlock()
}

func (s *handleSet) cancelAll() {
	s.mu.Lock()
	all := make([]*taskHandle, 0, len(s.handles))
	for h := range s.handles {
		all = append(all, h)
	}
	s.mu.Unlock()

	for _, h := range all {
		h.Cancel()
	}
}

// taskHandle — отменяемый хендл отложенной или периодической задачи
type taskHandle struct {
	cancelled atomic.Bool
	stopTimer func()
	owner     *handleSet
}

func (h *taskHandle) Cancel() {
	if h.cancelled.CompareAndSwap(false, true) {
		if h.stopTimer != nil {
			h.stopTimer()
		}
		h.owner.remove(h)
	}
}

func (h *taskHandle) IsCancelled() bool {
	return h.cancelled.Load()
}

// delayed планирует одноразовую задачу: по истечении задержки submit
// получает задачу для постановки в нужную очередь
func delayed(owner *handleSet, delay time.Duration, submit func(Task), task Task) Handle {
	h := &taskHandle{owner: owner}
	timer := time.AfterFunc(delay, func() {
		if h.IsCancelled() {
			return
		}
		submit(func() {
			if !h.IsCancelled() {
				task()
			}
			owner.remove(h)
		})
	})
	h.stopTimer = func() { timer.Stop() }
	owner.add(h)
	return h
}

// periodic планирует периодическую задачу с начальной задержкой
func periodic(owner *handleSet, initialDelay, period time.Duration, submit func(Task), task Task) Handle {
	h := &taskHandle{owner: owner}
	stop := make(chan struct{})
	h.stopTimer = func() { close(stop) }
	owner.add(h)

	go func() {
		initial := time.NewTimer(initialDelay)
		defer initial.Stop()
		select {
		case <-initial.C:
		case <-stop:
			return
		}

		fire := func() {
			submit(func() {
				if !h.IsCancelled() {
					task()
				}
			})
		}
		fire()

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fire()
			case <-stop:
				return
			}
		}
	}()
	return h
}
