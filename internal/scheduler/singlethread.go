package scheduler

import (
	"sync"
	"time"

	"github.com/annelo/go-chamber-server/internal/geom"
	"github.com/annelo/go-chamber-server/internal/worldinterfaces"
)

// SingleThreadScheduler реализует Scheduler для хоста, исполняющего все
// мутации мира на одном потоке. Все «привязанные» варианты вырождаются в
// постановку задачи в очередь единственного мирового потока; задача,
// поставленная самим мировым потоком, выполняется в том же проходе
// опустошения очереди.
type SingleThreadScheduler struct {
	world   *taskLoop
	handles *handleSet
	asyncWG sync.WaitGroup

	mu       sync.Mutex
	shutdown bool
}

// NewSingleThread создает планировщик однопоточной модели и запускает
// мировой поток
func NewSingleThread() *SingleThreadScheduler {
	return &SingleThreadScheduler{
		world:   newTaskLoop(),
		handles: newHandleSet(),
	}
}

// RunGlobal выполняет задачу на мировом потоке: в однопоточной модели
// глобальный контекст и контекст региона — один и тот же поток
func (s *SingleThreadScheduler) RunGlobal(task Task) {
	s.world.enqueue(task)
}

// RunAsync выполняет задачу в отдельной горутине вне мирового потока
func (s *SingleThreadScheduler) RunAsync(task Task) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.asyncWG.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.asyncWG.Done()
		runProtected(task)
	}()
}

// RunDelayed выполняет задачу на мировом потоке после задержки
func (s *SingleThreadScheduler) RunDelayed(task Task, delay time.Duration) Handle {
	return delayed(s.handles, delay, s.world.enqueue, task)
}

// RunPeriodic выполняет задачу на мировом потоке периодически
func (s *SingleThreadScheduler) RunPeriodic(task Task, initialDelay, period time.Duration) Handle {
	return periodic(s.handles, initialDelay, period, s.world.enqueue, task)
}

// RunAtLocation вырождается в постановку на единственный мировой поток
func (s *SingleThreadScheduler) RunAtLocation(loc geom.Location, task Task) {
	s.world.enqueue(task)
}

// RunAtLocationDelayed — отложенный вариант RunAtLocation
func (s *SingleThreadScheduler) RunAtLocationDelayed(loc geom.Location, task Task, delay time.Duration) Handle {
	return delayed(s.handles, delay, s.world.enqueue, task)
}

// RunAtEntity в однопоточной модели всегда выполняет task: валидность
// сущности не проверяется, если вызывающий не проверит её сам. onRetired
// здесь не используется.
func (s *SingleThreadScheduler) RunAtEntity(e worldinterfaces.Entity, task Task, onRetired Task) {
	s.world.enqueue(task)
}

// RunAtEntityDelayed — отложенный вариант RunAtEntity
func (s *SingleThreadScheduler) RunAtEntityDelayed(e worldinterfaces.Entity, task Task, onRetired Task, delay time.Duration) Handle {
	return delayed(s.handles, delay, s.world.enqueue, task)
}

// CancelAll отменяет все невыполненные хендлы
func (s *SingleThreadScheduler) CancelAll() {
	s.handles.cancelAll()
}

// Shutdown отменяет хендлы, опустошает очередь мирового потока и
// дожидается завершения асинхронных задач (начатая I/O-работа
// завершается корректно, а не обрывается на середине записи)
func (s *SingleThreadScheduler) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.CancelAll()
	s.world.stop()
	s.asyncWG.Wait()
}
