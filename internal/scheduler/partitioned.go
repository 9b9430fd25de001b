package scheduler

import (
	"sync"
	"time"

	"github.com/annelo/go-chamber-server/internal/geom"
	"github.com/annelo/go-chamber-server/internal/worldinterfaces"
)

// Размер региона исполнения: 512×512 блоков по X/Z. Высота (Y) на
// принадлежность региону не влияет.
const regionShift = 9

// regionKey идентифицирует регион исполнения внутри мира
type regionKey struct {
	world string
	rx    int32
	rz    int32
}

func regionOf(loc geom.Location) regionKey {
	return regionKey{
		world: loc.World,
		rx:    loc.Pos.X >> regionShift,
		rz:    loc.Pos.Z >> regionShift,
	}
}

// PartitionedScheduler реализует Scheduler для хоста, разбивающего мир на
// независимо исполняемые регионы. Каждый регион получает собственную
// очередь с выделенной горутиной-владельцем; любая привязанная к
// пространству или сущности задача диспетчеризуется в очередь владельца.
// Мутация чужого региона без такой диспетчеризации — гонка данных.
type PartitionedScheduler struct {
	mu      sync.Mutex
	regions map[regionKey]*taskLoop
	global  *taskLoop
	handles *handleSet
	asyncWG sync.WaitGroup

	shutdown bool
}

// NewPartitioned создает планировщик регионализированной модели
func NewPartitioned() *PartitionedScheduler {
	return &PartitionedScheduler{
		regions: make(map[regionKey]*taskLoop),
		global:  newTaskLoop(),
		handles: newHandleSet(),
	}
}

// ownerLoop возвращает очередь владельца региона, лениво создавая её
func (s *PartitionedScheduler) ownerLoop(loc geom.Location) *taskLoop {
	key := regionOf(loc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		// После остановки задачи тихо отбрасываются: enqueue на
		// остановленной очереди — no-op
		return s.global
	}
	l, ok := s.regions[key]
	if !ok {
		l = newTaskLoop()
		s.regions[key] = l
	}
	return l
}

// RunGlobal выполняет задачу на глобальной очереди, не привязанной к
// какому-либо региону
func (s *PartitionedScheduler) RunGlobal(task Task) {
	s.global.enqueue(task)
}

// RunAsync выполняет задачу в отдельной горутине вне мировых потоков
func (s *PartitionedScheduler) RunAsync(task Task) {
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

// RunDelayed выполняет задачу на глобальной очереди после задержки
func (s *PartitionedScheduler) RunDelayed(task Task, delay time.Duration) Handle {
	return delayed(s.handles, delay, s.global.enqueue, task)
}

// RunPeriodic выполняет задачу на глобальной очереди периодически
func (s *PartitionedScheduler) RunPeriodic(task Task, initialDelay, period time.Duration) Handle {
	return periodic(s.handles, initialDelay, period, s.global.enqueue, task)
}

// RunAtLocation диспетчеризует задачу владельцу региона локации
func (s *PartitionedScheduler) RunAtLocation(loc geom.Location, task Task) {
	s.ownerLoop(loc).enqueue(task)
}

// RunAtLocationDelayed — отложенный вариант RunAtLocation. Владелец
// определяется в момент срабатывания таймера, а не постановки.
func (s *PartitionedScheduler) RunAtLocationDelayed(loc geom.Location, task Task, delay time.Duration) Handle {
	return delayed(s.handles, delay, func(t Task) { s.ownerLoop(loc).enqueue(t) }, task)
}

// RunAtEntity диспетчеризует задачу владельцу сущности. Если сущность
// удалена из мира до запуска, вместо task выполняется onRetired. Если
// сущность успела сменить регион между постановкой и запуском, задача
// переадресуется новому владельцу.
func (s *PartitionedScheduler) RunAtEntity(e worldinterfaces.Entity, task Task, onRetired Task) {
	if !e.Valid() {
		if onRetired != nil {
			s.global.enqueue(onRetired)
		}
		return
	}

	loc := e.Location()
	owner := regionOf(loc)
	s.ownerLoop(loc).enqueue(func() {
		if !e.Valid() {
			if onRetired != nil {
				onRetired()
			}
			return
		}
		if regionOf(e.Location()) != owner {
			s.RunAtEntity(e, task, onRetired)
			return
		}
		task()
	})
}

// RunAtEntityDelayed — отложенный вариант RunAtEntity
func (s *PartitionedScheduler) RunAtEntityDelayed(e worldinterfaces.Entity, task Task, onRetired Task, delay time.Duration) Handle {
	return delayed(s.handles, delay, func(t Task) { t() }, func() {
		s.RunAtEntity(e, task, onRetired)
	})
}

// CancelAll отменяет все невыполненные хендлы
func (s *PartitionedScheduler) CancelAll() {
	s.handles.cancelAll()
}

// Shutdown отменяет хендлы, останавливает все региональные очереди и
// дожидается завершения асинхронных задач
func (s *PartitionedScheduler) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	loops := make([]*taskLoop, 0, len(s.regions)+1)
	for _, l := range s.regions {
		loops = append(loops, l)
	}
	loops = append(loops, s.global)
	s.mu.Unlock()

	s.CancelAll()
	for _, l := range loops {
		l.stop()
	}
	s.asyncWG.Wait()
}
