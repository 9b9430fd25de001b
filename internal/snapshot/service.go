package snapshot

import (
	"errors"
	"fmt"
	"log"

	"github.com/annelo/go-chamber-server/internal/chamber"
	"github.com/annelo/go-chamber-server/internal/geom"
	"github.com/annelo/go-chamber-server/internal/scheduler"
	"github.com/annelo/go-chamber-server/internal/worldinterfaces"
)

// ErrNoSnapshot возвращается при попытке восстановить камеру, у которой
// не сохранён снапшот
var ErrNoSnapshot = errors.New("у камеры нет сохранённого снапшота")

// Service связывает кодек и файловое хранилище со схемой исполнения:
// чтение и запись живых блоков выполняются на контексте, владеющем
// регионом, а сжатие и файловый I/O уходят на асинхронный путь, чтобы не
// останавливать тики региона.
type Service struct {
	store *FileStore
	sched scheduler.Scheduler
	world worldinterfaces.BlockAccess
}

// NewService создает сервис снапшотов
func NewService(store *FileStore, sched scheduler.Scheduler, world worldinterfaces.BlockAccess) *Service {
	return &Service{store: store, sched: sched, world: world}
}

// Capture снимает полное блочное состояние камеры: блоки читаются
// синхронно на владеющем контексте, затем кодирование и запись файла
// выполняются асинхронно. По завершении вызывается done с именем
// записанного файла либо ошибкой.
func (s *Service) Capture(ch *chamber.Chamber, done func(file string, err error)) {
	if done == nil {
		done = func(string, error) {}
	}

	origin := geom.Location{World: ch.World, Pos: ch.Box.Min}
	s.sched.RunAtLocation(origin, func() {
		snap, err := Collect(s.world, ch.World, ch.Box)
		if err != nil {
			done("", fmt.Errorf("снятие снапшота камеры %q: %w", ch.Name, err))
			return
		}

		s.sched.RunAsync(func() {
			data, err := Encode(snap)
			if err != nil {
				done("", fmt.Errorf("кодирование снапшота камеры %q: %w", ch.Name, err))
				return
			}
			file := FileName(ch.Name)
			if err := s.store.Save(file, data); err != nil {
				done("", fmt.Errorf("сохранение снапшота камеры %q: %w", ch.Name, err))
				return
			}
			log.Printf("[Snapshot] камера %q: снапшот сохранён (%d записей, %d байт)",
				ch.Name, len(snap.Records), len(data))
			done(file, nil)
		})
	})
}

// Restore восстанавливает блочное состояние камеры из сохранённого
// снапшота: файл читается и декодируется асинхронно, длина
// последовательности проверяется до единственной мутации, затем блоки
// записываются на владеющем контексте. Ошибка повреждения оставляет
// камеру нетронутой; отказ записи на середине поднимается как есть.
func (s *Service) Restore(ch *chamber.Chamber, done func(err error)) {
	if done == nil {
		done = func(error) {}
	}
	if ch.SnapshotFile == nil {
		done(ErrNoSnapshot)
		return
	}
	file := *ch.SnapshotFile

	s.sched.RunAsync(func() {
		data, err := s.store.Load(file)
		if err != nil {
			done(err)
			return
		}
		snap, err := Decode(data)
		if err != nil {
			done(err)
			return
		}
		// Проверка объёма до выхода на мировой контекст: повреждённый
		// снапшот не должен тронуть ни одного блока
		if int64(len(snap.Records)) != ch.Box.Volume() {
			done(CorruptionError{Reason: fmt.Sprintf(
				"длина последовательности %d не равна объёму бокса %d",
				len(snap.Records), ch.Box.Volume())})
			return
		}

		origin := geom.Location{World: ch.World, Pos: ch.Box.Min}
		s.sched.RunAtLocation(origin, func() {
			done(Apply(s.world, ch.World, ch.Box, snap))
		})
	})
}
