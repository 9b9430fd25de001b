package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annelo/go-chamber-server/internal/admin"
	"github.com/annelo/go-chamber-server/internal/chamber"
	"github.com/annelo/go-chamber-server/internal/config"
	"github.com/annelo/go-chamber-server/internal/geom"
	"github.com/annelo/go-chamber-server/internal/loot"
	"github.com/annelo/go-chamber-server/internal/reset"
	"github.com/annelo/go-chamber-server/internal/scheduler"
	"github.com/annelo/go-chamber-server/internal/snapshot"
	"github.com/annelo/go-chamber-server/internal/stats"
	"github.com/annelo/go-chamber-server/internal/storage"
	"github.com/annelo/go-chamber-server/internal/vault"
	"github.com/annelo/go-chamber-server/internal/world"
)

var (
	configPath  = flag.String("config", "config.yaml", "Путь к файлу конфигурации")
	dbPath      = flag.String("db", "", "Путь к базе данных (переопределяет конфигурацию)")
	seed        = flag.Int64("seed", 0, "Сид для генерации демонстрационного мира (0 = случайный)")
	partitioned = flag.Bool("partitioned", false, "Регионализированная модель исполнения мира")
)

func main() {
	// Парсим флаги командной строки
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	// Если сид не указан, генерируем случайный
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	// Отказ инициализации персистентности фатален: сервер не работает в
	// деградированном режиме с неинициализированными менеджерами
	repo, err := storage.NewSQLiteRepository(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Ошибка инициализации хранилища: %v", err)
	}
	defer repo.Close()

	snapStore, err := snapshot.NewFileStore(cfg.SnapshotsDir)
	if err != nil {
		log.Fatalf("Ошибка инициализации хранилища снапшотов: %v", err)
	}

	// Хост мира и проба модели исполнения
	host := world.NewMemoryWorld(*partitioned)
	sched := scheduler.New(host)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Реестр камер загружается из хранилища один раз до запуска
	// координатора
	registry := chamber.NewRegistry(repo)
	if err := registry.Preload(ctx); err != nil {
		log.Fatalf("Ошибка загрузки камер: %v", err)
	}

	tables := loot.NewTables()
	if err := tables.LoadDir(cfg.LootDir); err != nil {
		log.Printf("Ошибка загрузки таблиц лута: %v", err)
	}

	snapshots := snapshot.NewService(snapStore, sched, host)
	aggregator := stats.NewAsyncAggregator(repo, sched)
	leaderboard := stats.NewLeaderboardCache(repo, cfg.LeaderboardTTL.Std(), cfg.LeaderboardSize)

	vaults := vault.NewService(registry, repo, tables, aggregator, vault.Config{
		ValidateKeyType: cfg.ValidateKeys,
		NormalCooldown:  cfg.NormalCooldown.Std(),
		OminousCooldown: cfg.OminousCooldown.Std(),
	})
	zlog, err := zap.NewProduction()
	if err == nil {
		defer zlog.Sync()
		vaults.SetLogger(zlog.Sugar())
	}

	coordinator := reset.NewCoordinator(registry, snapshots, sched, host, reset.Options{
		CheckInterval: cfg.CheckInterval.Std(),
		Warnings:      cfg.WarningDurations(),
		Evacuate:      cfg.Evacuate,
	})
	coordinator.Start()

	// Обрабатываем сигналы для корректного завершения. Порядок: отмена
	// контекста, планировщик (дожидается начатой работы), хранилище.
	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			shutdown(cancel, coordinator, sched)
			close(done)
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		log.Println("Получен сигнал завершения, останавливаем сервер...")
		stop()
	}()

	reg := admin.NewRegistry()
	registerCommands(reg, ctx, registry, snapshots, coordinator, vaults, aggregator, leaderboard, host, stop)

	// CLI для администратора: REPL для команд
	go reg.RunREPL(os.Stdin, os.Stdout)

	log.Printf("Сервер камер запущен (камер: %d, модель: %s)",
		len(registry.All()), executionModel(*partitioned))
	log.Printf("Используется сид мира: %d", *seed)

	<-done
}

func executionModel(partitioned bool) string {
	if partitioned {
		return "регионализированная"
	}
	return "однопоточная"
}

func shutdown(cancel context.CancelFunc, coordinator *reset.Coordinator, sched scheduler.Scheduler) {
	cancel()
	coordinator.Stop()
	sched.CancelAll()
	sched.Shutdown()
}

// registerCommands регистрирует встроенные административные команды
func registerCommands(
	reg *admin.Registry,
	ctx context.Context,
	registry *chamber.Registry,
	snapshots *snapshot.Service,
	coordinator *reset.Coordinator,
	vaults *vault.Service,
	aggregator stats.Aggregator,
	leaderboard *stats.LeaderboardCache,
	host *world.MemoryWorld,
	stop func(),
) {
	reg.Register("register", "Зарегистрировать камеру: register <имя> <мир> <x1> <y1> <z1> <x2> <y2> <z2> <интервал>", func(args []string) (string, error) {
		if len(args) < 9 {
			return "Использование: register <имя> <мир> <x1> <y1> <z1> <x2> <y2> <z2> <интервал>\n", nil
		}
		coords := make([]int32, 6)
		for i := 0; i < 6; i++ {
			v, err := strconv.ParseInt(args[2+i], 10, 32)
			if err != nil {
				return "", fmt.Errorf("некорректная координата %q", args[2+i])
			}
			coords[i] = int32(v)
		}
		interval, err := time.ParseDuration(args[8])
		if err != nil {
			return "", fmt.Errorf("некорректный интервал %q", args[8])
		}

		ch := &chamber.Chamber{
			Name:  args[0],
			World: args[1],
			Box: geom.NewBox(
				geom.BlockPos{X: coords[0], Y: coords[1], Z: coords[2]},
				geom.BlockPos{X: coords[3], Y: coords[4], Z: coords[5]},
			),
			ResetInterval: interval,
		}
		if err := registry.Register(ctx, ch); err != nil {
			return "", err
		}
		return fmt.Sprintf("Камера %q зарегистрирована (id=%d)\n", ch.Name, ch.ID), nil
	})

	reg.Register("list", "Список камер", func(args []string) (string, error) {
		var sb strings.Builder
		for _, ch := range registry.All() {
			lastReset := "никогда"
			if ch.LastReset != nil {
				lastReset = ch.LastReset.Format(time.RFC3339)
			}
			sb.WriteString(fmt.Sprintf("%s [%s] %s..%s интервал=%s сброс=%s (%s)\n",
				ch.Name, ch.World, ch.Box.Min, ch.Box.Max, ch.ResetInterval,
				lastReset, coordinator.ChamberState(ch.ID)))
		}
		return sb.String(), nil
	})

	reg.Register("delete", "Удалить камеру: delete <имя>", func(args []string) (string, error) {
		if len(args) < 1 {
			return "Использование: delete <имя>\n", nil
		}
		if err := registry.Delete(ctx, args[0]); err != nil {
			return "", err
		}
		return fmt.Sprintf("Камера %q удалена\n", args[0]), nil
	})

	reg.Register("vault", "Добавить хранилище: vault <камера> <x> <y> <z> <normal|ominous> <таблица>", func(args []string) (string, error) {
		if len(args) < 6 {
			return "Использование: vault <камера> <x> <y> <z> <normal|ominous> <таблица>\n", nil
		}
		coords := make([]int32, 3)
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseInt(args[1+i], 10, 32)
			if err != nil {
				return "", fmt.Errorf("некорректная координата %q", args[1+i])
			}
			coords[i] = int32(v)
		}
		vt, err := chamber.ParseVaultType(args[4])
		if err != nil {
			return "", err
		}

		v := &chamber.Vault{
			Pos:       geom.BlockPos{X: coords[0], Y: coords[1], Z: coords[2]},
			Type:      vt,
			LootTable: args[5],
		}
		if err := registry.RegisterVault(ctx, args[0], v); err != nil {
			return "", err
		}
		return fmt.Sprintf("Хранилище добавлено в камеру %q (id=%d)\n", args[0], v.ID), nil
	})

	reg.Register("snapshot", "Снять снапшот камеры: snapshot <имя>", func(args []string) (string, error) {
		if len(args) < 1 {
			return "Использование: snapshot <имя>\n", nil
		}
		name := args[0]
		ch, ok := registry.Get(name)
		if !ok {
			return "", chamber.ErrNotFound{Name: name}
		}
		snapshots.Capture(ch, func(file string, err error) {
			if err != nil {
				log.Printf("[Admin] снапшот камеры %q: %v", name, err)
				return
			}
			if err := registry.SetSnapshotFile(ctx, name, file); err != nil {
				log.Printf("[Admin] камера %q: не удалось сохранить ссылку на снапшот: %v", name, err)
			}
		})
		return fmt.Sprintf("Снятие снапшота камеры %q запущено\n", name), nil
	})

	reg.Register("reset", "Принудительный сброс: reset <имя>", func(args []string) (string, error) {
		if len(args) < 1 {
			return "Использование: reset <имя>\n", nil
		}
		if err := coordinator.ForceReset(args[0]); err != nil {
			return "", err
		}
		return fmt.Sprintf("Сброс камеры %q запущен\n", args[0]), nil
	})

	reg.Register("open", "Симулировать открытие: open <uuid игрока> <trial|ominous> <мир> <x> <y> <z>", func(args []string) (string, error) {
		if len(args) < 6 {
			return "Использование: open <uuid игрока> <trial|ominous> <мир> <x> <y> <z>\n", nil
		}
		player, err := uuid.Parse(args[0])
		if err != nil {
			return "", fmt.Errorf("некорректный uuid %q", args[0])
		}
		key, err := chamber.ParseKeyType(args[1])
		if err != nil {
			return "", err
		}
		coords := make([]int32, 3)
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseInt(args[3+i], 10, 32)
			if err != nil {
				return "", fmt.Errorf("некорректная координата %q", args[3+i])
			}
			coords[i] = int32(v)
		}
		loc := geom.Location{World: args[2], Pos: geom.BlockPos{X: coords[0], Y: coords[1], Z: coords[2]}}

		result, rejection, err := vaults.Open(ctx, player, key, loc)
		if err != nil {
			return "", err
		}
		if rejection != nil {
			return formatRejection(rejection), nil
		}
		return formatLoot(result), nil
	})

	reg.Register("stats", "Статистика игрока: stats <uuid>", func(args []string) (string, error) {
		if len(args) < 1 {
			return "Использование: stats <uuid>\n", nil
		}
		player, err := uuid.Parse(args[0])
		if err != nil {
			return "", fmt.Errorf("некорректный uuid %q", args[0])
		}
		s, err := aggregator.GetStats(ctx, player)
		if err != nil {
			return "", err
		}
		if s == nil {
			return "Статистика не найдена\n", nil
		}
		return fmt.Sprintf("камер пройдено: %d, хранилищ открыто: %d/%d, мобов убито: %d, смертей: %d, времени: %ds\n",
			s.ChambersCompleted, s.NormalVaultsOpened, s.OminousVaultsOpened,
			s.MobsKilled, s.Deaths, s.TimeSpent), nil
	})

	reg.Register("top", "Таблица лидеров по пройденным камерам", func(args []string) (string, error) {
		entries := leaderboard.Top()
		if len(entries) == 0 {
			return "Таблица лидеров пуста\n", nil
		}
		var sb strings.Builder
		for i, e := range entries {
			sb.WriteString(fmt.Sprintf("%d. %s — %d\n", i+1, e.PlayerUUID, e.ChambersCompleted))
		}
		return sb.String(), nil
	})

	reg.Register("terrain", "Заполнить бокс рельефом: terrain <мир> <x1> <y1> <z1> <x2> <y2> <z2>", func(args []string) (string, error) {
		if len(args) < 7 {
			return "Использование: terrain <мир> <x1> <y1> <z1> <x2> <y2> <z2>\n", nil
		}
		coords := make([]int32, 6)
		for i := 0; i < 6; i++ {
			v, err := strconv.ParseInt(args[1+i], 10, 32)
			if err != nil {
				return "", fmt.Errorf("некорректная координата %q", args[1+i])
			}
			coords[i] = int32(v)
		}
		box := geom.NewBox(
			geom.BlockPos{X: coords[0], Y: coords[1], Z: coords[2]},
			geom.BlockPos{X: coords[3], Y: coords[4], Z: coords[5]},
		)
		if err := host.FillTerrain(args[0], box, *seed); err != nil {
			return "", err
		}
		return fmt.Sprintf("Рельеф сгенерирован (%d блоков)\n", box.Volume()), nil
	})

	reg.Register("help", "Список команд", func(args []string) (string, error) {
		return reg.Help(), nil
	})

	reg.Register("stop", "Остановить сервер", func(args []string) (string, error) {
		stop()
		return "Сервер останавливается\n", nil
	})
}

func formatRejection(r *vault.Rejection) string {
	switch r.Reason {
	case vault.RejectCooldown:
		return fmt.Sprintf("Отказ: кулдаун, осталось %s\n", r.Remaining.Round(time.Second))
	case vault.RejectWrongKeyType:
		return "Отказ: неподходящий тип ключа\n"
	default:
		return "Отказ: хранилище не найдено\n"
	}
}

func formatLoot(res *vault.OpenResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Хранилище %d открыто (раз: %d)\n", res.Vault.ID, res.TimesOpened))
	for _, item := range res.Loot.Items {
		sb.WriteString(fmt.Sprintf("  %dx %s", item.Count, item.ID))
		for _, e := range item.Enchants {
			sb.WriteString(fmt.Sprintf(" [%s %d]", e.ID, e.Level))
		}
		if item.Potion != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", item.Potion))
		}
		sb.WriteString("\n")
	}
	for _, cmd := range res.Loot.Commands {
		sb.WriteString(fmt.Sprintf("  команда: %s\n", cmd))
	}
	return sb.String()
}
