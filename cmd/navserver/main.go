package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/voxel-nav/internal/api"
	"github.com/annel0/voxel-nav/internal/cache"
	"github.com/annel0/voxel-nav/internal/config"
	"github.com/annel0/voxel-nav/internal/eventbus"
	"github.com/annel0/voxel-nav/internal/logging"
	"github.com/annel0/voxel-nav/internal/metrics"
	"github.com/annel0/voxel-nav/internal/navgraph"
	"github.com/annel0/voxel-nav/internal/observability"
	"github.com/annel0/voxel-nav/internal/pathfinder"
	"github.com/annel0/voxel-nav/internal/pathservice"
	"github.com/annel0/voxel-nav/internal/scheduler"
	"github.com/annel0/voxel-nav/internal/storage"
	"github.com/annel0/voxel-nav/internal/vec"
	"github.com/annel0/voxel-nav/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или NAV_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("navserver"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	loggers := logging.GetLoggerManager()
	loggers.ApplyLevels(logging.ParseLevel(cfg.LogLevel), logging.DEBUG)
	defer loggers.CloseAll()

	logging.Info("🧭 Запуск навигационного сервиса voxel-nav...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			logging.Warn("⚠️ OpenTelemetry недоступен: %v", err)
		} else {
			defer func() {
				if err := shutdownTelemetry(context.Background()); err != nil {
					logging.Error("Ошибка остановки телеметрии: %v", err)
				}
			}()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	navMetrics := metrics.New(reg)

	// === ХРАНИЛИЩЕ ===
	store, err := storage.NewWorldStorage(cfg.Storage.Path)
	if err != nil {
		logging.Error("❌ Ошибка открытия хранилища: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	// === ПЛАНИРОВЩИК ===
	sched := scheduler.New(cfg.Nav.QueueCapacity,
		scheduler.WithMetrics(navMetrics),
		scheduler.WithLogger(logging.GetComponentLogger(logging.ComponentScheduler)))
	sched.Start(ctx)

	// === ШИНА СОБЫТИЙ ===
	bus, err := newEventBus(cfg.EventBus)
	if err != nil {
		logging.Error("❌ Ошибка подключения к шине событий: %v", err)
		os.Exit(1)
	}
	if _, err := eventbus.StartLoggingListener(ctx, bus); err != nil {
		logging.Warn("Не удалось подписать логгер событий: %v", err)
	}
	busExporter := eventbus.NewMetricsExporter(bus, reg)
	busExporter.Start(5 * time.Second)
	defer busExporter.Stop()

	// === НАВИГАЦИОННЫЙ ГРАФ ===
	n := cfg.Nav
	dims := navgraph.Dimensions{SizeX: n.ChunkSizeX, Height: n.ChunkHeight, SizeZ: n.ChunkSizeZ}
	voxels := world.NewVoxelWorld(n.ChunkSizeX, n.ChunkHeight, n.ChunkSizeZ)
	manager := navgraph.NewManager(voxels, sched, dims,
		navgraph.WithRules(navgraph.Rules{Clearance: n.Clearance, StepHeadroom: n.StepHeadroom}),
		navgraph.WithLookupDepth(n.LookupDepth),
		navgraph.WithChangedCooldown(n.ChangedCooldownDuration()),
		navgraph.WithEventBus(bus),
		navgraph.WithMetrics(navMetrics),
		navgraph.WithLogger(logging.GetComponentLogger(logging.ComponentNavGraph)))
	defer manager.Close()
	voxels.AddListener(manager)

	if err := loadWorld(voxels, store, cfg); err != nil {
		logging.Error("❌ Ошибка загрузки мира: %v", err)
		os.Exit(1)
	}

	// === ПОИСК ПУТИ ===
	paths := pathservice.NewService(manager, sched,
		pathservice.WithMetrics(navMetrics),
		pathservice.WithLogger(logging.GetComponentLogger(logging.ComponentPath)))
	go paths.Run(ctx, func(id uint64, p pathfinder.Path) {
		logging.Debug("Результат #%d без обработчика: %s", id, p)
	})

	// === КЕШ ПУТЕЙ ===
	pathCache, err := newPathCache(cfg.Cache)
	if err != nil {
		logging.Warn("⚠️ Кеш путей отключён: %v", err)
	}
	if pathCache != nil {
		defer pathCache.Close()
	}

	// === REST API ===
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	restServer := api.NewRestServer(api.Config{
		Port:      restPort,
		Graph:     manager,
		Paths:     paths,
		Scheduler: sched,
		World:     voxels,
		Store:     store,
		Registry:  reg,
		Cache:     pathCache,
		CacheTTL:  cfg.Cache.TTL(),
		Namespace: "nav-" + uuid.NewString(),
		Logger:    logging.GetComponentLogger(logging.ComponentServer),
	})
	go func() {
		if err := restServer.Start(); err != nil {
			logging.Error("❌ Ошибка REST API: %v", err)
			stop()
		}
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)
	logging.Info("💡 curl -X POST http://localhost%s/api/v1/path -d '{\"starts\":[[0,70,0]],\"target\":[20,70,20]}'", restPort)
	logging.Info("💡 curl -X POST http://localhost%s/api/v1/voxel -d '{\"pos\":[5,70,5],\"solid\":true}'", restPort)

	<-ctx.Done()
	logging.Info("📡 Получен сигнал завершения, останавливаемся...")

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := restServer.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if err := sched.Shutdown(shutdownCtx, false); err != nil {
		logging.Warn("Планировщик не остановился вовремя: %v", err)
	}
	if saved, err := store.SaveDirty(voxels); err != nil {
		logging.Error("❌ Ошибка сохранения чанков: %v", err)
	} else {
		logging.Info("💾 Сохранено изменённых чанков: %d", saved)
	}
	manager.Close()
	if err := bus.Close(); err != nil {
		logging.Warn("Ошибка закрытия шины: %v", err)
	}

	logging.Info("👋 Сервис остановлен")
}

// newEventBus выбирает JetStream, если задан URL, иначе in-memory шину
func newEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}
	retention := time.Duration(cfg.Retention) * time.Hour
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, retention)
	if err != nil {
		return nil, err
	}
	logging.Info("📨 JetStream подключён: %s (stream %s)", cfg.URL, cfg.Stream)
	return bus, nil
}

// newPathCache выбирает Redis, если задан адрес, иначе локальный кеш.
// Возвращает nil, если кеш выключен.
func newPathCache(cfg config.CacheConfig) (cache.CacheRepo, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.RedisURL == "" {
		mem, err := cache.NewMemoryCache(cfg.MaxEntries)
		if err != nil {
			return nil, err
		}
		return mem, nil
	}
	rc, err := cache.NewRedisCache(cache.CacheConfig{
		RedisURL:      cfg.RedisURL,
		RedisPassword: cfg.Password,
		RedisDB:       cfg.DB,
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// loadWorld загружает сохранённые чанки в радиусе вокруг начала координат,
// недостающие генерирует из seed
func loadWorld(voxels *world.VoxelWorld, store *storage.WorldStorage, cfg *config.Config) error {
	gen := world.NewGenerator(cfg.World.Seed)
	sx, h, sz := voxels.ChunkSize()
	r := cfg.World.Radius

	restored := 0
	for cx := -r; cx <= r; cx++ {
		for cz := -r; cz <= r; cz++ {
			coords := vec.Vec2{X: cx, Z: cz}
			chunk, ok, err := store.LoadChunk(coords, sx, h, sz)
			if err != nil {
				return fmt.Errorf("чанк %s: %w", coords, err)
			}
			if ok {
				restored++
			} else {
				chunk = gen.GenerateChunk(coords, sx, h, sz)
			}
			voxels.LoadChunk(chunk)
		}
	}

	side := 2*r + 1
	logging.Info("🌍 Мир загружен: %d чанков (%d из хранилища, seed %d)", side*side, restored, cfg.World.Seed)
	return nil
}
