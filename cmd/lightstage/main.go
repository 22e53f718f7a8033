package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/lightstage/internal/api"
	"github.com/annel0/lightstage/internal/config"
	"github.com/annel0/lightstage/internal/eventbus"
	"github.com/annel0/lightstage/internal/logging"
	"github.com/annel0/lightstage/internal/observability"
	"github.com/annel0/lightstage/internal/render"
	"github.com/annel0/lightstage/internal/storage"
	lssync "github.com/annel0/lightstage/internal/sync"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config path (или LIGHTSTAGE_CONFIG)")
		envPath    = flag.String("env", ".env", ".env file")
		role       = flag.String("role", "", "control | display")
		targetID   = flag.String("target", "", "display target id")
		transport  = flag.String("transport", "", "none | memory | nats | redis | websocket")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("❌ Ошибка чтения %s: %v", *envPath, err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if *role != "" {
		cfg.Role = *role
	}
	if *targetID != "" {
		cfg.TargetID = *targetID
	}
	if *transport != "" {
		cfg.Sync.Transport = *transport
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Некорректная конфигурация: %v", err)
	}

	// Инициализируем систему логирования
	logging.Configure(logging.Options{
		Dir:          cfg.Log.GetDir(),
		ConsoleLevel: logging.ParseLevel(cfg.Log.GetLevel()),
		FileLevel:    logging.TRACE,
	})
	for component, level := range cfg.Log.Components {
		logging.GetLoggerManager().SetComponentLevel(component, logging.ParseLevel(level))
	}
	if err := logging.InitDefaultLogger("lightstage"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	role := cfg.GetRole()
	logging.Info("💡 Запуск lightstage: role=%s target=%q transport=%s", role, cfg.GetTargetID(), cfg.Sync.GetTransport())

	gin.SetMode(gin.ReleaseMode)

	// === ТЕЛЕМЕТРИЯ ===
	if cfg.Telemetry.GetEnabled() {
		shutdown, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: cfg.Telemetry.GetServiceName(),
			Role:        role,
			TargetID:    cfg.GetTargetID(),
		})
		if err != nil {
			logging.Warn("⚠️ OpenTelemetry не инициализирован: %v", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === ТРАНСПОРТ ===
	bus, relay, err := openBus(ctx, cfg)
	if err != nil {
		return fmt.Errorf("transport %s: %w", cfg.Sync.GetTransport(), err)
	}
	if bus != nil {
		defer bus.Close()

		exporter, err := eventbus.NewMetricsExporter(bus, reg, cfg.Sync.GetTransport())
		if err != nil {
			return err
		}
		exporter.Start(5 * time.Second)
		defer exporter.Stop()

		if logging.ParseLevel(cfg.Log.GetLevel()) == logging.TRACE {
			if sub, err := eventbus.StartLoggingListener(ctx, bus, cfg.Sync.GetChannel()); err == nil {
				defer sub.Unsubscribe()
			}
		}
	}

	// === СИНХРОНИЗАЦИЯ ===
	metrics, err := lssync.NewMetrics(reg)
	if err != nil {
		return err
	}
	retry := cfg.Sync.Retry
	sm, err := lssync.NewSyncManager(lssync.SyncConfig{
		Role:         lssync.Role(role),
		Bus:          bus,
		Metrics:      metrics,
		UseGzipCompr: cfg.Sync.GetUseGzip(),
		Control: lssync.ControlConfig{
			Channel:        cfg.Sync.GetChannel(),
			Debounce:       cfg.Sync.GetDebounce(),
			PublishTimeout: cfg.Sync.GetPublishTimeout(),
			Targets:        cfg.Sync.GetTargets(),
		},
		Display: lssync.DisplayConfig{
			Channel:        cfg.Sync.GetChannel(),
			TargetID:       cfg.GetTargetID(),
			PublishTimeout: cfg.Sync.GetPublishTimeout(),
			Retry: lssync.RetryConfig{
				Initial:    retry.GetInitial(),
				Max:        retry.GetMax(),
				MaxElapsed: retry.GetMaxElapsed(),
				Multiplier: retry.GetMultiplier(),
				Jitter:     retry.Jitter,
				Disabled:   retry.Disabled,
			},
		},
	})
	if err != nil {
		return err
	}
	defer sm.Stop()

	// === РЕНДЕР ===
	var backend render.Backend
	if cfg.Render.GetBackend() == "log" {
		backend = render.NewLogBackend()
	}
	frames, err := render.NewFrameLoop(sm.Rendered, backend, cfg.Render.GetFPS(), cfg.Render.GetCanvasHeight(), reg)
	if err != nil {
		return err
	}
	go func() { _ = frames.Run(ctx) }()

	// === БИБЛИОТЕКА ПРЕСЕТОВ ===
	var library storage.PresetRepo
	if sm.Control() != nil {
		library, err = storage.Open(storage.Config{
			Backend: cfg.Library.GetBackend(),
			Path:    cfg.Library.GetPath(),
			DSN:     cfg.Library.GetDSN(),
			Redis: storage.RedisConfig{
				Addr:     cfg.Redis.GetAddr(),
				Password: cfg.Redis.GetPassword(),
				DB:       cfg.Redis.DB,
			},
			Mongo: storage.MongoConfig{URI: cfg.Library.GetMongoURI()},
		})
		if err != nil {
			return fmt.Errorf("preset library: %w", err)
		}
		defer library.Close()
	}

	// === REST API ===
	apiCfg := api.Config{
		Port:         fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Sync:         sm,
		Frames:       frames,
		Library:      library,
		CanvasHeight: cfg.Render.GetCanvasHeight(),
		TargetID:     cfg.GetTargetID(),
		Registry:     reg,
	}
	if relay != nil {
		apiCfg.Relay = relay
	}
	apiIntegration, err := api.NewServerIntegration(apiCfg)
	if err != nil {
		return err
	}
	if err := apiIntegration.Start(); err != nil {
		return fmt.Errorf("REST API: %w", err)
	}
	defer func() {
		if err := apiIntegration.Stop(context.Background()); err != nil {
			logging.Error("❌ Ошибка остановки REST API: %v", err)
		}
	}()

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()),
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn("⚠️ Сервер метрик: %v", err)
		}
	}()
	defer metricsSrv.Close()

	// Синхронизация стартует после REST: relay уже принимает экраны
	if err := sm.Start(ctx); err != nil {
		return fmt.Errorf("sync start: %w", err)
	}

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", cfg.Server.GetRESTPort())
	logging.Info("   📊 Метрики: http://localhost:%d/metrics", cfg.Server.GetMetricsPort())

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
	case err := <-apiIntegration.Errors():
		return fmt.Errorf("REST API: %w", err)
	}

	// === GRACEFUL SHUTDOWN ===
	cancel()
	logging.Info("👋 lightstage остановлен")
	return nil
}

// openBus создаёт транспорт из конфигурации. Для websocket управляющий
// экземпляр поднимает relay, экран подключается к нему.
func openBus(ctx context.Context, cfg *config.Config) (eventbus.EventBus, *eventbus.Relay, error) {
	switch cfg.Sync.GetTransport() {
	case config.TransportNone:
		logging.Warn("⚠️ Транспорт отключён, синхронизации не будет")
		return nil, nil, nil
	case config.TransportMemory:
		return eventbus.NewMemoryBus(256), nil, nil
	case config.TransportNATS:
		bus, err := eventbus.NewNATSBus(eventbus.NATSConfig{
			URL:           cfg.NATS.GetURL(),
			Name:          "lightstage-" + cfg.GetRole(),
			MaxReconnects: cfg.NATS.GetMaxReconnects(),
		})
		return bus, nil, err
	case config.TransportRedis:
		bus, err := eventbus.NewRedisBus(eventbus.RedisConfig{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.GetPassword(),
			DB:       cfg.Redis.DB,
		})
		return bus, nil, err
	case config.TransportWebSocket:
		if cfg.GetRole() == config.RoleControl {
			relay := eventbus.NewRelay(256)
			return relay, relay, nil
		}
		client, err := eventbus.DialWebSocket(ctx, cfg.WebSocket.GetURL(), 256)
		return client, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Sync.GetTransport())
	}
}
