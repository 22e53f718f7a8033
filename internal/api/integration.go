package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// ServerIntegration запускает REST сервер на http.Server с graceful shutdown
type ServerIntegration struct {
	restServer *RestServer
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	errCh      chan error
}

// NewServerIntegration создает обёртку над REST сервером
func NewServerIntegration(config Config) (*ServerIntegration, error) {
	restServer, err := NewRestServer(config)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ServerIntegration{
		restServer: restServer,
		ctx:        ctx,
		cancel:     cancel,
		errCh:      make(chan error, 1),
	}, nil
}

// Start запускает REST API сервер; возвращается после того, как порт открыт.
func (si *ServerIntegration) Start() error {
	log := si.restServer.log

	ln, err := net.Listen("tcp", si.restServer.port)
	if err != nil {
		return err
	}

	si.httpServer = &http.Server{
		Handler:           si.restServer.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := si.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("❌ Ошибка REST API сервера: %v", err)
			si.errCh <- err
		}
	}()

	log.Info("✅ REST API сервер запущен на http://%s", ln.Addr())
	log.Info("📋 Доступные эндпоинты:")
	log.Info("   GET  /health          - Проверка состояния")
	log.Info("   GET  /api/scene       - Текущая сцена")
	log.Info("   GET  /api/uniforms    - Uniform'ы кадра")
	if si.restServer.sync.Control() != nil {
		log.Info("   POST /api/layers      - Добавить слой")
		log.Info("   POST /api/preset      - Импорт пресета")
		log.Info("   POST /api/broadcast/* - Массовые операции")
	}
	return nil
}

// Errors канал фатальных ошибок сервера.
func (si *ServerIntegration) Errors() <-chan error { return si.errCh }

// Stop останавливает REST API сервер
func (si *ServerIntegration) Stop(ctx context.Context) error {
	log := si.restServer.log
	log.Info("🛑 Остановка REST API сервера...")
	defer si.cancel()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if si.httpServer != nil {
		if err := si.httpServer.Shutdown(ctx); err != nil {
			log.Error("❌ Ошибка при остановке HTTP сервера: %v", err)
			return err
		}
	}

	log.Info("✅ REST API сервер остановлен")
	return nil
}

// GetRestServer возвращает REST сервер (для дополнительной настройки)
func (si *ServerIntegration) GetRestServer() *RestServer {
	return si.restServer
}

// IsHealthy проверяет состояние интеграции
func (si *ServerIntegration) IsHealthy() bool {
	select {
	case <-si.ctx.Done():
		return false
	default:
		return true
	}
}
