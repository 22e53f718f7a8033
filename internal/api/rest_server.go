package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/lightstage/internal/logging"
	"github.com/annel0/lightstage/internal/middleware"
	"github.com/annel0/lightstage/internal/render"
	"github.com/annel0/lightstage/internal/scene"
	"github.com/annel0/lightstage/internal/storage"
	lssync "github.com/annel0/lightstage/internal/sync"
	"github.com/annel0/lightstage/internal/uniform"
)

// RestServer представляет REST API сервер над координатором синхронизации
type RestServer struct {
	router       *gin.Engine
	sync         *lssync.SyncManager
	frames       *render.FrameLoop
	library      storage.PresetRepo
	port         string
	metrics      *ServerMetrics
	canvasHeight float64
	targetID     string
	log          *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port         string              // порт для запуска сервера
	Sync         *lssync.SyncManager // координатор роли
	Frames       *render.FrameLoop   // цикл кадров, необязателен
	Library      storage.PresetRepo  // библиотека пресетов, необязательна
	Relay        http.Handler        // WebSocket relay на /ws/live, необязателен
	CanvasHeight float64             // высота холста по умолчанию для /api/uniforms
	TargetID     string
	// Registry регистр метрик; nil означает дефолтный.
	Registry *prometheus.Registry
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Sync == nil {
		return nil, errors.New("api: sync manager is required")
	}
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.CanvasHeight <= 0 {
		config.CanvasHeight = render.DefaultCanvasHeight
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery
	router.Use(middleware.CORS())

	// === Observability middleware ===
	router.Use(otelgin.Middleware("lightstage_api"))
	router.Use(middleware.NewRequestLogger().Handler())

	var (
		reg      prometheus.Registerer
		gatherer prometheus.Gatherer
	)
	if config.Registry != nil {
		reg, gatherer = config.Registry, config.Registry
	}
	promMw, err := middleware.NewPrometheusMiddleware("lightstage", reg)
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	if config.Relay != nil {
		router.GET("/ws/live", gin.WrapH(config.Relay))
	}

	server := &RestServer{
		router:       router,
		sync:         config.Sync,
		frames:       config.Frames,
		library:      config.Library,
		port:         config.Port,
		metrics:      NewServerMetrics(),
		canvasHeight: config.CanvasHeight,
		targetID:     config.TargetID,
		log:          logging.GetAPILogger(),
	}

	// Настраиваем маршруты
	server.setupRoutes()

	return server, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.GET("/server", rs.handleServerInfo)
	api.GET("/scene", rs.handleGetScene)
	api.GET("/uniforms", rs.handleUniforms)

	if rs.sync.Control() == nil {
		return
	}

	// Редактирование доступно только управляющему экземпляру
	layers := api.Group("/layers")
	{
		layers.POST("", rs.handleAddLayer)
		layers.PATCH("/:id", rs.handleUpdateLayer)
		layers.DELETE("/:id", rs.handleRemoveLayer)
		layers.POST("/:id/move", rs.handleMoveLayer)
	}
	api.PUT("/scene/globals", rs.handleSetGlobals)
	api.GET("/preset", rs.handleExportPreset)
	api.POST("/preset", rs.handleImportPreset)
	api.GET("/targets", rs.handleTargets)
	api.POST("/targets/:id/select", rs.handleSelectTarget)
	api.POST("/broadcast/apply", rs.handleApplyToAll)
	api.POST("/broadcast/reset", rs.handleResetAll)
	api.POST("/flush", rs.handleFlush)

	if rs.library != nil {
		lib := api.Group("/library")
		{
			lib.GET("", rs.handleListLibrary)
			lib.GET("/:name", rs.handleGetLibraryPreset)
			lib.PUT("/:name", rs.handleSaveLibraryPreset)
			lib.DELETE("/:name", rs.handleDeleteLibraryPreset)
			lib.POST("/:name/load", rs.handleLoadLibraryPreset)
		}
	}
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AddLayerRequest слой в точке (x, y) текущей формы/типа либо полный объект слоя.
type AddLayerRequest struct {
	X     *float64        `json:"x"`
	Y     *float64        `json:"y"`
	Layer json.RawMessage `json:"layer"`
}

// MoveLayerRequest новая позиция слоя.
type MoveLayerRequest struct {
	Index *int `json:"index"`
}

// TargetsResponse известные цели и активная.
type TargetsResponse struct {
	Active    string         `json:"active"`
	Targets   []string       `json:"targets"`
	Overrides map[string]int `json:"overrides"`
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: message, Data: data})
}

func (rs *RestServer) fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

// statusFor отображает доменные ошибки в HTTP-статусы.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scene.ErrLayerNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scene.ErrInvalidPreset),
		errors.Is(err, scene.ErrInvalidColor),
		errors.Is(err, scene.ErrInvalidType),
		errors.Is(err, scene.ErrInvalidShape),
		errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, lssync.ErrLayerLimit):
		return http.StatusConflict
	case errors.Is(err, lssync.ErrNoTransport), errors.Is(err, lssync.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
		"role":   string(rs.sync.Role()),
	}
	if d := rs.sync.Display(); d != nil {
		resp["adopted"] = d.Adopted()
	}
	c.JSON(http.StatusOK, resp)
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	ok(c, "Информация о сервере", rs.metrics.Snapshot(string(rs.sync.Role()), rs.targetID))
}

// handleGetScene текущий отображаемый снимок в формате пресета
func (rs *RestServer) handleGetScene(c *gin.Context) {
	ok(c, "Текущая сцена", scene.Export(rs.sync.Rendered()))
}

// handleUniforms uniform'ы текущего кадра. Без height отдаётся последний
// кадр цикла рендера, если он есть.
func (rs *RestServer) handleUniforms(c *gin.Context) {
	var b *uniform.Bundle
	if raw := c.Query("height"); raw != "" {
		h, err := strconv.ParseFloat(raw, 64)
		if err != nil || h <= 0 {
			rs.fail(c, http.StatusBadRequest, errors.New("height must be a positive number"))
			return
		}
		b = uniform.Compile(rs.sync.Rendered(), h)
	} else if rs.frames != nil && rs.frames.Last() != nil {
		b = rs.frames.Last()
	} else {
		b = uniform.Compile(rs.sync.Rendered(), rs.canvasHeight)
	}
	ok(c, "Uniform'ы кадра", b.Uniforms())
}

func (rs *RestServer) handleAddLayer(c *gin.Context) {
	var req AddLayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rs.fail(c, http.StatusBadRequest, err)
		return
	}
	ctl := rs.sync.Control()

	var (
		layer scene.Layer
		err   error
	)
	switch {
	case len(req.Layer) > 0:
		layer, err = ctl.AddLayer(c.Request.Context(), req.Layer)
	case req.X != nil && req.Y != nil:
		layer, err = ctl.AddLayerAt(c.Request.Context(), *req.X, *req.Y)
	default:
		rs.fail(c, http.StatusBadRequest, errors.New("either layer or x,y is required"))
		return
	}
	if err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{Success: true, Message: "Слой добавлен", Data: layerView(layer)})
}

func (rs *RestServer) handleUpdateLayer(c *gin.Context) {
	var patch scene.LayerPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		rs.fail(c, http.StatusBadRequest, err)
		return
	}
	layer, err := rs.sync.Control().UpdateLayer(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Слой обновлён", layerView(layer))
}

func (rs *RestServer) handleRemoveLayer(c *gin.Context) {
	if err := rs.sync.Control().RemoveLayer(c.Request.Context(), c.Param("id")); err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Слой удалён", nil)
}

func (rs *RestServer) handleMoveLayer(c *gin.Context) {
	var req MoveLayerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Index == nil {
		rs.fail(c, http.StatusBadRequest, errors.New("index is required"))
		return
	}
	if err := rs.sync.Control().MoveLayer(c.Request.Context(), c.Param("id"), *req.Index); err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Слой перемещён", nil)
}

func (rs *RestServer) handleSetGlobals(c *gin.Context) {
	var g scene.Globals
	if err := c.ShouldBindJSON(&g); err != nil {
		rs.fail(c, http.StatusBadRequest, err)
		return
	}
	s, err := rs.sync.Control().SetGlobals(c.Request.Context(), g)
	if err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Параметры сцены обновлены", scene.Export(s))
}

func (rs *RestServer) handleExportPreset(c *gin.Context) {
	data, err := rs.sync.Control().ExportPreset()
	if err != nil {
		rs.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="lightstage-preset.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

func (rs *RestServer) handleImportPreset(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		rs.fail(c, http.StatusBadRequest, err)
		return
	}
	s, err := rs.sync.Control().ImportPreset(c.Request.Context(), data)
	if err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Пресет импортирован", scene.Export(s))
}

func (rs *RestServer) handleTargets(c *gin.Context) {
	ctl := rs.sync.Control()
	targets, err := ctl.Targets(c.Request.Context())
	if err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	overrides, err := ctl.Overrides(c.Request.Context())
	if err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	counts := make(map[string]int, len(overrides))
	for t, s := range overrides {
		counts[t] = s.Len()
	}
	ok(c, "Цели", TargetsResponse{Active: ctl.ActiveTarget(), Targets: targets, Overrides: counts})
}

func (rs *RestServer) handleSelectTarget(c *gin.Context) {
	draft, err := rs.sync.Control().SelectTarget(c.Request.Context(), c.Param("id"))
	if err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Цель выбрана", scene.Export(draft))
}

// handleApplyToAll рассылает всем тело запроса (пресет) или текущий черновик.
func (rs *RestServer) handleApplyToAll(c *gin.Context) {
	var snap *scene.Scene
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		rs.fail(c, http.StatusBadRequest, err)
		return
	}
	if len(data) > 0 {
		if snap, err = scene.Import(data); err != nil {
			rs.fail(c, http.StatusBadRequest, err)
			return
		}
	}
	if err := rs.sync.Control().ApplyToAll(c.Request.Context(), snap); err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Сцена разослана всем целям", nil)
}

func (rs *RestServer) handleResetAll(c *gin.Context) {
	if err := rs.sync.Control().ResetAll(c.Request.Context()); err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Все цели сброшены", nil)
}

func (rs *RestServer) handleFlush(c *gin.Context) {
	if err := rs.sync.Control().Flush(c.Request.Context()); err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Ожидающие правки отправлены", nil)
}

// layerView слой в формате пресета.
func layerView(l scene.Layer) scene.LightPreset {
	s := scene.Default()
	s.Layers = []scene.Layer{l}
	return scene.Export(s).Lights[0]
}

// Handler http.Handler сервера (для http.Server и тестов).
func (rs *RestServer) Handler() http.Handler { return rs.router }

// Port адрес прослушивания.
func (rs *RestServer) Port() string { return rs.port }
