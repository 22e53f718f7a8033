package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
// Значение поля берётся из YAML, иначе из переменной окружения, иначе
// используется значение по умолчанию.
type Config struct {
	Role      string          `yaml:"role"`
	TargetID  string          `yaml:"target_id"`
	Sync      SyncConfig      `yaml:"sync"`
	NATS      NATSConfig      `yaml:"nats"`
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Server    ServerConfig    `yaml:"server"`
	Render    RenderConfig    `yaml:"render"`
	Library   LibraryConfig   `yaml:"library"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type SyncConfig struct {
	Transport    string      `yaml:"transport"`
	Channel      string      `yaml:"channel"`
	DebounceMs   int         `yaml:"debounce_ms"`
	TimeoutMs    int         `yaml:"publish_timeout_ms"`
	UseGzipCompr bool        `yaml:"use_gzip_compression"`
	Targets      []string    `yaml:"targets"`
	Retry        RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	InitialMs    int     `yaml:"initial_ms"`
	MaxMs        int     `yaml:"max_ms"`
	MaxElapsedMs int     `yaml:"max_elapsed_ms"`
	Multiplier   float64 `yaml:"multiplier"`
	Jitter       float64 `yaml:"jitter"`
	Disabled     bool    `yaml:"disabled"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	MaxReconnects int    `yaml:"max_reconnects"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebSocketConfig struct {
	// URL relay'я для экранов, например ws://control:8088/ws/live
	URL string `yaml:"url"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

type RenderConfig struct {
	FPS          int     `yaml:"fps"`
	CanvasHeight float64 `yaml:"canvas_height"`
	Backend      string  `yaml:"backend"`
}

// LibraryConfig библиотека именованных пресетов управляющего экземпляра.
type LibraryConfig struct {
	Backend  string `yaml:"backend"` // memory | badger | redis | maria | mongo
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	MongoURI string `yaml:"mongo_uri"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	// Components уровень консоли по компонентам, например {sync: trace}.
	Components map[string]string `yaml:"components"`
}

// Роли и транспорты.
const (
	RoleControl = "control"
	RoleDisplay = "display"

	TransportNone      = "none"
	TransportMemory    = "memory"
	TransportNATS      = "nats"
	TransportRedis     = "redis"
	TransportWebSocket = "websocket"
)

var ErrInvalidConfig = errors.New("invalid config")

// GetRole возвращает роль с поддержкой fallback значений
func (c *Config) GetRole() string {
	return strings.ToLower(getStringWithEnvFallback(c.Role, "LIGHTSTAGE_ROLE", RoleControl))
}

// GetTargetID идентификатор экрана; пустой для экрана без id.
func (c *Config) GetTargetID() string {
	return getStringWithEnvFallback(c.TargetID, "LIGHTSTAGE_TARGET_ID", "")
}

// GetTransport возвращает транспорт синхронизации
func (s *SyncConfig) GetTransport() string {
	return strings.ToLower(getStringWithEnvFallback(s.Transport, "LIGHTSTAGE_TRANSPORT", TransportWebSocket))
}

func (s *SyncConfig) GetChannel() string {
	return getStringWithEnvFallback(s.Channel, "LIGHTSTAGE_CHANNEL", "lightstage.live")
}

func (s *SyncConfig) GetDebounce() time.Duration {
	return time.Duration(getIntWithEnvFallback(s.DebounceMs, "LIGHTSTAGE_DEBOUNCE_MS", 280)) * time.Millisecond
}

func (s *SyncConfig) GetPublishTimeout() time.Duration {
	return time.Duration(getIntWithEnvFallback(s.TimeoutMs, "LIGHTSTAGE_PUBLISH_TIMEOUT_MS", 2000)) * time.Millisecond
}

// GetUseGzip в YAML false неотличим от отсутствия, поэтому true из env
// включает сжатие поверх файла.
func (s *SyncConfig) GetUseGzip() bool {
	if s.UseGzipCompr {
		return true
	}
	v, err := strconv.ParseBool(os.Getenv("LIGHTSTAGE_COMPRESS"))
	return err == nil && v
}

// GetTargets список известных целей; env через запятую.
func (s *SyncConfig) GetTargets() []string {
	if len(s.Targets) > 0 {
		return s.Targets
	}
	env := os.Getenv("LIGHTSTAGE_TARGETS")
	if env == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(env, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (r *RetryConfig) GetInitial() time.Duration {
	return time.Duration(getIntWithEnvFallback(r.InitialMs, "LIGHTSTAGE_RETRY_INITIAL_MS", 500)) * time.Millisecond
}

func (r *RetryConfig) GetMax() time.Duration {
	return time.Duration(getIntWithEnvFallback(r.MaxMs, "LIGHTSTAGE_RETRY_MAX_MS", 5000)) * time.Millisecond
}

func (r *RetryConfig) GetMaxElapsed() time.Duration {
	return time.Duration(getIntWithEnvFallback(r.MaxElapsedMs, "LIGHTSTAGE_RETRY_MAX_ELAPSED_MS", 30000)) * time.Millisecond
}

func (r *RetryConfig) GetMultiplier() float64 {
	if r.Multiplier > 1 {
		return r.Multiplier
	}
	return 2
}

func (n *NATSConfig) GetURL() string {
	return getStringWithEnvFallback(n.URL, "NATS_URL", "nats://127.0.0.1:4222")
}

func (n *NATSConfig) GetMaxReconnects() int {
	return getIntWithEnvFallback(n.MaxReconnects, "NATS_MAX_RECONNECTS", 60)
}

func (r *RedisConfig) GetAddr() string {
	return getStringWithEnvFallback(r.Addr, "REDIS_ADDR", "localhost:6379")
}

func (r *RedisConfig) GetPassword() string {
	return getStringWithEnvFallback(r.Password, "REDIS_PASSWORD", "")
}

func (w *WebSocketConfig) GetURL() string {
	return getStringWithEnvFallback(w.URL, "LIGHTSTAGE_WS_URL", "ws://127.0.0.1:8088/ws/live")
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getIntWithEnvFallback(s.RESTPort, "LIGHTSTAGE_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getIntWithEnvFallback(s.MetricsPort, "LIGHTSTAGE_METRICS_PORT", 2112)
}

func (r *RenderConfig) GetFPS() int {
	return getIntWithEnvFallback(r.FPS, "LIGHTSTAGE_FPS", 60)
}

func (r *RenderConfig) GetCanvasHeight() float64 {
	if r.CanvasHeight > 0 {
		return r.CanvasHeight
	}
	if v, err := strconv.ParseFloat(os.Getenv("LIGHTSTAGE_CANVAS_HEIGHT"), 64); err == nil && v > 0 {
		return v
	}
	return 1080
}

// GetBackend log | none
func (r *RenderConfig) GetBackend() string {
	return getStringWithEnvFallback(r.Backend, "LIGHTSTAGE_RENDER_BACKEND", "log")
}

func (l *LibraryConfig) GetBackend() string {
	return strings.ToLower(getStringWithEnvFallback(l.Backend, "LIGHTSTAGE_LIBRARY", "memory"))
}

// GetPath каталог BadgerDB
func (l *LibraryConfig) GetPath() string {
	return getStringWithEnvFallback(l.Path, "LIGHTSTAGE_LIBRARY_PATH", "data")
}

func (l *LibraryConfig) GetDSN() string {
	return getStringWithEnvFallback(l.DSN, "MARIA_DSN", "lightstage:lightstage@tcp(127.0.0.1:3306)/lightstage?parseTime=true")
}

func (l *LibraryConfig) GetMongoURI() string {
	return getStringWithEnvFallback(l.MongoURI, "MONGO_URI", "mongodb://localhost:27017")
}

func (t *TelemetryConfig) GetEnabled() bool {
	if t.Enabled {
		return true
	}
	v, err := strconv.ParseBool(os.Getenv("LIGHTSTAGE_TELEMETRY"))
	return err == nil && v
}

func (t *TelemetryConfig) GetServiceName() string {
	return getStringWithEnvFallback(t.ServiceName, "OTEL_SERVICE_NAME", "lightstage")
}

func (l *LogConfig) GetLevel() string {
	return getStringWithEnvFallback(l.Level, "LIGHTSTAGE_LOG_LEVEL", "info")
}

func (l *LogConfig) GetDir() string {
	return getStringWithEnvFallback(l.Dir, "LIGHTSTAGE_LOG_DIR", "")
}

// Validate проверяет роль и транспорт.
func (c *Config) Validate() error {
	var errs []error
	switch c.GetRole() {
	case RoleControl, RoleDisplay:
	default:
		errs = append(errs, fmt.Errorf("%w: role %q", ErrInvalidConfig, c.GetRole()))
	}
	switch c.Sync.GetTransport() {
	case TransportNone, TransportMemory, TransportNATS, TransportRedis, TransportWebSocket:
	default:
		errs = append(errs, fmt.Errorf("%w: transport %q", ErrInvalidConfig, c.Sync.GetTransport()))
	}
	if c.GetRole() == RoleDisplay && c.Sync.GetTransport() == TransportNone {
		errs = append(errs, fmt.Errorf("%w: display requires a transport", ErrInvalidConfig))
	}
	switch c.Library.GetBackend() {
	case "memory", "badger", "redis", "maria", "mongo":
	default:
		errs = append(errs, fmt.Errorf("%w: library backend %q", ErrInvalidConfig, c.Library.GetBackend()))
	}
	if c.Render.GetFPS() > 240 {
		errs = append(errs, fmt.Errorf("%w: fps %d", ErrInvalidConfig, c.Render.GetFPS()))
	}
	return errors.Join(errs...)
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configValue int, envVar string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}

func getStringWithEnvFallback(configValue, envVar, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultValue
}

// LoadDotEnv загружает переменные окружения из файла. Отсутствующий файл не ошибка.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load читает YAML файл конфигурации.
// Если path == "", берёт путь из ENV LIGHTSTAGE_CONFIG; без файла
// возвращает пустую конфигурацию (всё из env и значений по умолчанию).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("LIGHTSTAGE_CONFIG")
		if path == "" {
			return &Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}
