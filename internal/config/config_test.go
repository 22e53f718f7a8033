package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaults тестирует значения по умолчанию без файла и окружения
func TestDefaults(t *testing.T) {
	t.Setenv("LIGHTSTAGE_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, RoleControl, cfg.GetRole())
	assert.Equal(t, "", cfg.GetTargetID())
	assert.Equal(t, TransportWebSocket, cfg.Sync.GetTransport())
	assert.Equal(t, "lightstage.live", cfg.Sync.GetChannel())
	assert.Equal(t, 280*time.Millisecond, cfg.Sync.GetDebounce())
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.Retry.GetInitial())
	assert.Equal(t, 5*time.Second, cfg.Sync.Retry.GetMax())
	assert.Equal(t, 30*time.Second, cfg.Sync.Retry.GetMaxElapsed())
	assert.Equal(t, 2.0, cfg.Sync.Retry.GetMultiplier())
	assert.Equal(t, 8088, cfg.Server.GetRESTPort())
	assert.Equal(t, 2112, cfg.Server.GetMetricsPort())
	assert.Equal(t, 60, cfg.Render.GetFPS())
	assert.Equal(t, 1080.0, cfg.Render.GetCanvasHeight())
	assert.False(t, cfg.Sync.GetUseGzip())
	assert.Equal(t, "memory", cfg.Library.GetBackend())
	assert.NoError(t, cfg.Validate())
}

// TestEnvFallbacks тестирует приоритет config -> env -> default
func TestEnvFallbacks(t *testing.T) {
	t.Setenv("LIGHTSTAGE_ROLE", "Display")
	t.Setenv("LIGHTSTAGE_TARGET_ID", "2")
	t.Setenv("LIGHTSTAGE_TRANSPORT", "nats")
	t.Setenv("LIGHTSTAGE_DEBOUNCE_MS", "100")
	t.Setenv("LIGHTSTAGE_TARGETS", "1, 2,,3")
	t.Setenv("LIGHTSTAGE_COMPRESS", "true")
	t.Setenv("LIGHTSTAGE_REST_PORT", "not-a-number")
	t.Setenv("NATS_URL", "nats://bus:4222")

	cfg := &Config{Server: ServerConfig{MetricsPort: 9100}}
	assert.Equal(t, RoleDisplay, cfg.GetRole())
	assert.Equal(t, "2", cfg.GetTargetID())
	assert.Equal(t, TransportNATS, cfg.Sync.GetTransport())
	assert.Equal(t, 100*time.Millisecond, cfg.Sync.GetDebounce())
	assert.Equal(t, []string{"1", "2", "3"}, cfg.Sync.GetTargets())
	assert.True(t, cfg.Sync.GetUseGzip())
	assert.Equal(t, 8088, cfg.Server.GetRESTPort(), "невалидный env игнорируется")
	assert.Equal(t, 9100, cfg.Server.GetMetricsPort(), "значение из файла важнее env")
	assert.Equal(t, "nats://bus:4222", cfg.NATS.GetURL())
	assert.NoError(t, cfg.Validate())
}

// TestLoadYAML тестирует чтение файла конфигурации
func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lightstage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
role: display
target_id: "3"
sync:
  transport: redis
  debounce_ms: 150
  targets: ["1", "3"]
  retry:
    initial_ms: 250
    disabled: true
redis:
  addr: cache:6379
render:
  fps: 30
  canvas_height: 720
log:
  components:
    sync: trace
library:
  backend: badger
  path: /var/lib/lightstage
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, RoleDisplay, cfg.GetRole())
	assert.Equal(t, "3", cfg.GetTargetID())
	assert.Equal(t, TransportRedis, cfg.Sync.GetTransport())
	assert.Equal(t, 150*time.Millisecond, cfg.Sync.GetDebounce())
	assert.Equal(t, []string{"1", "3"}, cfg.Sync.GetTargets())
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.Retry.GetInitial())
	assert.True(t, cfg.Sync.Retry.Disabled)
	assert.Equal(t, "cache:6379", cfg.Redis.GetAddr())
	assert.Equal(t, 30, cfg.Render.GetFPS())
	assert.Equal(t, 720.0, cfg.Render.GetCanvasHeight())
	assert.Equal(t, "badger", cfg.Library.GetBackend())
	assert.Equal(t, map[string]string{"sync": "trace"}, cfg.Log.Components)
	assert.Equal(t, "/var/lib/lightstage", cfg.Library.GetPath())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

// TestValidate тестирует отклонение неизвестных роли и транспорта
func TestValidate(t *testing.T) {
	cfg := &Config{Role: "mirror", Sync: SyncConfig{Transport: "carrier-pigeon"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "mirror")
	assert.Contains(t, err.Error(), "carrier-pigeon")

	cfg = &Config{Role: RoleDisplay, Sync: SyncConfig{Transport: TransportNone}}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = &Config{Library: LibraryConfig{Backend: "floppy"}}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

// TestLoadDotEnv тестирует загрузку .env и игнорирование отсутствующего файла
func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))

	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LIGHTSTAGE_TEST_DOTENV=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LIGHTSTAGE_TEST_DOTENV") })
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("LIGHTSTAGE_TEST_DOTENV"))
}
