package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePreset = `{"version":1,"exposure":99,"lights":[{"id":"a","x":10,"y":20,"intensity":9000},{"id":"a","x":1,"y":1}]}`

func writePreset(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "preset.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestSanitizePreset тестирует зажатие значений и переименование дублей id
func TestSanitizePreset(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, sanitizePreset(writePreset(t, samplePreset), &out))

	var preset map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &preset))
	lights := preset["lights"].([]any)
	require.Len(t, lights, 2)
	assert.Equal(t, 2000.0, lights[0].(map[string]any)["intensity"])
	assert.NotEqual(t, lights[0].(map[string]any)["id"], lights[1].(map[string]any)["id"])

	assert.Error(t, sanitizePreset(writePreset(t, `{"version":3}`), &out))
}

// TestCompilePreset тестирует вывод uniform'ов
func TestCompilePreset(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, compilePreset(writePreset(t, samplePreset), 720, &out))

	var u map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &u))
	assert.Equal(t, 2.0, u["u_numLights"])

	assert.Error(t, compilePreset(writePreset(t, samplePreset), 0, &out))
}

// TestPushPresetRetries тестирует повтор при 5xx и отказ без повтора при 4xx
func TestPushPresetRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/broadcast/apply", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"lights"`)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := writePreset(t, samplePreset)
	require.NoError(t, pushPreset(path, &PushOptions{Server: srv.URL, Mode: "broadcast", MaxElapsed: 10 * time.Second}))
	assert.Equal(t, int32(2), calls.Load())

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer bad.Close()
	calls.Store(0)
	assert.Error(t, pushPreset(path, &PushOptions{Server: bad.URL, Mode: "import", MaxElapsed: 10 * time.Second}))
	assert.Equal(t, int32(1), calls.Load())

	assert.Error(t, pushPreset(path, &PushOptions{Server: srv.URL, Mode: "sideways"}))
}
