package render

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/lightstage/internal/scene"
	"github.com/annel0/lightstage/internal/uniform"
)

type failingBackend struct{}

func (failingBackend) Upload(context.Context, *uniform.Bundle) error { return errors.New("gpu lost") }

// TestFrameCompilesCurrentSnapshot тестирует компиляцию текущего снимка за кадр
func TestFrameCompilesCurrentSnapshot(t *testing.T) {
	var current atomic.Pointer[scene.Scene]
	s := scene.Default()
	_, ok := s.AddLayerAt(100, 100)
	require.True(t, ok)
	current.Store(s)

	rec := NewRecordingBackend()
	reg := prometheus.NewRegistry()
	fl, err := NewFrameLoop(current.Load, MultiBackend{rec, NewLogBackend()}, 0, 600, reg)
	require.NoError(t, err)
	assert.Equal(t, DefaultFPS, fl.FPS)

	require.NoError(t, fl.Frame(context.Background()))
	require.NotNil(t, rec.Last())
	assert.Equal(t, int32(1), rec.Last().Count)
	assert.Equal(t, uniform.Compile(s, 600), rec.Last())

	next := s.Clone()
	next.ClearLayers()
	current.Store(next)
	require.NoError(t, fl.Frame(context.Background()))
	assert.Equal(t, int32(0), rec.Last().Count)
	assert.Same(t, rec.Last(), fl.Last())

	assert.Equal(t, uint64(2), fl.Frames())
	assert.Equal(t, 2, rec.Uploads())
	assert.Equal(t, 2.0, testutil.ToFloat64(fl.frameTotal))
}

// TestFrameUploadError тестирует учёт ошибок backend'а
func TestFrameUploadError(t *testing.T) {
	fl, err := NewFrameLoop(scene.Default, failingBackend{}, 30, 0, nil)
	require.NoError(t, err)
	assert.Error(t, fl.Frame(context.Background()))
	assert.Equal(t, uint64(1), fl.Errors())
	assert.Equal(t, uint64(1), fl.Frames())
}

// TestRunStopsOnCancel тестирует остановку цикла по отмене контекста
func TestRunStopsOnCancel(t *testing.T) {
	rec := NewRecordingBackend()
	fl, err := NewFrameLoop(scene.Default, rec, 200, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fl.Run(ctx) }()

	assert.Eventually(t, func() bool { return rec.Uploads() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("цикл кадров не остановился")
	}
}

// TestNilSource тестирует отказ без источника сцены
func TestNilSource(t *testing.T) {
	_, err := NewFrameLoop(nil, nil, 60, 0, nil)
	assert.Error(t, err)
}
