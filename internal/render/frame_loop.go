// Package render граница с графическим backend'ом: покадровая компиляция
// текущего снимка сцены и загрузка uniform-бандла.
package render

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/lightstage/internal/logging"
	"github.com/annel0/lightstage/internal/scene"
	"github.com/annel0/lightstage/internal/uniform"
)

const (
	DefaultFPS          = 60
	DefaultCanvasHeight = 1080
)

// Backend принимает бандл один раз за кадр. Сама отрисовка вне модуля.
type Backend interface {
	Upload(ctx context.Context, b *uniform.Bundle) error
}

// FrameLoop на каждом тике берёт одну ссылку на снимок и компилирует его.
// Снимки неизменяемы, поэтому кадр никогда не видит сцену посреди правки.
type FrameLoop struct {
	Source       func() *scene.Scene
	Backend      Backend
	FPS          int
	CanvasHeight float64

	frames      atomic.Uint64
	errors      atomic.Uint64
	last        atomic.Pointer[uniform.Bundle]
	compileTime prometheus.Histogram
	frameTotal  prometheus.Counter
	log         *logging.Logger
}

// NewFrameLoop создаёт цикл кадров и регистрирует метрики в reg (nil: без регистрации).
func NewFrameLoop(source func() *scene.Scene, backend Backend, fps int, canvasHeight float64, reg prometheus.Registerer) (*FrameLoop, error) {
	if source == nil {
		return nil, errors.New("render: nil scene source")
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	if canvasHeight <= 0 {
		canvasHeight = DefaultCanvasHeight
	}
	fl := &FrameLoop{
		Source:       source,
		Backend:      backend,
		FPS:          fps,
		CanvasHeight: canvasHeight,
		compileTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lightstage",
			Subsystem: "render",
			Name:      "compile_duration_seconds",
			Help:      "Время компиляции сцены в uniform-бандл.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		frameTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightstage",
			Subsystem: "render",
			Name:      "frames_total",
			Help:      "Скомпилированные кадры.",
		}),
		log: logging.GetRenderLogger(),
	}
	if reg != nil {
		if err := reg.Register(fl.compileTime); err != nil {
			return nil, err
		}
		if err := reg.Register(fl.frameTotal); err != nil {
			return nil, err
		}
	}
	return fl, nil
}

// Run тикает с частотой FPS до отмены ctx.
func (fl *FrameLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(fl.FPS))
	defer ticker.Stop()

	fl.log.Info("🎨 Цикл кадров запущен: %d FPS, canvas=%.0f", fl.FPS, fl.CanvasHeight)
	for {
		select {
		case <-ctx.Done():
			fl.log.Info("🎨 Цикл кадров остановлен после %d кадров", fl.frames.Load())
			return nil
		case <-ticker.C:
			if err := fl.Frame(ctx); err != nil {
				fl.log.Warn("upload error: %v", err)
			}
		}
	}
}

// Frame компилирует и загружает один кадр.
func (fl *FrameLoop) Frame(ctx context.Context) error {
	snap := fl.Source()

	start := time.Now()
	b := uniform.Compile(snap, fl.CanvasHeight)
	fl.compileTime.Observe(time.Since(start).Seconds())

	fl.last.Store(b)
	fl.frames.Add(1)
	fl.frameTotal.Inc()

	if fl.Backend == nil {
		return nil
	}
	if err := fl.Backend.Upload(ctx, b); err != nil {
		fl.errors.Add(1)
		return err
	}
	return nil
}

// Frames число скомпилированных кадров.
func (fl *FrameLoop) Frames() uint64 { return fl.frames.Load() }

// Errors число неудачных загрузок.
func (fl *FrameLoop) Errors() uint64 { return fl.errors.Load() }

// Last последний скомпилированный бандл или nil.
func (fl *FrameLoop) Last() *uniform.Bundle { return fl.last.Load() }
