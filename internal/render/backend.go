package render

import (
	"context"
	"sync"

	"github.com/annel0/lightstage/internal/logging"
	"github.com/annel0/lightstage/internal/uniform"
)

// LogBackend пишет краткую сводку каждого кадра на уровне TRACE.
type LogBackend struct {
	log *logging.Logger
}

func NewLogBackend() *LogBackend {
	return &LogBackend{log: logging.GetRenderLogger()}
}

func (lb *LogBackend) Upload(_ context.Context, b *uniform.Bundle) error {
	lb.log.Trace("frame: lights=%d exposure=%.2f bg=%v res=%v", b.Count, b.Exposure, b.Background, b.Resolution)
	return nil
}

// RecordingBackend хранит последний загруженный бандл.
type RecordingBackend struct {
	mu      sync.RWMutex
	last    *uniform.Bundle
	uploads int
}

func NewRecordingBackend() *RecordingBackend { return &RecordingBackend{} }

func (rb *RecordingBackend) Upload(_ context.Context, b *uniform.Bundle) error {
	rb.mu.Lock()
	rb.last = b
	rb.uploads++
	rb.mu.Unlock()
	return nil
}

// Last последний бандл или nil.
func (rb *RecordingBackend) Last() *uniform.Bundle {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.last
}

// Uploads число загрузок.
func (rb *RecordingBackend) Uploads() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.uploads
}

// MultiBackend раздаёт кадр нескольким backend'ам; первая ошибка прерывает раздачу.
type MultiBackend []Backend

func (mb MultiBackend) Upload(ctx context.Context, b *uniform.Bundle) error {
	for _, be := range mb {
		if err := be.Upload(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
