package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/annel0/lightstage/internal/scene"
)

// MemoryPresetRepo реализует PresetRepo в памяти.
// Используется по умолчанию и в тестах.
// ВНИМАНИЕ: Данные теряются при перезапуске!
type MemoryPresetRepo struct {
	mu   sync.RWMutex
	data map[string]record
	now  func() time.Time
}

// NewMemoryPresetRepo создает новую библиотеку пресетов в памяти.
func NewMemoryPresetRepo() *MemoryPresetRepo {
	return &MemoryPresetRepo{
		data: make(map[string]record),
		now:  time.Now,
	}
}

func (r *MemoryPresetRepo) Save(ctx context.Context, name string, s *scene.Scene) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	rec, err := newRecord(name, s, r.now())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[name] = rec
	return nil
}

func (r *MemoryPresetRepo) Load(ctx context.Context, name string) (*scene.Scene, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	rec, ok := r.data[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return rec.scene()
}

func (r *MemoryPresetRepo) Delete(ctx context.Context, name string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[name]; !ok {
		return ErrNotFound
	}
	delete(r.data, name)
	return nil
}

func (r *MemoryPresetRepo) List(ctx context.Context) ([]Entry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Entry, 0, len(r.data))
	for _, rec := range r.data {
		out = append(out, rec.entry())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Count возвращает количество пресетов (для отладки).
func (r *MemoryPresetRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func (r *MemoryPresetRepo) Close() error { return nil }
