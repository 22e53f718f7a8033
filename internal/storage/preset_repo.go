// Package storage хранит библиотеку именованных пресетов сцены.
// Управляющий экземпляр сохраняет черновик под именем и позже загружает
// его обратно; бэкенд выбирается конфигурацией.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/annel0/lightstage/internal/scene"
)

var (
	// ErrNotFound пресета с таким именем нет.
	ErrNotFound = errors.New("preset not found")
	// ErrInvalidName имя пресета недопустимо.
	ErrInvalidName = errors.New("invalid preset name")
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// PresetRepo определяет интерфейс библиотеки пресетов.
// Все реализации хранят пресет в формате экспорта (version 1) и при
// загрузке прогоняют его через импорт, поэтому из библиотеки всегда
// выходит санитизированная сцена.
type PresetRepo interface {
	// Save сохраняет сцену под именем, перезаписывая прежнюю.
	Save(ctx context.Context, name string, s *scene.Scene) error

	// Load загружает сцену. Возвращает ErrNotFound, если имени нет.
	Load(ctx context.Context, name string) (*scene.Scene, error)

	// Delete удаляет пресет. Возвращает ErrNotFound, если имени нет.
	Delete(ctx context.Context, name string) error

	// List возвращает записи, отсортированные по имени.
	List(ctx context.Context) ([]Entry, error)

	Close() error
}

// Entry краткое описание сохранённого пресета.
type Entry struct {
	Name      string    `json:"name"`
	Layers    int       `json:"layers"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// record сериализованная форма для key-value бэкендов.
type record struct {
	Name      string          `json:"name"`
	Layers    int             `json:"layers"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Preset    json.RawMessage `json:"preset"`
}

// ValidateName проверяет имя пресета.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func newRecord(name string, s *scene.Scene, now time.Time) (record, error) {
	if err := ValidateName(name); err != nil {
		return record{}, err
	}
	if s == nil {
		return record{}, fmt.Errorf("%w: nil scene", scene.ErrInvalidPreset)
	}
	data, err := scene.MarshalPreset(s)
	if err != nil {
		return record{}, err
	}
	return record{Name: name, Layers: s.Len(), UpdatedAt: now.UTC(), Preset: data}, nil
}

func (r record) entry() Entry {
	return Entry{Name: r.Name, Layers: r.Layers, UpdatedAt: r.UpdatedAt}
}

func (r record) scene() (*scene.Scene, error) {
	s, err := scene.Import(r.Preset)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", r.Name, err)
	}
	return s, nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
