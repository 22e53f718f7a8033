package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/lightstage/internal/scene"
)

const badgerPrefix = "preset:"

// BadgerPresetRepo хранит пресеты во встроенной BadgerDB.
// Подходит для одиночного управляющего экземпляра без внешних сервисов.
type BadgerPresetRepo struct {
	db      *badger.DB
	mu      sync.RWMutex
	isReady bool
	now     func() time.Time
}

// NewBadgerPresetRepo открывает базу в dataPath/presets.
// Пустой dataPath открывает базу в памяти.
func NewBadgerPresetRepo(dataPath string) (*BadgerPresetRepo, error) {
	var opts badger.Options
	if dataPath == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(dataPath, "presets"))
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	return &BadgerPresetRepo{db: db, isReady: true, now: time.Now}, nil
}

func (r *BadgerPresetRepo) ready() error {
	if !r.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	return nil
}

func (r *BadgerPresetRepo) Save(ctx context.Context, name string, s *scene.Scene) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	rec, err := newRecord(name, s, r.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ошибка сериализации пресета: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ready(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerPrefix+name), data)
	})
}

func (r *BadgerPresetRepo) Load(ctx context.Context, name string) (*scene.Scene, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}

	var rec record
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerPrefix + name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пресета %s: %w", name, err)
	}
	return rec.scene()
}

func (r *BadgerPresetRepo) Delete(ctx context.Context, name string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ready(); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		key := []byte(badgerPrefix + name)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// List обходит ключи по префиксу; Badger итерирует их в лексикографическом
// порядке, поэтому сортировка не нужна.
func (r *BadgerPresetRepo) List(ctx context.Context) ([]Entry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ready(); err != nil {
		return nil, err
	}

	out := make([]Entry, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(badgerPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec.entry())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка пресетов: %w", err)
	}
	return out, nil
}

// Close закрывает хранилище
func (r *BadgerPresetRepo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isReady {
		return nil
	}
	r.isReady = false
	return r.db.Close()
}
