package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/lightstage/internal/logging"
	"github.com/annel0/lightstage/internal/scene"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string // Адрес Redis сервера
	Password  string // Пароль (пустой если не требуется)
	DB        int    // Номер базы данных
	KeyPrefix string // Префикс для ключей
}

// RedisPresetRepo хранит пресеты в Redis, общую библиотеку для
// нескольких управляющих экземпляров.
type RedisPresetRepo struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewRedisPresetRepo подключается к Redis и проверяет соединение.
func NewRedisPresetRepo(cfg RedisConfig) (*RedisPresetRepo, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "lightstage:preset:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetStorageLogger().Info("🔴 Библиотека пресетов подключена к Redis %s", cfg.Addr)
	return &RedisPresetRepo{client: client, keyPrefix: cfg.KeyPrefix, now: time.Now}, nil
}

func (r *RedisPresetRepo) Save(ctx context.Context, name string, s *scene.Scene) error {
	rec, err := newRecord(name, s, r.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}
	if err := r.client.Set(ctx, r.keyPrefix+name, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save preset: %w", err)
	}
	return nil
}

func (r *RedisPresetRepo) Load(ctx context.Context, name string) (*scene.Scene, error) {
	data, err := r.client.Get(ctx, r.keyPrefix+name).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get preset: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preset: %w", err)
	}
	return rec.scene()
}

func (r *RedisPresetRepo) Delete(ctx context.Context, name string) error {
	n, err := r.client.Del(ctx, r.keyPrefix+name).Result()
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List собирает ключи через SCAN и читает записи пайплайном.
func (r *RedisPresetRepo) List(ctx context.Context) ([]Entry, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presets: %w", err)
	}

	out := make([]Entry, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get presets: %w", err)
	}

	log := logging.GetStorageLogger()
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue // удалён между SCAN и GET
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Warn("⚠️ Повреждённый пресет %s: %v", keys[i], err)
			continue
		}
		out = append(out, rec.entry())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close закрывает соединение с Redis
func (r *RedisPresetRepo) Close() error {
	return r.client.Close()
}
