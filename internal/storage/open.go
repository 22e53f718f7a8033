package storage

import (
	"fmt"

	"github.com/annel0/lightstage/internal/logging"
)

// Бэкенды библиотеки пресетов.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMaria  = "maria"
	BackendMongo  = "mongo"
)

// Config выбирает бэкенд и его параметры.
type Config struct {
	Backend string
	Path    string // каталог BadgerDB
	DSN     string // MariaDB
	Redis   RedisConfig
	Mongo   MongoConfig
}

// Open создаёт библиотеку пресетов по конфигурации.
func Open(cfg Config) (PresetRepo, error) {
	log := logging.GetStorageLogger()

	var (
		repo PresetRepo
		err  error
	)
	switch cfg.Backend {
	case "", BackendMemory:
		repo = NewMemoryPresetRepo()
	case BackendBadger:
		repo, err = NewBadgerPresetRepo(cfg.Path)
	case BackendRedis:
		repo, err = NewRedisPresetRepo(cfg.Redis)
	case BackendMaria:
		repo, err = NewMariaPresetRepo(cfg.DSN)
	case BackendMongo:
		repo, err = NewMongoPresetRepo(cfg.Mongo)
	default:
		return nil, fmt.Errorf("unknown preset backend %q", cfg.Backend)
	}
	if err != nil {
		log.Error("❌ Библиотека пресетов (%s) недоступна: %v", cfg.Backend, err)
		return nil, err
	}
	log.Info("📚 Библиотека пресетов: %s", backendName(cfg.Backend))
	return repo, nil
}

func backendName(b string) string {
	if b == "" {
		return BackendMemory
	}
	return b
}
