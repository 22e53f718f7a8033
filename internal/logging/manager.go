package logging

import (
	"fmt"
	"sort"
	"sync"
)

// LoggerManager хранит логгеры компонентов (sync, eventbus, api, render,
// storage) и переопределения уровня консоли для отдельных компонентов.
type LoggerManager struct {
	mu        sync.RWMutex
	loggers   map[string]*Logger
	overrides map[string]LogLevel
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{
			loggers:   make(map[string]*Logger),
			overrides: make(map[string]LogLevel),
		}
	})
	return globalManager
}

// GetLogger возвращает логгер компонента, создавая его при первом обращении.
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	logger, exists := lm.loggers[component]
	lm.mu.RUnlock()
	if exists {
		return logger, nil
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if logger, exists := lm.loggers[component]; exists {
		return logger, nil
	}

	opts := currentOptions()
	if lvl, ok := lm.overrides[component]; ok {
		opts.ConsoleLevel = lvl
	}
	logger, err := newLogger(component, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger for %s: %w", component, err)
	}
	lm.loggers[component] = logger
	return logger, nil
}

// MustGetLogger при ошибке файла возвращает логгер только с консолью.
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	logger, err := lm.GetLogger(component)
	if err == nil {
		return logger
	}
	opts := currentOptions()
	opts.Dir = ""
	fallback, _ := newLogger(component, opts)
	return fallback
}

// SetComponentLevel задаёт уровень консоли компонента: для уже созданного
// логгера сразу, для остальных при создании.
func (lm *LoggerManager) SetComponentLevel(component string, level LogLevel) {
	lm.mu.Lock()
	lm.overrides[component] = level
	logger := lm.loggers[component]
	lm.mu.Unlock()

	if logger != nil {
		logger.mu.Lock()
		logger.minConsoleLevel = level
		logger.mu.Unlock()
	}
}

// SetLogLevel меняет оба уровня существующего логгера.
func (lm *LoggerManager) SetLogLevel(component string, consoleLevel, fileLevel LogLevel) error {
	lm.mu.RLock()
	logger, exists := lm.loggers[component]
	lm.mu.RUnlock()
	if !exists {
		return fmt.Errorf("logger for component %s not found", component)
	}

	logger.mu.Lock()
	logger.minConsoleLevel = consoleLevel
	logger.minFileLevel = fileLevel
	logger.mu.Unlock()
	return nil
}

// ListComponents имена созданных логгеров по алфавиту.
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.RLock()
	components := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		components = append(components, component)
	}
	lm.mu.RUnlock()
	sort.Strings(components)
	return components
}

// CloseAll закрывает файлы всех логгеров. Переопределения уровней сохраняются.
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var errs []error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close logger %s: %w", component, err))
		}
	}
	lm.loggers = make(map[string]*Logger)
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

func GetSyncLogger() *Logger    { return GetComponentLogger("sync") }
func GetBusLogger() *Logger     { return GetComponentLogger("eventbus") }
func GetAPILogger() *Logger     { return GetComponentLogger("api") }
func GetRenderLogger() *Logger  { return GetComponentLogger("render") }
func GetStorageLogger() *Logger { return GetComponentLogger("storage") }
