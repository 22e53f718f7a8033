package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/gzip"

	"github.com/annel0/lightstage/internal/eventbus"
	"github.com/annel0/lightstage/internal/logging"
	"github.com/annel0/lightstage/internal/scene"
	"github.com/annel0/lightstage/internal/schedule"
)

// Role роль экземпляра; задаётся один раз при создании.
type Role string

const (
	RoleControl Role = "control"
	RoleDisplay Role = "display"
)

// ErrUnknownRole роль не control и не display.
var ErrUnknownRole = errors.New("sync: unknown role")

// SyncManager координирует компоненты синхронизации выбранной роли:
// Control либо Display поверх общего транспорта.
type SyncManager struct {
	role    Role
	control *Control
	display *Display
}

type SyncConfig struct {
	Role         Role
	Bus          eventbus.EventBus
	Scheduler    schedule.Scheduler
	Metrics      *Metrics
	UseGzipCompr bool

	Control ControlConfig
	Display DisplayConfig
}

func NewSyncManager(cfg SyncConfig) (*SyncManager, error) {
	var codec Codec
	if cfg.UseGzipCompr {
		codec = GzipCodec(gzip.DefaultCompression)
		logging.Info("🔄 SyncManager: используется gzip-компрессия")
	} else {
		codec = JSONCodec()
		logging.Info("🔄 SyncManager: компрессия отключена")
	}

	sm := &SyncManager{role: cfg.Role}
	switch cfg.Role {
	case RoleControl:
		cc := cfg.Control
		cc.Codec = codec
		c, err := NewControl(cc, cfg.Bus, cfg.Scheduler, cfg.Metrics)
		if err != nil {
			return nil, err
		}
		sm.control = c
	case RoleDisplay:
		dc := cfg.Display
		dc.Codec = codec
		sm.display = NewDisplay(dc, cfg.Bus, cfg.Scheduler, cfg.Metrics)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, cfg.Role)
	}

	logging.Info("✅ SyncManager инициализирован: role=%s transport=%t", cfg.Role, cfg.Bus != nil)
	return sm, nil
}

// Start запускает координатор роли.
func (sm *SyncManager) Start(ctx context.Context) error {
	if sm.control != nil {
		return sm.control.Start(ctx)
	}
	return sm.display.Start(ctx)
}

// Role роль экземпляра.
func (sm *SyncManager) Role() Role { return sm.role }

// Control управляющий координатор или nil.
func (sm *SyncManager) Control() *Control { return sm.control }

// Display координатор экрана или nil.
func (sm *SyncManager) Display() *Display { return sm.display }

// Rendered снимок, который сейчас должен рисоваться.
func (sm *SyncManager) Rendered() *scene.Scene {
	if sm.control != nil {
		return sm.control.Draft()
	}
	return sm.display.Rendered()
}

func (sm *SyncManager) Stop() {
	if sm.control != nil {
		_ = sm.control.Close()
	}
	if sm.display != nil {
		_ = sm.display.Close()
	}
	logging.Info("🔄 SyncManager остановлен")
}
