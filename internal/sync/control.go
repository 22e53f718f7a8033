package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/lightstage/internal/eventbus"
	"github.com/annel0/lightstage/internal/logging"
	"github.com/annel0/lightstage/internal/scene"
	"github.com/annel0/lightstage/internal/schedule"
	"github.com/annel0/lightstage/internal/store"
)

const (
	DefaultChannel        = "lightstage.live"
	DefaultDebounce       = 280 * time.Millisecond
	DefaultPublishTimeout = 2 * time.Second
)

var (
	// ErrControlExists в процессе уже есть управляющий экземпляр.
	ErrControlExists = errors.New("sync: control instance already exists")
	// ErrLayerLimit сцена уже содержит MaxLayers слоёв.
	ErrLayerLimit = errors.New("sync: layer limit reached")
)

// controlActive не более одного Control на процесс.
var controlActive atomic.Bool

// ControlConfig параметры управляющего экземпляра.
type ControlConfig struct {
	Channel        string
	SessionID      string
	Debounce       time.Duration
	PublishTimeout time.Duration
	Targets        []string
	Initial        *scene.Scene
	Codec          Codec
}

func (c *ControlConfig) setDefaults() {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	if c.Codec == nil {
		c.Codec = JSONCodec()
	}
}

// Control управляющий экземпляр: редактирует черновик, рассылает его
// активной цели с дебаунсом и отвечает на REQUEST_LIVE.
type Control struct {
	cfg      ControlConfig
	store    *store.ControlStore
	pub      *publisher
	debounce *schedule.Debouncer
	metrics  *Metrics
	log      *logging.Logger
	loop     *loop

	// dirty есть изменения черновика, ещё не отправленные активной цели
	dirty bool
	sub   eventbus.Subscription

	view    atomic.Pointer[scene.Scene]
	started atomic.Bool
	closed  atomic.Bool
}

// NewControl создаёт управляющий экземпляр. bus == nil отключает
// синхронизацию: черновик редактируется и рендерится локально.
func NewControl(cfg ControlConfig, bus eventbus.EventBus, sched schedule.Scheduler, metrics *Metrics) (*Control, error) {
	if !controlActive.CompareAndSwap(false, true) {
		return nil, ErrControlExists
	}
	cfg.setDefaults()
	if sched == nil {
		sched = schedule.Real()
	}

	log := logging.GetSyncLogger()
	c := &Control{
		cfg:      cfg,
		store:    store.NewControlStore(cfg.Initial, cfg.Targets),
		debounce: schedule.NewDebouncer(sched, cfg.Debounce),
		metrics:  metrics,
		log:      log,
		loop:     newLoop(256),
		pub: &publisher{
			bus:     bus,
			channel: cfg.Channel,
			source:  cfg.SessionID,
			codec:   cfg.Codec,
			timeout: cfg.PublishTimeout,
			metrics: metrics,
			log:     log,
		},
	}
	c.view.Store(c.store.Draft())
	go c.loop.run()
	return c, nil
}

// Start подписывается на канал. Без транспорта ничего не делает.
func (c *Control) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}
	if c.pub.bus == nil {
		c.log.Warn("⚠️ Control: транспорт не настроен, синхронизация отключена")
		return nil
	}

	sub, err := c.pub.subscribe(ctx, func(msg Message, meta Meta) {
		c.loop.post(func() { c.handle(context.Background(), msg, meta) })
	})
	if err != nil {
		c.started.Store(false)
		return fmt.Errorf("control subscribe: %w", err)
	}
	err = c.loop.call(ctx, func() { c.sub = sub })
	if err != nil {
		sub.Unsubscribe()
		return err
	}
	c.log.Info("🎛️ Control запущен: channel=%s session=%s debounce=%v", c.cfg.Channel, c.cfg.SessionID, c.cfg.Debounce)
	return nil
}

// handle выполняется в цикле.
func (c *Control) handle(ctx context.Context, msg Message, meta Meta) {
	switch m := msg.(type) {
	case RequestLive:
		c.answer(ctx, m.TargetID)
	case LiveState:
		// другой управляющий экземпляр не поддерживается
		c.metrics.messageIgnored("role")
	}
}

// answer отвечает ровно одним LIVE_STATE на REQUEST_LIVE.
func (c *Control) answer(ctx context.Context, target string) {
	if target == "" {
		target = store.TargetAll
	}
	ctx, span := tracer.Start(ctx, "sync.control.resync")
	defer span.End()
	span.SetAttributes(attribute.String("sync.target", target))

	c.store.Observe(target)
	snap := c.store.Resolve(target)
	if err := c.pub.send(ctx, LiveState{TargetID: target, Payload: snap}); err != nil {
		span.RecordError(err)
		return
	}
	c.metrics.resyncAnswered()
	c.log.Debug("REQUEST_LIVE %s -> LIVE_STATE (%d layers)", target, snap.Len())

	if target == store.TargetAll {
		c.restoreDiverged(ctx)
	}
}

// restoreDiverged после ответа all заново отправляет целям с собственным
// переопределением их снимок: экраны этих целей тоже приняли all.
func (c *Control) restoreDiverged(ctx context.Context) {
	for _, t := range c.store.Diverged() {
		snap := c.store.Resolve(t)
		if err := c.pub.send(ctx, LiveState{TargetID: t, Payload: snap}); err != nil {
			c.log.Warn("⚠️ Не удалось вернуть снимок цели %s: %v", t, err)
			continue
		}
		c.log.Debug("LIVE_STATE -> %s восстановлен (%d layers)", t, snap.Len())
	}
}

// changed публикует новый черновик и планирует отправку.
func (c *Control) changed() {
	c.view.Store(c.store.Draft())
	c.dirty = true
	if c.debounce.Trigger(func() { c.loop.post(c.flushPending) }) {
		c.metrics.editCoalesced()
	}
}

// flushPending отправляет черновик активной цели, если есть что отправлять.
func (c *Control) flushPending() {
	if !c.dirty {
		return
	}
	c.dirty = false
	c.debounce.Cancel()

	target := c.store.ActiveTarget()
	snap := c.store.Draft()
	c.store.Record(target, snap)

	ctx, span := tracer.Start(context.Background(), "sync.control.broadcast")
	defer span.End()
	span.SetAttributes(attribute.String("sync.target", target), attribute.Int("sync.layers", snap.Len()))

	if err := c.pub.send(ctx, LiveState{TargetID: target, Payload: snap}); err != nil {
		if !errors.Is(err, ErrNoTransport) {
			span.RecordError(err)
		}
		return
	}
	c.log.Debug("LIVE_STATE -> %s (%d layers)", target, snap.Len())
}

// exec выполняет fn в цикле.
func (c *Control) exec(ctx context.Context, fn func()) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.loop.call(ctx, fn)
}

// edit общий путь всех правок черновика.
func (c *Control) edit(ctx context.Context, fn func(*scene.Scene) error) (*scene.Scene, error) {
	var (
		out     *scene.Scene
		editErr error
	)
	err := c.exec(ctx, func() {
		out, editErr = c.store.Edit(fn)
		if editErr == nil {
			c.changed()
		}
	})
	if err != nil {
		return nil, err
	}
	return out, editErr
}

// Edit применяет произвольную правку к копии черновика.
func (c *Control) Edit(ctx context.Context, fn func(*scene.Scene) error) (*scene.Scene, error) {
	return c.edit(ctx, fn)
}

// AddLayerAt создаёт слой текущей формы/типа в точке (x, y).
func (c *Control) AddLayerAt(ctx context.Context, x, y float64) (scene.Layer, error) {
	var added scene.Layer
	_, err := c.edit(ctx, func(s *scene.Scene) error {
		l, ok := s.AddLayerAt(x, y)
		if !ok {
			return ErrLayerLimit
		}
		added = l
		return nil
	})
	return added, err
}

// AddLayer добавляет слой из произвольного объекта (санитизируется).
func (c *Control) AddLayer(ctx context.Context, raw any) (scene.Layer, error) {
	l, ok := scene.SanitizeLayer(raw)
	if !ok {
		return scene.Layer{}, fmt.Errorf("%w: layer is not an object", scene.ErrInvalidPreset)
	}
	_, err := c.edit(ctx, func(s *scene.Scene) error {
		if !s.AddLayer(l) {
			return ErrLayerLimit
		}
		l = s.Layers[len(s.Layers)-1]
		return nil
	})
	return l, err
}

// UpdateLayer применяет патч к слою id.
func (c *Control) UpdateLayer(ctx context.Context, id string, p scene.LayerPatch) (scene.Layer, error) {
	var updated scene.Layer
	_, err := c.edit(ctx, func(s *scene.Scene) error {
		if err := s.UpdateLayer(id, p); err != nil {
			return err
		}
		updated, _ = s.Layer(id)
		return nil
	})
	return updated, err
}

// RemoveLayer удаляет слой id.
func (c *Control) RemoveLayer(ctx context.Context, id string) error {
	_, err := c.edit(ctx, func(s *scene.Scene) error {
		if !s.RemoveLayer(id) {
			return fmt.Errorf("%w: %s", scene.ErrLayerNotFound, id)
		}
		return nil
	})
	return err
}

// MoveLayer переставляет слой id на позицию index.
func (c *Control) MoveLayer(ctx context.Context, id string, index int) error {
	_, err := c.edit(ctx, func(s *scene.Scene) error {
		if !s.MoveLayer(id, index) {
			return fmt.Errorf("%w: %s", scene.ErrLayerNotFound, id)
		}
		return nil
	})
	return err
}

// SetGlobals обновляет глобальные параметры сцены.
func (c *Control) SetGlobals(ctx context.Context, g scene.Globals) (*scene.Scene, error) {
	return c.edit(ctx, func(s *scene.Scene) error { return s.ApplyGlobals(g) })
}

// ImportPreset заменяет черновик пресетом. При ошибке черновик не меняется.
func (c *Control) ImportPreset(ctx context.Context, data []byte) (*scene.Scene, error) {
	s, err := scene.Import(data)
	if err != nil {
		return nil, err
	}
	if err := c.LoadScene(ctx, s); err != nil {
		return nil, err
	}
	c.log.Info("📥 Пресет импортирован: %d слоёв", s.Len())
	return s, nil
}

// LoadScene заменяет черновик уже санитизированной сценой (например, из
// библиотеки пресетов). Сцена копируется.
func (c *Control) LoadScene(ctx context.Context, s *scene.Scene) error {
	if s == nil {
		return fmt.Errorf("%w: nil scene", scene.ErrInvalidPreset)
	}
	s = s.Clone()
	return c.exec(ctx, func() {
		c.store.ReplaceDraft(s)
		c.changed()
	})
}

// ExportPreset сериализует текущий черновик.
func (c *Control) ExportPreset() ([]byte, error) {
	return scene.MarshalPreset(c.Draft())
}

// SelectTarget отправляет ожидающие правки прежней цели и переключается
// на id, загружая в черновик его текущее состояние.
func (c *Control) SelectTarget(ctx context.Context, id string) (*scene.Scene, error) {
	var (
		draft  *scene.Scene
		target string
	)
	err := c.exec(ctx, func() {
		c.flushPending()
		draft = c.store.SelectTarget(id)
		target = c.store.ActiveTarget()
		c.view.Store(draft)
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("🎯 Активная цель: %s", target)
	return draft, nil
}

// ActiveTarget активная цель.
func (c *Control) ActiveTarget() string {
	var target string
	if err := c.exec(context.Background(), func() { target = c.store.ActiveTarget() }); err != nil {
		return ""
	}
	return target
}

// Targets известные цели.
func (c *Control) Targets(ctx context.Context) ([]string, error) {
	var out []string
	err := c.exec(ctx, func() { out = c.store.Targets() })
	return out, err
}

// Overrides копия карты переопределений.
func (c *Control) Overrides(ctx context.Context) (map[string]*scene.Scene, error) {
	var out map[string]*scene.Scene
	err := c.exec(ctx, func() { out = c.store.Overrides() })
	return out, err
}

// ApplyToAll рассылает копию snap (nil: текущий черновик) всем целям одним
// LIVE_STATE{all}. Карта переопределений меняется только после успешной
// отправки; при ошибке остаётся прежней.
func (c *Control) ApplyToAll(ctx context.Context, snap *scene.Scene) error {
	if snap != nil {
		snap = snap.Clone()
	}
	var sendErr error
	err := c.exec(ctx, func() {
		sendErr = c.bulk(ctx, snap)
	})
	if err != nil {
		return err
	}
	return sendErr
}

// ResetAll рассылает сцену по умолчанию всем целям.
func (c *Control) ResetAll(ctx context.Context) error {
	return c.ApplyToAll(ctx, scene.Default())
}

// bulk выполняется в цикле целиком, между отправкой и фиксацией карты
// не вклинивается ни одно сообщение.
func (c *Control) bulk(ctx context.Context, snap *scene.Scene) error {
	if snap == nil {
		snap = c.store.Draft()
	}
	wasDirty := c.dirty
	c.debounce.Cancel()
	c.dirty = false

	ctx, span := tracer.Start(ctx, "sync.control.bulk")
	defer span.End()
	span.SetAttributes(attribute.Int("sync.layers", snap.Len()))

	commit := c.store.ReplaceAll(snap)
	if err := c.pub.send(ctx, LiveState{TargetID: store.TargetAll, Payload: snap}); err != nil {
		span.RecordError(err)
		if wasDirty {
			c.changed()
		}
		return err
	}
	commit()
	c.view.Store(c.store.Draft())
	c.log.Info("📡 LIVE_STATE -> all (%d layers)", snap.Len())
	return nil
}

// Flush немедленно отправляет ожидающие правки.
func (c *Control) Flush(ctx context.Context) error {
	return c.exec(ctx, c.flushPending)
}

// Draft текущий черновик (то, что рендерит управляющий экземпляр).
// Безопасен из любой горутины; снимок нельзя изменять.
func (c *Control) Draft() *scene.Scene { return c.view.Load() }

// Close отправляет ожидающие правки, отписывается и освобождает слот
// управляющего экземпляра.
func (c *Control) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = c.loop.call(context.Background(), func() {
		c.flushPending()
		if c.sub != nil {
			c.sub.Unsubscribe()
		}
	})
	c.debounce.Cancel()
	c.loop.stop()
	controlActive.Store(false)
	c.log.Info("🎛️ Control остановлен")
	return nil
}
