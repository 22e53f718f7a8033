package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/lightstage/internal/eventbus"
	"github.com/annel0/lightstage/internal/logging"
	"github.com/annel0/lightstage/internal/scene"
	"github.com/annel0/lightstage/internal/schedule"
	"github.com/annel0/lightstage/internal/store"
)

// RetryConfig повтор REQUEST_LIVE до первого принятого LIVE_STATE.
type RetryConfig struct {
	Initial    time.Duration
	Max        time.Duration
	MaxElapsed time.Duration
	Multiplier float64
	Jitter     float64
	Disabled   bool
}

// DefaultRetry 500ms, x2, не более 5s между попытками, 30s всего.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		Initial:    500 * time.Millisecond,
		Max:        5 * time.Second,
		MaxElapsed: 30 * time.Second,
		Multiplier: 2,
	}
}

func (r RetryConfig) backoff(clock backoff.Clock) *backoff.ExponentialBackOff {
	def := DefaultRetry()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = pick(r.Initial, def.Initial)
	bo.MaxInterval = pick(r.Max, def.Max)
	bo.MaxElapsedTime = pick(r.MaxElapsed, def.MaxElapsed)
	bo.Multiplier = def.Multiplier
	if r.Multiplier > 1 {
		bo.Multiplier = r.Multiplier
	}
	bo.RandomizationFactor = r.Jitter
	bo.Clock = clock
	bo.Reset()
	return bo
}

func pick(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// DisplayConfig параметры экрана.
type DisplayConfig struct {
	Channel        string
	TargetID       string
	SessionID      string
	PublishTimeout time.Duration
	Codec          Codec
	Retry          RetryConfig
}

// Display экран: запрашивает состояние при старте и принимает
// адресованные ему LIVE_STATE.
type Display struct {
	cfg     DisplayConfig
	store   *store.DisplayStore
	pub     *publisher
	sched   schedule.Scheduler
	metrics *Metrics
	log     *logging.Logger
	loop    *loop

	sub      eventbus.Subscription
	retry    *backoff.ExponentialBackOff
	retryTmr schedule.Timer
	onChange []func(*scene.Scene)

	view    atomic.Pointer[scene.Scene]
	adopted atomic.Bool
	started atomic.Bool
	closed  atomic.Bool
}

// NewDisplay создаёт экран. Пустой TargetID: экран без идентификатора,
// принимает только широковещательные снимки.
func NewDisplay(cfg DisplayConfig, bus eventbus.EventBus, sched schedule.Scheduler, metrics *Metrics) *Display {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec()
	}
	if sched == nil {
		sched = schedule.Real()
	}

	log := logging.GetSyncLogger()
	d := &Display{
		cfg:     cfg,
		store:   store.NewDisplayStore(cfg.TargetID),
		sched:   sched,
		metrics: metrics,
		log:     log,
		loop:    newLoop(256),
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
	d.view.Store(d.store.Rendered())
	go d.loop.run()
	return d
}

// OnChange регистрирует обработчик, вызываемый из цикла после принятия
// нового снимка. Обработчик не должен блокироваться.
func (d *Display) OnChange(fn func(*scene.Scene)) {
	_ = d.loop.call(context.Background(), func() { d.onChange = append(d.onChange, fn) })
}

// Start подписывается на канал и отправляет REQUEST_LIVE (свой id или
// "all"), затем повторяет запрос по экспоненте до первого принятого
// LIVE_STATE.
func (d *Display) Start(ctx context.Context) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if d.pub.bus == nil {
		return ErrNoTransport
	}
	if !d.started.CompareAndSwap(false, true) {
		return nil
	}

	sub, err := d.pub.subscribe(ctx, func(msg Message, meta Meta) {
		d.loop.post(func() { d.handle(msg, meta) })
	})
	if err != nil {
		d.started.Store(false)
		return fmt.Errorf("display subscribe: %w", err)
	}

	var sendErr error
	err = d.loop.call(ctx, func() {
		d.sub = sub
		sendErr = d.request(ctx)
		if !d.cfg.Retry.Disabled {
			d.retry = d.cfg.Retry.backoff(d.sched)
			d.scheduleRetry()
		}
	})
	if err != nil {
		sub.Unsubscribe()
		return err
	}
	d.log.Info("🖥️ Display запущен: target=%s channel=%s", d.store.RequestTarget(), d.cfg.Channel)
	if sendErr != nil {
		d.log.Warn("REQUEST_LIVE не отправлен, будет повтор: %v", sendErr)
	}
	return nil
}

func (d *Display) request(ctx context.Context) error {
	return d.pub.send(ctx, RequestLive{TargetID: d.store.RequestTarget()})
}

// scheduleRetry планирует следующую попытку; выполняется в цикле.
func (d *Display) scheduleRetry() {
	if d.retry == nil || d.store.Adopted() {
		return
	}
	next := d.retry.NextBackOff()
	if next == backoff.Stop {
		d.log.Warn("⚠️ LIVE_STATE не получен, повторы REQUEST_LIVE прекращены")
		d.retry = nil
		return
	}
	d.retryTmr = d.sched.AfterFunc(next, func() { d.loop.post(d.retryRequest) })
}

func (d *Display) retryRequest() {
	d.retryTmr = nil
	if d.retry == nil || d.store.Adopted() {
		return
	}
	d.metrics.requestRetried()
	d.log.Debug("повтор REQUEST_LIVE %s", d.store.RequestTarget())
	_ = d.request(context.Background())
	d.scheduleRetry()
}

func (d *Display) stopRetry() {
	d.retry = nil
	if d.retryTmr != nil {
		d.retryTmr.Stop()
		d.retryTmr = nil
	}
}

// handle выполняется в цикле.
func (d *Display) handle(msg Message, meta Meta) {
	m, ok := msg.(LiveState)
	if !ok {
		// REQUEST_LIVE других экранов
		d.metrics.messageIgnored("role")
		return
	}
	if !d.store.Accepts(m.TargetID) {
		d.metrics.messageIgnored("target")
		return
	}

	_, span := tracer.Start(context.Background(), "sync.display.adopt")
	defer span.End()
	span.SetAttributes(
		attribute.String("sync.target", m.TargetID),
		attribute.String("sync.source", meta.Source),
		attribute.Int64("sync.seq", int64(meta.Seq)),
	)

	if !d.store.Adopt(meta.Source, meta.Seq, m.Payload) {
		d.metrics.messageIgnored("stale")
		return
	}
	d.stopRetry()
	rendered := d.store.Rendered()
	d.view.Store(rendered)
	d.adopted.Store(true)
	d.metrics.snapshotAdopted()
	d.log.Debug("LIVE_STATE %s принят: %d слоёв (seq=%d)", m.TargetID, rendered.Len(), meta.Seq)

	for _, fn := range d.onChange {
		fn(rendered)
	}
}

// Rendered текущий отображаемый снимок. Безопасен из любой горутины.
func (d *Display) Rendered() *scene.Scene { return d.view.Load() }

// Adopted принят ли хотя бы один LIVE_STATE.
func (d *Display) Adopted() bool { return d.adopted.Load() }

// TargetID идентификатор экрана.
func (d *Display) TargetID() string { return d.store.TargetID() }

// Close останавливает повторы и отписывается.
func (d *Display) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = d.loop.call(context.Background(), func() {
		d.stopRetry()
		if d.sub != nil {
			d.sub.Unsubscribe()
		}
	})
	d.loop.stop()
	d.log.Info("🖥️ Display остановлен")
	return nil
}
