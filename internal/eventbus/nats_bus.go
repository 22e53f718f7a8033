package eventbus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/annel0/lightstage/internal/logging"
)

// NATSConfig параметры подключения к NATS.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NATSBus реализует EventBus поверх core NATS pub/sub. В отличие от
// JetStream, core NATS не хранит сообщения, что соответствует
// at-most-once доставке живого состояния.
type NATSBus struct {
	nc        *nats.Conn
	published uint64
	consumed  uint64
	dropped   uint64
}

// NewNATSBus подключается к серверу NATS.
// url: nats://127.0.0.1:4222.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "lightstage"
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	log := logging.GetBusLogger()
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Info("🔌 NATS bus connected: %s", cfg.URL)
	return &NATSBus{nc: nc}, nil
}

// Publish отправляет сообщение в subject topic.
func (nb *NATSBus) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if nb.nc.IsClosed() {
		return ErrClosed
	}
	if err := nb.nc.Publish(topic, data); err != nil {
		atomic.AddUint64(&nb.dropped, 1)
		return fmt.Errorf("nats publish: %w", err)
	}
	atomic.AddUint64(&nb.published, 1)
	return nil
}

// Subscribe подписывается на subject. NATS вызывает обработчик одной
// подписки последовательно, порядок отправителя сохраняется.
func (nb *NATSBus) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	if nb.nc.IsClosed() {
		return nil, ErrClosed
	}
	natSub, err := nb.nc.Subscribe(topic, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		h(ctx, msg.Data)
		atomic.AddUint64(&nb.consumed, 1)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	return &natsSub{natSub}, nil
}

// natsSub обёртка вокруг *nats.Subscription чтобы удовлетворить наш интерфейс.
type natsSub struct {
	s *nats.Subscription
}

func (n *natsSub) Unsubscribe() {
	_ = n.s.Unsubscribe()
}

// Metrics возвращает текущие метрики.
func (nb *NATSBus) Metrics() Stats {
	inflight := 0
	if !nb.nc.IsClosed() {
		if n, err := nb.nc.Buffered(); err == nil {
			inflight = n
		}
	}
	return Stats{
		Published: atomic.LoadUint64(&nb.published),
		Consumed:  atomic.LoadUint64(&nb.consumed),
		Dropped:   atomic.LoadUint64(&nb.dropped),
		InFlight:  inflight,
	}
}

// Close дренирует подписки и закрывает соединение.
func (nb *NATSBus) Close() error {
	if nb.nc.IsClosed() {
		return nil
	}
	if err := nb.nc.Drain(); err != nil {
		nb.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
