package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/annel0/lightstage/internal/eventbus"
	"github.com/annel0/lightstage/internal/logging"
)

// ErrNoTransport синхронизация отключена (транспорт none).
var ErrNoTransport = errors.New("sync: no transport configured")

var tracer = otel.Tracer("github.com/annel0/lightstage/internal/sync")

// publisher кодирует сообщения и отправляет их в канал. Номер seq растёт
// монотонно в пределах сессии source. Используется только из цикла
// координатора, поэтому без блокировок.
type publisher struct {
	bus     eventbus.EventBus
	channel string
	source  string
	codec   Codec
	timeout time.Duration
	metrics *Metrics
	log     *logging.Logger

	seq uint64
}

// send публикует сообщение. Ошибка транспорта возвращается вызывающему;
// повторной отправки нет (at-most-once).
func (p *publisher) send(ctx context.Context, msg Message) error {
	if p.bus == nil {
		return ErrNoTransport
	}

	ctx, span := tracer.Start(ctx, "sync.send")
	defer span.End()

	p.seq++
	meta := Meta{
		ID:     uuid.NewString(),
		Source: p.source,
		Seq:    p.seq,
		SentAt: time.Now().UTC(),
	}
	span.SetAttributes(
		attribute.String("sync.type", string(msg.Type())),
		attribute.String("sync.channel", p.channel),
		attribute.Int64("sync.seq", int64(meta.Seq)),
	)

	data, err := Encode(msg, meta, p.codec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return fmt.Errorf("encode %s: %w", msg.Type(), err)
	}

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.bus.Publish(pctx, p.channel, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish")
		p.log.Warn("publish %s error: %v", msg.Type(), err)
		return fmt.Errorf("publish %s: %w", msg.Type(), err)
	}

	p.metrics.messageSent(msg.Type())
	p.log.Trace("→ %s seq=%d size=%dB", msg.Type(), meta.Seq, len(data))
	return nil
}

// subscribe подписывает handler на канал; сообщения декодируются в
// горутине транспорта и передаются в on уже разобранными.
func (p *publisher) subscribe(ctx context.Context, on func(Message, Meta)) (eventbus.Subscription, error) {
	if p.bus == nil {
		return nil, ErrNoTransport
	}
	return p.bus.Subscribe(ctx, p.channel, func(_ context.Context, data []byte) {
		msg, meta, err := Decode(data, p.codec)
		if err != nil {
			p.metrics.messageIgnored("decode")
			p.log.Debug("dropped undecodable message: %v", err)
			return
		}
		if meta.Source != "" && meta.Source == p.source {
			p.metrics.messageIgnored("self")
			return
		}
		p.metrics.messageReceived(msg.Type())
		on(msg, meta)
	})
}
