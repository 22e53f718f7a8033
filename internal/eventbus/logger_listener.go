package eventbus

import (
	"context"

	"github.com/annel0/lightstage/internal/logging"
)

// StartLoggingListener подписывается на топик и пишет каждое сообщение
// в лог шины на уровне DEBUG. Функция неблокирующая.
func StartLoggingListener(ctx context.Context, bus EventBus, topic string) (Subscription, error) {
	log := logging.GetBusLogger()
	sub, err := bus.Subscribe(ctx, topic, func(ctx context.Context, data []byte) {
		log.Debug("[EventBus] %s size=%dB", topic, len(data))
	})
	if err != nil {
		return nil, err
	}
	log.Info("🪵 LoggingListener: подписка на %s активирована", topic)
	return sub, nil
}
