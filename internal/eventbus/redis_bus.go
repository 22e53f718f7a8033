package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/lightstage/internal/logging"
)

// RedisConfig параметры подключения к Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisBus реализует EventBus поверх Redis Pub/Sub. Pub/Sub не хранит
// сообщения: подписчик, которого не было в момент публикации, его не получит.
type RedisBus struct {
	client *redis.Client

	mu     sync.Mutex
	subs   map[*redisSub]struct{}
	closed bool

	published uint64
	consumed  uint64
	dropped   uint64
}

// NewRedisBus подключается к Redis и проверяет соединение.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetBusLogger().Info("🔌 Redis bus connected: %s", cfg.Addr)
	return &RedisBus{client: rdb, subs: make(map[*redisSub]struct{})}, nil
}

func (rb *RedisBus) Publish(ctx context.Context, topic string, data []byte) error {
	rb.mu.Lock()
	closed := rb.closed
	rb.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := rb.client.Publish(ctx, topic, data).Err(); err != nil {
		atomic.AddUint64(&rb.dropped, 1)
		return fmt.Errorf("redis publish: %w", err)
	}
	atomic.AddUint64(&rb.published, 1)
	return nil
}

// Subscribe открывает PubSub на канал topic и ждёт подтверждения
// подписки, чтобы последующие Publish гарантированно дошли.
func (rb *RedisBus) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	rb.mu.Lock()
	if rb.closed {
		rb.mu.Unlock()
		return nil, ErrClosed
	}
	rb.mu.Unlock()

	ps := rb.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	sub := &redisSub{bus: rb, ps: ps, cancel: cancel}
	rb.mu.Lock()
	rb.subs[sub] = struct{}{}
	rb.mu.Unlock()

	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-cctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h(cctx, []byte(msg.Payload))
				atomic.AddUint64(&rb.consumed, 1)
			}
		}
	}()
	return sub, nil
}

func (rb *RedisBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&rb.published),
		Consumed:  atomic.LoadUint64(&rb.consumed),
		Dropped:   atomic.LoadUint64(&rb.dropped),
	}
}

// Close закрывает все подписки и клиент.
func (rb *RedisBus) Close() error {
	rb.mu.Lock()
	if rb.closed {
		rb.mu.Unlock()
		return nil
	}
	rb.closed = true
	subs := rb.subs
	rb.subs = make(map[*redisSub]struct{})
	rb.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
	return rb.client.Close()
}

type redisSub struct {
	bus    *RedisBus
	ps     *redis.PubSub
	cancel context.CancelFunc
	once   sync.Once
}

func (s *redisSub) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.close()
}

func (s *redisSub) close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.ps.Close()
	})
}
