package eventbus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed шина закрыта.
var ErrClosed = errors.New("eventbus: closed")

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет сообщения топика. data нельзя изменять.
type Handler func(ctx context.Context, data []byte)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus абстракция транспорта синхронизации.
//
// Доставка at-most-once без гарантий порядка между разными отправителями;
// сообщения одного отправителя приходят каждому подписчику в порядке
// отправки. Publish не блокируется на медленных подписчиках.
type EventBus interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

//================ In-Memory implementation =================//

// MemoryBus in-process шина. У каждого подписчика своя упорядоченная
// очередь и своя горутина-обработчик, поэтому порядок одного
// отправителя сохраняется, а медленный подписчик не тормозит остальных.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	stats       Stats
	capacity    int
	closed      bool
}

type subscriber struct {
	topic   string
	handler Handler
	queue   chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus создаёт in-memory шину; capacity размер очереди подписчика.
func NewMemoryBus(capacity int) *MemoryBus {
	if capacity <= 0 {
		capacity = 64
	}
	return &MemoryBus{
		subscribers: make(map[int]*subscriber),
		capacity:    capacity,
	}
}

// Publish раскладывает сообщение по очередям подписчиков топика.
// Переполненная очередь отбрасывает сообщение (учитывается в Dropped).
func (mb *MemoryBus) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mb.mu.RLock()
	if mb.closed {
		mb.mu.RUnlock()
		return ErrClosed
	}
	var dropped uint64
	for _, sub := range mb.subscribers {
		if sub.topic != topic {
			continue
		}
		select {
		case sub.queue <- data:
		default:
			dropped++
		}
	}
	mb.mu.RUnlock()

	mb.mu.Lock()
	mb.stats.Published++
	mb.stats.Dropped += dropped
	mb.mu.Unlock()
	return nil
}

func (mb *MemoryBus) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return nil, ErrClosed
	}

	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	sub := &subscriber{
		topic:   topic,
		handler: h,
		queue:   make(chan []byte, mb.capacity),
		ctx:     cctx,
		cancel:  cancel,
	}
	mb.subscribers[id] = sub
	go mb.dispatch(sub)

	return &memSub{bus: mb, id: id}, nil
}

// dispatch доставляет очередь подписчика по одному сообщению.
func (mb *MemoryBus) dispatch(sub *subscriber) {
	for {
		select {
		case <-sub.ctx.Done():
			return
		case data := <-sub.queue:
			sub.handler(sub.ctx, data)
			mb.mu.Lock()
			mb.stats.Consumed++
			mb.mu.Unlock()
		}
	}
}

func (mb *MemoryBus) Metrics() Stats {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	s := mb.stats
	s.InFlight = 0
	for _, sub := range mb.subscribers {
		s.InFlight += len(sub.queue)
	}
	return s
}

// Close отписывает всех подписчиков. Повторный вызов безопасен.
func (mb *MemoryBus) Close() error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return nil
	}
	mb.closed = true
	subs := mb.subscribers
	mb.subscribers = make(map[int]*subscriber)
	mb.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	return nil
}

type memSub struct {
	bus  *MemoryBus
	id   int
	once sync.Once
}

func (s *memSub) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if sub, ok := s.bus.subscribers[s.id]; ok {
			sub.cancel()
			delete(s.bus.subscribers, s.id)
		}
		s.bus.mu.Unlock()
	})
}
