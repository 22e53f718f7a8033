package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/annel0/lightstage/internal/logging"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
	peerBuffer = 256
)

// ErrNotConnected WebSocket-клиент сейчас без соединения.
var ErrNotConnected = errors.New("eventbus: websocket not connected")

// Frame единица обмена по WebSocket.
type Frame struct {
	Topic string `json:"topic"`
	Data  []byte `json:"data"`
}

//================ Relay (server side) =================//

// Relay WebSocket-хаб: принимает пиров на HTTP-эндпоинте, пересылает
// каждый кадр всем остальным пирам и локальным подписчикам. Для процесса,
// который его держит, Relay сам является EventBus.
type Relay struct {
	local    *MemoryBus
	upgrader websocket.Upgrader
	log      *logging.Logger

	mu     sync.RWMutex
	peers  map[*peer]struct{}
	closed bool

	dropped uint64
}

type peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewRelay создаёт хаб; capacity размер очереди локального подписчика.
func NewRelay(capacity int) *Relay {
	return &Relay{
		local: NewMemoryBus(capacity),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:   logging.GetBusLogger(),
		peers: make(map[*peer]struct{}),
	}
}

// ServeHTTP апгрейдит соединение и регистрирует пира.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	p := &peer{id: uuid.NewString(), conn: conn, send: make(chan []byte, peerBuffer)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return
	}
	r.peers[p] = struct{}{}
	r.mu.Unlock()
	r.log.Info("🔗 Relay peer connected: %s (%s)", p.id, req.RemoteAddr)

	go r.writePump(p)
	go r.readPump(p)
}

func (r *Relay) unregister(p *peer) {
	r.mu.Lock()
	if _, ok := r.peers[p]; ok {
		delete(r.peers, p)
		p.once.Do(func() { close(p.send) })
	}
	r.mu.Unlock()
}

func (r *Relay) readPump(p *peer) {
	defer func() {
		r.unregister(p)
		_ = p.conn.Close()
		r.log.Info("Relay peer disconnected: %s", p.id)
	}()

	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.log.Warn("Relay read error from %s: %v", p.id, err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Topic == "" {
			atomic.AddUint64(&r.dropped, 1)
			r.log.Debug("Relay: malformed frame from %s dropped", p.id)
			continue
		}
		_ = r.local.Publish(context.Background(), f.Topic, f.Data)
		r.broadcast(p, raw)
	}
}

func (r *Relay) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				r.log.Warn("Relay write error to %s: %v", p.id, err)
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcast ставит кадр в очереди всех пиров, кроме from.
// Переполненная очередь медленного пира отбрасывает кадр.
func (r *Relay) broadcast(from *peer, raw []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for p := range r.peers {
		if p == from {
			continue
		}
		select {
		case p.send <- raw:
		default:
			atomic.AddUint64(&r.dropped, 1)
		}
	}
}

// Publish доставляет сообщение локальным подписчикам и всем пирам.
func (r *Relay) Publish(ctx context.Context, topic string, data []byte) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	raw, err := json.Marshal(Frame{Topic: topic, Data: data})
	if err != nil {
		return fmt.Errorf("relay encode: %w", err)
	}
	if err := r.local.Publish(ctx, topic, data); err != nil {
		return err
	}
	r.broadcast(nil, raw)
	return nil
}

func (r *Relay) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	return r.local.Subscribe(ctx, topic, h)
}

func (r *Relay) Metrics() Stats {
	s := r.local.Metrics()
	s.Dropped += atomic.LoadUint64(&r.dropped)
	return s
}

// Peers число подключённых пиров.
func (r *Relay) Peers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Close отключает всех пиров и локальных подписчиков.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for p := range r.peers {
		delete(r.peers, p)
		p.once.Do(func() { close(p.send) })
	}
	r.mu.Unlock()
	return r.local.Close()
}

//================ WebSocket client =================//

// WSClient EventBus поверх соединения с Relay. При обрыве клиент
// переподключается с экспоненциальной задержкой; сообщения, отправленные
// без соединения, теряются (ErrNotConnected).
type WSClient struct {
	url   string
	local *MemoryBus
	log   *logging.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	published uint64
	dropped   uint64
}

// DialWebSocket подключается к Relay по url (ws://host:port/ws/live).
func DialWebSocket(ctx context.Context, url string, capacity int) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &WSClient{
		url:    url,
		local:  NewMemoryBus(capacity),
		log:    logging.GetBusLogger(),
		conn:   conn,
		ctx:    cctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.log.Info("🔗 WebSocket bus connected: %s", url)
	go c.run(conn)
	return c, nil
}

// run читает кадры и переподключается до Close.
func (c *WSClient) run(conn *websocket.Conn) {
	defer close(c.done)
	for {
		c.readLoop(conn)
		c.setConn(nil)
		if c.ctx.Err() != nil {
			return
		}

		next, err := c.reconnect()
		if err != nil || !c.setConn(next) {
			return
		}
		conn = next
	}
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Warn("WebSocket read error: %v", err)
			}
			_ = conn.Close()
			return
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Topic == "" {
			atomic.AddUint64(&c.dropped, 1)
			continue
		}
		_ = c.local.Publish(c.ctx, f.Topic, f.Data)
	}
}

func (c *WSClient) reconnect() (*websocket.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	var conn *websocket.Conn
	err := backoff.RetryNotify(func() error {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(c.ctx, c.url, nil)
		return err
	}, backoff.WithContext(bo, c.ctx), func(err error, d time.Duration) {
		c.log.Debug("WebSocket reconnect in %v: %v", d, err)
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("🔗 WebSocket bus reconnected: %s", c.url)
	return conn, nil
}

// setConn публикует соединение для Publish. После Close новое
// соединение сразу закрывается и возвращается false.
func (c *WSClient) setConn(conn *websocket.Conn) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if conn != nil && c.ctx.Err() != nil {
		_ = conn.Close()
		c.conn = nil
		return false
	}
	c.conn = conn
	return true
}

// Connected есть ли сейчас соединение.
func (c *WSClient) Connected() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn != nil
}

// Publish отправляет кадр в Relay. Локальные подписчики получат
// сообщение только если Relay перешлёт его обратно от другого пира.
func (c *WSClient) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	raw, err := json.Marshal(Frame{Topic: topic, Data: data})
	if err != nil {
		return fmt.Errorf("websocket encode: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		atomic.AddUint64(&c.dropped, 1)
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		atomic.AddUint64(&c.dropped, 1)
		return fmt.Errorf("websocket write: %w", err)
	}
	atomic.AddUint64(&c.published, 1)
	return nil
}

func (c *WSClient) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	return c.local.Subscribe(ctx, topic, h)
}

func (c *WSClient) Metrics() Stats {
	s := c.local.Metrics()
	s.Published = atomic.LoadUint64(&c.published)
	s.Dropped += atomic.LoadUint64(&c.dropped)
	return s
}

// Close закрывает соединение и останавливает переподключение.
func (c *WSClient) Close() error {
	if c.ctx.Err() != nil {
		return nil
	}
	c.cancel()

	c.writeMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
	c.writeMu.Unlock()

	<-c.done
	return c.local.Close()
}
