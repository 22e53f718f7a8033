package eventbus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsExporter периодически переносит Stats шины в Prometheus.
// Экспортер не делает предположений о конкретной реализации шины,
// он опирается только на EventBus.Metrics().
type MetricsExporter struct {
	bus      EventBus
	interval time.Duration
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	published prometheus.Counter
	consumed  prometheus.Counter
	dropped   prometheus.Counter
	inflight  prometheus.Gauge
}

// NewMetricsExporter создаёт экспортер и регистрирует метрики в reg.
// transport попадает в константную метку (memory, nats, redis, websocket).
func NewMetricsExporter(bus EventBus, reg prometheus.Registerer, transport string) (*MetricsExporter, error) {
	labels := prometheus.Labels{"transport": transport}
	me := &MetricsExporter{
		bus:      bus,
		interval: time.Second,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "lightstage",
			Subsystem:   "eventbus",
			Name:        "messages_published_total",
			Help:        "Общее число опубликованных сообщений.",
			ConstLabels: labels,
		}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "lightstage",
			Subsystem:   "eventbus",
			Name:        "messages_consumed_total",
			Help:        "Общее число доставленных сообщений подписчикам.",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "lightstage",
			Subsystem:   "eventbus",
			Name:        "messages_dropped_total",
			Help:        "Сообщений, отброшенных из-за ошибок или переполнения очередей.",
			ConstLabels: labels,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "lightstage",
			Subsystem:   "eventbus",
			Name:        "messages_inflight",
			Help:        "Количество сообщений в очередях (не доставленных).",
			ConstLabels: labels,
		}),
	}

	for _, c := range []prometheus.Collector{me.published, me.consumed, me.dropped, me.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return me, nil
}

// Start запускает периодическое обновление. Неблокирующий.
func (m *MetricsExporter) Start(interval time.Duration) {
	if interval > 0 {
		m.interval = interval
	}
	go m.loop()
}

// Stop останавливает обновление метрик.
func (m *MetricsExporter) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
		<-m.done
	})
}

func (m *MetricsExporter) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer close(m.done)

	// Для коррекции Counter нужно хранить прошлое значение и прибавлять дельту.
	var prev Stats

	for {
		select {
		case <-ticker.C:
			prev = m.collect(prev)
		case <-m.quit:
			m.collect(prev)
			return
		}
	}
}

// collect переносит приращения с прошлого снимка.
func (m *MetricsExporter) collect(prev Stats) Stats {
	stats := m.bus.Metrics()

	if stats.Published > prev.Published {
		m.published.Add(float64(stats.Published - prev.Published))
	}
	if stats.Consumed > prev.Consumed {
		m.consumed.Add(float64(stats.Consumed - prev.Consumed))
	}
	if stats.Dropped > prev.Dropped {
		m.dropped.Add(float64(stats.Dropped - prev.Dropped))
	}
	m.inflight.Set(float64(stats.InFlight))
	return stats
}
