package sync

import "github.com/prometheus/client_golang/prometheus"

// Metrics Prometheus-метрики синхронизации. Все методы безопасны для nil.
type Metrics struct {
	sent      *prometheus.CounterVec
	received  *prometheus.CounterVec
	ignored   *prometheus.CounterVec
	coalesced prometheus.Counter
	resyncs   prometheus.Counter
	retries   prometheus.Counter
	adoptions prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil: без регистрации).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lightstage",
			Subsystem: "sync",
			Name:      "messages_sent_total",
			Help:      "Отправленные сообщения по типу.",
		}, []string{"type"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lightstage",
			Subsystem: "sync",
			Name:      "messages_received_total",
			Help:      "Полученные сообщения по типу.",
		}, []string{"type"}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lightstage",
			Subsystem: "sync",
			Name:      "messages_ignored_total",
			Help:      "Отброшенные сообщения по причине.",
		}, []string{"reason"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightstage",
			Subsystem: "sync",
			Name:      "debounce_coalesced_total",
			Help:      "Правки, поглощённые дебаунсом без отдельной отправки.",
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightstage",
			Subsystem: "sync",
			Name:      "resync_responses_total",
			Help:      "Ответы LIVE_STATE на REQUEST_LIVE.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightstage",
			Subsystem: "sync",
			Name:      "request_retries_total",
			Help:      "Повторные REQUEST_LIVE до первого принятого состояния.",
		}),
		adoptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightstage",
			Subsystem: "sync",
			Name:      "adoptions_total",
			Help:      "Принятые экраном снимки LIVE_STATE.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.sent, m.received, m.ignored, m.coalesced, m.resyncs, m.retries, m.adoptions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) messageSent(t MessageType) {
	if m != nil {
		m.sent.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) messageReceived(t MessageType) {
	if m != nil {
		m.received.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) messageIgnored(reason string) {
	if m != nil {
		m.ignored.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) editCoalesced() {
	if m != nil {
		m.coalesced.Inc()
	}
}

func (m *Metrics) resyncAnswered() {
	if m != nil {
		m.resyncs.Inc()
	}
}

func (m *Metrics) requestRetried() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) snapshotAdopted() {
	if m != nil {
		m.adoptions.Inc()
	}
}
