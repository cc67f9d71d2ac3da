package ankylogate

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsOptions configures the Prometheus collectors.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// Metrics counts decisions and implements EventPublisher.
type Metrics struct {
	mu         sync.Mutex
	sizers     map[Policy]Sizer
	reg        prometheus.Registerer
	namespace  string
	Decisions  *prometheus.CounterVec
	RetryAfter *prometheus.HistogramVec
}

func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "ankylogate"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300}
	}

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Admission decisions partitioned by policy and action.",
	}, []string{"policy", "action"})
	if err := reg.Register(decisions); err != nil {
		existing, regErr := alreadyRegistered[*prometheus.CounterVec](err)
		if regErr != nil {
			return nil, regErr
		}
		decisions = existing
	}

	retryAfter := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retry_after_seconds",
		Help:      "Wait reported to denied identities.",
		Buckets:   buckets,
	}, []string{"policy"})
	if err := reg.Register(retryAfter); err != nil {
		existing, regErr := alreadyRegistered[*prometheus.HistogramVec](err)
		if regErr != nil {
			return nil, regErr
		}
		retryAfter = existing
	}

	return &Metrics{
		sizers:     make(map[Policy]Sizer),
		reg:        reg,
		namespace:  namespace,
		Decisions:  decisions,
		RetryAfter: retryAfter,
	}, nil
}

func alreadyRegistered[C prometheus.Collector](err error) (C, error) {
	var zero C
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return zero, err
	}
	existing, ok := already.ExistingCollector.(C)
	if !ok {
		return zero, err
	}
	return existing, nil
}

func (m *Metrics) Publish(event RateLimitEvent) {
	policy := string(event.Policy)
	m.Decisions.WithLabelValues(policy, event.Action).Inc()
	if event.Action == ActionDenied {
		wait := time.Duration(event.RetryAfterMs) * time.Millisecond
		m.RetryAfter.WithLabelValues(policy).Observe(wait.Seconds())
	}
}

// WatchIdentities exports the number of identities holding state in s.
// Watching the same policy again replaces the previous Sizer.
func (m *Metrics) WatchIdentities(policy Policy, s Sizer) error {
	m.mu.Lock()
	_, watched := m.sizers[policy]
	m.sizers[policy] = s
	m.mu.Unlock()
	if watched {
		return nil
	}

	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Name:        "tracked_identities",
		Help:        "Identities currently holding limiter state.",
		ConstLabels: prometheus.Labels{"policy": string(policy)},
	}, func() float64 {
		return float64(m.identities(policy))
	})
	if err := m.reg.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		m.mu.Lock()
		delete(m.sizers, policy)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Metrics) identities(policy Policy) int {
	m.mu.Lock()
	s := m.sizers[policy]
	m.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.Len()
}
