package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/simaogato/topvoter-backend/internal/domain"
)

const namespace = "topvoter"

// Metrics holds the service collectors
type Metrics struct {
	rpcRequests     *prometheus.CounterVec
	rpcDuration     *prometheus.HistogramVec
	rejections      *prometheus.CounterVec
	roundsFinalized prometheus.Counter
	currentRound    prometheus.Gauge
	publishes       *prometheus.CounterVec
}

// New registers the collectors on registry
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		rpcRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "gRPC requests by method and status code",
		}, []string{"method", "code"}),
		rpcDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "gRPC request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected operations by reason",
		}, []string{"reason"}),
		roundsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_finalized_total",
			Help:      "Rounds finalized since process start",
		}),
		currentRound: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_round",
			Help:      "Round currently accepting views",
		}),
		publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_publishes_total",
			Help:      "Round result fan-out attempts by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveRPC records one finished call
// An empty reason means the call was not rejected
func (m *Metrics) ObserveRPC(method, code, reason string, elapsed time.Duration) {
	m.rpcRequests.WithLabelValues(method, code).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	if reason != "" {
		m.rejections.WithLabelValues(reason).Inc()
	}
}

// ObserveFinalized records a finalized round and the round that opened after it
func (m *Metrics) ObserveFinalized(result *domain.RoundResult) {
	m.roundsFinalized.Inc()
	m.currentRound.Set(float64(result.Round + 1))
}

// SetCurrentRound sets the current round gauge
func (m *Metrics) SetCurrentRound(round uint64) {
	m.currentRound.Set(float64(round))
}

// InstrumentPublisher counts the outcome of every Publish call on next
func (m *Metrics) InstrumentPublisher(next domain.ResultPublisher) domain.ResultPublisher {
	return &instrumentedPublisher{next: next, publishes: m.publishes}
}

type instrumentedPublisher struct {
	next      domain.ResultPublisher
	publishes *prometheus.CounterVec
}

func (p *instrumentedPublisher) Publish(ctx context.Context, result *domain.RoundResult) error {
	if err := p.next.Publish(ctx, result); err != nil {
		p.publishes.WithLabelValues("failed").Inc()
		return err
	}
	p.publishes.WithLabelValues("ok").Inc()
	return nil
}
