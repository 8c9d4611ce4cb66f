package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"dantemarket/core/events"
)

type MarketMetrics struct {
	eventsEmitted *prometheus.CounterVec
	openAuctions  prometheus.Gauge
	rpcRequests   *prometheus.CounterVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_events_total",
				Help: "Count of marketplace events emitted by type.",
			}, []string{"type"}),
			openAuctions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "market_open_auctions",
				Help: "Number of auctions currently open for bidding.",
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_rpc_requests_total",
				Help: "Count of JSON-RPC requests served by method and outcome.",
			}, []string{"method", "outcome"}),
		}
		prometheus.MustRegister(
			marketRegistry.eventsEmitted,
			marketRegistry.openAuctions,
			marketRegistry.rpcRequests,
		)
	})
	return marketRegistry
}

func (m *MarketMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.eventsEmitted.WithLabelValues(eventType).Inc()
}

func (m *MarketMetrics) SetOpenAuctions(count int) {
	if m == nil {
		return
	}
	m.openAuctions.Set(float64(count))
}

func (m *MarketMetrics) ObserveRPCRequest(method, outcome string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
}

// Emitter adapts the metrics registry to the event bus so every emitted event
// bumps its per-type counter.
type Emitter struct {
	metrics *MarketMetrics
}

// NewEmitter returns an event sink backed by the shared registry.
func NewEmitter() *Emitter {
	return &Emitter{metrics: Market()}
}

// Emit implements the events.Emitter interface.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	e.metrics.ObserveEvent(evt.EventType())
}
