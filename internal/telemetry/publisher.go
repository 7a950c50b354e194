package telemetry

import (
	"encoding/json"
	"log/slog"
	"reflect"
	"sync"

	"hft-engine/pkg/types"
)

// alertRingSize is how many recent alerts a newly connected /alerts client
// is replayed on connect.
const alertRingSize = 200

// Publisher owns the three telemetry topics and the dedup/ring-buffer
// bookkeeping above the raw Hub broadcast mechanism.
type Publisher struct {
	metrics *Hub
	risk    *Hub
	alerts  *Hub

	mu         sync.Mutex
	lastMetric *types.PerformanceMetrics
	lastRisk   *types.RiskSnapshot

	ring     [alertRingSize]types.Alert
	ringLen  int
	ringHead int

	logger *slog.Logger
}

func NewPublisher(logger *slog.Logger) *Publisher {
	logger = logger.With("component", "telemetry")
	return &Publisher{
		metrics: NewHub("metrics", logger),
		risk:    NewHub("risk", logger),
		alerts:  NewHub("alerts", logger),
		logger:  logger,
	}
}

// Run starts all three hub loops until stop is closed.
func (p *Publisher) Run(stop <-chan struct{}) {
	go p.metrics.Run(stop)
	go p.risk.Run(stop)
	go p.alerts.Run(stop)
}

// PublishMetrics broadcasts m to /metrics subscribers only if it differs
// from the last published value — performance metrics change on every
// engine cycle, and most of that churn is uninteresting at dashboard
// refresh rates.
func (p *Publisher) PublishMetrics(m types.PerformanceMetrics) {
	p.mu.Lock()
	changed := p.lastMetric == nil || !reflect.DeepEqual(*p.lastMetric, m)
	if changed {
		cp := m
		p.lastMetric = &cp
	}
	p.mu.Unlock()

	if changed {
		p.metrics.Publish(m)
	}
}

// PublishRisk broadcasts r to /risk subscribers only if it differs from
// the last published value.
func (p *Publisher) PublishRisk(r types.RiskSnapshot) {
	p.mu.Lock()
	changed := p.lastRisk == nil || !reflect.DeepEqual(*p.lastRisk, r)
	if changed {
		cp := r
		p.lastRisk = &cp
	}
	p.mu.Unlock()

	if changed {
		p.risk.Publish(r)
	}
}

// PublishAlert appends a to the replay ring (evicting the oldest entry
// once full) and broadcasts it unconditionally — alerts are append-only
// events, never deduplicated.
func (p *Publisher) PublishAlert(a types.Alert) {
	p.mu.Lock()
	p.ring[p.ringHead] = a
	p.ringHead = (p.ringHead + 1) % alertRingSize
	if p.ringLen < alertRingSize {
		p.ringLen++
	}
	p.mu.Unlock()

	p.alerts.Publish(a)
}

// RecentAlerts returns up to alertRingSize most recent alerts, oldest
// first, for backfilling a newly connected /alerts client.
func (p *Publisher) RecentAlerts() []types.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.Alert, p.ringLen)
	start := (p.ringHead - p.ringLen + alertRingSize) % alertRingSize
	for i := 0; i < p.ringLen; i++ {
		out[i] = p.ring[(start+i)%alertRingSize]
	}
	return out
}

// DroppedCounts returns the per-topic drop counters, for the /health route.
func (p *Publisher) DroppedCounts() map[string]uint64 {
	return map[string]uint64{
		"metrics": p.metrics.Dropped(),
		"risk":    p.risk.Dropped(),
		"alerts":  p.alerts.Dropped(),
	}
}

func (p *Publisher) marshalRecentAlerts() []byte {
	data, err := json.Marshal(p.RecentAlerts())
	if err != nil {
		return []byte("[]")
	}
	return data
}

// marshalLastMetric backfills a newly connected /metrics subscriber with
// the most recently published PerformanceMetrics (spec §4.8: "Subscribers
// receive the most recent value on connect"). Returns nil before the
// first publish, so the caller sends nothing rather than an empty frame.
func (p *Publisher) marshalLastMetric() []byte {
	p.mu.Lock()
	last := p.lastMetric
	p.mu.Unlock()
	if last == nil {
		return nil
	}
	data, err := json.Marshal(last)
	if err != nil {
		return nil
	}
	return data
}

// marshalLastRisk is marshalLastMetric's /risk counterpart.
func (p *Publisher) marshalLastRisk() []byte {
	p.mu.Lock()
	last := p.lastRisk
	p.mu.Unlock()
	if last == nil {
		return nil
	}
	data, err := json.Marshal(last)
	if err != nil {
		return nil
	}
	return data
}
