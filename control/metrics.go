// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Counter registry for router/executor telemetry. Counters land in an
// in-memory go-metrics sink so tests and probes can read them back.

package control

import (
	"time"

	metrics "github.com/hashicorp/go-metrics"
)

// Well-known counter names incremented by the router and executor.
const (
	CtrFramesSent     = "frames_sent"
	CtrFramesReceived = "frames_received"
	CtrFramesForward  = "frames_forwarded"
	CtrAcksSent       = "acks_sent"
	CtrBroadcasts     = "broadcasts"
	CtrPeerShutdowns  = "peer_shutdowns"
	CtrUrgentDrains   = "urgent_drains"
	CtrForks          = "forks"
)

// MetricsRegistry wraps a go-metrics instance with an inmem sink.
type MetricsRegistry struct {
	sink *metrics.InmemSink
	m    *metrics.Metrics
}

// NewMetricsRegistry creates a registry named after the service.
func NewMetricsRegistry(service string) (*MetricsRegistry, error) {
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	cfg := metrics.DefaultConfig(service)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	m, err := metrics.New(cfg, sink)
	if err != nil {
		return nil, err
	}
	return &MetricsRegistry{sink: sink, m: m}, nil
}

// Incr bumps a counter by one. Nil-safe so callers need no guard.
func (mr *MetricsRegistry) Incr(name string) {
	if mr == nil {
		return
	}
	mr.m.IncrCounter([]string{name}, 1)
}

// IncrBy bumps a counter by n.
func (mr *MetricsRegistry) IncrBy(name string, n float32) {
	if mr == nil {
		return
	}
	mr.m.IncrCounter([]string{name}, n)
}

// Snapshot aggregates all counter sums across retained intervals.
func (mr *MetricsRegistry) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	if mr == nil {
		return out
	}
	for _, interval := range mr.sink.Data() {
		interval.RLock()
		for name, sample := range interval.Counters {
			out[name] += sample.Sum
		}
		interval.RUnlock()
	}
	return out
}
