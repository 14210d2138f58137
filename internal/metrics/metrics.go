package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a single counter. The root package re-exports these
// under stable names.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLoginUnknownIdentity
	MetricAccountLocked
	MetricAccountInactive
	MetricTwoFactorRequired
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodesRegenerated
	MetricTwoFactorEnabled
	MetricTwoFactorDisabled
	MetricSessionCreated
	MetricSessionEvicted
	MetricSessionRevoked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricLogoutAll
	MetricRateLimitHit
	MetricLoginLatency

	MetricIDCount = int(MetricLoginLatency) + 1
)

// latencyBuckets are upper bounds in microseconds for the login latency
// histogram. The last bucket is unbounded.
var latencyBuckets = [...]uint64{500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000}

// Config controls metric collection. When Enabled is false every operation
// is a no-op with zero cost beyond a nil check.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds atomic counters and an optional latency histogram. All
// methods are safe for concurrent use; a nil *Metrics is valid.
type Metrics struct {
	counters [MetricIDCount]atomic.Uint64
	latency  [len(latencyBuckets) + 1]atomic.Uint64
	enabled  bool
	withLat  bool
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters       map[MetricID]uint64
	LatencyBuckets []uint64
	LatencyCounts  []uint64
}

func New(cfg Config) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{
		enabled: true,
		withLat: cfg.EnableLatency,
	}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || int(id) >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || int(id) >= MetricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// ObserveLatency records a login duration into the histogram.
func (m *Metrics) ObserveLatency(d time.Duration) {
	if m == nil || !m.enabled || !m.withLat {
		return
	}
	us := uint64(d.Microseconds())
	for i, bound := range latencyBuckets {
		if us <= bound {
			m.latency[i].Add(1)
			return
		}
	}
	m.latency[len(latencyBuckets)].Add(1)
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Counters: make(map[MetricID]uint64, MetricIDCount),
	}
	if m == nil {
		return snap
	}

	for id := 0; id < MetricIDCount; id++ {
		snap.Counters[MetricID(id)] = m.counters[id].Load()
	}

	if m.withLat {
		snap.LatencyBuckets = append(snap.LatencyBuckets, latencyBuckets[:]...)
		snap.LatencyCounts = make([]uint64, len(m.latency))
		for i := range m.latency {
			snap.LatencyCounts[i] = m.latency[i].Load()
		}
	}

	return snap
}
