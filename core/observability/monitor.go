package observability

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// bucketBounds are the upper bounds of the latency histogram; the last
// bucket collects everything slower
var bucketBounds = [...]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
	10 * time.Second,
}

// Monitor keeps per-route request metrics. Safe for concurrent use; every
// update is a handful of atomic operations.
type Monitor struct {
	routes sync.Map // route -> *routeMetrics
	total  atomic.Uint64
}

type routeMetrics struct {
	count   atomic.Uint64
	faults  atomic.Uint64
	totalNs atomic.Uint64
	minNs   atomic.Uint64
	maxNs   atomic.Uint64
	buckets [len(bucketBounds) + 1]atomic.Uint64
}

// RouteStats is a snapshot of one route's metrics
type RouteStats struct {
	Route   string        `json:"route"`
	Count   uint64        `json:"count"`
	Faults  uint64        `json:"faults"`
	Avg     time.Duration `json:"avg_ns"`
	Min     time.Duration `json:"min_ns"`
	Max     time.Duration `json:"max_ns"`
	Buckets []uint64      `json:"buckets"`
}

// Bottleneck flags a route that is slow or failing
type Bottleneck struct {
	Type     string `json:"type"`
	Route    string `json:"route"`
	Severity int    `json:"severity"`
	Details  string `json:"details"`
}

// NewMonitor creates an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Record adds one handled request to route's metrics
func (m *Monitor) Record(route string, d time.Duration, fault bool) {
	val, ok := m.routes.Load(route)
	if !ok {
		val, _ = m.routes.LoadOrStore(route, &routeMetrics{})
	}
	rm := val.(*routeMetrics)

	ns := uint64(d.Nanoseconds())
	rm.count.Add(1)
	if fault {
		rm.faults.Add(1)
	}
	rm.totalNs.Add(ns)
	updateMin(&rm.minNs, ns)
	updateMax(&rm.maxNs, ns)
	rm.buckets[bucket(d)].Add(1)

	m.total.Add(1)
}

// Total returns the number of recorded requests
func (m *Monitor) Total() uint64 {
	return m.total.Load()
}

// Snapshot returns the metrics of every route, sorted by route
func (m *Monitor) Snapshot() []RouteStats {
	var out []RouteStats
	m.routes.Range(func(key, value any) bool {
		rm := value.(*routeMetrics)
		rs := RouteStats{
			Route:   key.(string),
			Count:   rm.count.Load(),
			Faults:  rm.faults.Load(),
			Min:     time.Duration(rm.minNs.Load()),
			Max:     time.Duration(rm.maxNs.Load()),
			Buckets: make([]uint64, len(rm.buckets)),
		}
		if rs.Count > 0 {
			rs.Avg = time.Duration(rm.totalNs.Load() / rs.Count)
		}
		for i := range rm.buckets {
			rs.Buckets[i] = rm.buckets[i].Load()
		}
		out = append(out, rs)
		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// Bottlenecks reports routes whose average latency exceeds maxAvg or whose
// fault rate exceeds maxFaultRate (0..1)
func (m *Monitor) Bottlenecks(maxAvg time.Duration, maxFaultRate float64) []Bottleneck {
	var out []Bottleneck
	for _, rs := range m.Snapshot() {
		if rs.Count == 0 {
			continue
		}

		if maxAvg > 0 && rs.Avg > maxAvg {
			out = append(out, Bottleneck{
				Type:     "latency",
				Route:    rs.Route,
				Severity: 8,
				Details:  fmt.Sprintf("high latency (%v avg)", rs.Avg),
			})
		}

		rate := float64(rs.Faults) / float64(rs.Count)
		if rs.Faults > 0 && rate > maxFaultRate {
			out = append(out, Bottleneck{
				Type:     "faults",
				Route:    rs.Route,
				Severity: 10,
				Details:  fmt.Sprintf("%.1f%% fault rate", rate*100),
			})
		}
	}
	return out
}

func bucket(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d < bound {
			return i
		}
	}
	return len(bucketBounds)
}

func updateMin(v *atomic.Uint64, ns uint64) {
	for {
		cur := v.Load()
		if cur != 0 && ns >= cur {
			return
		}
		if v.CompareAndSwap(cur, ns) {
			return
		}
	}
}

func updateMax(v *atomic.Uint64, ns uint64) {
	for {
		cur := v.Load()
		if ns <= cur {
			return
		}
		if v.CompareAndSwap(cur, ns) {
			return
		}
	}
}
