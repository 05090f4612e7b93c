// Package status implements HStoreSiteStatus: an on-demand, purely
// observational snapshot of per-partition queue depths, pool usage, and
// profiling rollups, plus a Prometheus exposition surface. Metrics naming
// follows tinykv's scheduler/server/metrics.go namespace/subsystem/name
// convention; percentile rollups use montanaflynn/stats, the same library
// pd/server/statistics depends on for summary statistics.
package status

import (
	"sort"
	"sync"

	"github.com/montanaflynn/stats"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdhost/h-store/executor"
	"github.com/sdhost/h-store/profiler"
	"github.com/sdhost/h-store/qmgr"
)

var (
	queueDepthGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hstore",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of transactions currently queued per partition.",
		}, []string{"partition"})

	restartQueueDepthGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hstore",
			Subsystem: "queue",
			Name:      "restart_depth",
			Help:      "Number of transactions currently awaiting restart.",
		})

	blockedHistogramGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hstore",
			Subsystem: "queue",
			Name:      "blocked_count",
			Help:      "Number of times each transaction has blocked another transaction's init.",
		}, []string{"blocker_txn_id"})

	execModeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hstore",
			Subsystem: "executor",
			Name:      "mode",
			Help:      "Current execution mode per partition (1 if active, 0 otherwise).",
		}, []string{"partition", "mode"})

	specPendingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hstore",
			Subsystem: "executor",
			Name:      "speculative_pending",
			Help:      "Number of speculative candidates currently admitted but not yet finished executing, per partition.",
		}, []string{"partition"})

	idleWaitingDtxnSecondsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hstore",
			Subsystem: "executor",
			Name:      "idle_waiting_dtxn_seconds_total",
			Help:      "Total seconds a partition has spent idle while waiting for a distributed transaction.",
		}, []string{"partition"})
)

func init() {
	prometheus.MustRegister(
		queueDepthGauge,
		restartQueueDepthGauge,
		blockedHistogramGauge,
		execModeGauge,
		specPendingGauge,
		idleWaitingDtxnSecondsGauge,
	)
}

// PartitionSnapshot is one partition's row in a Snapshot.
type PartitionSnapshot struct {
	PartitionID        uint32
	Mode                string
	QueueDepth          int
	SpeculativePending  int
	IdleWaitingDtxnTime profiler.Snapshot
	ExecTime            profiler.Snapshot
}

// Snapshot is one observational pass over the whole site, taken without
// holding up any partition's executor thread for more than a pointer
// read.
type Snapshot struct {
	Partitions    []PartitionSnapshot
	RestartQueue  int
	Blocked       map[uint64]int
	TimingSummary TimingSummary
}

// TimingSummary rolls up exec-time percentiles across all partitions
// using montanaflynn/stats, the way a cluster-wide latency dashboard
// would summarize many per-node series into one.
type TimingSummary struct {
	P50Nanos float64
	P95Nanos float64
	P99Nanos float64
}

// Site is the narrow view the status collector needs: every local
// partition's executor plus the shared queue manager.
type Site interface {
	Partitions() map[uint32]*executor.PartitionExecutor
	QueueManager() *qmgr.Manager
}

// Collector builds a Snapshot on each Collect call and republishes it to
// Prometheus, following metrics.go's convention of package-level
// collectors. It runs no background loop of its own: snapshots are taken
// only when a caller invokes Collect.
type Collector struct {
	mu   sync.Mutex
	site Site
	last Snapshot
}

func NewCollector(site Site) *Collector {
	return &Collector{site: site}
}

// Collect takes a fresh Snapshot, publishes it to the Prometheus
// collectors registered above, and caches it for Last.
func (c *Collector) Collect() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	partitions := c.site.Partitions()
	mgr := c.site.QueueManager()

	snap := Snapshot{
		Blocked: make(map[uint64]int),
	}

	var execNanos []float64
	for id, pe := range partitions {
		depth := 0
		if mgr != nil {
			depth = mgr.QueueDepth(id)
		}
		ps := PartitionSnapshot{
			PartitionID:        id,
			Mode:                pe.CurrentMode().String(),
			QueueDepth:          depth,
			SpeculativePending: pe.PendingSpeculative(),
			IdleWaitingDtxnTime: pe.IdleWaitingDtxnTime().Snapshot(),
			ExecTime:            pe.ExecTime().Snapshot(),
		}
		snap.Partitions = append(snap.Partitions, ps)

		partitionLabel := partitionLabelFor(id)
		queueDepthGauge.WithLabelValues(partitionLabel).Set(float64(ps.QueueDepth))
		specPendingGauge.WithLabelValues(partitionLabel).Set(float64(ps.SpeculativePending))
		idleWaitingDtxnSecondsGauge.WithLabelValues(partitionLabel).Set(ps.IdleWaitingDtxnTime.TotalTime.Seconds())
		for m := executor.ModeIdle; m <= executor.ModeSpeculative; m++ {
			execModeGauge.WithLabelValues(partitionLabel, m.String()).Set(0)
		}
		execModeGauge.WithLabelValues(partitionLabel, ps.Mode).Set(1)

		if ps.ExecTime.Invocations > 0 {
			execNanos = append(execNanos, float64(ps.ExecTime.TotalTime.Nanoseconds())/float64(ps.ExecTime.Invocations))
		}
	}
	sort.Slice(snap.Partitions, func(i, j int) bool { return snap.Partitions[i].PartitionID < snap.Partitions[j].PartitionID })

	if mgr != nil {
		restartDepth := mgr.Restart().Len()
		snap.RestartQueue = restartDepth
		restartQueueDepthGauge.Set(float64(restartDepth))

		for id, count := range mgr.Blocked().Snapshot() {
			snap.Blocked[id.Seq] = count
			blockedHistogramGauge.WithLabelValues(txnIDLabel(id.Seq)).Set(float64(count))
		}
	}

	snap.TimingSummary = summarize(execNanos)
	c.last = snap
	return snap
}

// Last returns the most recently collected Snapshot without recomputing
// it.
func (c *Collector) Last() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func summarize(samples []float64) TimingSummary {
	if len(samples) == 0 {
		return TimingSummary{}
	}
	p50, _ := stats.Percentile(samples, 50)
	p95, _ := stats.Percentile(samples, 95)
	p99, _ := stats.Percentile(samples, 99)
	return TimingSummary{P50Nanos: p50, P95Nanos: p95, P99Nanos: p99}
}

func partitionLabelFor(id uint32) string {
	return formatUint(uint64(id))
}

func txnIDLabel(seq uint64) string {
	return formatUint(seq)
}

func formatUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
