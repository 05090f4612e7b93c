// Package profiler implements ProfileMeasurement, the elapsed-time
// accumulator used throughout the core for per-partition accounting (exec
// time, idle time, network time, utility time). Ported from
// edu.brown.profilers.ProfileMeasurement.
package profiler

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/sdhost/h-store/logutil"
)

const unsetMarker = int64(-1)

// ProfileMeasurement is a thread-safe elapsed-time accumulator with
// start/stop markers and a lock-free merge path (AppendTime).
type ProfileMeasurement struct {
	typeLabel string

	mu          sync.Mutex
	marker      int64
	resetPending bool

	totalNanos   atomic.Int64
	invocations  atomic.Int32
}

// New creates a ProfileMeasurement in the stopped state.
func New(typeLabel string) *ProfileMeasurement {
	return &ProfileMeasurement{typeLabel: typeLabel, marker: unsetMarker}
}

func (pm *ProfileMeasurement) Type() string { return pm.typeLabel }

// Start requires the measurement is not currently running.
func (pm *ProfileMeasurement) Start(timestamp time.Time) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.marker != unsetMarker {
		logutil.Warnf("profile %s started while already started", pm.typeLabel)
		return
	}
	pm.marker = timestamp.UnixNano()
	pm.invocations.Inc()
}

// StartNow is a convenience wrapper around Start(time.Now()).
func (pm *ProfileMeasurement) StartNow() { pm.Start(time.Now()) }

func (pm *ProfileMeasurement) IsStarted() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.marker != unsetMarker
}

// Stop requires the measurement is currently running. A negative elapsed
// duration (clock regression) is logged and the sample dropped; the
// invocation count from Start is left unchanged, matching
// ProfileMeasurement's behavior of counting the start regardless of the
// stop outcome.
func (pm *ProfileMeasurement) Stop(timestamp time.Time) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.resetPending {
		pm.resetPending = false
		pm.marker = unsetMarker
		return
	}
	if pm.marker == unsetMarker {
		logutil.Warnf("profile %s stopped before it was started", pm.typeLabel)
		return
	}
	elapsed := timestamp.UnixNano() - pm.marker
	pm.marker = unsetMarker
	if elapsed < 0 {
		logutil.Warnf("clock regression on profile %s: elapsed=%d", pm.typeLabel, elapsed)
		return
	}
	pm.totalNanos.Add(elapsed)
}

// StopNow is a convenience wrapper around Stop(time.Now()).
func (pm *ProfileMeasurement) StopNow() { pm.Stop(time.Now()) }

// StopIfStarted stops the measurement only if it is currently running.
func (pm *ProfileMeasurement) StopIfStarted() {
	if pm.IsStarted() {
		pm.StopNow()
	}
}

// AppendTime is the lock-free merge path: safe to call from concurrent
// producers without taking the start/stop marker lock.
func (pm *ProfileMeasurement) AppendTime(start, stop time.Time, invocations int32) {
	elapsed := stop.UnixNano() - start.UnixNano()
	if elapsed < 0 {
		elapsed = 0
	}
	pm.totalNanos.Add(elapsed)
	pm.invocations.Add(invocations)
}

// Reset clears accumulated time. If the measurement is currently running,
// the reset is deferred: the in-flight sample is dropped on the next Stop.
func (pm *ProfileMeasurement) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.marker != unsetMarker {
		pm.resetPending = true
	}
	pm.totalNanos.Store(0)
	pm.invocations.Store(0)
}

func (pm *ProfileMeasurement) TotalTime() time.Duration {
	return time.Duration(pm.totalNanos.Load())
}

func (pm *ProfileMeasurement) Invocations() int32 {
	return pm.invocations.Load()
}

func (pm *ProfileMeasurement) AverageTime() time.Duration {
	inv := pm.invocations.Load()
	if inv == 0 {
		return 0
	}
	return time.Duration(pm.totalNanos.Load() / int64(inv))
}

// Snapshot is a point-in-time, allocation-free-to-read copy of a
// measurement's accumulated totals, safe to pass to a status collector
// without holding a reference to the live measurement.
type Snapshot struct {
	Type        string
	TotalTime   time.Duration
	Invocations int32
}

// Snapshot takes an immutable copy of pm's current totals.
func (pm *ProfileMeasurement) Snapshot() Snapshot {
	return Snapshot{
		Type:        pm.typeLabel,
		TotalTime:   pm.TotalTime(),
		Invocations: pm.Invocations(),
	}
}

// StartAll starts every measurement at the same timestamp, mirroring
// ProfileMeasurement's static start(...) helper.
func StartAll(pms ...*ProfileMeasurement) {
	now := time.Now()
	for _, pm := range pms {
		pm.Start(now)
	}
}

// StopAll stops every measurement at the same timestamp.
func StopAll(pms ...*ProfileMeasurement) {
	now := time.Now()
	for _, pm := range pms {
		pm.Stop(now)
	}
}

// Swap stops one measurement and starts another at the same timestamp,
// useful for switching accounting buckets (e.g. exec -> idle) atomically.
func Swap(stop, start *ProfileMeasurement) {
	now := time.Now()
	stop.Stop(now)
	start.Start(now)
}
