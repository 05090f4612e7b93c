package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartStopAccumulatesElapsed(t *testing.T) {
	pm := New("test")
	start := time.Unix(0, 0)
	stop := start.Add(100 * time.Millisecond)

	pm.Start(start)
	pm.Stop(stop)

	assert.Equal(t, 100*time.Millisecond, pm.TotalTime())
	assert.EqualValues(t, 1, pm.Invocations())
}

func TestStopBeforeStartIsANoOp(t *testing.T) {
	pm := New("test")
	pm.Stop(time.Now())
	assert.Zero(t, pm.TotalTime())
	assert.Zero(t, pm.Invocations())
}

func TestClockRegressionDropsSampleButKeepsInvocationCount(t *testing.T) {
	pm := New("test")
	start := time.Unix(0, 100)
	stop := time.Unix(0, 0) // before start: clock regression.

	pm.Start(start)
	pm.Stop(stop)

	assert.Zero(t, pm.TotalTime())
	assert.EqualValues(t, 1, pm.Invocations())
}

func TestResetDeferredWhileRunning(t *testing.T) {
	pm := New("test")
	start := time.Unix(0, 0)
	pm.Start(start)
	pm.AppendTime(start, start.Add(time.Second), 1)
	assert.Equal(t, time.Second, pm.TotalTime())

	pm.Reset()
	assert.True(t, pm.IsStarted(), "reset while running should not stop it immediately")
	assert.Zero(t, pm.TotalTime())

	pm.Stop(start.Add(2 * time.Second))
	assert.False(t, pm.IsStarted())
	assert.Zero(t, pm.TotalTime(), "the deferred reset should drop the in-flight sample on stop")
}

func TestSnapshotIsIndependentOfLiveMeasurement(t *testing.T) {
	pm := New("exec")
	pm.AppendTime(time.Unix(0, 0), time.Unix(0, int64(50*time.Millisecond)), 3)

	snap := pm.Snapshot()
	assert.Equal(t, "exec", snap.Type)
	assert.Equal(t, 50*time.Millisecond, snap.TotalTime)
	assert.EqualValues(t, 3, snap.Invocations)

	pm.AppendTime(time.Unix(0, 0), time.Unix(0, int64(50*time.Millisecond)), 1)
	assert.Equal(t, 50*time.Millisecond, snap.TotalTime, "snapshot must not mutate after being taken")
}
