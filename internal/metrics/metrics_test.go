package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/action-engine/pkg/actions"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	require.NotNil(t, c)
	require.NotNil(t, c.Registry())
}

func TestRecordRegister(t *testing.T) {
	c := NewCollector()
	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			c.RecordRegister()
		}
	})
}

func TestRecordTransitionBumpsTerminalCounters(t *testing.T) {
	c := NewCollector()
	assert.NotPanics(t, func() {
		c.RecordTransition(actions.StatusVariablesLoaded, actions.StatusRunning)
		c.RecordTransition(actions.StatusRunning, actions.StatusSuccess)
		c.RecordTransition(actions.StatusRunning, actions.StatusRetry)
		c.RecordTransition(actions.StatusRetry, actions.StatusFailure)
		c.RecordTransition(actions.StatusPending, actions.StatusRevoked)
	})
	assert.Equal(t, 1.0, counterValue(t, c, "jobs_dispatched_total"))
	assert.Equal(t, 1.0, counterValue(t, c, "jobs_succeeded_total"))
	assert.Equal(t, 1.0, counterValue(t, c, "jobs_failed_total"))
	assert.Equal(t, 1.0, counterValue(t, c, "jobs_revoked_total"))
}

// counterValue reads an unlabelled counter's current value from c's registry.
func counterValue(t *testing.T, c *Collector, name string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestRecordSweepFound(t *testing.T) {
	c := NewCollector()
	assert.NotPanics(t, func() {
		c.RecordSweepFound(actions.StatusPending, 3)
		c.RecordSweepFound(actions.StatusRetry, 0)
		c.RecordSweepFound(actions.StatusRunning, 15)
	})
}

func TestObserveTransitionDuration(t *testing.T) {
	c := NewCollector()
	for _, d := range []float64{0.001, 0.01, 0.1, 1.0, 5.0} {
		assert.NotPanics(t, func() {
			c.ObserveTransitionDuration(d)
		})
	}
}

func TestSetStateGauge(t *testing.T) {
	c := NewCollector()
	for _, tc := range []struct {
		state actions.Status
		n     float64
	}{
		{actions.StatusPending, 0},
		{actions.StatusRunning, 10},
		{actions.StatusRetry, 2},
	} {
		assert.NotPanics(t, func() {
			c.SetStateGauge(tc.state, tc.n)
		})
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	// Each Collector owns its own registry, so creating several never
	// panics on duplicate registration -- unlike a shared global one.
	c1 := NewCollector()
	c2 := NewCollector()
	require.NotNil(t, c1)
	require.NotNil(t, c2)
	assert.NotSame(t, c1.Registry(), c2.Registry())
}

func TestConcurrentMetricUpdates(t *testing.T) {
	c := NewCollector()
	done := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		go func() {
			c.RecordRegister()
			c.RecordTransition(actions.StatusVariablesLoaded, actions.StatusRunning)
			c.ObserveTransitionDuration(0.1)
			c.SetStateGauge(actions.StatusPending, 10)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestFullJobLifecycleSequence(t *testing.T) {
	c := NewCollector()
	assert.NotPanics(t, func() {
		c.RecordRegister()
		c.RecordTransition(actions.StatusPending, actions.StatusVariablesLoaded)
		c.RecordTransition(actions.StatusVariablesLoaded, actions.StatusRunning)
		c.ObserveTransitionDuration(0.5)
		c.RecordTransition(actions.StatusRunning, actions.StatusSuccess)
	})
}

func TestFailurePathSequence(t *testing.T) {
	c := NewCollector()
	assert.NotPanics(t, func() {
		c.RecordRegister()
		c.RecordTransition(actions.StatusVariablesLoaded, actions.StatusRunning)
		c.RecordTransition(actions.StatusRunning, actions.StatusRetry)
		c.RecordTransition(actions.StatusRetry, actions.StatusFailure)
	})
}
