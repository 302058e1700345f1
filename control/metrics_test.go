package control_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/proctree/control"
)

func TestCountersAggregateInSnapshot(t *testing.T) {
	mr, err := control.NewMetricsRegistry("proctree-test")
	require.NoError(t, err)

	mr.Incr(control.CtrFramesSent)
	mr.Incr(control.CtrFramesSent)
	mr.IncrBy(control.CtrAcksSent, 3)

	snap := mr.Snapshot()
	var sent, acks float64
	for name, sum := range snap {
		switch {
		case strings.Contains(name, control.CtrFramesSent):
			sent = sum
		case strings.Contains(name, control.CtrAcksSent):
			acks = sum
		}
	}
	assert.Equal(t, float64(2), sent)
	assert.Equal(t, float64(3), acks)
}

func TestNilRegistryIsSafe(t *testing.T) {
	var mr *control.MetricsRegistry
	mr.Incr(control.CtrFramesSent)
	mr.IncrBy(control.CtrFramesSent, 2)
	assert.Empty(t, mr.Snapshot())
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("router", func() any { return 7 })
	dp.RegisterProbe("executor", func() any { return "ok" })

	out := dp.DumpState()
	assert.Equal(t, 7, out["router"])
	assert.Equal(t, "ok", out["executor"])

	dp.RemoveProbe("router")
	assert.NotContains(t, dp.DumpState(), "router")
}
