//go:build linux
// +build linux

package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/proctree/api"
)

// exitStatus fabricates the wait status of a normal exit.
func exitStatus(code int) unix.WaitStatus {
	return unix.WaitStatus(code << 8)
}

// sigStatus fabricates the wait status of a signal death.
func sigStatus(sig int) unix.WaitStatus {
	return unix.WaitStatus(sig)
}

func TestShutdownTTLCapBoundsTheLoop(t *testing.T) {
	e, err := New(
		WithShutdownBehavior(api.FlushPendingMessages|api.WaitForPeersTermination),
		WithTTL(5),
		WithUrgentSignal(0),
	)
	require.NoError(t, err)

	// A terminated child nobody acknowledges keeps WaitForPeersTermination
	// unsatisfied forever; only the TTL can end the loop.
	e.children[999999] = &ChildInfo{PID: 999999, Started: time.Now(), State: TerminationExited}
	e.Shutdown()

	start := time.Now()
	require.NoError(t, e.Loop())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestChildStateLifecycle(t *testing.T) {
	e, err := New(WithUrgentSignal(0))
	require.NoError(t, err)
	defer e.rx.Close()

	e.children[4321] = &ChildInfo{PID: 4321, Started: time.Now(), State: TerminationLiving}

	// Reading a living child does not consume the record.
	st, ok := e.ReadChildState(4321)
	require.True(t, ok)
	assert.Equal(t, TerminationLiving, st.State)
	assert.Len(t, e.children, 1)

	e.applyChildExit(4321, exitStatus(3))
	st, ok = e.ReadChildState(4321)
	require.True(t, ok)
	assert.Equal(t, TerminationExited, st.State)
	assert.Equal(t, 3, st.Status)
	assert.NotZero(t, st.Elapsed)

	// Acknowledged: the record is gone.
	_, ok = e.ReadChildState(4321)
	assert.False(t, ok)
}

func TestSignalDeathRecorded(t *testing.T) {
	e, err := New(WithUrgentSignal(0))
	require.NoError(t, err)
	defer e.rx.Close()

	e.children[4322] = &ChildInfo{PID: 4322, Started: time.Now(), State: TerminationLiving}
	e.applyChildExit(4322, sigStatus(int(unix.SIGKILL)))

	st, ok := e.ReadChildState(4322)
	require.True(t, ok)
	assert.Equal(t, TerminationSignal, st.State)
	assert.Equal(t, int(unix.SIGKILL), st.Status)
}

func TestContinueLoopingConditions(t *testing.T) {
	e, err := New(WithUrgentSignal(0))
	require.NoError(t, err)
	defer e.rx.Close()

	assert.True(t, e.continueLooping(), "no shutdown requested")

	e.shutdown = true
	assert.False(t, e.continueLooping(), "no flags, nothing pending")

	e.behavior = api.WaitForPeersTermination
	assert.False(t, e.continueLooping())
	e.children[1] = &ChildInfo{State: TerminationExited}
	assert.True(t, e.continueLooping(), "unconsumed child state holds the loop")
	delete(e.children, 1)
}

func TestExecutorListenerOrdering(t *testing.T) {
	e, err := New(WithUrgentSignal(0))
	require.NoError(t, err)

	var order []string
	e.AddExecutorListener(recorder{&order})
	e.Shutdown()
	e.Shutdown() // idempotent; OnShutdown fires once
	require.NoError(t, e.Loop())

	assert.Equal(t, []string{"shutdown", "start", "exitloop"}, order)
}

type recorder struct{ order *[]string }

func (r recorder) OnStart(api.ExecutorControl)    { *r.order = append(*r.order, "start") }
func (r recorder) OnShutdown(api.ExecutorControl) { *r.order = append(*r.order, "shutdown") }
func (r recorder) OnExitLoop(api.ExecutorControl) { *r.order = append(*r.order, "exitloop") }
