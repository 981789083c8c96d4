package taskloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRegister_RejectsNilCallback(t *testing.T) {
	l := newTestLoop(t)
	_, err := l.Register(nil, RegisterOptions{Priority: PriorityDefault, ReadFD: -1, WriteFD: -1, Delay: time.Second, hasTimeout: true})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegister_RejectsNegativeDelay(t *testing.T) {
	l := newTestLoop(t)
	_, err := l.RegisterAfterDelay(-time.Second, PriorityDefault, func(Context) {})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegister_RejectsNoWaitCondition(t *testing.T) {
	l := newTestLoop(t)
	_, err := l.Register(func(Context) {}, RegisterOptions{Priority: PriorityDefault, ReadFD: -1, WriteFD: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegisterAfterDelay_Succeeds(t *testing.T) {
	l := newTestLoop(t)
	id, err := l.RegisterAfterDelay(time.Hour, PriorityDefault, func(Context) {})
	require.NoError(t, err)
	assert.NotZero(t, id)

	tk := l.store.lookup(id)
	require.NotNil(t, tk)
	assert.True(t, tk.hasTimeout)
	assert.Equal(t, PriorityDefault, tk.priority)
}

func TestRegisterOnReadable_Succeeds(t *testing.T) {
	l := newTestLoop(t)
	id, err := l.RegisterOnReadable(42, PriorityHigh, func(Context) {})
	require.NoError(t, err)

	tk := l.store.lookup(id)
	require.NotNil(t, tk)
	assert.Equal(t, []int{42}, tk.wantRead)
	assert.Equal(t, PriorityHigh, tk.priority)
}

func TestRegisterAfterTask_Chains(t *testing.T) {
	l := newTestLoop(t)
	first, err := l.RegisterAfterDelay(time.Hour, PriorityDefault, func(Context) {})
	require.NoError(t, err)

	second, err := l.RegisterAfterTask(first, PriorityDefault, func(Context) {})
	require.NoError(t, err)

	tk := l.store.lookup(second)
	require.NotNil(t, tk)
	assert.Equal(t, first, tk.prereq)
}

func TestCancel_UnknownTask(t *testing.T) {
	l := newTestLoop(t)
	_, err := l.Cancel(TaskID(99999))
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestCancel_ZeroID(t *testing.T) {
	l := newTestLoop(t)
	_, err := l.Cancel(0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCancel_RemovesPendingTask(t *testing.T) {
	l := newTestLoop(t)
	id, err := l.RegisterAfterDelay(time.Hour, PriorityDefault, func(Context) {})
	require.NoError(t, err)

	cb, err := l.Cancel(id)
	require.NoError(t, err)
	assert.NotNil(t, cb)
	assert.Nil(t, l.store.lookup(id))

	// cancelling twice returns ErrUnknownTask
	_, err = l.Cancel(id)
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestCancel_ReturnsTheRegisteredCallback(t *testing.T) {
	l := newTestLoop(t)
	var ran bool
	want := func(Context) { ran = true }
	id, err := l.RegisterAfterDelay(time.Hour, PriorityDefault, want)
	require.NoError(t, err)

	cb, err := l.Cancel(id)
	require.NoError(t, err)
	require.NotNil(t, cb)
	cb(Context{})
	assert.True(t, ran)
}

func TestRegisterOptions_PriorityKeep_DefaultsOutsideCallback(t *testing.T) {
	l := newTestLoop(t)
	id, err := l.Register(func(Context) {}, RegisterOptions{
		Priority:   PriorityKeep,
		ReadFD:     -1,
		WriteFD:    -1,
		Delay:      time.Hour,
		hasTimeout: true,
	})
	require.NoError(t, err)
	tk := l.store.lookup(id)
	require.NotNil(t, tk)
	assert.Equal(t, PriorityDefault, tk.priority)
}

func TestRegister_RejectedDuringShutdown(t *testing.T) {
	l := newTestLoop(t)
	l.shuttingDown.Store(true)
	_, err := l.RegisterAfterDelay(time.Second, PriorityDefault, func(Context) {})
	assert.ErrorIs(t, err, ErrLoopTerminated)
}

func TestRegisterWhenAnyOf_WaitsOnMultipleFDs(t *testing.T) {
	l := newTestLoop(t)
	id, err := l.RegisterWhenAnyOf(0, []int{3, 5, 7}, []int{9}, 0, PriorityDefault, func(Context) {})
	require.NoError(t, err)

	tk := l.store.lookup(id)
	require.NotNil(t, tk)
	assert.Equal(t, []int{3, 5, 7}, tk.wantRead)
	assert.Equal(t, []int{9}, tk.wantWrite)
	assert.False(t, tk.hasTimeout)
}

func TestRegisterWhenAnyOf_FiresOnAnyMatchingFD(t *testing.T) {
	s := newStore()
	tk := newTestTask(PriorityDefault)
	tk.wantRead = []int{3, 5, 7}
	s.alloc(tk)
	s.place(tk)

	ready := readinessResult{readable: map[int]struct{}{5: {}}}
	_, any := s.evaluate(time.Now(), ready)
	assert.True(t, any)
	assert.True(t, tk.reason.Has(ReasonReadReady))
	assert.Equal(t, []int{5}, tk.matchedRead)
}

func TestLoad_ReportsReadyCountPerPriority(t *testing.T) {
	l := newTestLoop(t)
	assert.Zero(t, l.Load(PriorityHigh))
	assert.Zero(t, l.LoadTotal())

	a := newTestTask(PriorityHigh)
	b := newTestTask(PriorityHigh)
	c := newTestTask(PriorityIdle)
	l.store.alloc(a)
	l.store.alloc(b)
	l.store.alloc(c)
	l.store.ready[PriorityHigh].push(a)
	l.store.ready[PriorityHigh].push(b)
	l.store.ready[PriorityIdle].push(c)

	assert.EqualValues(t, 2, l.Load(PriorityHigh))
	assert.EqualValues(t, 1, l.Load(PriorityIdle))
	assert.Zero(t, l.Load(PriorityUrgent))
	assert.EqualValues(t, 3, l.LoadTotal())
}

func TestRegisterNow_GoesThroughWaitList(t *testing.T) {
	l := newTestLoop(t)
	id, err := l.RegisterNow(PriorityDefault, func(Context) {})
	require.NoError(t, err)

	tk := l.store.lookup(id)
	require.NotNil(t, tk)
	assert.Equal(t, pendingWait, tk.pendingKind)
	assert.True(t, tk.hasTimeout)
}

func TestRegisterContinuation_LandsDirectlyOnReadyStack(t *testing.T) {
	l := newTestLoop(t)
	before := l.Load(PriorityUrgent)

	id, err := l.RegisterContinuation(func(Context) {}, ReasonStartup, PriorityUrgent)
	require.NoError(t, err)

	tk := l.store.lookup(id)
	require.NotNil(t, tk)
	assert.Equal(t, pendingReady, tk.pendingKind)
	assert.True(t, tk.reason.Has(ReasonStartup))
	assert.EqualValues(t, before+1, l.Load(PriorityUrgent))
}

func TestCurrentReason_ZeroOutsideCallback(t *testing.T) {
	l := newTestLoop(t)
	assert.Zero(t, l.CurrentReason())
}

func TestCurrentReason_ReflectsDispatchingTask(t *testing.T) {
	l := newTestLoop(t)
	l.dispatching = &task{reason: ReasonTimeout | ReasonReadReady}
	assert.Equal(t, ReasonTimeout|ReasonReadReady, l.CurrentReason())
}

func TestRegisterContinuation_PriorityKeepInheritsDispatchingPriority(t *testing.T) {
	l := newTestLoop(t)
	l.dispatching = &task{priority: PriorityHigh}

	id, err := l.RegisterContinuation(func(Context) {}, 0, PriorityKeep)
	require.NoError(t, err)

	tk := l.store.lookup(id)
	require.NotNil(t, tk)
	assert.Equal(t, PriorityHigh, tk.priority)
}
