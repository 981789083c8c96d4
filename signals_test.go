package taskloop

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSignals_TriggersShutdown(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	stop := l.RegisterSignals(syscall.SIGUSR1)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = l.RegisterAfterDelay(time.Hour, PriorityDefault, func(Context) {})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not trigger shutdown in time")
	}
}

func TestRegisterSignals_StopPreventsFurtherDelivery(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	stop := l.RegisterSignals(syscall.SIGUSR2)
	stop()

	// after stop, the relay goroutine has exited; sending the signal must
	// not panic or deadlock, and must not reach RequestShutdown.
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR2))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, l.shuttingDown.Load())
}
