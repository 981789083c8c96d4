package taskloop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapError_PreservesIsChain(t *testing.T) {
	cause := errors.New("underlying")
	wrapped := WrapError("taskloop: doing a thing", cause)
	assert.True(t, errors.Is(wrapped, cause))
	assert.Equal(t, "taskloop: doing a thing: underlying", wrapped.Error())
}

func TestWaitError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("EBADF")
	werr := &WaitError{Cause: cause, OpenFDs: []int{3, 4}}

	assert.True(t, errors.Is(werr, cause))
	assert.Contains(t, werr.Error(), "EBADF")
	assert.Equal(t, []int{3, 4}, werr.OpenFDs)
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrLoopAlreadyRunning,
		ErrLoopTerminated,
		ErrReentrantRun,
		ErrUnknownTask,
		ErrInvalidArgument,
		ErrNotOnLoopGoroutine,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "sentinel %d should not match sentinel %d", i, j)
		}
	}
}
