package taskloop

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"golang.org/x/sys/unix"
)

// Loop is a single-threaded cooperative task scheduler: a reactor that
// multiplexes timers, file-descriptor readiness, task-to-task
// prerequisites, priority classes, and graceful shutdown behind one
// blocking wait. A Loop must be driven by exactly one call to Run; every
// other exported method except RequestShutdown, RegisterSignals and Close
// must be called from the loop goroutine: from within a task callback
// running on that call's goroutine, or before Run is called.
type Loop struct {
	opts *loopOptions

	store *store

	readiness *ReadinessSet

	// wakeRead/wakeWrite are the ends of a self-pipe used to interrupt a
	// blocked poll(2) from RequestShutdown or an external signal bridge.
	// They are always included in the FD-interest set the loop polls.
	wakeRead, wakeWrite int

	// loopGoroutineID is the goroutine ID captured at the start of Run, used
	// by onLoopGoroutine to detect misuse from other goroutines. Zero means
	// the loop isn't running.
	loopGoroutineID atomic.Uint64

	shuttingDown atomic.Bool
	// wakeupPending latches a single outstanding self-pipe byte so
	// concurrent or repeated wakeup calls coalesce into one write.
	wakeupPending atomic.Bool

	runOnce   sync.Once
	closeOnce sync.Once
	done      chan struct{}

	consecutiveEmptyTurns int
	warnLimiter           *catrate.Limiter

	// dispatching is the task whose callback is currently executing, used to
	// resolve PriorityKeep on registrations made from within a callback. Nil
	// outside of safeExecute.
	dispatching *task
}

// New constructs a Loop. The returned Loop is not running until Run is
// called; construction sets up the self-pipe and internal stores but
// performs no blocking I/O.
func New(opts ...LoopOption) (*Loop, error) {
	cfg := resolveLoopOptions(opts)

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, WrapError("taskloop: creating wakeup pipe", err)
	}

	l := &Loop{
		opts:      cfg,
		store:     newStore(),
		readiness: NewReadinessSet(),
		wakeRead:  fds[0],
		wakeWrite: fds[1],
		done:      make(chan struct{}),
		warnLimiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second:      1,
			time.Minute:      5,
			10 * time.Minute: 1,
		}),
	}
	return l, nil
}

// Run blocks, driving the loop until a shutdown completes, ctx is
// cancelled, or a fatal error occurs. It must be called exactly once; a
// second concurrent or sequential call returns ErrLoopAlreadyRunning (or
// ErrLoopTerminated if the loop already ran to completion). Calling Run
// from within a task callback returns ErrReentrantRun.
func (l *Loop) Run(ctx context.Context) error {
	if l.onLoopGoroutine() {
		return ErrReentrantRun
	}
	if l.loopGoroutineID.Load() != 0 {
		return ErrLoopAlreadyRunning
	}

	var runErr error
	ran := false
	l.runOnce.Do(func() {
		ran = true
		l.loopGoroutineID.Store(goroutineID())
		defer l.loopGoroutineID.Store(0)
		defer close(l.done)
		runErr = l.run(ctx)
	})
	if !ran {
		return ErrLoopTerminated
	}
	return runErr
}

// run is the main turn loop: evaluate, dispatch, build a wait set, block,
// repeat, until shutdown has fully drained.
func (l *Loop) run(ctx context.Context) error {
	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.wakeup()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	// First turn: evaluate unconditionally so startup tasks and any
	// zero-delay timers registered before Run fire immediately.
	l.store.evaluate(time.Now(), readinessResult{})
	l.dispatchOnce()

	for {
		if ctx.Err() != nil && !l.shuttingDown.Load() {
			l.beginShutdown("context cancelled")
		}

		if l.shuttingDown.Load() {
			// store.beginShutdown is idempotent, which matters here: an
			// external RequestShutdown sets shuttingDown directly (it can't
			// safely touch the store off-goroutine), so this is often the
			// first call that actually tags pending tasks for shutdown.
			// Tagging alone only marks still-waiting tasks; evaluate is what
			// promotes them (forced, regardless of their own conditions) so
			// every one of them gets a turn before drainShutdown can read
			// false, all within this same iteration.
			l.store.beginShutdown()
			l.store.evaluate(time.Now(), readinessResult{})
			l.dispatchShutdown()
			if !l.store.drainShutdown() {
				return nil
			}
		}

		timeout := l.computeTimeout()
		pollFds, readable, writable, err := l.pollOnce(timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.opts.logger.Log(LogEntry{Level: LevelError, Category: "poll", Message: "readiness wait failed", Err: err})
			return &WaitError{Cause: err, OpenFDs: pollFdsToInts(pollFds)}
		}

		// Draining the self-pipe is the wakeup's entire effect; the
		// unconditional evaluate/dispatch below picks up whatever it was
		// signalling (a shutdown request or a newly-registered task).
		l.drainWakeupPipe(readable)

		_, promotedAny := l.store.evaluate(time.Now(), readinessResult{readable: readable, writable: writable})
		l.trackBusyWait(promotedAny)
		l.dispatchOnce()
	}
}

// computeTimeout returns the millisecond timeout for the next poll(2) call:
// 0 when a task is already ready (left over by a dispatch round that
// yielded), otherwise time until the nearest pending deadline, capped by
// WithPollTimeoutCap, or -1 (block indefinitely) when nothing is pending and
// no cap is set.
func (l *Loop) computeTimeout() int {
	if _, ok := l.store.maxReadyPriority(); ok {
		return 0
	}
	deadline, ok := l.store.nextDeadline()
	timeoutCap := l.opts.pollTimeoutCap

	if !ok {
		if timeoutCap <= 0 {
			return -1
		}
		return int(timeoutCap / time.Millisecond)
	}

	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	if timeoutCap > 0 && d > timeoutCap {
		d = timeoutCap
	}
	return int(d / time.Millisecond)
}

// pollOnce builds the current FD-interest set (always including the
// self-pipe's read end) and blocks in poll(2) for up to timeoutMs
// milliseconds.
func (l *Loop) pollOnce(timeoutMs int) ([]unix.PollFd, map[int]struct{}, map[int]struct{}, error) {
	l.readiness.Reset()
	l.readiness.AddRead(l.wakeRead)
	l.store.forEachWaiting(func(t *task) {
		for _, fd := range t.wantRead {
			l.readiness.AddRead(fd)
		}
		for _, fd := range t.wantWrite {
			l.readiness.AddWrite(fd)
		}
	})

	fds := l.readiness.PollFds()
	_, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		return fds, nil, nil, err
	}
	res := decodePollFds(fds)
	return fds, res.readable, res.writable, nil
}

func (l *Loop) drainWakeupPipe(readable map[int]struct{}) {
	if _, ok := readable[l.wakeRead]; !ok {
		return
	}
	var buf [64]byte
	for {
		n, err := unix.Read(l.wakeRead, buf[:])
		if n <= 0 || err != nil {
			break
		}
	}
	l.wakeupPending.Store(false)
}

// wakeup interrupts a blocked poll(2) by writing a single byte to the
// self-pipe. Safe to call from any goroutine, including concurrently with
// itself; redundant wakeups while one is already pending are coalesced.
func (l *Loop) wakeup() {
	if !l.wakeupPending.CompareAndSwap(false, true) {
		return
	}
	_, _ = unix.Write(l.wakeWrite, []byte{0})
}

// dispatchOnce runs one dispatch round over whatever is currently ready.
func (l *Loop) dispatchOnce() {
	l.store.dispatchRound(func(t *task) {
		l.safeExecute(t)
	})
}

// dispatchShutdown drains only the shutdown-priority stack.
func (l *Loop) dispatchShutdown() {
	for {
		t := l.store.popReady(PriorityShutdown)
		if t == nil {
			return
		}
		l.safeExecute(t)
	}
}

// beginShutdown transitions the loop into its terminal drain phase. It is
// idempotent; only the first call has any effect.
func (l *Loop) beginShutdown(reason string) {
	if !l.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	l.opts.logger.Log(LogEntry{Level: LevelInfo, Category: "shutdown", Message: reason})
	l.store.beginShutdown()
}

// RequestShutdown asks the loop to begin graceful shutdown: every pending
// and ready task is re-tagged with ReasonShutdown and promoted to
// PriorityShutdown, then the loop drains that stack and returns from Run.
// Safe to call from any goroutine, which is what makes it, along with
// Close, the only two methods on Loop not bound to the loop goroutine.
func (l *Loop) RequestShutdown() {
	if l.onLoopGoroutine() {
		l.beginShutdown("shutdown requested")
		return
	}
	l.shuttingDown.Store(true)
	l.wakeup()
}

// Close releases the self-pipe file descriptors. It must be called after
// Run has returned; calling it while the loop is running leaves the loop
// polling on closed descriptors.
func (l *Loop) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if e := unix.Close(l.wakeRead); e != nil {
			err = e
		}
		if e := unix.Close(l.wakeWrite); e != nil && err == nil {
			err = e
		}
	})
	return err
}

// safeExecute runs a task's callback with panic recovery, matching the
// loop's contract that one misbehaving callback can never take down the
// whole reactor.
func (l *Loop) safeExecute(t *task) {
	prev := l.dispatching
	l.dispatching = t
	defer func() { l.dispatching = prev }()

	defer func() {
		if r := recover(); r != nil {
			msg := "task callback panicked"
			if len(t.registeredAt) > 0 {
				msg += "; registered at " + formatBacktrace(t.registeredAt)
			}
			l.opts.logger.Log(LogEntry{
				Level:    LevelError,
				Category: "task",
				TaskID:   t.id,
				Message:  msg,
			})
		}
	}()
	t.callback(Context{
		ID:       t.id,
		Reason:   t.reason,
		ReadFDs:  t.matchedRead,
		WriteFDs: t.matchedWrite,
	})
}

// trackBusyWait counts consecutive turns in which nothing was promoted and
// emits a rate-limited warning past the configured threshold, guarding a
// noisy diagnostic behind a sliding-window limiter rather than suppressing
// it outright.
func (l *Loop) trackBusyWait(promotedAny bool) {
	if l.opts.busyWaitThreshold <= 0 {
		return
	}
	if promotedAny {
		l.consecutiveEmptyTurns = 0
		return
	}
	l.consecutiveEmptyTurns++
	if l.consecutiveEmptyTurns < l.opts.busyWaitThreshold {
		return
	}
	if _, ok := l.warnLimiter.Allow("busy-wait"); ok {
		l.opts.logger.Log(LogEntry{
			Level:    LevelWarn,
			Category: "poll",
			Message:  "loop has made no progress for many consecutive turns",
		})
	}
}

// onLoopGoroutine reports whether the calling goroutine is the one
// currently executing Run.
func (l *Loop) onLoopGoroutine() bool {
	id := l.loopGoroutineID.Load()
	return id != 0 && goroutineID() == id
}

// goroutineID extracts the calling goroutine's ID by parsing the prefix of
// its runtime.Stack dump, detecting cross-goroutine misuse without a
// context.Context thread down every call; it is diagnostic-only and never
// used for synchronization.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

func pollFdsToInts(fds []unix.PollFd) []int {
	out := make([]int, len(fds))
	for i, fd := range fds {
		out[i] = int(fd.Fd)
	}
	return out
}
