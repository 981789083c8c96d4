package taskloop

import "time"

// RegisterOptions carries the optional conditions a registered task can
// wait on in addition to its required callback and priority. Register
// rejects options that wait on nothing (ReadFD and WriteFD negative, no
// delay, no FD sets, no After, no OnStartup) with ErrInvalidArgument: a task
// registered with no wait condition would never be promoted to ready. Note
// that the zero value is not such a value: its ReadFD and WriteFD of 0 name
// descriptor 0.
type RegisterOptions struct {
	// Priority is the task's scheduling class. PriorityKeep inherits the
	// priority of the task currently being dispatched, or PriorityDefault
	// if called outside a callback.
	Priority Priority

	// Delay, if non-zero, gives the task a timeout condition firing at
	// time.Now().Add(Delay) (evaluated at registration time).
	// RegisterAfterDelay and RegisterNow set a timeout condition even for a
	// zero Delay.
	Delay      time.Duration
	hasTimeout bool

	// ReadFD/WriteFD, if >= 0, give the task a readiness condition on the
	// given descriptor: the single-FD fast path.
	ReadFD  int
	WriteFD int

	// ReadFDs/WriteFDs give the task a readiness condition satisfied by any
	// one of several descriptors becoming ready: the general form. Combined
	// with ReadFD/WriteFD when both are set.
	ReadFDs  []int
	WriteFDs []int

	// After, if non-zero, makes the task wait for the named task to be
	// dispatched (or cancelled) before it can run itself.
	After TaskID

	// OnStartup marks the task to run unconditionally on the loop's first
	// turn, in addition to any other condition.
	OnStartup bool
}

func (o RegisterOptions) toTask(currentPriority Priority, cb Callback) *task {
	p := o.Priority
	if p == PriorityKeep {
		p = currentPriority
	}
	t := &task{
		priority:     p,
		callback:     cb,
		heapIndex:    -1,
		runOnStartup: o.OnStartup,
	}
	if o.hasTimeout || o.Delay > 0 {
		t.hasTimeout = true
		t.deadline = time.Now().Add(o.Delay)
	}
	if o.ReadFD >= 0 {
		t.wantRead = append(t.wantRead, o.ReadFD)
	}
	t.wantRead = append(t.wantRead, o.ReadFDs...)
	if o.WriteFD >= 0 {
		t.wantWrite = append(t.wantWrite, o.WriteFD)
	}
	t.wantWrite = append(t.wantWrite, o.WriteFDs...)
	t.prereq = o.After
	return t
}

func defaultRegisterOptions() RegisterOptions {
	return RegisterOptions{Priority: PriorityDefault, ReadFD: -1, WriteFD: -1}
}

// currentPriority is the priority of the task presently executing, used to
// resolve PriorityKeep. Outside of a callback it is PriorityDefault.
func (l *Loop) currentPriority() Priority {
	if l.dispatching == nil {
		return PriorityDefault
	}
	return l.dispatching.priority
}

// CurrentReason reports the Reason bitmask that caused the currently
// executing task to be dispatched. It is meaningful only from within a
// running callback; called from anywhere else it reports the zero value.
func (l *Loop) CurrentReason() Reason {
	if l.dispatching == nil {
		return 0
	}
	return l.dispatching.reason
}

// Register schedules cb to run once every condition set in opts is
// satisfied. It returns the new task's ID, usable with Cancel or as
// another registration's After. Register must be called from the loop
// goroutine (from within a running callback, or before the first call to
// Run); calling it from any other goroutine returns ErrNotOnLoopGoroutine.
func (l *Loop) Register(cb Callback, opts RegisterOptions) (TaskID, error) {
	if cb == nil {
		return 0, l.invalidArg()
	}
	if opts.Delay < 0 {
		return 0, l.invalidArg()
	}
	if l.loopGoroutineID.Load() != 0 && !l.onLoopGoroutine() {
		return 0, ErrNotOnLoopGoroutine
	}
	if l.shuttingDown.Load() {
		return 0, ErrLoopTerminated
	}

	t := opts.toTask(l.currentPriority(), cb)
	if !t.waitsOnAnything() {
		return 0, l.invalidArg()
	}
	if l.opts.registrationBacktrace {
		t.registeredAt = captureBacktrace(1)
	}

	id := l.store.alloc(t)
	l.store.place(t)
	return id, nil
}

// RegisterWhenAnyOf schedules cb to run once any of the given conditions is
// satisfied: any FD in readFDs becoming readable, any FD in writeFDs
// becoming writable, the task named by after being dispatched or cancelled,
// or (if d > 0) d having elapsed. This is the general form behind
// RegisterOnReadable/RegisterOnWritable's single-FD fast path, for tasks
// that need to wait on several descriptors at once (e.g. "any of FD 3, 5,
// 7").
func (l *Loop) RegisterWhenAnyOf(d time.Duration, readFDs, writeFDs []int, after TaskID, priority Priority, cb Callback) (TaskID, error) {
	opts := defaultRegisterOptions()
	opts.Priority = priority
	if d > 0 {
		opts.Delay = d
		opts.hasTimeout = true
	}
	opts.ReadFDs = readFDs
	opts.WriteFDs = writeFDs
	opts.After = after
	return l.Register(cb, opts)
}

// RegisterAfterDelay schedules cb to run once d has elapsed.
func (l *Loop) RegisterAfterDelay(d time.Duration, priority Priority, cb Callback) (TaskID, error) {
	opts := defaultRegisterOptions()
	opts.Priority = priority
	opts.Delay = d
	opts.hasTimeout = true
	return l.Register(cb, opts)
}

// RegisterOnReadable schedules cb to run once fd is readable.
func (l *Loop) RegisterOnReadable(fd int, priority Priority, cb Callback) (TaskID, error) {
	opts := defaultRegisterOptions()
	opts.Priority = priority
	opts.ReadFD = fd
	return l.Register(cb, opts)
}

// RegisterOnWritable schedules cb to run once fd is writable.
func (l *Loop) RegisterOnWritable(fd int, priority Priority, cb Callback) (TaskID, error) {
	opts := defaultRegisterOptions()
	opts.Priority = priority
	opts.WriteFD = fd
	return l.Register(cb, opts)
}

// RegisterAfterTask schedules cb to run once the task named by after has
// been dispatched (or cancelled).
func (l *Loop) RegisterAfterTask(after TaskID, priority Priority, cb Callback) (TaskID, error) {
	opts := defaultRegisterOptions()
	opts.Priority = priority
	opts.After = after
	return l.Register(cb, opts)
}

// RegisterOnStartup schedules cb to run unconditionally the next time the
// loop evaluates its pending tasks, regardless of any other condition.
// Registered before Run, it fires on the loop's very first turn; registered
// from within a callback, it fires on the very next turn.
func (l *Loop) RegisterOnStartup(priority Priority, cb Callback) (TaskID, error) {
	opts := defaultRegisterOptions()
	opts.Priority = priority
	opts.OnStartup = true
	return l.Register(cb, opts)
}

// RegisterNow schedules cb to run as soon as possible: a timeout condition
// with zero delay, going through the ordinary wait-list/evaluate path like
// any other timer. A task registered this way from within a running
// callback is visible to the ready-stack scan on the loop's next turn, not
// before; use RegisterContinuation when a task must preempt the current
// dispatch round instead.
func (l *Loop) RegisterNow(priority Priority, cb Callback) (TaskID, error) {
	opts := defaultRegisterOptions()
	opts.Priority = priority
	opts.hasTimeout = true
	return l.Register(cb, opts)
}

// RegisterContinuation places cb directly onto its priority's ready stack,
// bypassing the wait list and the next evaluate pass entirely. initialReason
// seeds the Reason the callback observes via Context.Reason; ReasonStartup
// is the conventional choice for loop-bootstrap work. Because the task
// becomes visible to the ready-stack scan immediately, a callback that calls
// RegisterContinuation with a priority higher than any seen so far this
// round makes the dispatcher's continuation policy keep draining instead of
// yielding back to poll(2) — the mechanism by which a higher-priority task
// registered mid-dispatch preempts a burst of lower-priority work.
func (l *Loop) RegisterContinuation(cb Callback, initialReason Reason, priority Priority) (TaskID, error) {
	if cb == nil {
		return 0, l.invalidArg()
	}
	if l.loopGoroutineID.Load() != 0 && !l.onLoopGoroutine() {
		return 0, ErrNotOnLoopGoroutine
	}
	if l.shuttingDown.Load() {
		return 0, ErrLoopTerminated
	}

	p := priority
	if p == PriorityKeep {
		p = l.currentPriority()
	}
	t := &task{
		priority:  p,
		callback:  cb,
		heapIndex: -1,
		reason:    initialReason,
	}
	if l.opts.registrationBacktrace {
		t.registeredAt = captureBacktrace(1)
	}

	id := l.store.alloc(t)
	l.store.placeReady(t)
	return id, nil
}

// Load reports the number of tasks currently ready to run at the given
// priority, not yet dispatched. PriorityKeep resolves to the priority of the
// task currently being dispatched, or PriorityDefault outside a callback.
func (l *Loop) Load(p Priority) uint {
	if p == PriorityKeep {
		p = l.currentPriority()
	}
	return uint(l.store.ready[p].len)
}

// LoadTotal reports the number of tasks ready to run across every priority.
func (l *Loop) LoadTotal() uint {
	var total uint
	for p := 0; p < numPriorities; p++ {
		total += uint(l.store.ready[p].len)
	}
	return total
}

// Cancel removes a pending task before it has been dispatched, returning
// the callback it was registered with so the caller can decide whether to
// run, reschedule, or discard it. It returns ErrUnknownTask if id names a
// task that has already run, already been cancelled, or was never
// registered. Like Register, Cancel must be called from the loop goroutine.
func (l *Loop) Cancel(id TaskID) (Callback, error) {
	if id == 0 {
		return nil, l.invalidArg()
	}
	if l.loopGoroutineID.Load() != 0 && !l.onLoopGoroutine() {
		return nil, ErrNotOnLoopGoroutine
	}
	t := l.store.lookup(id)
	if t == nil {
		return nil, ErrUnknownTask
	}
	cb := t.callback
	l.store.remove(t)
	return cb, nil
}

func (l *Loop) invalidArg() error {
	return l.invalidArgErr(ErrInvalidArgument)
}

func (l *Loop) invalidArgErr(err error) error {
	if l.opts.strictValidation {
		panic(err)
	}
	return err
}
