package taskloop

import "time"

// TaskID identifies a registered task for cancellation and prerequisite
// chaining. The zero value never names a live task.
type TaskID uint64

// Context is passed to a task callback at dispatch time.
type Context struct {
	// ID is the identifier of the task being run.
	ID TaskID
	// Reason is the accumulated set of conditions that caused this dispatch.
	Reason Reason
	// ReadFDs and WriteFDs list the subset of the task's wanted FDs (if any)
	// that were actually found ready at promotion time; nil when the
	// dispatch wasn't FD-driven (a pure timeout, prerequisite, or startup
	// firing) or when the task registered no FDs in that direction.
	ReadFDs  []int
	WriteFDs []int
}

// Callback is a task's body. It runs to completion without interruption: the
// loop never preempts a running callback.
type Callback func(Context)

// task is the internal record for one registered unit of work. Tasks are
// intrusive doubly-linked list nodes: the same struct value lives in at most
// one of the wait list or a priority ready stack at a time, threaded through
// prev/next. A task with a timeout condition is additionally indexed (but
// not owned) by the timeout min-heap via heapIndex.
type task struct {
	id       TaskID
	priority Priority
	callback Callback

	// deadline is the absolute fire time for a timeout wait; zero means no
	// timeout condition applies.
	deadline   time.Time
	hasTimeout bool

	// wantRead/wantWrite are the readiness sets this task is waiting on: the
	// general form holds any number of FDs ("any of FD 3, 5, 7"), and the
	// single-FD fast path (RegisterOnReadable/RegisterOnWritable) is just a
	// one-element set. Nil means no condition in that direction.
	wantRead  []int
	wantWrite []int

	// matchedRead/matchedWrite are filled in by satisfied() with the subset
	// of wantRead/wantWrite found ready this round, surfaced to the callback
	// via Context.ReadFDs/WriteFDs.
	matchedRead  []int
	matchedWrite []int

	// prereq is the task ID this task waits behind, or 0 for none.
	prereq TaskID

	// runOnStartup marks a task dispatched unconditionally the next time the
	// loop evaluates pending tasks, regardless of its other wait conditions.
	runOnStartup bool

	// reason accumulates dispatch causes; see Reason's doc comment for why
	// this is monotonic.
	reason Reason

	// registeredAt is an abbreviated call-site trace captured at
	// registration time when WithRegistrationBacktrace is enabled; nil
	// otherwise. Surfaced in the panic diagnostic logged by safeExecute.
	registeredAt []uintptr

	// list linkage, reused across whichever list currently owns this node.
	prev, next *task

	// pendingKind records which pending store currently owns this node, so
	// removal (cancellation, promotion) doesn't need to search every store.
	pendingKind pendingKind

	// heapIndex is this task's position in the timeout min-heap, maintained
	// by container/heap. -1 when the task has no timeout condition or has
	// already been unindexed (promoted, cancelled, or dispatched).
	heapIndex int
}

// pendingKind identifies which store a task is currently linked into.
type pendingKind uint8

const (
	pendingNone pendingKind = iota
	pendingWait
	pendingReady
)

// satisfied reports whether the given global conditions are enough to fire
// this task, independent of what's already in t.reason. now is compared
// against deadline; prereqDone reports whether this task's prerequisite (if
// any) has already been dispatched this run.
func (t *task) satisfied(now time.Time, readable, writable func(fd int) bool, prereqDone func(TaskID) bool) Reason {
	var r Reason
	if t.runOnStartup {
		r |= ReasonStartup
	}
	if t.hasTimeout && !now.Before(t.deadline) {
		r |= ReasonTimeout
	}
	if m := matchReady(t.wantRead, readable); len(m) > 0 {
		t.matchedRead = m
		r |= ReasonReadReady
	}
	if m := matchReady(t.wantWrite, writable); len(m) > 0 {
		t.matchedWrite = m
		r |= ReasonWriteReady
	}
	if t.prereq != 0 && prereqDone(t.prereq) {
		r |= ReasonPrereqDone
	}
	return r
}

// matchReady returns the subset of fds for which ready reports true, or nil
// if none do (and none allocated, in the common no-match case).
func matchReady(fds []int, ready func(fd int) bool) []int {
	var matched []int
	for _, fd := range fds {
		if ready(fd) {
			matched = append(matched, fd)
		}
	}
	return matched
}

// waitsOnAnything reports whether the task has any registered wait
// condition at all. A task with none is a programmer error caught at
// registration time (ErrInvalidArgument), never reached here in practice.
func (t *task) waitsOnAnything() bool {
	return t.runOnStartup || t.hasTimeout || len(t.wantRead) > 0 || len(t.wantWrite) > 0 || t.prereq != 0
}
