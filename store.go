package taskloop

import (
	"container/heap"
	"time"
)

// store is the scheduler's complete set of pending and ready tasks: an
// unordered doubly-linked wait list holding every task that hasn't yet been
// promoted, a deadline-ordered min-heap indexing the subset of those tasks
// that also carry a timeout (used only to answer "what's the next
// deadline?" in O(log n) instead of scanning the wait list), six LIFO ready
// stacks indexed by priority, and an identifier-keyed arena that makes
// cancellation and prerequisite lookup O(1) regardless of which of the
// other structures currently owns the task.
//
// This is the arena-backed alternative representation the scheduler uses in
// place of a linear scan over every pending task: every operation that
// would otherwise walk a list to find a task by ID instead does a single
// map lookup and then unlinks the node from whichever list owns it. A task
// with both a timeout and an FD condition lives in exactly one ownership
// list (the wait list) plus the timeout heap's index; the heap never claims
// ownership, so there is never a conflict over which list a task belongs to.
type store struct {
	arena  map[TaskID]*task
	nextID TaskID

	timeouts timeoutHeap
	waiting  waitList
	ready    [numPriorities]readyStack

	// shuttingDown, once set by beginShutdown, makes every subsequent
	// evaluate pass treat every still-waiting task as satisfied (with
	// ReasonShutdown folded into whatever other reasons it discovers), so
	// promotion to PriorityShutdown happens through the ordinary evaluator
	// path rather than a special-cased direct move.
	shuttingDown bool
}

func newStore() *store {
	return &store{
		arena: make(map[TaskID]*task),
	}
}

// alloc assigns a fresh TaskID and inserts t into the arena. It does not
// place t into any pending store; callers do that afterward based on t's
// wait conditions.
func (s *store) alloc(t *task) TaskID {
	s.nextID++
	t.id = s.nextID
	s.arena[t.id] = t
	return t.id
}

// lookup returns the task for id, or nil if it is unknown (already
// dispatched, cancelled, or never registered).
func (s *store) lookup(id TaskID) *task {
	return s.arena[id]
}

// forget removes t from the arena entirely. Callers must unlink t from
// whichever pending store owns it first.
func (s *store) forget(t *task) {
	delete(s.arena, t.id)
}

// place inserts a freshly-registered task into the wait list, additionally
// indexing it in the timeout heap if it carries a timeout condition.
// Register's waitsOnAnything check (made before this) already guarantees t
// waits on at least one condition.
func (s *store) place(t *task) {
	s.waiting.pushBack(t)
	if t.hasTimeout {
		heap.Push(&s.timeouts, t)
	}
}

// unindexTimeout removes t from the timeout heap if it is indexed there.
// Safe to call on a task with no timeout.
func (s *store) unindexTimeout(t *task) {
	if t.hasTimeout && t.heapIndex >= 0 {
		heap.Remove(&s.timeouts, t.heapIndex)
		t.heapIndex = -1
	}
}

// remove unlinks t from whichever pending or ready store currently owns it
// (and from the timeout heap index, if present), then removes it from the
// arena. Safe to call unconditionally from Cancel.
func (s *store) remove(t *task) {
	switch t.pendingKind {
	case pendingWait:
		s.waiting.unlink(t)
		s.unindexTimeout(t)
	case pendingReady:
		s.ready[t.priority].unlink(t)
	}
	t.pendingKind = pendingNone
	s.forget(t)
}

// promoteReady moves t out of the wait list (and out of the timeout heap
// index, if present) into its priority's ready stack. A task whose reason
// already includes ReasonShutdown is routed to PriorityShutdown instead of
// its registered priority, regardless of what that priority was.
func (s *store) promoteReady(t *task) {
	if t.pendingKind == pendingWait {
		s.waiting.unlink(t)
		s.unindexTimeout(t)
	}
	if t.reason.Has(ReasonShutdown) {
		t.priority = PriorityShutdown
	}
	s.ready[t.priority].push(t)
	t.pendingKind = pendingReady
}

// placeReady inserts a task directly into its priority's ready stack,
// bypassing the wait list entirely. Used by RegisterContinuation to let a
// running callback hand off work that must be visible to the current
// dispatch round's continuation check rather than waiting for the next
// evaluate pass. Like promoteReady, a task whose reason already includes
// ReasonShutdown is routed to PriorityShutdown regardless of its requested
// priority.
func (s *store) placeReady(t *task) {
	if t.reason.Has(ReasonShutdown) {
		t.priority = PriorityShutdown
	}
	s.ready[t.priority].push(t)
	t.pendingKind = pendingReady
}

// nextDeadline reports the earliest pending timeout, if any.
func (s *store) nextDeadline() (time.Time, bool) {
	if s.timeouts.Len() == 0 {
		return time.Time{}, false
	}
	return s.timeouts[0].deadline, true
}

// hasPending reports whether any task is waiting on an FD, prerequisite, or
// timeout (i.e. not yet ready to run).
func (s *store) hasPending() bool {
	return s.waiting.len > 0
}

// maxReadyPriority returns the highest priority with a non-empty ready
// stack, and whether any stack is non-empty at all.
func (s *store) maxReadyPriority() (Priority, bool) {
	for p := numPriorities - 1; p >= 0; p-- {
		if s.ready[p].len > 0 {
			return Priority(p), true
		}
	}
	return 0, false
}

// popReady pops the top (most recently promoted) task of the given
// priority's stack, or nil if empty.
func (s *store) popReady(p Priority) *task {
	t := s.ready[p].pop()
	if t != nil {
		t.pendingKind = pendingNone
		s.forget(t)
	}
	return t
}

// forEachWaiting calls fn for every task currently in the wait list, so the
// caller can build a ReadinessSet from their wanted FDs.
func (s *store) forEachWaiting(fn func(*task)) {
	for t := s.waiting.head; t != nil; t = t.next {
		fn(t)
	}
}

// --- timeout min-heap, container/heap.Interface -----------------------------
//
// This heap only ever indexes tasks already owned by the wait list; it
// never sets pendingKind and is never the sole reason a task is reachable.

type timeoutHeap []*task

func (h timeoutHeap) Len() int { return len(h) }

func (h timeoutHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }

func (h timeoutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timeoutHeap) Push(x any) {
	t := x.(*task)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *timeoutHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}

// --- wait list, intrusive doubly-linked list --------------------------------

type waitList struct {
	head, tail *task
	len        int
}

func (l *waitList) pushBack(t *task) {
	t.pendingKind = pendingWait
	t.prev, t.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = t
	} else {
		l.head = t
	}
	l.tail = t
	l.len++
}

func (l *waitList) unlink(t *task) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		l.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		l.tail = t.prev
	}
	t.prev, t.next = nil, nil
	l.len--
}

// --- ready LIFO stack, intrusive singly-linked via next ---------------------

type readyStack struct {
	top *task
	len int
}

func (s *readyStack) push(t *task) {
	t.next = s.top
	t.prev = nil
	s.top = t
	s.len++
}

func (s *readyStack) pop() *task {
	t := s.top
	if t == nil {
		return nil
	}
	s.top = t.next
	t.next = nil
	s.len--
	return t
}

// unlink removes an arbitrary node from the stack (needed for cancellation
// of a task that's already been promoted to ready but not yet dispatched).
// O(n) in the stack depth, which is acceptable: cancellation of an
// already-ready task is rare relative to the steady-state push/pop path.
func (s *readyStack) unlink(t *task) {
	if s.top == t {
		s.top = t.next
		t.next = nil
		s.len--
		return
	}
	for cur := s.top; cur != nil; cur = cur.next {
		if cur.next == t {
			cur.next = t.next
			t.next = nil
			s.len--
			return
		}
	}
}
