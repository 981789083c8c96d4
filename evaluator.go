package taskloop

import "time"

// evaluate re-examines every task in the wait list after a wait (a poll(2)
// return or the loop's very first turn) and promotes every newly-satisfied
// task into its priority's ready stack. It returns the highest priority
// promoted this round, and whether anything was promoted at all; the loop
// uses the latter for its busy-wait accounting. The dispatcher does not use
// either value: it reads the ready stacks directly.
//
// Every pending task, timeout or not, lives in the wait list; the timeout
// heap is consulted only by nextDeadline for computing poll(2)'s timeout,
// never walked here.
func (s *store) evaluate(now time.Time, ready readinessResult) (Priority, bool) {
	var (
		maxPromoted Priority
		promotedAny bool
	)

	promote := func(t *task, r Reason) {
		t.reason |= r
		s.promoteReady(t)
		if !promotedAny || t.priority > maxPromoted {
			maxPromoted = t.priority
		}
		promotedAny = true
	}

	readable := func(fd int) bool { return ready.isReadable(fd) }
	writable := func(fd int) bool { return ready.isWritable(fd) }
	prereqDone := func(id TaskID) bool {
		// A prerequisite is "done" once it has left the arena entirely
		// (dispatched or cancelled). A prerequisite promoted earlier in this
		// same pass is still in the arena, so it does not count yet.
		return s.lookup(id) == nil
	}

	var next *task
	for t := s.waiting.head; t != nil; t = next {
		next = t.next // t may be unlinked by promote before we advance
		r := t.satisfied(now, readable, writable, prereqDone)
		if s.shuttingDown {
			// Once shutdown has been requested, every still-waiting task is
			// forced to satisfaction: its other reason bits (if any) are
			// preserved additively, but it's promoted regardless, and
			// promoteReady routes it to PriorityShutdown because its reason
			// now includes ReasonShutdown.
			r |= ReasonShutdown
		}
		if r != 0 {
			promote(t, r)
		}
	}

	return maxPromoted, promotedAny
}
