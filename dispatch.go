package taskloop

// dispatchRound drains ready tasks highest-priority-first, LIFO within a
// priority, invoking run for each. It implements the scheduler's
// continuation policy: keep draining within this round while
//
//	(ready tasks exist AND no pending tasks exist)
//	OR (the highest priority currently ready is >= the highest priority
//	    dispatched so far this round)
//
// and yield back to the caller (so the main loop can re-poll) otherwise.
// This lets a burst of same-or-higher-priority work drain without
// revisiting poll(2), while still giving lower-priority pending work a
// chance to be (re-)evaluated once nothing outranks it.
//
// dispatchRound runs no evaluate pass itself. It reads only the ready
// stacks (via maxReadyPriority) and hasPending, so a task a callback places
// directly on a ready stack (RegisterContinuation) is seen on the next
// iteration, while one placed on the wait list waits for the next turn.
func (s *store) dispatchRound(run func(*task)) {
	var maxSeen Priority
	sawAny := false

	for {
		p, ok := s.maxReadyPriority()
		if !ok {
			return
		}
		if sawAny && p < maxSeen && s.hasPending() {
			// Something outranking nothing new arrived, and there's still
			// pending work that deserves a chance to be (re-)evaluated
			// before we keep burning through lower-priority ready work.
			return
		}
		if !sawAny || p > maxSeen {
			maxSeen = p
		}
		sawAny = true

		t := s.popReady(p)
		if t == nil {
			continue
		}
		run(t)
	}
}
