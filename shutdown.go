package taskloop

// beginShutdown ORs ReasonShutdown into every task in every store, matching
// the rule that reason transitions are monotonic and only ever discovered
// additively. Still-pending (wait-list) tasks are deliberately *not* moved
// here: the next evaluate pass promotes them, routed to PriorityShutdown by
// promoteReady because their reason now includes ReasonShutdown. Tasks
// already sitting in a non-shutdown ready stack won't pass through evaluate
// again before being dispatched, so those are migrated to the shutdown
// stack directly — otherwise dispatchShutdown, which only drains
// PriorityShutdown, would never reach them and the loop would never
// terminate.
//
// This is a one-way transition: once called, the loop eventually only
// drains PriorityShutdown and then terminates, regardless of what any
// shutdown-phase callback registers (new registrations during shutdown are
// rejected with ErrLoopTerminated by the public API, not fed back into this
// store).
func (s *store) beginShutdown() {
	s.shuttingDown = true

	for t := s.waiting.head; t != nil; t = t.next {
		t.reason |= ReasonShutdown
	}

	for p := 0; p < int(PriorityShutdown); p++ {
		stack := &s.ready[p]
		for stack.len > 0 {
			t := stack.pop()
			t.reason |= ReasonShutdown
			t.priority = PriorityShutdown
			s.ready[PriorityShutdown].push(t)
		}
	}
}

// drainShutdown reports whether any shutdown-priority task remains ready.
// The loop calls popReady(PriorityShutdown) in a loop guarded by this until
// it returns false, then terminates.
func (s *store) drainShutdown() bool {
	return s.ready[PriorityShutdown].len > 0
}
