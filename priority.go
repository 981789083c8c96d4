package taskloop

// Priority is the scheduling class of a task. Lower values are drained
// only when nothing of a higher value is ready.
type Priority uint8

const (
	// PriorityIdle runs only when no higher-priority task is ready.
	PriorityIdle Priority = iota
	// PriorityBackground is for long-running, low-importance work.
	PriorityBackground
	// PriorityDefault is the priority most tasks should register at.
	PriorityDefault
	// PriorityHigh is for latency-sensitive work that shouldn't wait behind defaults.
	PriorityHigh
	// PriorityUrgent preempts everything except shutdown.
	PriorityUrgent
	// PriorityShutdown is the priority the shutdown broadcaster (C6) assigns to
	// every task it tags. The registration calls do not reject it: a task
	// registered with it is stored and dispatched at this priority.
	PriorityShutdown

	// numPriorities is the number of priorities that are actually stored in a ready
	// queue slot. PriorityKeep is deliberately excluded: it is a registration-time
	// sentinel only, normalized away before a task record is ever stored.
	numPriorities = int(PriorityShutdown) + 1

	// PriorityKeep is a registration-time shorthand meaning "inherit the priority of
	// the task currently running". It is normalized to a concrete priority before
	// the task record is constructed and must never be observed on a stored task.
	PriorityKeep Priority = 255
)

// String returns a human-readable name for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "IDLE"
	case PriorityBackground:
		return "BACKGROUND"
	case PriorityDefault:
		return "DEFAULT"
	case PriorityHigh:
		return "HIGH"
	case PriorityUrgent:
		return "URGENT"
	case PriorityShutdown:
		return "SHUTDOWN"
	case PriorityKeep:
		return "KEEP"
	default:
		return "UNKNOWN"
	}
}
