// Package taskloop provides the single-threaded cooperative task scheduler
// at the core of a peer-to-peer framework: a reactor that multiplexes
// timers, file-descriptor readiness, task-to-task prerequisites, priority
// classes, and graceful shutdown behind one blocking wait.
//
// # Architecture
//
// A [Loop] owns an unordered wait list holding every not-yet-ready task, a
// deadline-ordered min-heap indexing the waiting tasks that carry a timeout,
// and six priority-indexed ready stacks, plus an identifier-keyed arena used
// to resolve prerequisites and cancellations by map lookup. Each turn of
// [Loop.Run]:
//
//  1. builds a read/write [ReadinessSet] and a timeout from the pending
//     stores,
//  2. blocks in the OS readiness-wait primitive,
//  3. re-evaluates every pending task against the resulting time and FD
//     readiness, promoting newly-runnable tasks into their priority's ready
//     stack,
//  4. dispatches ready tasks highest-priority-first, LIFO within a
//     priority, until nothing is ready or waiting on FDs would be pointless.
//
// # Thread model
//
// The loop is strictly single-threaded: exactly one callback runs at a
// time, and the pending stores have no internal locking. The only
// permitted cross-goroutine call is [Loop.RequestShutdown] (and the
// optional [Loop.RegisterSignals] bridge), which write a single byte to a
// self-pipe the main loop always includes in its wait set. Every other
// method — registration, cancellation, introspection — must be called
// from the loop's own goroutine, which in practice means from inside a
// task callback.
//
// # Usage
//
//	loop, err := taskloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	loop.RegisterAfterDelay(100*time.Millisecond, taskloop.PriorityDefault, func(ctx taskloop.Context) {
//	    fmt.Println("fired with reason", ctx.Reason)
//	    loop.RequestShutdown()
//	})
//
//	if err := loop.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package taskloop
