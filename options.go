package taskloop

import "time"

// loopOptions holds configuration resolved at Loop construction time.
type loopOptions struct {
	logger                Logger
	busyWaitThreshold     int
	registrationBacktrace bool
	strictValidation      bool
	pollTimeoutCap        time.Duration
}

// LoopOption configures a Loop returned by New.
type LoopOption interface {
	applyLoop(*loopOptions)
}

type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions)
}

func (o *loopOptionImpl) applyLoop(opts *loopOptions) { o.applyLoopFunc(opts) }

// WithLogger sets the Logger the loop reports diagnostics to. The default
// is NewNoOpLogger.
func WithLogger(logger Logger) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) {
		opts.logger = logger
	}}
}

// WithBusyWaitThreshold sets how many consecutive zero-work turns (turns in
// which the evaluation pass after poll(2) promotes no task, however long the
// poll blocked) the loop tolerates before emitting a rate-limited warning
// through its logger. The loop does not sleep or otherwise back off when the
// threshold is reached. A value of 0 disables the warning. Default is 1000.
func WithBusyWaitThreshold(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) {
		opts.busyWaitThreshold = n
	}}
}

// WithRegistrationBacktrace captures an abbreviated call-site stack at every
// registration call and attaches it to the task, so a callback that later
// panics can be logged alongside where it was originally scheduled from. Off
// by default: it allocates on every registration.
func WithRegistrationBacktrace(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) {
		opts.registrationBacktrace = enabled
	}}
}

// WithStrictValidation makes programmer errors (a nil callback, a negative
// delay, cancelling task 0) panic immediately instead of being returned as
// ErrInvalidArgument. Useful in tests and during development.
func WithStrictValidation(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) {
		opts.strictValidation = enabled
	}}
}

// WithPollTimeoutCap bounds how long a single poll(2) call is allowed to
// block even when no timeout task is pending, so the loop periodically
// wakes to service its busy-wait accounting. Default is 1 second; pass 0 to
// block indefinitely when nothing is pending.
func WithPollTimeoutCap(d time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) {
		opts.pollTimeoutCap = d
	}}
}

func resolveLoopOptions(opts []LoopOption) *loopOptions {
	cfg := &loopOptions{
		logger:            NewNoOpLogger(),
		busyWaitThreshold: 1000,
		pollTimeoutCap:    time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyLoop(cfg)
	}
	return cfg
}
