package taskloop

import (
	"os"
	"os/signal"
)

// RegisterSignals starts a background goroutine that calls RequestShutdown
// when any of sigs is received, and returns a function that stops the
// signal relay. It is the one ambient helper beyond RequestShutdown itself
// that's allowed to touch a Loop from outside its own goroutine, since
// os/signal notifications necessarily arrive on a goroutine the runtime
// owns, not one the caller controls.
func (l *Loop) RegisterSignals(sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})

	go func() {
		select {
		case <-ch:
			l.RequestShutdown()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
