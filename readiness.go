package taskloop

import (
	"sort"

	"golang.org/x/sys/unix"
)

// ReadinessSet is a growable set of file descriptors the loop is interested
// in, split into a read-interest half and a write-interest half. It is
// rebuilt from scratch from the pending stores on every turn of the loop and
// rendered to a []unix.PollFd for the blocking wait primitive.
//
// Unlike an epoll-backed poller, which maintains a persistent direct-indexed
// registration table across turns, ReadinessSet exists only for the
// duration of a single turn: there is nothing to register or unregister,
// only to build and discard.
type ReadinessSet struct {
	read  map[int]struct{}
	write map[int]struct{}
}

// NewReadinessSet returns an empty set.
func NewReadinessSet() *ReadinessSet {
	return &ReadinessSet{
		read:  make(map[int]struct{}),
		write: make(map[int]struct{}),
	}
}

// Reset empties the set for reuse, avoiding a fresh allocation each turn.
func (s *ReadinessSet) Reset() {
	for k := range s.read {
		delete(s.read, k)
	}
	for k := range s.write {
		delete(s.write, k)
	}
}

// AddRead marks fd as wanted for read-readiness.
func (s *ReadinessSet) AddRead(fd int) {
	s.read[fd] = struct{}{}
}

// AddWrite marks fd as wanted for write-readiness.
func (s *ReadinessSet) AddWrite(fd int) {
	s.write[fd] = struct{}{}
}

// Len returns the number of distinct FDs tracked across both halves.
func (s *ReadinessSet) Len() int {
	seen := make(map[int]struct{}, len(s.read)+len(s.write))
	for fd := range s.read {
		seen[fd] = struct{}{}
	}
	for fd := range s.write {
		seen[fd] = struct{}{}
	}
	return len(seen)
}

// PollFds renders the set as a []unix.PollFd suitable for unix.Poll. FDs
// requested for both read and write collapse into a single entry with both
// bits set. The result is sorted by FD to keep poll() output deterministic
// for tests.
func (s *ReadinessSet) PollFds() []unix.PollFd {
	events := make(map[int]int16, len(s.read)+len(s.write))
	for fd := range s.read {
		events[fd] |= unix.POLLIN
	}
	for fd := range s.write {
		events[fd] |= unix.POLLOUT
	}
	fds := make([]int, 0, len(events))
	for fd := range events {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	out := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		out[i] = unix.PollFd{Fd: int32(fd), Events: events[fd]}
	}
	return out
}

// readinessResult is the decoded outcome of a single poll(2) call: the set
// of FDs that became readable or writable. Error and hangup conditions have
// no separate field: POLLHUP is surfaced as read-readiness, and
// POLLERR/POLLNVAL as both read- and write-readiness, so waiting callbacks
// discover the failure via a failing read/write syscall rather than a
// separate error channel.
type readinessResult struct {
	readable map[int]struct{}
	writable map[int]struct{}
}

// decodePollFds classifies the revents of each polled entry.
func decodePollFds(fds []unix.PollFd) readinessResult {
	res := readinessResult{
		readable: make(map[int]struct{}),
		writable: make(map[int]struct{}),
	}
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		fd := int(pfd.Fd)
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			res.readable[fd] = struct{}{}
		}
		if pfd.Revents&(unix.POLLOUT|unix.POLLERR|unix.POLLNVAL) != 0 {
			res.writable[fd] = struct{}{}
		}
	}
	return res
}

func (r readinessResult) isReadable(fd int) bool {
	_, ok := r.readable[fd]
	return ok
}

func (r readinessResult) isWritable(fd int) bool {
	_, ok := r.writable[fd]
	return ok
}
