//go:build !windows

package job

import (
	"os"

	"golang.org/x/sys/unix"
)

// selector multiplexes readiness of error-stream descriptors together
// with a wake event. The wake event is a self-pipe: writing a byte makes
// the next (or current) poll return immediately.
type selector struct {
	wakeR *os.File
	wakeW *os.File
	fds   []unix.PollFd
}

func newSelector() (*selector, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	// Both ends are non-blocking: reads must not stall draining the wake
	// event and writes must not stall the waker when the pipe is full.
	_ = unix.SetNonblock(int(r.Fd()), true)
	_ = unix.SetNonblock(int(w.Fd()), true)
	return &selector{wakeR: r, wakeW: w}, nil
}

// reset re-arms the selector with only the wake event.
func (s *selector) reset() {
	s.fds = s.fds[:0]
	s.fds = append(s.fds, unix.PollFd{Fd: int32(s.wakeR.Fd()), Events: unix.POLLIN})
}

// add arms a descriptor for readability.
func (s *selector) add(fd uintptr) {
	s.fds = append(s.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
}

// wait blocks until something armed is ready or the timeout passes.
// Reports whether anything is ready.
func (s *selector) wait(timeoutMs int) bool {
	for {
		n, err := unix.Poll(s.fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		return err == nil && n > 0
	}
}

// ready reports whether the descriptor has data (or hangup/error, which a
// read will surface).
func (s *selector) ready(fd uintptr) bool {
	for i := range s.fds {
		if s.fds[i].Fd == int32(fd) {
			return s.fds[i].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
		}
	}
	return false
}

// wakeReady reports whether the wake event fired.
func (s *selector) wakeReady() bool {
	return s.ready(s.wakeR.Fd())
}

// drainWake resets the wake event.
func (s *selector) drainWake() {
	var buf [16]byte
	for {
		n, err := s.wakeR.Read(buf[:])
		if n < len(buf) || err != nil {
			return
		}
	}
}

// wakeUp signals the wake event.
func (s *selector) wakeUp() {
	_, _ = s.wakeW.Write([]byte{0})
}

func (s *selector) close() {
	_ = s.wakeR.Close()
	_ = s.wakeW.Close()
}

// drainStreams transfers bytes from every ready error stream into its
// job's buffers, marking streams that hit EOF as drained. It returns to
// let the worker refresh its list when a stream drained, new jobs were
// handed off, or nothing was ready within the timeout.
func (w *drainWorker) drainStreams(jobs []*Job) {
	w.sel.reset()
	for _, j := range jobs {
		w.sel.add(j.child.ErrStream.Fd())
	}

	buf := make([]byte, drainChunk)
	for w.sel.wait(int(drainSelectTimeout.Milliseconds())) {
		needUpdate := len(jobs) == 0

		if w.sel.wakeReady() {
			w.sel.drainWake()
		}

		for _, j := range jobs {
			if j.drained {
				// The refresh drops jobs which are done, allowing them to
				// be freed; keeping them here would pin them forever.
				needUpdate = true
				continue
			}
			if !w.sel.ready(j.child.ErrStream.Fd()) {
				continue
			}

			n, err := j.child.ErrStream.Read(buf)
			if n > 0 {
				j.appendError(buf[:n])
			}
			if n <= 0 || err != nil {
				// EOF or some error.
				j.drained = true
				needUpdate = true
			}
		}

		if !needUpdate {
			needUpdate = w.pendingHandOff()
		}
		if needUpdate {
			return
		}
	}
}
