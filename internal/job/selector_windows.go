//go:build windows

package job

import "time"

// drainEvent is one read result delivered by a stream pump.
type drainEvent struct {
	j    *Job
	data []byte
	eof  bool
}

// selector is the Windows stand-in for descriptor polling: anonymous
// pipes cannot be waited on alongside an event, so each error stream gets
// a pump goroutine feeding a shared channel the worker selects on.
type selector struct {
	wake   chan struct{}
	events chan drainEvent
	done   chan struct{}
}

func newSelector() (*selector, error) {
	return &selector{
		wake:   make(chan struct{}, 1),
		events: make(chan drainEvent, 16),
		done:   make(chan struct{}),
	}, nil
}

func (s *selector) wakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *selector) close() {
	close(s.done)
}

// drainStreams starts a pump for every newly imported job and applies
// pump results until a stream drains, new jobs are handed off, or the
// timeout passes.
func (w *drainWorker) drainStreams(jobs []*Job) {
	for _, j := range jobs {
		if !j.pumping && !j.drained {
			j.pumping = true
			go pumpErrStream(j, w.sel)
		}
	}

	timer := time.NewTimer(drainSelectTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-w.sel.events:
			if ev.eof {
				ev.j.drained = true
				return
			}
			ev.j.appendError(ev.data)
		case <-w.sel.wake:
			if w.pendingHandOff() {
				return
			}
		case <-timer.C:
			return
		}
	}
}

// pumpErrStream reads one job's error stream to EOF, forwarding chunks to
// the worker.
func pumpErrStream(j *Job, s *selector) {
	buf := make([]byte, drainChunk)
	for {
		n, err := j.child.ErrStream.Read(buf)

		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.events <- drainEvent{j: j, data: chunk}:
			case <-s.done:
				return
			}
		}

		if n <= 0 || err != nil {
			select {
			case s.events <- drainEvent{j: j, eof: true}:
			case <-s.done:
			}
			return
		}
	}
}
