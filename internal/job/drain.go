package job

import (
	"sync"
	"time"
)

const (
	// drainChunk is how much error output a single read transfers.
	drainChunk = 1024

	// drainSelectTimeout bounds one readiness wait so the worker
	// periodically rechecks its job list.
	drainSelectTimeout = 250 * time.Millisecond
)

// drainWorker is the background actor that reads the error streams of all
// live external-command jobs until EOF. It owns a private sublist of jobs;
// entries arrive through a hand-off list written by the foreground
// goroutine and leave once their stream is drained. The worker never
// closes streams and never touches the registry: it only transfers bytes
// into job buffers and lowers its hold when done.
type drainWorker struct {
	reg *Registry

	mu      sync.Mutex
	cond    *sync.Cond
	handoff []*Job
	quit    bool

	sel *selector

	finished chan struct{}
}

// newDrainWorker creates the worker's wake event and starts it.
func newDrainWorker(reg *Registry) (*drainWorker, error) {
	sel, err := newSelector()
	if err != nil {
		return nil, err
	}

	w := &drainWorker{
		reg:      reg,
		sel:      sel,
		finished: make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	go w.run()
	return w, nil
}

// handOff passes a newly created command job to the worker. The job's
// hold (use count, erroring flag) has already been taken by the caller.
func (w *drainWorker) handOff(j *Job) {
	w.mu.Lock()
	w.handoff = append(w.handoff, j)
	w.mu.Unlock()
	w.cond.Signal()
	w.sel.wakeUp()
}

// wakeUp interrupts the worker's readiness wait.
func (w *drainWorker) wakeUp() {
	w.sel.wakeUp()
}

// stop terminates the worker and waits for it to exit.
func (w *drainWorker) stop() {
	w.mu.Lock()
	w.quit = true
	w.mu.Unlock()
	w.cond.Broadcast()
	w.sel.wakeUp()
	<-w.finished
}

func (w *drainWorker) run() {
	defer close(w.finished)
	defer w.sel.close()

	var jobs []*Job
	for {
		jobs = w.refresh(jobs)
		if w.stopped() {
			// Drop every remaining hold so held jobs can still be swept.
			for _, j := range jobs {
				j.releaseDrainHold()
			}
			return
		}
		w.drainStreams(jobs)
	}
}

// refresh drops drained jobs and imports newly handed-off ones, blocking
// while there is nothing to watch.
func (w *drainWorker) refresh(jobs []*Job) []*Job {
	// Drop jobs whose stream saw EOF or an error; we will not get
	// anything more out of them.
	kept := jobs[:0]
	for _, j := range jobs {
		if j.drained {
			j.releaseDrainHold()
			continue
		}
		kept = append(kept, j)
	}
	jobs = kept

	w.mu.Lock()
	for len(jobs) == 0 && len(w.handoff) == 0 && !w.quit {
		w.cond.Wait()
	}
	incoming := w.handoff
	w.handoff = nil
	w.mu.Unlock()

	for _, j := range incoming {
		if j.Kind != KindCommand {
			panic("only external commands have error streams")
		}
		j.drained = false
		jobs = append(jobs, j)
	}
	return jobs
}

// pendingHandOff reports whether new jobs await import.
func (w *drainWorker) pendingHandOff() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.handoff) != 0 || w.quit
}

func (w *drainWorker) stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.quit
}
