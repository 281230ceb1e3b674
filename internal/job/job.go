package job

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/filestorm/internal/spawn"
)

// Kind classifies background jobs.
type Kind int

const (
	// KindCommand is an external child process.
	KindCommand Kind = iota
	// KindTask is an in-process worker for auxiliary work; not shown on
	// the progress bar.
	KindTask
	// KindOperation is an in-process worker for important work; shown on
	// the progress bar.
	KindOperation
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindTask:
		return "task"
	case KindOperation:
		return "operation"
	default:
		return "unknown"
	}
}

// NoPid is the process id of jobs that run in-process.
const NoPid = -1

// ExitFunc is invoked by the sweep exactly once after a job has stopped,
// before the job is removed from the registry.
type ExitFunc func(j *Job)

// TaskFunc is the body of a task or operation worker.
type TaskFunc func(op *Op)

// ErrErrorsPending is returned by WaitErrors when the drain worker still
// holds the job's error stream at the deadline.
var ErrErrorsPending = errors.New("job error stream is still being drained")

// ErrNotCommand is returned by operations that apply to external commands
// only.
var ErrNotCommand = errors.New("job is not an external command")

// Job is one tracked unit of background work.
//
// Field ownership is strict: registry linkage and cancellation of
// commands belong to the foreground goroutine, the drained flag belongs
// to the drain worker while it holds the job, and the shared status and
// error buffers are guarded by their locks.
type Job struct {
	// ID uniquely identifies the job.
	ID string

	// Kind tells commands, tasks and operations apart. Immutable.
	Kind Kind

	// Cmd is the human-readable description: the command line for
	// commands, a short description otherwise. Immutable.
	Cmd string

	pid   int
	child *spawn.Child

	// Foreground-goroutine fields.
	inMenu     bool
	onJobBar   bool
	exitCb     ExitFunc
	skipErrors bool
	cancelled  bool

	// Drain-worker fields, valid while the worker holds the job.
	drained bool
	pumping bool

	// hasErrStream records whether the job ever had an error stream.
	hasErrStream bool

	statusMu sync.Mutex
	running  bool
	exitCode int
	useCount int
	erroring bool

	errorsMu  sync.Mutex
	errors    []byte
	newErrors []byte

	// Exit status recorded by the wait goroutine (commands only).
	exited   atomic.Bool
	waitCode atomic.Int32
	done     chan struct{}

	withOp bool
	op     Op

	reg *Registry
}

// Op returns the job's progress record, or nil when the job has none.
func (j *Job) Op() *Op {
	if !j.withOp {
		return nil
	}
	return &j.op
}

// InMenu reports whether the job is listed in the jobs menu.
func (j *Job) InMenu() bool { return j.inMenu }

// Input returns the writable stream supplied to the child, or nil.
func (j *Job) Input() *os.File {
	if j.child == nil {
		return nil
	}
	return j.child.Input
}

// Output returns the readable stream captured from the child, or nil.
func (j *Job) Output() *os.File {
	if j.child == nil {
		return nil
	}
	return j.child.Output
}

// Errors returns everything the job has written to its error stream so
// far.
func (j *Job) Errors() string {
	j.errorsMu.Lock()
	defer j.errorsMu.Unlock()
	return string(j.errors)
}

// ExitCode returns the job's exit code; meaningful only once the job has
// stopped. Negative means not determined.
func (j *Job) ExitCode() int {
	j.statusMu.Lock()
	defer j.statusMu.Unlock()
	return j.exitCode
}

// SetExitCallback installs a callback the sweep runs once after the job
// has stopped. Foreground goroutine only.
func (j *Job) SetExitCallback(cb ExitFunc) {
	j.exitCb = cb
}

// IsRunning reports whether the job is still running, consuming a newly
// recorded exit status if there is one.
func (j *Job) IsRunning() bool {
	j.statusMu.Lock()
	running := j.running
	j.statusMu.Unlock()
	return running && j.updateStatus()
}

// WasKilled reports whether the job has stopped with a determined exit
// code.
func (j *Job) WasKilled() bool {
	j.statusMu.Lock()
	defer j.statusMu.Unlock()
	return !j.running && j.exitCode >= 0
}

// Cancel asks the job to stop: external commands receive a polite
// terminate signal, tasks and operations have their cancellation flag
// raised. Reports whether the job was newly cancelled.
func (j *Job) Cancel() bool {
	if j.Kind != KindCommand {
		return !j.op.cancel()
	}

	was := j.cancelled
	if err := j.child.SoftCancel(); err == nil {
		j.cancelled = true
	} else {
		j.reg.log.Warn("failed to cancel job %d: %v", j.pid, err)
	}
	return !was
}

// Cancelled reports whether cancellation was requested for the job.
func (j *Job) Cancelled() bool {
	if j.Kind != KindCommand {
		return j.op.Cancelled()
	}
	return j.cancelled
}

// Terminate forcibly kills a running external command. It never waits for
// the child to die.
func (j *Job) Terminate() {
	if j.Kind != KindCommand || !j.IsRunning() {
		return
	}
	if err := j.child.Terminate(); err != nil {
		j.reg.log.Error("failed to terminate job %d: %v", j.pid, err)
	}
}

// Wait blocks until the external command exits and records its status.
// The job's input and output streams are closed first so the child cannot
// stay blocked on them.
func (j *Job) Wait() error {
	if j.Kind != KindCommand {
		return ErrNotCommand
	}
	if !j.IsRunning() {
		return nil
	}

	j.child.CloseInput()
	j.child.CloseOutput()

	<-j.done
	j.markFinished(int(j.waitCode.Load()))
	return nil
}

// WaitErrors waits until the drain worker has released the job's error
// stream. The wait is bounded; ErrErrorsPending is returned when the
// worker still holds the stream at the deadline, which indicates either a
// heavily loaded system or a job accounting bug.
func (j *Job) WaitErrors() error {
	const (
		sleep    = 50 * time.Microsecond
		maxSleep = 50 * time.Millisecond
	)

	if !j.hasErrStream || j.IsRunning() {
		return nil
	}

	// Active polling with a sleep avoids a per-job condition variable for
	// a rare code path.
	erroring := true
	for i := 0; i < int(maxSleep/sleep) && erroring; i++ {
		erroring = j.isErroring()
		if erroring {
			j.reg.drain.wakeUp()
			time.Sleep(sleep)
		}
	}

	if erroring {
		return ErrErrorsPending
	}
	return nil
}

// IncRef adds an extra hold on the job beyond registry ownership.
func (j *Job) IncRef() {
	j.statusMu.Lock()
	j.useCount++
	j.statusMu.Unlock()
}

// DecRef drops a hold added by IncRef.
func (j *Job) DecRef() {
	j.statusMu.Lock()
	j.useCount--
	if j.useCount < 0 {
		j.statusMu.Unlock()
		panic("excessive Job.DecRef call")
	}
	j.statusMu.Unlock()
}

// waitLoop records the child's exit status once the OS reports it. It is
// the only caller of the underlying process wait.
func (j *Job) waitLoop() {
	code := j.child.Wait()
	j.waitCode.Store(int32(code))
	j.exited.Store(true)
	close(j.done)
}

// updateStatus consumes an exit status recorded by the wait goroutine.
// Returns whether the job should be considered still running. In-process
// jobs never pass through the OS-wait path: their bootstrap marks them
// finished, so for them this reports "still running" unconditionally.
func (j *Job) updateStatus() bool {
	if j.pid == NoPid {
		return true
	}
	if !j.exited.Load() {
		return true
	}
	j.markFinished(int(j.waitCode.Load()))
	return false
}

// markFinished transitions the job to the stopped state.
func (j *Job) markFinished(exitCode int) {
	j.statusMu.Lock()
	j.running = false
	j.exitCode = exitCode
	j.statusMu.Unlock()
}

// appendError adds a chunk of error output to both the complete and the
// not-yet-shown buffers.
func (j *Job) appendError(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	j.errorsMu.Lock()
	j.errors = append(j.errors, chunk...)
	j.newErrors = append(j.newErrors, chunk...)
	j.errorsMu.Unlock()
}

// takeNewErrors transfers ownership of the not-yet-shown error buffer to
// the caller.
func (j *Job) takeNewErrors() []byte {
	j.errorsMu.Lock()
	chunk := j.newErrors
	j.newErrors = nil
	j.errorsMu.Unlock()
	return chunk
}

func (j *Job) isErroring() bool {
	j.statusMu.Lock()
	defer j.statusMu.Unlock()
	return j.erroring
}

// releaseDrainHold is called by the drain worker when it drops the job
// from its private list.
func (j *Job) releaseDrainHold() {
	j.statusMu.Lock()
	j.useCount--
	j.erroring = false
	j.statusMu.Unlock()
}

// free releases every resource held for the job. Foreground goroutine
// only, and only once the job has stopped with no holds left.
func (j *Job) free() {
	if j.child != nil {
		j.child.Release()
	}
}
