package job

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/filestorm/internal/spawn"
)

// Flags adjust how an external command job is launched and presented.
type Flags uint

const (
	// FlagNone requests default behavior.
	FlagNone Flags = 0

	// FlagKeepInFG keeps the child attached to the controlling terminal.
	FlagKeepInFG Flags = 1 << iota

	// FlagSupplyInput pipes the child's stdin from the parent.
	FlagSupplyInput

	// FlagCaptureOut pipes the child's stdout back to the parent.
	FlagCaptureOut

	// FlagMergeStreams duplicates the child's stderr onto its stdout
	// pipe. Only meaningful with FlagCaptureOut; such a job has no error
	// stream and never reaches the drain worker.
	FlagMergeStreams

	// FlagJobBarVisible places the job on the progress bar.
	FlagJobBarVisible

	// FlagMenuVisible lists the job in the jobs menu.
	FlagMenuVisible
)

// Options configures a Registry.
type Options struct {
	// Hooks is the UI surface. Nil means no UI.
	Hooks Hooks

	// Log receives diagnostics. Nil discards them.
	Log Logger

	// Shell is the shell for external commands. Empty selects the
	// platform default.
	Shell string

	// ShellCmdFlag is the user shell's command flag.
	ShellCmdFlag string

	// FastRun optionally expands an abbreviated command line before
	// RunExternal launches it.
	FastRun func(cmdline string) (string, error)
}

// Registry tracks all live background jobs. The job list is owned by the
// foreground goroutine: launching jobs, sweeping and freeing all happen
// there. Workers only ever touch the shared per-job state through its
// locks.
type Registry struct {
	hooks Hooks
	log   Logger

	shell        string
	shellCmdFlag string
	fastRun      func(string) (string, error)

	jobs     []*Job
	checking atomic.Bool
	jobCount int

	drain  *drainWorker
	closed bool
}

// New creates a registry and starts its drain worker.
func New(opts Options) (*Registry, error) {
	r := &Registry{
		hooks:        opts.Hooks,
		log:          opts.Log,
		shell:        opts.Shell,
		shellCmdFlag: opts.ShellCmdFlag,
		fastRun:      opts.FastRun,
		jobCount:     -1,
	}
	if r.hooks == nil {
		r.hooks = NopHooks{}
	}
	if r.log == nil {
		r.log = nopLogger{}
	}

	drain, err := newDrainWorker(r)
	if err != nil {
		return nil, fmt.Errorf("start drain worker: %w", err)
	}
	r.drain = drain

	return r, nil
}

// Close stops the drain worker. Jobs still registered keep running; drive
// Check until the registry is empty first for a clean shutdown.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.drain.stop()
	return nil
}

// Jobs returns a snapshot of the registered jobs. Foreground goroutine
// only.
func (r *Registry) Jobs() []*Job {
	snapshot := make([]*Job, len(r.jobs))
	copy(snapshot, r.jobs)
	return snapshot
}

// JobCount returns the number of active menu-visible jobs as of the last
// sweep.
func (r *Registry) JobCount() int {
	if r.jobCount < 0 {
		return 0
	}
	return r.jobCount
}

// HasActiveJobs reports whether any task or operation is still running,
// or only operations when importantOnly is set.
func (r *Registry) HasActiveJobs(importantOnly bool) bool {
	for _, j := range r.jobs {
		interested := false
		if importantOnly {
			interested = j.Kind == KindOperation
		} else {
			interested = j.Kind != KindCommand
		}
		if interested && j.IsRunning() {
			return true
		}
	}
	return false
}

// Check is the periodic maintenance sweep, driven by the UI: it consumes
// recorded exit statuses, surfaces collected errors through the prompt,
// runs exit callbacks, evicts finished jobs and republishes the job
// count. Not re-entrant; a nested call is discarded.
func (r *Registry) Check(showErrors bool) {
	if !r.checking.CompareAndSwap(false, true) {
		return
	}
	defer r.checking.Store(false)

	r.maybeWakeDrain()

	activeJobs := 0

	// Detach the list for the duration of the sweep; nothing else may
	// mutate it meanwhile.
	head := r.jobs
	r.jobs = nil

	kept := head[:0]
	for _, j := range head {
		if showErrors {
			r.showJobErrors(j)
		}

		// Exit code is not of much use here.
		j.updateStatus()

		j.statusMu.Lock()
		running := j.running
		canRemove := !running && j.useCount == 0
		j.statusMu.Unlock()

		if running && j.inMenu {
			activeJobs++
		}

		if !running {
			if j.onJobBar {
				r.getOffJobBar(j)
			}
			if j.exitCb != nil {
				cb := j.exitCb
				j.exitCb = nil
				cb(j)
			}
		}

		if canRemove {
			j.free()
		} else {
			kept = append(kept, j)
		}
	}

	if len(r.jobs) != 0 {
		panic("job registry mutated during sweep")
	}
	r.jobs = kept

	r.setJobCount(activeJobs)
}

// RunExternal launches a fire-and-forget external command. When wantInput
// is set the returned stream is the child's stdin; the caller owns it.
func (r *Registry) RunExternal(cmdline string, keepInFG, skipErrors bool, by spawn.Requester, wantInput bool) (*os.File, error) {
	command := cmdline
	if r.fastRun != nil {
		expanded, err := r.fastRun(cmdline)
		if err != nil {
			return nil, err
		}
		command = expanded
	}

	flags := FlagNone
	if keepInFG {
		flags |= FlagKeepInFG
	}
	if wantInput {
		flags |= FlagSupplyInput
	}

	j, err := r.launchExternal(command, "", flags, by)
	if err != nil {
		return nil, err
	}

	var input *os.File
	if wantInput {
		// Transfer stream ownership to the caller.
		input = j.child.Input
		j.child.Input = nil
	}

	// Safe without the sweep's involvement: launching and sweeping happen
	// on the same goroutine.
	j.skipErrors = skipErrors
	return input, nil
}

// RunExternalJob launches an external command and returns a job handle
// the caller holds a reference on. Errors of such jobs are never
// prompted; the caller inspects them through the handle instead.
func (r *Registry) RunExternalJob(cmdline string, flags Flags, descr, pwd string) (*Job, error) {
	j, err := r.launchExternal(cmdline, pwd, flags, spawn.ByApp)
	if err != nil {
		return nil, err
	}

	j.IncRef()
	j.skipErrors = true

	if flags&FlagJobBarVisible != 0 {
		// Set the description before placing the job on the bar so the
		// first redraw already has it.
		if descr != "" {
			j.op.SetDescr(descr)
		}
		r.placeOnJobBar(j)
	}

	j.inMenu = flags&FlagMenuVisible != 0

	return j, nil
}

// launchExternal starts a new external command job. pwd may be empty,
// otherwise it must be a valid directory.
func (r *Registry) launchExternal(cmdline, pwd string, flags Flags, by spawn.Requester) (*Job, error) {
	child, err := spawn.Start(cmdline, spawn.Options{
		Shell:        r.shell,
		ShellCmdFlag: r.shellCmdFlag,
		Pwd:          pwd,
		Requester:    by,
		KeepInFG:     flags&FlagKeepInFG != 0,
		SupplyInput:  flags&FlagSupplyInput != 0,
		CaptureOut:   flags&FlagCaptureOut != 0,
		MergeStreams: flags&FlagMergeStreams != 0,
	})
	if err != nil {
		return nil, err
	}

	j := r.add(child.Pid, cmdline, child, KindCommand, flags&FlagJobBarVisible != 0)
	go j.waitLoop()
	return j, nil
}

// add constructs a job record and registers it. Jobs with an error stream
// are handed to the drain worker before they become visible anywhere
// else.
func (r *Registry) add(pid int, cmd string, child *spawn.Child, kind Kind, withOp bool) *Job {
	j := &Job{
		ID:       uuid.NewString(),
		Kind:     kind,
		Cmd:      cmd,
		pid:      pid,
		child:    child,
		inMenu:   true,
		running:  true,
		exitCode: -1,
		withOp:   withOp,
		done:     make(chan struct{}),
		reg:      r,
	}
	j.op = Op{Progress: -1, job: j}

	if child != nil && child.ErrStream != nil {
		j.hasErrStream = true
		j.erroring = true
		j.useCount = 1
		r.drain.handOff(j)
	}

	r.jobs = append([]*Job{j}, r.jobs...)
	return j
}

// showJobErrors drains the job's not-yet-shown error output through the
// prompt while there is any.
func (r *Registry) showJobErrors(j *Job) {
	for {
		chunk := j.takeNewErrors()
		if chunk == nil {
			return
		}
		if !j.skipErrors {
			j.skipErrors = r.hooks.PromptError("Background Process Error", string(chunk))
		}
	}
}

// maybeWakeDrain wakes the drain worker if any job is currently held by
// it.
func (r *Registry) maybeWakeDrain() {
	for _, j := range r.jobs {
		if j.isErroring() {
			r.drain.wakeUp()
			return
		}
	}
}

// setJobCount publishes the number of active jobs, requesting a redraw
// only on change.
func (r *Registry) setJobCount(count int) {
	if count == r.jobCount {
		return
	}
	r.jobCount = count
	r.hooks.SetJobCount(count)
	r.hooks.RedrawLater()
}

func (r *Registry) placeOnJobBar(j *Job) {
	if !j.withOp {
		panic("job without progress record on the job bar")
	}
	if j.onJobBar {
		panic("job is already on the job bar")
	}
	r.hooks.JobBarAdd(&j.op)
	j.onJobBar = true
}

func (r *Registry) getOffJobBar(j *Job) {
	if !j.onJobBar {
		panic("job is not on the job bar")
	}
	r.hooks.JobBarRemove(&j.op)
	j.onJobBar = false
}
