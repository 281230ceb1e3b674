// Package app wires the terminal UI to the background job subsystem: it
// owns the event loop, drives the periodic job sweep, and turns key
// presses into launched, cancelled or terminated jobs.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/filestorm/internal/config"
	"github.com/dshills/filestorm/internal/fsops"
	"github.com/dshills/filestorm/internal/job"
	"github.com/dshills/filestorm/internal/spawn"
	"github.com/dshills/filestorm/internal/ui"
)

// ErrQuit signals a normal, user-requested exit from Run.
var ErrQuit = fmt.Errorf("quit")

// Options configures application startup.
type Options struct {
	// ConfigPath is an optional configuration file.
	ConfigPath string

	// LogPath overrides the configured log file location.
	LogPath string
}

// App is the interactive file manager: a directory pane, a jobs menu, a
// status line with the active job count, and the job bar for operations.
type App struct {
	cfg    *config.Config
	logger *Logger

	reg *job.Registry
	bar *ui.JobBar

	screen tcell.Screen

	cwd      string
	entries  []os.DirEntry
	selected int

	menuMode bool
	menuSel  int

	inputActive bool
	input       []rune

	status   string
	jobCount int
	redraw   atomic.Bool

	quitting bool
}

// New creates the application: configuration, logger and job registry.
func New(opts Options) (*App, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logPath := cfg.LogPath
	if opts.LogPath != "" {
		logPath = opts.LogPath
	}
	logger, err := NewLogger(logPath, LogLevelInfo)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		bar:    &ui.JobBar{},
	}

	var fastRun func(string) (string, error)
	if cfg.FastRun {
		fastRun = cfg.CompleteCommand
	}

	reg, err := job.New(job.Options{
		Hooks:        uiHooks{a: a},
		Log:          logger,
		Shell:        cfg.Shell,
		ShellCmdFlag: cfg.ShellCmdFlag,
		FastRun:      fastRun,
	})
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	a.reg = reg

	cwd, err := os.Getwd()
	if err != nil {
		cwd = string(os.PathSeparator)
	}
	a.cwd = cwd
	a.loadEntries()

	return a, nil
}

// Run drives the event loop until the user quits. It returns ErrQuit on a
// normal exit.
func (a *App) Run() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	a.screen = screen
	defer func() {
		screen.Fini()
		a.screen = nil
	}()

	// The sweep is driven by posted interrupt events so that job upkeep
	// and input handling share one goroutine.
	stopTicks := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(a.cfg.SweepInterval))
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = screen.PostEvent(tcell.NewEventInterrupt(nil))
			case <-stopTicks:
				return
			}
		}
	}()
	defer close(stopTicks)

	a.draw()
	for !a.quitting {
		switch ev := screen.PollEvent().(type) {
		case *tcell.EventInterrupt:
			a.reg.Check(true)
			if !a.redraw.Swap(false) && !a.bar.TakeDirty() {
				// Nothing changed since the last tick.
				continue
			}
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			a.handleKey(ev)
		case nil:
			return nil
		}
		a.draw()
	}

	return ErrQuit
}

// Shutdown releases the job subsystem and the logger. Safe to call more
// than once.
func (a *App) Shutdown() {
	if a.reg != nil {
		// Let finished jobs be reaped before the worker goes away.
		a.reg.Check(false)
		_ = a.reg.Close()
		a.reg = nil
	}
	if a.logger != nil {
		_ = a.logger.Close()
		a.logger = nil
	}
}

func (a *App) loadEntries() {
	entries, err := os.ReadDir(a.cwd)
	if err != nil {
		a.status = fmt.Sprintf("cannot read %s: %v", a.cwd, err)
		entries = nil
	}
	sort.Slice(entries, func(i, k int) bool {
		if entries[i].IsDir() != entries[k].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[k].Name()
	})
	a.entries = entries
	if a.selected >= len(entries) {
		a.selected = len(entries) - 1
	}
	if a.selected < 0 {
		a.selected = 0
	}
}

func (a *App) selectedPath() (string, bool) {
	if a.selected >= len(a.entries) {
		return "", false
	}
	return filepath.Join(a.cwd, a.entries[a.selected].Name()), true
}

func (a *App) handleKey(ev *tcell.EventKey) {
	if a.inputActive {
		a.handleInputKey(ev)
		return
	}
	if a.menuMode {
		a.handleMenuKey(ev)
		return
	}

	switch ev.Rune() {
	case 'q':
		a.quitting = true
	case 'j':
		if a.selected < len(a.entries)-1 {
			a.selected++
		}
	case 'k':
		if a.selected > 0 {
			a.selected--
		}
	case 'J':
		a.menuMode = true
		a.menuSel = 0
	case ':':
		a.inputActive = true
		a.input = a.input[:0]
	case 'd':
		a.startDirSize()
	case 'C':
		a.startCopy()
	case 'l':
		if path, ok := a.selectedPath(); ok {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				a.cwd = path
				a.selected = 0
				a.loadEntries()
			}
		}
	case 'h':
		a.cwd = filepath.Dir(a.cwd)
		a.selected = 0
		a.loadEntries()
	}
}

func (a *App) handleInputKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape:
		a.inputActive = false
	case tcell.KeyEnter:
		a.inputActive = false
		cmdline := string(a.input)
		if cmdline == "" {
			return
		}
		if _, err := a.reg.RunExternal(cmdline, false, false, spawn.ByUser, false); err != nil {
			a.status = fmt.Sprintf("launch failed: %v", err)
			return
		}
		a.status = "started: " + cmdline
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(a.input) > 0 {
			a.input = a.input[:len(a.input)-1]
		}
	default:
		if r := ev.Rune(); r != 0 {
			a.input = append(a.input, r)
		}
	}
}

func (a *App) handleMenuKey(ev *tcell.EventKey) {
	entries := ui.JobsMenu(a.reg.Jobs())

	switch ev.Rune() {
	case 'q', 'J':
		a.menuMode = false
		return
	case 'j':
		if a.menuSel < len(entries)-1 {
			a.menuSel++
		}
		return
	case 'k':
		if a.menuSel > 0 {
			a.menuSel--
		}
		return
	}

	if a.menuSel >= len(entries) {
		return
	}
	target := entries[a.menuSel].Job

	switch ev.Rune() {
	case 'c':
		if target.Cancel() {
			a.status = "cancelled: " + target.Cmd
		}
	case 'K':
		target.Terminate()
		a.status = "terminated: " + target.Cmd
	}

	if ev.Key() == tcell.KeyEscape {
		a.menuMode = false
	}
}

// startDirSize launches size computation of the selected directory as a
// background task.
func (a *App) startDirSize() {
	path, ok := a.selectedPath()
	if !ok {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		a.status = "not a directory"
		return
	}

	var size int64
	j, err := a.reg.Execute("size of "+path, "counting", 0, false, func(op *job.Op) {
		n, err := fsops.DirSize(op, path)
		if err != nil {
			op.ReportError(err.Error() + "\n")
			return
		}
		size = n
	})
	if err != nil {
		a.status = fmt.Sprintf("task failed: %v", err)
		return
	}

	j.SetExitCallback(func(done *job.Job) {
		if done.ExitCode() == 0 {
			a.status = fmt.Sprintf("%s: %d bytes", path, size)
		}
		a.redraw.Store(true)
	})
}

// startCopy copies the selected entry next to itself as a background
// operation, visible on the job bar.
func (a *App) startCopy() {
	path, ok := a.selectedPath()
	if !ok {
		return
	}
	dst := path + "_copy"

	_, err := a.reg.Execute("copy "+path, "copying", 0, true, func(op *job.Op) {
		if err := fsops.CopyTree(op, path, dst); err != nil {
			op.ReportError(err.Error() + "\n")
		}
	})
	if err != nil {
		a.status = fmt.Sprintf("operation failed: %v", err)
		return
	}
	a.status = "copying to " + dst
}
