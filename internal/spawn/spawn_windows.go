//go:build windows

package spawn

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// portableCmdFlag is what cmd.exe takes before a command line.
const portableCmdFlag = "/C"

// platformHandles groups the child into a kernel job object so that hard
// termination takes the whole child tree down at once.
type platformHandles struct {
	job  windows.Handle
	proc windows.Handle
}

func newPlatformHandles(cmd *exec.Cmd) platformHandles {
	var h platformHandles

	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return h
	}

	proc, err := windows.OpenProcess(
		windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE,
		false, uint32(cmd.Process.Pid))
	if err != nil {
		_ = windows.CloseHandle(job)
		return h
	}

	if err := windows.AssignProcessToJobObject(job, proc); err != nil {
		_ = windows.CloseHandle(proc)
		_ = windows.CloseHandle(job)
		return h
	}

	h.job = job
	h.proc = proc
	return h
}

func (h platformHandles) close() {
	if h.proc != 0 {
		_ = windows.CloseHandle(h.proc)
	}
	if h.job != 0 {
		_ = windows.CloseHandle(h.job)
	}
}

func defaultShell() string {
	if sh := os.Getenv("ComSpec"); sh != "" {
		return sh
	}
	return "cmd"
}

func shellArgs(shell, flag, cmdline string, by Requester) []string {
	if by == ByUser && isCmdShell(shell) {
		// cmd.exe strips quotes from the command line unless it is
		// re-quoted as a whole.
		return []string{flag, "\"" + cmdline + "\""}
	}
	return []string{flag, cmdline}
}

// isCmdShell reports whether the shell is cmd.exe and so needs its quoting
// quirks handled.
func isCmdShell(shell string) bool {
	base := strings.ToLower(shell)
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}
	return base == "cmd" || base == "cmd.exe"
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	return nil
}

// detachChild gives the child its own console process group so that a
// console control event reaches only it.
func detachChild(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NEW_PROCESS_GROUP
}

func softCancel(c *Child) error {
	if err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(c.Pid)); err != nil {
		return fmt.Errorf("send ctrl-break to %d: %w", c.Pid, err)
	}
	return nil
}

func terminate(c *Child) error {
	if c.handles.job != 0 {
		if err := windows.TerminateJobObject(c.handles.job, 1); err != nil {
			return fmt.Errorf("terminate job of %d: %w", c.Pid, err)
		}
		return nil
	}
	if err := c.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill %d: %w", c.Pid, err)
	}
	return nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
