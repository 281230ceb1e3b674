//go:build !windows

package spawn

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// portableCmdFlag is the command flag every POSIX shell understands.
const portableCmdFlag = "-c"

// platformHandles has nothing to hold on POSIX.
type platformHandles struct{}

func newPlatformHandles(*exec.Cmd) platformHandles { return platformHandles{} }

func (platformHandles) close() {}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func shellArgs(_, flag, cmdline string, _ Requester) []string {
	return []string{flag, cmdline}
}

// checkDir verifies that the path is a directory the child will be able to
// enter.
func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	return unix.Access(path, unix.X_OK)
}

// detachChild makes the child a session leader so it has no controlling
// terminal. setsid() creates a process group as well, so no setpgid() here.
func detachChild(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
}

func softCancel(c *Child) error {
	if err := unix.Kill(c.Pid, unix.SIGINT); err != nil {
		return fmt.Errorf("send SIGINT to %d: %w", c.Pid, err)
	}
	return nil
}

func terminate(c *Child) error {
	if err := unix.Kill(c.Pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("send SIGKILL to %d: %w", c.Pid, err)
	}
	return nil
}

// exitCode maps the result of exec.Cmd.Wait onto a single exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return 128 + int(ws.Signal())
			}
			return ws.ExitStatus()
		}
		return ee.ExitCode()
	}
	return -1
}
