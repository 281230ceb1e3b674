package spawn

import (
	"bytes"
	"os"
	"os/exec"
	"time"
)

// Cancellation lets a blocking helper notice that the user asked to abort.
type Cancellation interface {
	// Requested reports whether cancellation has been requested.
	Requested() bool
}

type noCancellation struct{}

func (noCancellation) Requested() bool { return false }

// NoCancellation is a Cancellation that never triggers.
var NoCancellation Cancellation = noCancellation{}

// StderrError carries output a child wrote to its error stream.
type StderrError struct {
	// Output is the collected stderr text, possibly truncated.
	Output string
}

func (e *StderrError) Error() string {
	return "background process error: " + e.Output
}

// Cap on stderr collected by AndWaitForErrors; enough for a screenful.
const waitErrorsLimit = 800

// AndWaitForErrors runs cmdline to completion, collecting its stderr. The
// child does not join the job registry. If the child produced error output
// the returned error is a *StderrError; otherwise the child's exit code is
// returned. The cancellation is polled while waiting and, when requested,
// the child is asked to terminate.
func AndWaitForErrors(cmdline string, cancel Cancellation, opts Options) (int, error) {
	if cancel == nil {
		cancel = NoCancellation
	}

	opts.KeepInFG = true
	opts.SupplyInput = false
	opts.CaptureOut = false
	opts.MergeStreams = false

	child, err := Start(cmdline, opts)
	if err != nil {
		return -1, err
	}

	chunks := make(chan []byte)
	go func() {
		defer close(chunks)
		buf := make([]byte, 80)
		for {
			n, err := child.ErrStream.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				chunks <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	var collected bytes.Buffer
	sawErrors := false

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

reading:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				break reading
			}
			sawErrors = true
			// A lone newline carries no information.
			if !bytes.Equal(chunk, []byte("\n")) && collected.Len() < waitErrorsLimit {
				collected.Write(chunk)
			}
		case <-ticker.C:
			if cancel.Requested() {
				_ = child.SoftCancel()
			}
		}
	}

	code := child.Wait()
	child.Release()

	if sawErrors {
		return -1, &StderrError{Output: collected.String()}
	}
	return code, nil
}

// RunAndCapture starts cmdline with its stdout and/or stderr piped back to
// the caller through Child.Output and Child.ErrStream. Streams that are not
// requested are inherited from the parent. No job is registered; the caller
// owns the child entirely, including waiting for it.
func RunAndCapture(cmdline string, stdin *os.File, wantOut, wantErr bool, opts Options) (*Child, error) {
	shell, args := shellCommand(cmdline, opts)

	cmd := exec.Command(shell, args...)

	child := &Child{}

	var parentSide, childSide []*os.File
	fail := func(err error) (*Child, error) {
		for _, f := range parentSide {
			_ = f.Close()
		}
		for _, f := range childSide {
			_ = f.Close()
		}
		return nil, err
	}

	if stdin != nil {
		cmd.Stdin = stdin
	} else {
		cmd.Stdin = os.Stdin
	}

	if wantOut {
		r, w, err := os.Pipe()
		if err != nil {
			return fail(err)
		}
		cmd.Stdout = w
		child.Output = r
		childSide = append(childSide, w)
		parentSide = append(parentSide, r)
	} else {
		cmd.Stdout = os.Stdout
	}

	if wantErr {
		r, w, err := os.Pipe()
		if err != nil {
			return fail(err)
		}
		cmd.Stderr = w
		child.ErrStream = r
		childSide = append(childSide, w)
		parentSide = append(parentSide, r)
	} else {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return fail(err)
	}
	for _, f := range childSide {
		_ = f.Close()
	}

	child.Pid = cmd.Process.Pid
	child.cmd = cmd
	return child, nil
}
