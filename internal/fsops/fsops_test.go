package fsops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filestorm/internal/job"
)

// makeTree builds a small tree with known sizes:
//
//	root/a.txt        (3 bytes)
//	root/sub/b.txt    (5 bytes)
//	root/sub/deep/c   (7 bytes)
func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("abc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "c"), []byte("1234567"), 0o600))

	return root
}

// runOp executes fn as an operation and waits for it, returning the job.
func runOp(t *testing.T, fn job.TaskFunc) *job.Job {
	t.Helper()

	r, err := job.New(job.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	j, err := r.Execute("fsops", "", 0, true, fn)
	require.NoError(t, err)

	deadline := time.Now().Add(10 * time.Second)
	for j.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.False(t, j.IsRunning(), "operation did not finish")

	for len(r.Jobs()) > 0 && time.Now().Before(deadline) {
		r.Check(false)
		time.Sleep(5 * time.Millisecond)
	}
	return j
}

func TestDirSize(t *testing.T) {
	root := makeTree(t)

	var size int64
	var sizeErr error
	runOp(t, func(op *job.Op) {
		size, sizeErr = DirSize(op, root)
	})

	require.NoError(t, sizeErr)
	assert.Equal(t, int64(3+5+7), size)
}

func TestDirSizeNilOp(t *testing.T) {
	root := makeTree(t)

	size, err := DirSize(nil, root)
	require.NoError(t, err)
	assert.Equal(t, int64(15), size)
}

func TestDirSizeCancelled(t *testing.T) {
	root := makeTree(t)

	r, err := job.New(job.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	var sizeErr error
	j, err := r.Execute("size", "", 0, true, func(op *job.Op) {
		// Hold the walk back until cancellation is raised; it must then
		// refuse to run.
		for !op.Cancelled() {
			time.Sleep(time.Millisecond)
		}
		_, sizeErr = DirSize(op, root)
	})
	require.NoError(t, err)

	assert.True(t, j.Cancel())

	deadline := time.Now().Add(10 * time.Second)
	for j.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.False(t, j.IsRunning(), "operation did not finish")
	for len(r.Jobs()) > 0 && time.Now().Before(deadline) {
		r.Check(false)
		time.Sleep(5 * time.Millisecond)
	}

	assert.ErrorIs(t, sizeErr, ErrCancelled)
}

func TestCopyTree(t *testing.T) {
	root := makeTree(t)
	dst := filepath.Join(t.TempDir(), "copy")

	var copyErr error
	var done, total int
	runOp(t, func(op *job.Op) {
		copyErr = CopyTree(op, root, dst)
		op.Lock()
		done, total = op.Done, op.Total
		op.Unlock()
	})
	require.NoError(t, copyErr)

	// 3 directories (root, sub, deep) + 3 files.
	assert.Equal(t, 6, total)
	assert.Equal(t, total, done)

	data, err := os.ReadFile(filepath.Join(dst, "sub", "deep", "c"))
	require.NoError(t, err)
	assert.Equal(t, "1234567", string(data))

	info, err := os.Stat(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestMoveTree(t *testing.T) {
	root := makeTree(t)
	dst := filepath.Join(t.TempDir(), "moved")

	var moveErr error
	runOp(t, func(op *job.Op) {
		moveErr = MoveTree(op, root, dst)
	})
	require.NoError(t, moveErr)

	assert.NoFileExists(t, filepath.Join(root, "a.txt"))
	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestRemove(t *testing.T) {
	root := makeTree(t)

	var removeErr error
	var done int
	runOp(t, func(op *job.Op) {
		removeErr = Remove(op, []string{
			filepath.Join(root, "a.txt"),
			filepath.Join(root, "sub"),
		})
		op.Lock()
		done = op.Done
		op.Unlock()
	})
	require.NoError(t, removeErr)

	assert.Equal(t, 2, done)
	assert.NoFileExists(t, filepath.Join(root, "a.txt"))
	assert.NoDirExists(t, filepath.Join(root, "sub"))
}
