// Package fsops implements the file operations the file manager runs as
// background tasks and operations: directory size computation, copying,
// moving and deletion. Every entry point takes the job's progress record
// and honors its cancellation flag cooperatively.
package fsops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/filestorm/internal/job"
)

// ErrCancelled is returned when an operation stops because its
// cancellation flag was raised.
var ErrCancelled = errors.New("operation cancelled")

// DirSize computes the total size in bytes of all regular files under
// root. Directories are scanned in parallel, bounded by the CPU count.
// The progress record's Done field counts scanned directories.
func DirSize(op *job.Op, root string) (int64, error) {
	var total atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())

	var walk func(dir string) error
	walk = func(dir string) error {
		if op != nil && op.Cancelled() {
			return ErrCancelled
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}

		for _, e := range entries {
			if e.IsDir() {
				sub := filepath.Join(dir, e.Name())
				// TryGo keeps recursion from deadlocking on the limit:
				// when no worker slot is free, descend inline.
				if !g.TryGo(func() error { return walk(sub) }) {
					if err := walk(sub); err != nil {
						return err
					}
				}
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.Mode().IsRegular() {
				total.Add(info.Size())
			}
		}

		if op != nil {
			op.Lock()
			op.Done++
			op.Unlock()
			op.Changed()
		}
		return nil
	}

	g.Go(func() error { return walk(root) })
	err := g.Wait()
	return total.Load(), err
}

// CopyTree copies the file or directory tree at src to dst. The progress
// record's total is set to the number of entries up front and advances
// entry by entry.
func CopyTree(op *job.Op, src, dst string) error {
	entries, err := countEntries(src)
	if err != nil {
		return err
	}
	begin(op, entries)

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if op != nil && op.Cancelled() {
			return ErrCancelled
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return err
			}
		} else if err := copyFile(path, target, d); err != nil {
			return err
		}

		step(op)
		return nil
	})
}

// MoveTree moves src to dst, renaming when possible and falling back to
// copy-and-delete across filesystems.
func MoveTree(op *job.Op, src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		begin(op, 1)
		step(op)
		return nil
	}

	if err := CopyTree(op, src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

// Remove deletes the given paths, advancing progress path by path.
func Remove(op *job.Op, paths []string) error {
	begin(op, len(paths))

	for _, path := range paths {
		if op != nil && op.Cancelled() {
			return ErrCancelled
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		step(op)
	}
	return nil
}

// countEntries counts everything WalkDir will visit under root.
func countEntries(root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(string, fs.DirEntry, error) error {
		n++
		return nil
	})
	return n, err
}

// begin resets the progress record for a run of total work units.
func begin(op *job.Op, total int) {
	if op == nil {
		return
	}
	op.Lock()
	op.Total = total
	op.Done = 0
	op.Progress = 0
	op.Unlock()
	op.Changed()
}

// step advances progress by one work unit.
func step(op *job.Op) {
	if op == nil {
		return
	}
	op.Lock()
	op.Done++
	if op.Total > 0 {
		op.Progress = op.Done * 100 / op.Total
	}
	op.Unlock()
	op.Changed()
}

// copyFile copies one regular file (or recreates a symlink) preserving
// permissions.
func copyFile(src, dst string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
