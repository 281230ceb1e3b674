// Package ui renders the widgets through which background jobs surface in
// the terminal: the job bar for operations and the jobs menu.
package ui

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/filestorm/internal/job"
)

// JobBar is the progress bar listing active operations. Add and Remove
// are called by the foreground goroutine; Changed may arrive from worker
// goroutines, so the widget keeps its own lock and only flags itself
// dirty.
type JobBar struct {
	mu  sync.Mutex
	ops []*job.Op

	dirty atomic.Bool
}

// Add places an operation on the bar.
func (b *JobBar) Add(op *job.Op) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
	b.dirty.Store(true)
}

// Remove takes an operation off the bar. Unknown operations are ignored;
// a description change notification can arrive before Add.
func (b *JobBar) Remove(op *job.Op) {
	b.mu.Lock()
	for i, o := range b.ops {
		if o == op {
			b.ops = append(b.ops[:i], b.ops[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	b.dirty.Store(true)
}

// Changed records that an operation's progress moved.
func (b *JobBar) Changed(*job.Op) {
	b.dirty.Store(true)
}

// Count returns the number of operations on the bar.
func (b *JobBar) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}

// TakeDirty reports and clears the pending-repaint flag.
func (b *JobBar) TakeDirty() bool {
	return b.dirty.Swap(false)
}

// Draw renders the bar into the given row.
func (b *JobBar) Draw(s tcell.Screen, y, width int) {
	b.mu.Lock()
	ops := make([]*job.Op, len(b.ops))
	copy(ops, b.ops)
	b.mu.Unlock()

	style := tcell.StyleDefault.Reverse(true)
	x := 0
	for ; x < width; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}

	x = 0
	for _, op := range ops {
		if x >= width {
			break
		}
		x = drawText(s, x, y, width, style, segmentLabel(op))
		x++
	}
}

// segmentLabel formats one operation's bar segment.
func segmentLabel(op *job.Op) string {
	op.Lock()
	descr := op.Descr
	total := op.Total
	done := op.Done
	progress := op.Progress
	op.Unlock()

	if progress < 0 && total > 0 {
		progress = done * 100 / total
	}
	if progress >= 0 {
		return fmt.Sprintf("[%s %d%%]", descr, progress)
	}
	return fmt.Sprintf("[%s %d]", descr, done)
}

// drawText writes text at (x, y), clipped to width. Returns the next x.
func drawText(s tcell.Screen, x, y, width int, style tcell.Style, text string) int {
	for _, r := range text {
		if x >= width {
			break
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
	return x
}
