package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/filestorm/internal/job"
)

// startBlockedOp runs an operation that blocks until release is closed.
func startBlockedOp(t *testing.T, r *job.Registry, descr string) (*job.Job, chan struct{}) {
	t.Helper()

	release := make(chan struct{})
	j, err := r.Execute(descr, descr, 10, true, func(op *job.Op) { <-release })
	require.NoError(t, err)
	return j, release
}

func newRegistry(t *testing.T) *job.Registry {
	t.Helper()
	r, err := job.New(job.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func drain(t *testing.T, r *job.Registry) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(r.Jobs()) > 0 && time.Now().Before(deadline) {
		r.Check(false)
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJobBarAddRemove(t *testing.T) {
	bar := &JobBar{}
	r := newRegistry(t)

	j, release := startBlockedOp(t, r, "copying")
	op := j.Op()
	require.NotNil(t, op)

	bar.Add(op)
	assert.Equal(t, 1, bar.Count())
	assert.True(t, bar.TakeDirty())
	assert.False(t, bar.TakeDirty())

	bar.Changed(op)
	assert.True(t, bar.TakeDirty())

	bar.Remove(op)
	assert.Equal(t, 0, bar.Count())

	// Removing an unknown operation is harmless.
	bar.Remove(op)
	assert.Equal(t, 0, bar.Count())

	close(release)
	drain(t, r)
}

func TestJobBarDraw(t *testing.T) {
	screen := tcell.NewSimulationScreen("")
	require.NoError(t, screen.Init())
	defer screen.Fini()
	screen.SetSize(40, 5)

	bar := &JobBar{}
	r := newRegistry(t)

	j, release := startBlockedOp(t, r, "copying")
	op := j.Op()
	op.Lock()
	op.Done = 5
	op.Progress = 50
	op.Unlock()

	bar.Add(op)
	bar.Draw(screen, 4, 40)
	screen.Show()

	line := simulationRow(screen, 4, 40)
	assert.Contains(t, line, "[copying 50%]")

	close(release)
	drain(t, r)
}

func TestJobsMenuListsMenuVisibleJobs(t *testing.T) {
	r := newRegistry(t)

	j, release := startBlockedOp(t, r, "indexing")

	entries := JobsMenu(r.Jobs())
	require.Len(t, entries, 1)
	assert.Equal(t, "operation: indexing", entries[0].Title)
	assert.Equal(t, "running", entries[0].State)

	j.Cancel()
	entries = JobsMenu(r.Jobs())
	require.Len(t, entries, 1)
	assert.Equal(t, "cancelled", entries[0].State)

	close(release)

	deadline := time.Now().Add(5 * time.Second)
	for j.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	entries = JobsMenu(r.Jobs())
	require.Len(t, entries, 1)
	assert.Equal(t, "exit 0", entries[0].State)

	drain(t, r)
}

func TestFormatEntryAlignsState(t *testing.T) {
	r := newRegistry(t)

	j, release := startBlockedOp(t, r, "x")
	entries := JobsMenu(r.Jobs())
	require.Len(t, entries, 1)

	line := FormatEntry(entries[0], 30)
	assert.Len(t, line, 30)
	assert.True(t, strings.HasSuffix(line, "running"))

	close(release)
	drain(t, r)
}

// simulationRow reads one row of the simulation screen back as a string.
func simulationRow(screen tcell.SimulationScreen, y, width int) string {
	contents, w, _ := screen.GetContents()
	var b strings.Builder
	for x := 0; x < width && x < w; x++ {
		cell := contents[y*w+x]
		if len(cell.Runes) > 0 {
			b.WriteRune(cell.Runes[0])
		}
	}
	return b.String()
}
