package ui

import (
	"fmt"
	"strings"

	"github.com/dshills/filestorm/internal/job"
)

// MenuEntry is one line of the jobs menu.
type MenuEntry struct {
	// Job is the underlying job, usable for cancel/terminate actions.
	Job *job.Job

	// Title describes the job.
	Title string

	// State is "running", "cancelled" or "exit <code>".
	State string
}

// JobsMenu builds the jobs menu from a registry snapshot. Only jobs
// marked menu-visible are listed.
func JobsMenu(jobs []*job.Job) []MenuEntry {
	entries := make([]MenuEntry, 0, len(jobs))
	for _, j := range jobs {
		if !j.InMenu() {
			continue
		}

		state := "running"
		if !j.IsRunning() {
			state = fmt.Sprintf("exit %d", j.ExitCode())
		} else if j.Cancelled() {
			state = "cancelled"
		}

		entries = append(entries, MenuEntry{
			Job:   j,
			Title: fmt.Sprintf("%s: %s", j.Kind, j.Cmd),
			State: state,
		})
	}
	return entries
}

// FormatEntry renders one menu line to the given width, state
// right-aligned.
func FormatEntry(e MenuEntry, width int) string {
	title := e.Title
	if errs := e.Job.Errors(); errs != "" {
		first, _, _ := strings.Cut(errs, "\n")
		title += " (" + first + ")"
	}

	pad := width - len(title) - len(e.State)
	if pad < 1 {
		cut := width - len(e.State) - 1
		if cut < 0 {
			cut = 0
		}
		if len(title) > cut {
			title = title[:cut]
		}
		pad = 1
	}
	return title + strings.Repeat(" ", pad) + e.State
}
