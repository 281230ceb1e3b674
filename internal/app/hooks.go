package app

import (
	"github.com/gdamore/tcell/v2"

	"github.com/dshills/filestorm/internal/job"
)

// uiHooks adapts the App to the job subsystem's hook surface. All methods
// except JobBarChanged run on the event-loop goroutine.
type uiHooks struct {
	a *App
}

func (h uiHooks) JobBarAdd(op *job.Op)     { h.a.bar.Add(op) }
func (h uiHooks) JobBarRemove(op *job.Op)  { h.a.bar.Remove(op) }
func (h uiHooks) JobBarChanged(op *job.Op) { h.a.bar.Changed(op) }

func (h uiHooks) SetJobCount(n int) {
	h.a.jobCount = n
}

func (h uiHooks) RedrawLater() {
	h.a.redraw.Store(true)
}

// PromptError shows collected error output modally. Returns whether the
// user chose to skip further errors of the job.
func (h uiHooks) PromptError(title, body string) bool {
	a := h.a
	if a.screen == nil {
		return false
	}

	a.drawPrompt(title, body)
	a.screen.Show()

	for {
		switch ev := a.screen.PollEvent().(type) {
		case *tcell.EventKey:
			if ev.Rune() == 's' {
				return true
			}
			switch ev.Key() {
			case tcell.KeyEnter, tcell.KeyEscape:
				return false
			}
		case *tcell.EventResize:
			a.drawPrompt(title, body)
			a.screen.Show()
		case nil:
			// Screen finalized under us.
			return false
		}
		// Sweep ticks arriving during the prompt are dropped; the sweep
		// is not re-entrant anyway.
	}
}
