package app

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/filestorm/internal/ui"
)

func (a *App) draw() {
	s := a.screen
	if s == nil {
		return
	}

	s.Clear()
	width, height := s.Size()

	if a.menuMode {
		a.drawMenu(width, height)
	} else {
		a.drawEntries(width, height)
	}

	a.drawStatusLine(width, height)

	if a.bar.Count() > 0 {
		a.bar.Draw(s, height-1, width)
	}

	if a.inputActive {
		line := ":" + string(a.input)
		putLine(s, 0, height-1, width, tcell.StyleDefault, line)
		s.ShowCursor(len(line), height-1)
	} else {
		s.HideCursor()
	}

	s.Show()
}

func (a *App) drawEntries(width, height int) {
	putLine(a.screen, 0, 0, width, tcell.StyleDefault.Bold(true), a.cwd)

	rows := height - 3
	for i, e := range a.entries {
		if i >= rows {
			break
		}
		style := tcell.StyleDefault
		if i == a.selected {
			style = style.Reverse(true)
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		putLine(a.screen, 0, i+1, width, style, name)
	}
}

func (a *App) drawMenu(width, height int) {
	putLine(a.screen, 0, 0, width, tcell.StyleDefault.Bold(true), "Jobs")

	entries := ui.JobsMenu(a.reg.Jobs())
	if a.menuSel >= len(entries) {
		a.menuSel = len(entries) - 1
	}
	if a.menuSel < 0 {
		a.menuSel = 0
	}

	rows := height - 3
	for i, e := range entries {
		if i >= rows {
			break
		}
		style := tcell.StyleDefault
		if i == a.menuSel {
			style = style.Reverse(true)
		}
		putLine(a.screen, 0, i+1, width, style, ui.FormatEntry(e, width))
	}
}

func (a *App) drawStatusLine(width, height int) {
	left := a.status
	right := fmt.Sprintf("jobs: %d", a.jobCount)

	pad := width - len(left) - len(right)
	if pad < 1 {
		pad = 1
	}
	line := left
	for i := 0; i < pad; i++ {
		line += " "
	}
	line += right

	putLine(a.screen, 0, height-2, width, tcell.StyleDefault.Reverse(true), line)
}

// drawPrompt renders the modal error dialog.
func (a *App) drawPrompt(title, body string) {
	s := a.screen
	width, height := s.Size()

	boxW := width * 3 / 4
	if boxW < 20 {
		boxW = width
	}
	lines := wrapText(body, boxW-4)
	boxH := len(lines) + 4
	if boxH > height {
		boxH = height
	}
	x0 := (width - boxW) / 2
	y0 := (height - boxH) / 2

	style := tcell.StyleDefault.Reverse(true)
	for y := y0; y < y0+boxH; y++ {
		for x := x0; x < x0+boxW; x++ {
			s.SetContent(x, y, ' ', nil, style)
		}
	}

	putLine(s, x0+2, y0+1, boxW-4, style.Bold(true), title)
	for i, l := range lines {
		if y0+2+i >= y0+boxH-1 {
			break
		}
		putLine(s, x0+2, y0+2+i, boxW-4, style, l)
	}
	putLine(s, x0+2, y0+boxH-1, boxW-4, style, "[enter] dismiss  [s] skip this job")
}

func putLine(s tcell.Screen, x, y, width int, style tcell.Style, text string) {
	col := x
	for _, r := range text {
		if col >= x+width {
			break
		}
		s.SetContent(col, y, r, nil, style)
		col++
	}
}

func wrapText(text string, width int) []string {
	if width < 1 {
		width = 1
	}
	var lines []string
	line := ""
	for _, r := range text {
		if r == '\n' || len(line) >= width {
			lines = append(lines, line)
			line = ""
			if r == '\n' {
				continue
			}
		}
		line += string(r)
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
