package job

import "sync"

// recordingHooks captures every hook invocation for assertions.
type recordingHooks struct {
	mu        sync.Mutex
	added     []*Op
	removed   []*Op
	changed   int
	prompts   []string
	jobCounts []int
	redraws   int

	// onPrompt, when set, decides the PromptError return value.
	onPrompt func(title, body string) bool
}

func (h *recordingHooks) JobBarAdd(op *Op) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.added = append(h.added, op)
}

func (h *recordingHooks) JobBarRemove(op *Op) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, op)
}

func (h *recordingHooks) JobBarChanged(*Op) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changed++
}

func (h *recordingHooks) PromptError(title, body string) bool {
	h.mu.Lock()
	h.prompts = append(h.prompts, body)
	onPrompt := h.onPrompt
	h.mu.Unlock()

	if onPrompt != nil {
		return onPrompt(title, body)
	}
	return false
}

func (h *recordingHooks) SetJobCount(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobCounts = append(h.jobCounts, n)
}

func (h *recordingHooks) RedrawLater() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redraws++
}

func (h *recordingHooks) promptCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.prompts)
}

func (h *recordingHooks) lastJobCount() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.jobCounts) == 0 {
		return 0, false
	}
	return h.jobCounts[len(h.jobCounts)-1], true
}

func (h *recordingHooks) barCounts() (added, removed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.added), len(h.removed)
}
