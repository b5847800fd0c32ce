package assembler

import (
	"sync"

	"github.com/google/uuid"

	"multimodal-rag/internal/llm"
)

// History holds one chat session's prior turns. A turn pair is one user
// message followed by one assistant message; failed answers are recorded
// too so the session keeps its shape.
type History struct {
	SessionID string

	mu    sync.Mutex
	turns []llm.Turn
}

func NewHistory() *History {
	return &History{SessionID: uuid.NewString()}
}

func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, llm.Turn{Role: role, Content: content})
}

// Recent returns the last n user/assistant pairs, oldest first.
func (h *History) Recent(n int) []llm.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || len(h.turns) == 0 {
		return nil
	}
	keep := n * 2
	if keep > len(h.turns) {
		keep = len(h.turns)
	}
	out := make([]llm.Turn, keep)
	copy(out, h.turns[len(h.turns)-keep:])
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
