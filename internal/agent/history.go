package agent

import (
	"slices"

	"github.com/MrWong99/mcpagent/pkg/types"
)

// History is the ordered conversation of one session. It can only grow:
// messages are appended and never removed or reordered, so every request
// sent to the model extends the one before it.
//
// A History is owned by a single conversation and is not safe for concurrent
// use.
type History struct {
	msgs []types.Message
}

// NewHistory returns a history seeded with msgs.
func NewHistory(msgs ...types.Message) *History {
	return &History{msgs: slices.Clone(msgs)}
}

// Append adds msgs to the end of the history.
func (h *History) Append(msgs ...types.Message) {
	h.msgs = append(h.msgs, msgs...)
}

// Messages returns a copy of the history. Changing the returned slice does
// not affect h.
func (h *History) Messages() []types.Message {
	return slices.Clone(h.msgs)
}

// Len returns the number of messages.
func (h *History) Len() int {
	return len(h.msgs)
}

// Last returns the most recent message and false when the history is empty.
func (h *History) Last() (types.Message, bool) {
	if len(h.msgs) == 0 {
		return types.Message{}, false
	}
	return h.msgs[len(h.msgs)-1], true
}
