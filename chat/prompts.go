package chat

import (
	"sync"

	"github.com/DachengChen/paiconsole/chat/payload"
)

// Pending is the interactive prompt, if any, that the latest assistant
// turn is waiting on.
type Pending struct {
	MessageID string

	Questions []payload.Question

	Confirm    payload.WriteConfirm
	HasConfirm bool
}

// HasQuestion reports whether a question prompt is open.
func (p Pending) HasQuestion() bool {
	return len(p.Questions) > 0
}

// Prompts tracks question and confirmation prompts for one conversation.
// Binding a different conversation drops everything tied to the old one.
type Prompts struct {
	registry *payload.Registry

	mu             sync.Mutex
	conversationID int64
	resolved       map[string]bool
}

// NewPrompts creates an unbound prompt tracker.
func NewPrompts(reg *payload.Registry) *Prompts {
	if reg == nil {
		reg = payload.DefaultRegistry()
	}
	return &Prompts{registry: reg, resolved: make(map[string]bool)}
}

// Bind attaches the tracker to a conversation. Switching id clears the
// resolved-token set; rebinding the same id keeps it.
func (p *Prompts) Bind(conversationID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conversationID == conversationID {
		return
	}
	p.conversationID = conversationID
	p.resolved = make(map[string]bool)
}

// ConversationID returns the bound conversation, 0 when none.
func (p *Prompts) ConversationID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conversationID
}

// Resolve marks a confirmation token as confirmed or cancelled.
func (p *Prompts) Resolve(token string) {
	p.mu.Lock()
	p.resolved[token] = true
	p.mu.Unlock()
}

// Pending inspects the transcript. A prompt is only open when the last
// message is the assistant's: once the user has replied, the question
// is considered answered.
func (p *Prompts) Pending(messages []Message) Pending {
	if len(messages) == 0 || messages[len(messages)-1].Role != RoleAssistant {
		return Pending{}
	}
	last := messages[len(messages)-1]
	out := Pending{MessageID: last.ID}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, seg := range NewSegmentBuilder(p.registry).Build(last.Blocks, false) {
		if seg.Kind != SegmentToolRun || seg.Pending {
			continue
		}
		pl, ok := p.registry.Recognize(seg.ToolName, seg.ResponseData)
		if !ok {
			continue
		}
		switch pl.Kind {
		case payload.KindQuestion:
			out.Questions = pl.Questions
		case payload.KindConfirm:
			if pl.Confirm.Error != "" || p.resolved[pl.Confirm.ConfirmationToken] {
				continue
			}
			out.Confirm = pl.Confirm
			out.HasConfirm = true
		}
	}
	return out
}
