// view_conversations.go lists the user's conversations.
//
// Enter opens the selected conversation in the chat view, n starts a
// new one, d deletes (press twice to confirm).
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/DachengChen/paiconsole/chat"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
)

type ConversationsView struct {
	backend       Backend
	conversations []chat.Conversation
	cursor        int
	armedDelete   int64
	loading       bool
	err           error
	width         int
	height        int
}

func NewConversationsView(backend Backend) *ConversationsView {
	return &ConversationsView{backend: backend}
}

func (v *ConversationsView) Name() string { return "Conversations" }

func (v *ConversationsView) WantsTextInput() bool { return false }

func (v *ConversationsView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

func (v *ConversationsView) ShortHelp() []KeyBinding {
	return []KeyBinding{
		{Key: "Enter", Desc: "open"},
		{Key: "n", Desc: "new"},
		{Key: "d", Desc: "delete"},
		{Key: "r", Desc: "reload"},
	}
}

func (v *ConversationsView) Init() tea.Cmd {
	v.loading = true
	backend := v.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		convs, err := backend.Conversations(ctx)
		return ConversationsMsg{Conversations: convs, Err: err}
	}
}

// Selected returns the conversation under the cursor.
func (v *ConversationsView) Selected() (chat.Conversation, bool) {
	if v.cursor < 0 || v.cursor >= len(v.conversations) {
		return chat.Conversation{}, false
	}
	return v.conversations[v.cursor], true
}

func (v *ConversationsView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case ConversationsMsg:
		v.loading = false
		v.err = msg.Err
		if msg.Err == nil {
			v.conversations = msg.Conversations
			v.cursor = min(v.cursor, max(0, len(v.conversations)-1))
		}
		return v, nil

	case DeletedMsg:
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		for i, c := range v.conversations {
			if c.ID == msg.ConversationID {
				v.conversations = append(v.conversations[:i:i], v.conversations[i+1:]...)
				break
			}
		}
		v.cursor = min(v.cursor, max(0, len(v.conversations)-1))
		return v, func() tea.Msg { return StatusMsg(fmt.Sprintf("deleted conversation %d", msg.ConversationID)) }

	case tea.KeyMsg:
		return v.handleKey(msg)
	}
	return v, nil
}

func (v *ConversationsView) handleKey(msg tea.KeyMsg) (View, tea.Cmd) {
	key := msg.String()
	if key != "d" {
		v.armedDelete = 0
	}
	switch key {
	case "up", "k":
		if v.cursor > 0 {
			v.cursor--
		}
	case "down", "j":
		if v.cursor < len(v.conversations)-1 {
			v.cursor++
		}
	case "home", "g":
		v.cursor = 0
	case "end", "G":
		v.cursor = max(0, len(v.conversations)-1)
	case "r":
		return v, v.Init()
	case "n":
		return v, func() tea.Msg { return OpenConversationMsg{} }
	case "enter":
		if c, ok := v.Selected(); ok {
			return v, func() tea.Msg { return OpenConversationMsg{ID: c.ID} }
		}
	case "d":
		c, ok := v.Selected()
		if !ok {
			return v, nil
		}
		if v.armedDelete != c.ID {
			v.armedDelete = c.ID
			return v, nil
		}
		v.armedDelete = 0
		backend := v.backend
		return v, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			return DeletedMsg{ConversationID: c.ID, Err: backend.DeleteConversation(ctx, c.ID)}
		}
	}
	return v, nil
}

func (v *ConversationsView) View() string {
	lines := []string{StyleTitle.Render("Conversations")}
	switch {
	case v.loading && len(v.conversations) == 0:
		lines = append(lines, StyleDimmed.Render("loading…"))
	case v.err != nil:
		lines = append(lines, StyleError.Render("Error: "+v.err.Error()))
	case len(v.conversations) == 0:
		lines = append(lines, StyleDimmed.Render("No conversations yet. Press n to start one."))
	}

	titleW := max(10, v.width-30)
	visible := max(1, v.height-4)
	start := 0
	if v.cursor >= visible {
		start = v.cursor - visible + 1
	}
	for i := start; i < len(v.conversations) && i < start+visible; i++ {
		c := v.conversations[i]
		title := c.Title
		if title == "" {
			title = fmt.Sprintf("Conversation %d", c.ID)
		}
		title = runewidth.FillRight(runewidth.Truncate(title, titleW, "…"), titleW)
		when := ""
		if !c.UpdatedAt.IsZero() {
			when = c.UpdatedAt.Local().Format("Jan 02 15:04")
		}
		row := fmt.Sprintf(" %-6d %s %12s ", c.ID, title, when)
		switch {
		case c.ID == v.armedDelete:
			row = StyleError.Render(row + " press d again to delete")
		case i == v.cursor:
			row = StyleListItemActive.Render(row)
		}
		lines = append(lines, row)
	}
	return strings.Join(lines, "\n")
}
