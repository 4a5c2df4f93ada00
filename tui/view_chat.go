// view_chat.go is the assistant conversation view.
//
// Design decisions:
//   - The stream runs on its own goroutine; runner hooks post messages
//     through the program, and Update is the only place state changes.
//   - Every stream gets a sequence number. Messages from an older
//     stream (cancelled, or replaced by a conversation switch) are
//     dropped.
//   - Enter while streaming queues the text; the queue is drained one
//     message at a time after a stream finishes cleanly.
//   - Question and confirm prompts are derived from the transcript on
//     every render, never stored separately.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/DachengChen/paiconsole/api"
	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/archive"
	"github.com/DachengChen/paiconsole/chat"
	"github.com/DachengChen/paiconsole/chat/payload"
	"github.com/DachengChen/paiconsole/config"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Backend is what the chat and conversations views need from the API.
type Backend interface {
	chat.Opener
	Conversations(ctx context.Context) ([]chat.Conversation, error)
	Messages(ctx context.Context, conversationID int64) ([]chat.Message, error)
	DeleteConversation(ctx context.Context, id int64) error
	Confirm(ctx context.Context, token, supplementary string) error
	CancelWrite(ctx context.Context, token, supplementary string) error
}

// SessionExpiredMsg sends the App back to the login screen.
type SessionExpiredMsg struct{}

const requestTimeout = 30 * time.Second

type ChatView struct {
	backend  Backend
	cfg      config.ChatConfig
	archive  archive.Store
	registry *payload.Registry
	prompts  *chat.Prompts
	queue    chat.Queue
	send     func(tea.Msg)

	viewport *Viewport
	input    textarea.Model
	spinner  spinner.Model

	messages       []chat.Message
	liveFrom       int // messages before this index came from history
	conversationID int64
	title          string

	runner    *chat.Runner
	seq       int
	streaming bool
	waiting   bool
	loading   bool

	// question prompt progress, reset when the prompt changes
	promptID string
	answers  []string
	selected map[int]bool

	status string
	err    error
	width  int
	height int
}

func NewChatView(backend Backend, cfg config.ChatConfig, store archive.Store, send func(tea.Msg)) *ChatView {
	ta := textarea.New()
	ta.Placeholder = "Ask about your data… (Enter to send, Alt+Enter for newline)"
	ta.ShowLineNumbers = false
	ta.CharLimit = 8000
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StyleTool

	reg := payload.NewRegistry(cfg.TodoTools, cfg.QuestionTools, cfg.ConfirmTools)
	vp := NewViewport(80, 20)
	vp.SetWrap(true)

	return &ChatView{
		backend:  backend,
		cfg:      cfg,
		archive:  store,
		registry: reg,
		prompts:  chat.NewPrompts(reg),
		send:     send,
		viewport: vp,
		input:    ta,
		spinner:  sp,
	}
}

func (v *ChatView) Name() string { return "Chat" }

func (v *ChatView) WantsTextInput() bool { return true }

func (v *ChatView) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.input.SetWidth(width - 2)
	v.layout()
}

// layout gives the viewport whatever the input and prompt leave over.
func (v *ChatView) layout() {
	used := v.input.Height() + 2 + lipgloss.Height(v.promptBox())
	if q := v.queueLines(); len(q) > 0 {
		used += len(q)
	}
	v.viewport.SetSize(v.width-2, max(3, v.height-used-1))
	v.refresh()
}

func (v *ChatView) ShortHelp() []KeyBinding {
	if v.streaming {
		return []KeyBinding{
			{Key: "Esc", Desc: "stop"},
			{Key: "Enter", Desc: "queue"},
			{Key: "PgUp/PgDn", Desc: "scroll"},
		}
	}
	p := v.pending()
	if p.HasConfirm {
		return []KeyBinding{
			{Key: "Ctrl+Y", Desc: "run write"},
			{Key: "Ctrl+N", Desc: "cancel write"},
			{Key: "Ctrl+O", Desc: "copy SQL"},
		}
	}
	if p.HasQuestion() {
		return []KeyBinding{
			{Key: "1-3", Desc: "choose"},
			{Key: "Enter", Desc: "answer"},
		}
	}
	return []KeyBinding{
		{Key: "Enter", Desc: "send"},
		{Key: "Ctrl+L", Desc: "new chat"},
		{Key: "Ctrl+O", Desc: "copy answer"},
		{Key: "PgUp/PgDn", Desc: "scroll"},
	}
}

func (v *ChatView) Init() tea.Cmd {
	v.refresh()
	return textarea.Blink
}

// ConversationID returns the conversation shown, 0 for a new chat.
func (v *ChatView) ConversationID() int64 { return v.conversationID }

// Title returns the conversation title or a preview of the first
// question.
func (v *ChatView) Title() string {
	if v.title != "" {
		return v.title
	}
	for _, m := range v.messages {
		if m.Role == chat.RoleUser {
			return chat.Preview(m.Content, 40)
		}
	}
	return "New conversation"
}

// Open switches to conversation id (0 = new chat). Any running stream
// is cancelled and queued messages are dropped.
func (v *ChatView) Open(id int64, title string) tea.Cmd {
	v.stop()
	v.queue.Clear()
	v.conversationID = id
	v.title = title
	v.messages = nil
	v.liveFrom = 0
	v.err = nil
	v.status = ""
	v.resetAnswers("")
	v.prompts.Bind(id)
	if id == 0 {
		v.refresh()
		return nil
	}
	v.loading = true
	v.refresh()
	return v.loadHistory(id)
}

func (v *ChatView) loadHistory(id int64) tea.Cmd {
	backend, store := v.backend, v.archive
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		msgs, err := backend.Messages(ctx, id)
		if err != nil && store != nil && !errors.Is(err, api.ErrSessionExpired) {
			applog.Error("history %d from API failed, using archive: %v", id, err)
			msgs, err = store.Messages(ctx, id)
		}
		return HistoryMsg{ConversationID: id, Messages: chat.MergeTurns(msgs), Err: err}
	}
}

func (v *ChatView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return v.handleKey(msg)

	case SnapshotMsg:
		if msg.Seq != v.seq {
			return v, nil
		}
		v.messages = msg.Messages
		v.refresh()
		return v, nil

	case ConversationMsg:
		if msg.Seq != v.seq {
			return v, nil
		}
		v.conversationID = msg.ID
		v.prompts.Bind(msg.ID)
		return v, nil

	case WaitingMsg:
		if msg.Seq != v.seq {
			return v, nil
		}
		v.waiting = msg.Waiting
		v.refresh()
		return v, nil

	case FinishMsg:
		if msg.Seq != v.seq {
			return v, nil
		}
		return v, v.recordTurn(msg.Message)

	case StreamEndMsg:
		return v.handleStreamEnd(msg)

	case DrainMsg:
		// Open releases the slot Drain claimed; the text was for the
		// conversation that is gone.
		if v.streaming || !v.queue.InFlight() {
			return v, nil
		}
		return v, v.startStream(msg.Text)

	case HistoryMsg:
		if msg.ConversationID != v.conversationID || v.streaming {
			return v, nil
		}
		v.loading = false
		if msg.Err != nil {
			return v, v.fail(msg.Err)
		}
		v.messages = msg.Messages
		v.liveFrom = len(msg.Messages)
		v.viewport.End()
		v.layout()
		return v, nil

	case ConfirmResultMsg:
		v.prompts.Resolve(msg.Token)
		switch {
		case api.IsExpired(msg.Err):
			v.status = "confirmation expired, ask again to get a new one"
		case msg.Err != nil:
			return v, v.fail(msg.Err)
		case msg.Confirmed:
			v.status = "write confirmed"
		default:
			v.status = "write cancelled"
		}
		v.layout()
		if msg.Err == nil && v.conversationID != 0 {
			// The server appends the outcome as a new assistant row.
			return v, v.loadHistory(v.conversationID)
		}
		return v, nil

	case spinner.TickMsg:
		if !v.streaming {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		v.refresh()
		return v, cmd
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *ChatView) handleKey(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return v, v.submit()
	case "esc":
		if v.streaming && v.runner != nil {
			v.runner.Cancel()
			v.status = "stopping…"
		}
		return v, nil
	case "ctrl+l":
		return v, v.Open(0, "")
	case "ctrl+o":
		return v, v.copyLast()
	case "ctrl+y", "ctrl+n":
		return v, v.resolveWrite(msg.String() == "ctrl+y")
	case "pgup":
		v.viewport.PageUp()
		return v, nil
	case "pgdown":
		v.viewport.PageDown()
		return v, nil
	case "ctrl+up":
		v.viewport.ScrollUp(1)
		return v, nil
	case "ctrl+down":
		v.viewport.ScrollDown(1)
		return v, nil
	}

	if v.input.Value() == "" && !v.streaming {
		if n, err := strconv.Atoi(msg.String()); err == nil {
			if p := v.pending(); p.HasQuestion() {
				return v, v.chooseOption(p, n-1)
			}
		}
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

// submit sends the input, or records it as the answer to the current
// question when a question prompt is open.
func (v *ChatView) submit() tea.Cmd {
	text := strings.TrimSpace(v.input.Value())
	if !v.streaming {
		if p := v.pending(); p.HasQuestion() {
			v.syncAnswers(p)
			idx := len(v.answers)
			if text == "" && p.Questions[idx].AllowMultiSelect && len(v.selected) > 0 {
				text = v.selectedText(p.Questions[idx])
			}
			if text == "" {
				return nil
			}
			v.input.Reset()
			return v.answer(p, text)
		}
	}
	if text == "" {
		return nil
	}
	v.input.Reset()
	send, ok := v.queue.Submit(text)
	if !ok {
		v.layout()
		return nil
	}
	return v.startStream(send)
}

func (v *ChatView) chooseOption(p chat.Pending, i int) tea.Cmd {
	v.syncAnswers(p)
	q := p.Questions[len(v.answers)]
	if i < 0 || i >= len(q.Options) {
		return nil
	}
	if q.AllowMultiSelect {
		v.selected[i] = !v.selected[i]
		v.layout()
		return nil
	}
	return v.answer(p, q.Options[i])
}

// answer records one answer; the last one submits the formatted reply.
func (v *ChatView) answer(p chat.Pending, text string) tea.Cmd {
	v.answers = append(v.answers, text)
	v.selected = make(map[int]bool)
	if len(v.answers) < len(p.Questions) {
		v.layout()
		return nil
	}
	reply := payload.FormatAnswers(p.Questions, v.answers)
	v.resetAnswers("")
	send, ok := v.queue.Submit(reply)
	if !ok {
		v.layout()
		return nil
	}
	return v.startStream(send)
}

func (v *ChatView) selectedText(q payload.Question) string {
	var picked []string
	for i, o := range q.Options {
		if v.selected[i] {
			picked = append(picked, o)
		}
	}
	return strings.Join(picked, ", ")
}

func (v *ChatView) syncAnswers(p chat.Pending) {
	if v.promptID != p.MessageID || v.selected == nil {
		v.resetAnswers(p.MessageID)
	}
}

func (v *ChatView) resetAnswers(id string) {
	v.promptID = id
	v.answers = nil
	v.selected = make(map[int]bool)
}

// startStream appends the user turn and runs the stream. The caller
// has already claimed the queue's in-flight slot.
func (v *ChatView) startStream(text string) tea.Cmd {
	v.seq++
	seq := v.seq
	v.err = nil
	v.status = ""

	v.messages = append(slices.Clip(v.messages), chat.NewUserMessage(text))
	base := slices.Clone(v.messages)

	req := chat.Request{
		Message:      text,
		ConnectionID: v.cfg.ConnectionID,
		DatabaseName: v.cfg.DatabaseName,
		SchemaName:   v.cfg.SchemaName,
	}
	if v.conversationID != 0 {
		id := v.conversationID
		req.ConversationID = &id
	}

	send := v.send
	if send == nil {
		send = func(tea.Msg) {}
	}
	runner := chat.NewRunner(v.backend, chat.Hooks{
		Snapshot:     func(m []chat.Message) { send(SnapshotMsg{Seq: seq, Messages: m}) },
		Conversation: func(id int64) { send(ConversationMsg{Seq: seq, ID: id}) },
		Finish:       func(m chat.Message) { send(FinishMsg{Seq: seq, Message: m}) },
		Waiting:      func(w bool) { send(WaitingMsg{Seq: seq, Waiting: w}) },
	}, v.cfg.GapThreshold())
	v.runner = runner
	v.streaming = true
	v.waiting = false
	v.viewport.End()
	v.layout()

	return tea.Batch(v.spinner.Tick, func() tea.Msg {
		state, err := runner.Run(context.Background(), base, req)
		return StreamEndMsg{Seq: seq, State: state, Err: err}
	})
}

func (v *ChatView) handleStreamEnd(msg StreamEndMsg) (View, tea.Cmd) {
	if msg.Seq != v.seq {
		return v, nil
	}
	v.streaming = false
	v.waiting = false
	v.runner = nil

	var cmd tea.Cmd
	switch msg.State {
	case chat.StateDone:
		v.status = ""
		send := v.send
		if send != nil {
			v.queue.Drain(func(text string) { send(DrainMsg{Text: text}) })
		} else {
			v.queue.Release()
		}
	case chat.StateAborted:
		v.queue.Release()
		v.status = "stopped"
	default:
		v.queue.Release()
		cmd = v.fail(msg.Err)
	}
	v.layout()
	return v, cmd
}

// stop cancels the running stream and forgets it.
func (v *ChatView) stop() {
	if v.runner != nil {
		v.runner.Cancel()
	}
	v.runner = nil
	v.seq++
	v.streaming = false
	v.waiting = false
	v.loading = false
	v.queue.Release()
}

func (v *ChatView) fail(err error) tea.Cmd {
	if err == nil || chat.IsCanceled(err) {
		return nil
	}
	if errors.Is(err, api.ErrSessionExpired) || errors.Is(err, api.ErrNotLoggedIn) {
		return func() tea.Msg { return SessionExpiredMsg{} }
	}
	applog.Error("chat: %v", err)
	v.err = err
	v.refresh()
	return nil
}

// recordTurn logs a finished answer and copies the turn to the archive.
func (v *ChatView) recordTurn(answer chat.Message) tea.Cmd {
	var question chat.Message
	for i := len(v.messages) - 1; i >= 0; i-- {
		if v.messages[i].Role == chat.RoleUser {
			question = v.messages[i]
			break
		}
	}
	convID, title, reg, store := v.conversationID, v.Title(), v.registry, v.archive
	return func() tea.Msg {
		chat.LogTurn(convID, question.Content, answer, reg)
		if store == nil || convID == 0 {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := store.SaveTurn(ctx, convID, title, []chat.Message{question, answer}); err != nil {
			applog.Error("archive turn for conversation %d: %v", convID, err)
			return StatusMsg("archive failed: " + err.Error())
		}
		return nil
	}
}

func (v *ChatView) resolveWrite(confirm bool) tea.Cmd {
	p := v.pending()
	if v.streaming || !p.HasConfirm {
		return nil
	}
	token := p.Confirm.ConfirmationToken
	note := strings.TrimSpace(v.input.Value())
	v.input.Reset()
	backend := v.backend
	v.status = "sending…"
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		var err error
		if confirm {
			err = backend.Confirm(ctx, token, note)
		} else {
			err = backend.CancelWrite(ctx, token, note)
		}
		return ConfirmResultMsg{Token: token, Confirmed: confirm, Err: err}
	}
}

// copyLast copies the pending SQL preview, or else the last answer.
func (v *ChatView) copyLast() tea.Cmd {
	text := ""
	if p := v.pending(); p.HasConfirm {
		text = p.Confirm.SQLPreview
	} else if i := chat.LastAssistant(v.messages); i >= 0 {
		text = v.messages[i].Content
	}
	if text == "" {
		return nil
	}
	return func() tea.Msg {
		if err := copyText(text); err != nil {
			return StatusMsg("copy failed: " + err.Error())
		}
		return StatusMsg("copied to clipboard")
	}
}

func (v *ChatView) pending() chat.Pending {
	if v.streaming || v.loading {
		return chat.Pending{}
	}
	return v.prompts.Pending(v.messages)
}

// refresh re-renders the transcript, following the bottom when the
// user has not scrolled away.
func (v *ChatView) refresh() {
	follow := v.viewport.AtBottom()
	r := newTranscriptRenderer(v.registry, v.width-2, v.spinner.View())

	var lines []string
	switch {
	case v.loading:
		lines = append(lines, StyleDimmed.Render("loading conversation…"))
	case len(v.messages) == 0:
		lines = append(lines,
			StyleTitle.Render("Assistant"),
			"Ask questions about your data in plain language.",
			StyleDimmed.Render("The assistant can run queries, plan with todo lists, ask you to choose,"),
			StyleDimmed.Render("and ask before it changes data."),
		)
	default:
		lines = r.render(v.messages, v.liveFrom)
	}
	if v.streaming && v.waiting {
		lines = append(lines, StyleThought.Render(v.spinner.View()+" planning…"))
	}
	if v.err != nil {
		lines = append(lines, StyleError.Render("Error: "+v.err.Error()))
	}
	v.viewport.SetContentLines(lines)
	if follow {
		v.viewport.End()
	}
}

// promptBox draws the open question or confirmation, if any.
func (v *ChatView) promptBox() string {
	p := v.pending()
	switch {
	case p.HasConfirm:
		c := p.Confirm
		body := []string{StyleWarning.Render("Confirm write")}
		if c.Explanation != "" {
			body = append(body, c.Explanation)
		}
		body = append(body, StyleSQL.Render(c.SQLPreview))
		if c.DatabaseName != "" {
			body = append(body, StyleDimmed.Render("on "+c.DatabaseName))
		}
		body = append(body, StyleDimmed.Render(fmt.Sprintf("Ctrl+Y run · Ctrl+N cancel · expires in %s", c.TTL())))
		return StyleBoxActive.Width(max(20, v.width-4)).Render(strings.Join(body, "\n"))

	case p.HasQuestion():
		done := 0
		if v.promptID == p.MessageID {
			done = len(v.answers)
		}
		if done >= len(p.Questions) {
			return ""
		}
		q := p.Questions[done]
		body := []string{StylePrompt.Render(q.Question)}
		if len(p.Questions) > 1 {
			body[0] += StyleDimmed.Render(fmt.Sprintf("  (%d/%d)", done+1, len(p.Questions)))
		}
		for i, o := range q.Options {
			mark := " "
			if v.promptID == p.MessageID && v.selected[i] {
				mark = "x"
			}
			body = append(body, fmt.Sprintf("%s [%s] %s", StyleHelpKey.Render(strconv.Itoa(i+1)), mark, o))
		}
		hint := "type an answer and press Enter"
		if q.FreeTextHint != "" {
			hint = q.FreeTextHint
		}
		body = append(body, StyleDimmed.Render(hint))
		return StyleBoxActive.Width(max(20, v.width-4)).Render(strings.Join(body, "\n"))
	}
	return ""
}

func (v *ChatView) queueLines() []string {
	items := v.queue.Items()
	lines := make([]string, 0, len(items))
	for i, it := range items {
		lines = append(lines, StyleDimmed.Render(fmt.Sprintf("queued %d: %s", i+1, chat.Preview(it, max(10, v.width-14)))))
	}
	return lines
}

func (v *ChatView) View() string {
	header := StyleBold.Render(v.Title())
	if v.conversationID != 0 {
		header += StyleDimmed.Render(fmt.Sprintf("  #%d", v.conversationID))
	}
	if v.status != "" {
		header += "  " + StyleWarning.Render(v.status)
	}

	parts := []string{header, v.viewport.Render()}
	if box := v.promptBox(); box != "" {
		parts = append(parts, box)
	}
	parts = append(parts, v.queueLines()...)
	parts = append(parts, v.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
