// app.go is the top-level Bubble Tea model that orchestrates all views.
//
// Flow:
//  1. Start with LoginView unless a saved session exists
//  2. On successful login → switch to the main phase (chat view)
//  3. A failed token refresh, or :logout, returns to the login screen
//
// Key design decisions:
//   - Two phases: "login" and "main"
//   - F1/F2 switch between the chat and the conversation list
//   - Command mode (`:`) for :new, :open N, :logout, :quit
//   - Help overlay (`?`, or F3 from a text view) toggled on/off
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/DachengChen/paiconsole/applog"
	"github.com/DachengChen/paiconsole/archive"
	"github.com/DachengChen/paiconsole/config"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const appVersion = "0.1.0"

// Tab indices for the main phase.
const (
	TabChat = iota
	TabConversations
)

// AppPhase tracks whether we're signing in or signed in.
type AppPhase int

const (
	PhaseLogin AppPhase = iota
	PhaseMain
)

// InputMode determines what keystrokes do in main phase.
type InputMode int

const (
	ModeNormal InputMode = iota
	ModeCommand
)

// Client is the API surface the TUI needs.
type Client interface {
	Backend
	Authenticator
	LoggedIn() bool
	Logout() error
}

// App is the root Bubble Tea model.
type App struct {
	client Client
	cfg    *config.AppConfig
	user   string

	// Phase management
	phase     AppPhase
	loginView *LoginView

	// Signed-in state
	views     []View
	chatView  *ChatView
	convView  *ConversationsView
	activeTab int

	// UI state
	width     int
	height    int
	mode      InputMode
	cmdInput  string
	showHelp  bool
	statusMsg string
}

// NewApp creates the application. send posts messages into the running
// program from other goroutines; user is the saved session's user name.
func NewApp(client Client, cfg *config.AppConfig, store archive.Store, user string, send func(tea.Msg)) *App {
	a := &App{
		client:    client,
		cfg:       cfg,
		user:      user,
		loginView: NewLoginView(client, user),
	}
	a.chatView = NewChatView(client, cfg.Chat, store, send)
	a.convView = NewConversationsView(client)
	a.views = []View{a.chatView, a.convView}
	if client.LoggedIn() {
		a.phase = PhaseMain
	}
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	if a.phase == PhaseLogin {
		return a.loginView.Init()
	}
	return a.views[a.activeTab].Init()
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// header(1) + border(2) + status bar(1) = 4 lines of chrome
		contentW := a.width - 2
		contentH := a.height - 4
		a.loginView.SetSize(contentW, contentH)
		for _, v := range a.views {
			v.SetSize(contentW, contentH)
		}
		return a, nil

	case LoginResultMsg:
		updated, cmd := a.loginView.Update(msg)
		a.loginView = updated.(*LoginView)
		if msg.Err != nil {
			applog.Error("login as %s: %v", msg.User, msg.Err)
			return a, cmd
		}
		applog.Info("signed in as %s", msg.User)
		a.user = msg.User
		a.phase = PhaseMain
		a.activeTab = TabChat
		return a, tea.Batch(cmd, a.chatView.Init())

	case SessionExpiredMsg:
		applog.Info("session expired, returning to login")
		a.toLogin()
		a.loginView.Expired()
		return a, a.loginView.Init()

	case OpenConversationMsg:
		title := ""
		if c, ok := a.convView.Selected(); ok && c.ID == msg.ID {
			title = c.Title
		}
		a.activeTab = TabChat
		return a, a.chatView.Open(msg.ID, title)

	case StatusMsg:
		a.statusMsg = string(msg)
		return a, nil

	case ConversationsMsg, DeletedMsg:
		updated, cmd := a.convView.Update(msg)
		a.convView = updated.(*ConversationsView)
		return a, cmd

	case SnapshotMsg, ConversationMsg, WaitingMsg, FinishMsg, StreamEndMsg, DrainMsg, HistoryMsg, ConfirmResultMsg, spinner.TickMsg:
		// Stream and history results belong to the chat view even
		// while the conversation list is showing.
		updated, cmd := a.chatView.Update(msg)
		a.chatView = updated.(*ChatView)
		return a, cmd
	}

	if a.phase == PhaseLogin {
		return a.updateLogin(msg)
	}
	return a.updateMain(msg)
}

func (a *App) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "ctrl+c" {
		return a, tea.Quit
	}
	updated, cmd := a.loginView.Update(msg)
	a.loginView = updated.(*LoginView)
	return a, cmd
}

func (a *App) updateMain(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		return a.handleKey(k)
	}
	return a.forward(msg)
}

// forward hands msg to the active view.
func (a *App) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	updated, cmd := a.views[a.activeTab].Update(msg)
	a.views[a.activeTab] = updated
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeCommand {
		return a.handleCommandMode(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit
	case "f1":
		return a.switchTab(TabChat)
	case "f2":
		return a.switchTab(TabConversations)
	case "f3":
		a.showHelp = !a.showHelp
		return a, nil
	}

	// Any other key clears a stale status line.
	a.statusMsg = ""

	// Text views get every other key.
	if a.views[a.activeTab].WantsTextInput() {
		return a.forward(msg)
	}

	switch msg.String() {
	case ":":
		a.mode = ModeCommand
		a.cmdInput = ""
		return a, nil
	case "?":
		a.showHelp = !a.showHelp
		return a, nil
	case "q":
		return a, tea.Quit
	}
	return a.forward(msg)
}

func (a *App) handleCommandMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		cmd := a.executeCommand(a.cmdInput)
		a.mode = ModeNormal
		a.cmdInput = ""
		return a, cmd

	case "esc":
		a.mode = ModeNormal
		a.cmdInput = ""
		return a, nil

	case "backspace":
		if r := []rune(a.cmdInput); len(r) > 0 {
			a.cmdInput = string(r[:len(r)-1])
		}
		return a, nil

	default:
		switch msg.Type {
		case tea.KeyRunes:
			a.cmdInput += string(msg.Runes)
		case tea.KeySpace:
			a.cmdInput += " "
		}
		return a, nil
	}
}

func (a *App) switchTab(idx int) (tea.Model, tea.Cmd) {
	if idx < 0 || idx >= len(a.views) || a.phase != PhaseMain {
		return a, nil
	}
	a.activeTab = idx
	a.showHelp = false
	return a, a.views[a.activeTab].Init()
}

func (a *App) executeCommand(input string) tea.Cmd {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "q", "quit":
		return tea.Quit
	case "new":
		a.activeTab = TabChat
		return a.chatView.Open(0, "")
	case "open":
		if len(fields) < 2 {
			a.statusMsg = "usage: :open CONVERSATION_ID"
			return nil
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			a.statusMsg = "invalid conversation id: " + fields[1]
			return nil
		}
		return func() tea.Msg { return OpenConversationMsg{ID: id} }
	case "logout":
		if err := a.client.Logout(); err != nil {
			applog.Error("logout: %v", err)
		}
		a.toLogin()
		return a.loginView.Init()
	default:
		a.statusMsg = "unknown command: " + input
		return nil
	}
}

// toLogin cancels any running stream and shows the login screen.
func (a *App) toLogin() {
	a.chatView.Open(0, "")
	a.phase = PhaseLogin
	a.activeTab = TabChat
	a.mode = ModeNormal
	a.showHelp = false
	a.statusMsg = ""
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width == 0 {
		return "loading..."
	}

	header := a.renderHeader()

	var inner string
	var help []KeyBinding
	switch {
	case a.phase == PhaseLogin:
		inner = a.loginView.View()
		help = a.loginView.ShortHelp()
	case a.showHelp:
		inner = a.renderHelp()
	default:
		inner = a.views[a.activeTab].View()
		help = a.helpItems()
	}

	frame := StyleBorder.
		Width(a.width - 2).
		Height(max(0, a.height-4)).
		Render(inner)

	return header + "\n" + frame + "\n" + a.renderStatusBar(help)
}

// renderHeader draws a simple text bar: logo + version + session info.
func (a *App) renderHeader() string {
	left := StyleBold.Render("paiconsole") + StyleDimmed.Render(" v"+appVersion)
	if a.phase == PhaseMain {
		who := a.user
		if who == "" {
			who = "signed in"
		}
		left += StyleSuccess.Render(fmt.Sprintf("  ⚡ %s@%s", who, a.client.BaseURL()))
		tabs := []string{}
		for i, v := range a.views {
			label := fmt.Sprintf("F%d %s", i+1, v.Name())
			if i == a.activeTab {
				tabs = append(tabs, StyleInputFocused.Render(label))
			} else {
				tabs = append(tabs, StyleDimmed.Render(label))
			}
		}
		left += "  " + strings.Join(tabs, " ")
	}

	right := StyleDimmed.Render(fmt.Sprintf("%d×%d", a.width, a.height))
	gap := max(1, a.width-lipgloss.Width(left)-lipgloss.Width(right))

	return lipgloss.NewStyle().
		Width(a.width).
		Render(left + strings.Repeat(" ", gap) + right)
}

func (a *App) renderStatusBar(help []KeyBinding) string {
	var content string
	switch {
	case a.mode == ModeCommand:
		content = StylePrompt.Render(":") + a.cmdInput + "█"
	case a.statusMsg != "":
		content = a.statusMsg
	default:
		var parts []string
		for _, h := range help {
			parts = append(parts, StyleHelpKey.Render(h.Key)+" "+StyleHelpDesc.Render(h.Desc))
		}
		content = strings.Join(parts, "  │  ")
	}
	return StyleStatusBar.Width(a.width).Padding(0, 1).Render(content)
}

func (a *App) helpItems() []KeyBinding {
	global := []KeyBinding{
		{Key: "F1/F2", Desc: "chat/list"},
		{Key: "F3", Desc: "help"},
		{Key: "Ctrl+C", Desc: "quit"},
	}
	return append(a.views[a.activeTab].ShortHelp(), global...)
}

func (a *App) renderHelp() string {
	help := []string{
		StyleTitle.Render("⌨ paiconsole Keyboard Shortcuts"),
		"",
		StyleHelpKey.Render("F1 / F2") + "          Chat / conversation list",
		StyleHelpKey.Render("F3 or ?") + "          Toggle this help",
		StyleHelpKey.Render("Ctrl+C") + "           Quit",
		"",
		StyleTitle.Render("Chat"),
		"",
		StyleHelpKey.Render("Enter") + "            Send (queued while the assistant answers)",
		StyleHelpKey.Render("Alt+Enter") + "        New line",
		StyleHelpKey.Render("Esc") + "              Stop the answer, keep what arrived",
		StyleHelpKey.Render("1-3") + "              Pick an option when asked",
		StyleHelpKey.Render("Ctrl+Y / Ctrl+N") + "  Run / cancel a proposed write",
		StyleHelpKey.Render("Ctrl+O") + "           Copy the last answer or the SQL preview",
		StyleHelpKey.Render("Ctrl+L") + "           New conversation",
		StyleHelpKey.Render("PgUp/PgDn") + "        Scroll",
		"",
		StyleTitle.Render("Commands (from the list)"),
		"",
		StyleHelpKey.Render(":new") + "             Start a conversation",
		StyleHelpKey.Render(":open N") + "          Open conversation N",
		StyleHelpKey.Render(":logout") + "          Sign out",
		StyleHelpKey.Render(":quit") + "            Quit",
		"",
		StyleDimmed.Render("Press F3 to close"),
	}

	return lipgloss.NewStyle().
		Width(a.width-4).
		Height(max(0, a.height-6)).
		Padding(1, 2).
		Render(strings.Join(help, "\n"))
}
