// view_login.go is the sign-in screen.
//
// Shown when there is no saved session, and again whenever a token
// refresh fails. Tab / arrows move between fields, Enter on the
// password field (or the button) signs in.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Authenticator signs a user in and stores the session.
type Authenticator interface {
	Login(ctx context.Context, user, password string) error
	BaseURL() string
}

const (
	loginFieldUser = iota
	loginFieldPassword
	loginFieldButton
	loginFieldCount
)

type LoginView struct {
	auth     Authenticator
	user     textinput.Model
	password textinput.Model
	focus    int
	busy     bool
	notice   string
	err      error
	width    int
	height   int
}

func NewLoginView(auth Authenticator, user string) *LoginView {
	u := textinput.New()
	u.Prompt = ""
	u.Placeholder = "username"
	u.CharLimit = 128
	u.SetValue(user)

	p := textinput.New()
	p.Prompt = ""
	p.Placeholder = "password"
	p.EchoMode = textinput.EchoPassword
	p.CharLimit = 256

	v := &LoginView{auth: auth, user: u, password: p}
	if user != "" {
		v.focus = loginFieldPassword
	}
	v.applyFocus()
	return v
}

func (v *LoginView) Name() string { return "Login" }

func (v *LoginView) WantsTextInput() bool { return v.focus != loginFieldButton }

func (v *LoginView) SetSize(width, height int) {
	v.width = width
	v.height = height
	w := min(50, max(10, width-20))
	v.user.Width = w
	v.password.Width = w
}

func (v *LoginView) ShortHelp() []KeyBinding {
	return []KeyBinding{
		{Key: "Tab/↑↓", Desc: "move"},
		{Key: "Enter", Desc: "sign in"},
		{Key: "Ctrl+C", Desc: "quit"},
	}
}

func (v *LoginView) Init() tea.Cmd { return textinput.Blink }

// Expired shows the screen again after the session was lost.
func (v *LoginView) Expired() {
	v.busy = false
	v.notice = "Your session expired. Sign in again."
	v.password.Reset()
	v.focus = loginFieldPassword
	v.applyFocus()
}

func (v *LoginView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case LoginResultMsg:
		v.busy = false
		v.err = msg.Err
		if msg.Err != nil {
			v.password.Reset()
		}
		return v, nil

	case tea.KeyMsg:
		if v.busy {
			return v, nil
		}
		switch msg.String() {
		case "tab", "down":
			v.move(1)
			return v, nil
		case "shift+tab", "up":
			v.move(-1)
			return v, nil
		case "enter":
			if v.focus == loginFieldUser {
				v.move(1)
				return v, nil
			}
			return v, v.login()
		}
	}

	var cmd tea.Cmd
	switch v.focus {
	case loginFieldUser:
		v.user, cmd = v.user.Update(msg)
	case loginFieldPassword:
		v.password, cmd = v.password.Update(msg)
	}
	return v, cmd
}

func (v *LoginView) move(dir int) {
	v.focus = (v.focus + dir + loginFieldCount) % loginFieldCount
	v.applyFocus()
}

func (v *LoginView) applyFocus() {
	v.user.Blur()
	v.password.Blur()
	switch v.focus {
	case loginFieldUser:
		v.user.Focus()
	case loginFieldPassword:
		v.password.Focus()
	}
}

func (v *LoginView) login() tea.Cmd {
	user := strings.TrimSpace(v.user.Value())
	pw := v.password.Value()
	if user == "" || pw == "" {
		v.notice = "Username and password are required."
		return nil
	}
	v.busy = true
	v.notice = ""
	v.err = nil
	auth := v.auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return LoginResultMsg{User: user, Err: auth.Login(ctx, user, pw)}
	}
}

func (v *LoginView) View() string {
	label := lipgloss.NewStyle().Width(10).Foreground(ColorDim)
	focused := label.Foreground(ColorAccent).Bold(true)
	field := func(id int, name string, in textinput.Model) string {
		l := label
		if v.focus == id {
			l = focused
		}
		return l.Render(name) + in.View()
	}

	button := StyleDimmed.Render("[ Sign in ]")
	if v.focus == loginFieldButton {
		button = StyleInputFocused.Render("[ Sign in ]")
	}
	if v.busy {
		button = StyleDimmed.Render("signing in…")
	}

	lines := []string{
		StyleTitle.Render("Sign in"),
		StyleDimmed.Render("Server  ") + v.auth.BaseURL(),
		"",
		field(loginFieldUser, "User", v.user),
		field(loginFieldPassword, "Password", v.password),
		"",
		button,
	}
	if v.notice != "" {
		lines = append(lines, "", StyleWarning.Render(v.notice))
	}
	if v.err != nil {
		lines = append(lines, "", StyleError.Render("Error: "+v.err.Error()))
	}

	form := StyleBox.Padding(1, 3).Render(strings.Join(lines, "\n"))
	return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, form)
}
