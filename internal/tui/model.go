// Package tui renders the authentication flow in the terminal with Bubble Tea.
// The model only draws controller state and turns keys into controller
// intents; every flow decision stays in walletauth.Controller.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mobil3/walletauth"
)

// Controller is the part of walletauth.Controller the UI drives
type Controller interface {
	State() walletauth.State
	SubmitEmail(ctx context.Context, email string)
	SubmitPhone(ctx context.Context, phone string)
	ChooseOAuth(ctx context.Context, provider string)
	LoginWithPasskey(ctx context.Context)
	SubmitVerificationCode(ctx context.Context, code string)
	GoBack()
	Reset()
}

// StateMsg carries a controller snapshot into the program
type StateMsg walletauth.State

// AuthURLMsg asks the user to open a sign-in page in their browser
type AuthURLMsg string

// Relay forwards controller snapshots to a running program. Register Observe
// with walletauth.WithObserver and Attach the program once it exists.
type Relay struct {
	mu      sync.Mutex
	program *tea.Program
}

func (r *Relay) Attach(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	r.mu.Unlock()
}

// Observe sends s to the attached program. Snapshots before Attach are dropped.
func (r *Relay) Observe(s walletauth.State) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(StateMsg(s))
	}
}

// OpenURL shows authURL in the attached program. It has the signature of
// client.LoopbackAuthorizer.Open.
func (r *Relay) OpenURL(authURL string) error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return errors.New("no program attached")
	}
	p.Send(AuthURLMsg(authURL))
	return nil
}

// Options configures the model
type Options struct {
	AppName string

	// Providers are the OAuth providers offered on the input screen, e.g. "google"
	Providers []string

	// Wallets are the external wallets the app is configured for, shown on success
	Wallets []string
}

// field indexes on the input screen; providers follow the identifier field
const (
	fieldIdentifier = iota
	fieldProviders
)

type Model struct {
	ctx   context.Context
	ctrl  Controller
	opts  Options
	state walletauth.State

	// identifier takes an email address or a phone number
	identifier textinput.Model
	code       textinput.Model
	focus   int
	spinner spinner.Model
	help    help.Model
	keys    keyMap

	// authURL is shown while an OAuth sign-in waits for the browser
	authURL  string
	quitting bool
}

// New returns a model drawing ctrl. ctx is passed to every controller call.
func New(ctx context.Context, ctrl Controller, opts Options) Model {
	if opts.AppName == "" {
		opts.AppName = "Wallet"
	}

	identifier := textinput.New()
	identifier.Placeholder = "you@example.com or +1 555 123 4567"
	identifier.CharLimit = 254
	identifier.Width = 40
	identifier.Focus()

	code := textinput.New()
	code.Placeholder = "123456"
	code.CharLimit = 12
	code.Width = 12

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(focusedStyle))

	return Model{
		ctx:        ctx,
		ctrl:       ctrl,
		opts:       opts,
		state:      ctrl.State(),
		identifier: identifier,
		code:       code,
		spinner:    sp,
		help:       help.New(),
		keys:       keys,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// State returns the last snapshot the model rendered
func (m Model) State() walletauth.State { return m.state }

// run performs a controller call off the UI goroutine and reports the resulting state
func (m Model) run(fn func()) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		fn()
		return StateMsg(ctrl.State())
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case StateMsg:
		return m.applyState(walletauth.State(msg))

	case AuthURLMsg:
		m.authURL = string(msg)
		return m, nil

	case spinner.TickMsg:
		if !m.state.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		if m.state.Loading {
			return m, nil
		}
		switch m.state.Stage {
		case walletauth.StageInput:
			return m.updateInput(msg)
		case walletauth.StageVerify:
			return m.updateVerify(msg)
		case walletauth.StageLogin:
			return m.updateLogin(msg)
		case walletauth.StageSuccess:
			return m.updateSuccess(msg)
		}
	}
	return m, nil
}

func (m Model) applyState(s walletauth.State) (tea.Model, tea.Cmd) {
	prev := m.state
	m.state = s
	if !s.Loading {
		m.authURL = ""
	}

	var cmds []tea.Cmd
	if s.Loading && !prev.Loading {
		cmds = append(cmds, m.spinner.Tick)
	}
	if s.Stage != prev.Stage || s.SessionID != prev.SessionID {
		switch s.Stage {
		case walletauth.StageVerify:
			m.code.SetValue("")
			m.identifier.Blur()
			cmds = append(cmds, m.code.Focus())
		case walletauth.StageInput:
			m.code.Blur()
			if s.SessionID != prev.SessionID {
				m.identifier.SetValue("")
				m.focus = fieldIdentifier
			}
			cmds = append(cmds, m.setFocus(m.focus))
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) setFocus(i int) tea.Cmd {
	n := fieldProviders + len(m.opts.Providers)
	m.focus = (i + n) % n
	if m.focus == fieldIdentifier {
		return m.identifier.Focus()
	}
	m.identifier.Blur()
	return nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Next):
		cmd := m.setFocus(m.focus + 1)
		return m, cmd
	case key.Matches(msg, m.keys.Prev):
		cmd := m.setFocus(m.focus - 1)
		return m, cmd
	case key.Matches(msg, m.keys.Submit):
		ctx, ctrl := m.ctx, m.ctrl
		if m.focus != fieldIdentifier {
			provider := m.opts.Providers[m.focus-fieldProviders]
			return m, m.run(func() { ctrl.ChooseOAuth(ctx, provider) })
		}
		v := m.identifier.Value()
		// anything that is not a phone number is validated as an email
		if walletauth.DetectMethod(v) == walletauth.MethodPhone {
			return m, m.run(func() { ctrl.SubmitPhone(ctx, v) })
		}
		return m, m.run(func() { ctrl.SubmitEmail(ctx, v) })
	}

	var cmd tea.Cmd
	if m.focus == fieldIdentifier {
		m.identifier, cmd = m.identifier.Update(msg)
	}
	return m, cmd
}

func (m Model) updateVerify(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx, ctrl := m.ctx, m.ctrl
	switch {
	case key.Matches(msg, m.keys.Submit):
		v := m.code.Value()
		return m, m.run(func() { ctrl.SubmitVerificationCode(ctx, v) })
	case key.Matches(msg, m.keys.Back):
		return m, m.run(ctrl.GoBack)
	}
	var cmd tea.Cmd
	m.code, cmd = m.code.Update(msg)
	return m, cmd
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx, ctrl := m.ctx, m.ctrl
	switch {
	case key.Matches(msg, m.keys.Retry):
		return m, m.run(func() { ctrl.LoginWithPasskey(ctx) })
	case key.Matches(msg, m.keys.Back):
		return m, m.run(ctrl.GoBack)
	}
	return m, nil
}

func (m Model) updateSuccess(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.New) {
		return m, m.run(m.ctrl.Reset)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.opts.AppName))
	b.WriteString("\n")

	switch m.state.Stage {
	case walletauth.StageInput:
		m.viewInput(&b)
	case walletauth.StageVerify:
		m.viewVerify(&b)
	case walletauth.StageLogin:
		m.viewLogin(&b)
	case walletauth.StageSuccess:
		m.viewSuccess(&b)
	}

	if m.state.Loading {
		fmt.Fprintf(&b, "\n%s Working...\n", m.spinner.View())
		if m.authURL != "" {
			fmt.Fprintf(&b, "\nOpen this link to continue:\n%s\n", contactStyle.Render(m.authURL))
		}
	}
	if m.state.ErrorMessage != "" {
		fmt.Fprintf(&b, "\n%s\n", errorStyle.Render(m.state.ErrorMessage))
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys.stageKeys(m.state.Stage)))
	return containerStyle.Render(b.String()) + "\n"
}

func (m Model) viewInput(b *strings.Builder) {
	b.WriteString("Sign up or log in\n\n")
	b.WriteString(m.label("Email or phone", fieldIdentifier) + "\n" + m.identifier.View() + "\n")
	if len(m.opts.Providers) == 0 {
		return
	}
	b.WriteString("\n" + labelStyle.Render("Or continue with") + "\n")
	for i, p := range m.opts.Providers {
		b.WriteString(m.label(providerTitle(p), fieldProviders+i) + "\n")
	}
}

func (m Model) label(text string, field int) string {
	if m.focus == field {
		return focusedStyle.Render("> " + text)
	}
	return blurredStyle.Render("  " + text)
}

func (m Model) viewVerify(b *strings.Builder) {
	b.WriteString("Enter the code we sent to ")
	b.WriteString(contactStyle.Render(m.state.Contact()))
	b.WriteString("\n\n")
	b.WriteString(m.code.View())
	b.WriteString("\n")
}

func (m Model) viewLogin(b *strings.Builder) {
	b.WriteString("Welcome back ")
	b.WriteString(contactStyle.Render(m.state.Contact()))
	b.WriteString("\n\nConfirm with your passkey to continue.\n")
}

func (m Model) viewSuccess(b *strings.Builder) {
	b.WriteString(successStyle.Render("You're signed in."))
	b.WriteString("\n")
	if len(m.opts.Wallets) > 0 {
		b.WriteString(labelStyle.Render("Connect a wallet: " + strings.Join(m.opts.Wallets, ", ")))
		b.WriteString("\n")
	}
}

func providerTitle(p string) string {
	switch p {
	case "github":
		return "GitHub"
	case "":
		return p
	}
	return strings.ToUpper(p[:1]) + p[1:]
}
