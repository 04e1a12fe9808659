package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/mobil3/walletauth"
)

type keyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Submit key.Binding
	Back   key.Binding
	Retry  key.Binding
	New    key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Next: key.NewBinding(
		key.WithKeys("tab", "down"),
		key.WithHelp("tab/↓", "next"),
	),
	Prev: key.NewBinding(
		key.WithKeys("shift+tab", "up"),
		key.WithHelp("shift+tab/↑", "previous"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "continue"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Retry: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry passkey"),
	),
	New: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new session"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

// bindings adapts a list of key bindings to help.KeyMap
type bindings []key.Binding

func (b bindings) ShortHelp() []key.Binding  { return b }
func (b bindings) FullHelp() [][]key.Binding { return [][]key.Binding{b} }

// stageKeys returns the bindings that do something in stage
func (k keyMap) stageKeys(stage walletauth.Stage) bindings {
	switch stage {
	case walletauth.StageInput:
		return bindings{k.Next, k.Prev, k.Submit, k.Quit}
	case walletauth.StageVerify:
		return bindings{k.Submit, k.Back, k.Quit}
	case walletauth.StageLogin:
		return bindings{k.Retry, k.Back, k.Quit}
	case walletauth.StageSuccess:
		return bindings{k.New, k.Quit}
	}
	return bindings{k.Quit}
}
