package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Delete  key.Binding
	Start   key.Binding
	Stop    key.Binding
	Quit    key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start monitor")),
		Stop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop monitor")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k KeyMap) help() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Refresh, k.Delete, k.Start, k.Stop, k.Quit}
}
