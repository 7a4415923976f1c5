package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard keybindings.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	Home     key.Binding
	End      key.Binding
	PageUp   key.Binding
	PageDown key.Binding

	Rerun       key.Binding
	Kill        key.Binding
	ToggleDebug key.Binding

	OutputOlder key.Binding
	OutputNewer key.Binding
	DebugOlder  key.Binding
	DebugNewer  key.Binding

	Quit key.Binding
}

// DefaultKeyMap returns the documented bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:       key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "up")),
		Down:     key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "down")),
		Left:     key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "left")),
		Right:    key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "right")),
		Home:     key.NewBinding(key.WithKeys("home"), key.WithHelp("home", "first task")),
		End:      key.NewBinding(key.WithKeys("end"), key.WithHelp("end", "last task")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "page up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "page down")),

		Rerun:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rerun")),
		Kill:        key.NewBinding(key.WithKeys("k"), key.WithHelp("k", "kill")),
		ToggleDebug: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "debug")),

		OutputOlder: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "output up")),
		OutputNewer: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "output down")),
		DebugOlder:  key.NewBinding(key.WithKeys("{"), key.WithHelp("{", "debug up")),
		DebugNewer:  key.NewBinding(key.WithKeys("}"), key.WithHelp("}", "debug down")),

		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// helpLine is the static help text in the header bar.
const helpLine = "ARROWS/PgUp/PgDn/Home/End: nav | r: rerun | k: kill | d: debug | [ ]: output | { }: debug log | q: quit"
