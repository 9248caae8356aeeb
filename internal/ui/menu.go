// Package ui renders the interactive parts of ovnode-setup: the main menu
// and the styled step summary.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Choice is a main menu entry.
type Choice int

const (
	ChoiceNone Choice = iota
	ChoiceInstall
	ChoiceUpdate
	ChoiceUninstall
	ChoiceExit
)

var choiceLabels = map[Choice]string{
	ChoiceInstall:   "Install OV-Node",
	ChoiceUpdate:    "Update OV-Node",
	ChoiceUninstall: "Uninstall OV-Node",
	ChoiceExit:      "Exit",
}

func (c Choice) String() string {
	if s, ok := choiceLabels[c]; ok {
		return s
	}
	return "none"
}

var menuChoices = []Choice{ChoiceInstall, ChoiceUpdate, ChoiceUninstall, ChoiceExit}

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Menu is the bubbletea model of the main menu. Number keys 1-4 select an
// entry directly, as in installer.py's text menu.
type Menu struct {
	theme  Theme
	keys   keyMap
	cursor int
	chosen Choice
}

// NewMenu creates a menu with the cursor on the first entry.
func NewMenu() Menu {
	return Menu{theme: DefaultTheme(), keys: defaultKeyMap()}
}

// Chosen returns the selected entry, or ChoiceNone when the menu was quit.
func (m Menu) Chosen() Choice {
	return m.chosen
}

func (m Menu) Init() tea.Cmd { return nil }

func (m Menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		m.chosen = ChoiceExit
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(menuChoices)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, m.keys.Select):
		m.chosen = menuChoices[m.cursor]
		return m, tea.Quit
	default:
		s := keyMsg.String()
		if len(s) == 1 && s[0] >= '1' && int(s[0]-'0') <= len(menuChoices) {
			m.cursor = int(s[0] - '1')
			m.chosen = menuChoices[m.cursor]
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Menu) View() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render(strings.Repeat("=", 34)))
	b.WriteString("\n")
	b.WriteString(m.theme.Title.Render("Welcome to the OV-Node Installer"))
	b.WriteString("\n")
	b.WriteString(m.theme.Title.Render(strings.Repeat("=", 34)))
	b.WriteString("\n\nPlease choose an option:\n\n")

	for i, c := range menuChoices {
		line := fmt.Sprintf("%d. %s", i+1, c)
		if i == m.cursor {
			b.WriteString(m.theme.Selected.Render("> " + line))
		} else {
			b.WriteString(m.theme.Item.Render("  " + line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.Help.Render("↑/↓ navigate • enter select • 1-4 shortcut • q quit"))
	b.WriteString("\n")
	return b.String()
}

// RunMenu shows the menu on out, reading keys from in, and returns the
// selected entry.
func RunMenu(in io.Reader, out io.Writer) (Choice, error) {
	p := tea.NewProgram(NewMenu(), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return ChoiceNone, fmt.Errorf("menu failed: %w", err)
	}
	m, ok := final.(Menu)
	if !ok {
		return ChoiceNone, fmt.Errorf("menu returned unexpected model %T", final)
	}
	return m.Chosen(), nil
}
