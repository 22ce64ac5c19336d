package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

// Choice is one selectable row in the picker.
type Choice struct {
	ID     string
	Title  string
	Detail string
}

// choiceItem wraps [Choice] to implement [list.Item], rendering a checkbox
// prefix for marked rows.
type choiceItem struct {
	choice Choice
	marked bool
}

var _ list.Item = choiceItem{}

func (i choiceItem) FilterValue() string { return i.choice.Title }

func (i choiceItem) Title() string {
	box := "[ ]"
	if i.marked {
		box = styles.marked.Render("[x]")
	}
	return fmt.Sprintf("%s %s", box, i.choice.Title)
}

func (i choiceItem) Description() string { return i.choice.Detail }

// PickerModel is a multi-select list over a fixed set of choices.
type PickerModel struct {
	list     list.Model
	choices  []Choice
	marked   map[int]bool
	done     bool
	canceled bool
	help     help.Model
	keys     keyMap
	width    int
	height   int
}

// NewPicker creates a multi-select picker over the given choices.
func NewPicker(title string, choices []Choice) *PickerModel {
	m := &PickerModel{
		choices: choices,
		marked:  make(map[int]bool),
		help:    help.New(),
		keys:    newKeyMap(),
	}

	items := make([]list.Item, len(choices))
	for i, c := range choices {
		items[i] = choiceItem{choice: c}
	}
	m.list = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.list.Title = title
	m.list.SetShowHelp(false)

	return m
}

// Selected returns the marked choices in their original order, or nil when
// the picker was quit without confirming.
func (m *PickerModel) Selected() []Choice {
	if m.canceled {
		return nil
	}
	var out []Choice
	for i, c := range m.choices {
		if m.marked[i] {
			out = append(out, c)
		}
	}
	return out
}

func (m *PickerModel) Init() tea.Cmd {
	return nil
}

func (m *PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.canceled = true
			return m, tea.Quit
		case "enter":
			m.done = true
			return m, tea.Quit
		case " ":
			idx := m.list.Index()
			m.marked[idx] = !m.marked[idx]
			m.syncItems()
			return m, nil
		case "a":
			count := 0
			for i := range m.choices {
				if m.marked[i] {
					count++
				}
			}
			mark := count != len(m.choices)
			for i := range m.choices {
				m.marked[i] = mark
			}
			m.syncItems()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *PickerModel) View() string {
	helpView := m.help.ShortHelpView(m.keys.ShortHelp())
	return fmt.Sprintf("%s\n\n%s", m.list.View(), helpView)
}

// syncItems rebuilds the list items so checkbox prefixes reflect the marked
// set.
func (m *PickerModel) syncItems() {
	items := make([]list.Item, len(m.choices))
	for i, c := range m.choices {
		items[i] = choiceItem{choice: c, marked: m.marked[i]}
	}
	m.list.SetItems(items)
}

// PickMany runs the picker to completion and returns the confirmed choices.
// A quit without confirming returns an empty slice, not an error.
func PickMany(title string, choices []Choice) ([]Choice, error) {
	model := NewPicker(title, choices)
	program := tea.NewProgram(model)

	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("picker failed: %w", err)
	}

	picker, ok := final.(*PickerModel)
	if !ok {
		return nil, fmt.Errorf("unexpected model type %T", final)
	}
	return picker.Selected(), nil
}
