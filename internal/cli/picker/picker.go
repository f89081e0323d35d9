// Package picker implements the interactive source picker: a list of the
// sources accepted for a new analysis that shows a spinner while the
// resolver is still fetching.
package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/leapstack-labs/mapsource/internal/geometry"
	"github.com/leapstack-labs/mapsource/pkg/core"
)

// Source is what the picker reads options from.
type Source interface {
	State() core.FetchState
	SelectOptions(accepted geometry.Accepted) []core.SourceOption
}

// StateMsg carries a fetch-state transition into the model.
type StateMsg core.FetchState

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	geometryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// Model is the bubbletea model of the picker.
type Model struct {
	source   Source
	accepted geometry.Accepted
	updates  <-chan core.FetchState

	spinner  spinner.Model
	fetching bool
	options  []core.SourceOption
	cursor   int
	selected core.SourceOption
	quitting bool
}

// New creates a picker over source. updates delivers fetch-state
// transitions; it may be nil when the source is already settled.
func New(source Source, accepted geometry.Accepted, updates <-chan core.FetchState) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		source:   source,
		accepted: accepted,
		updates:  updates,
		spinner:  s,
		fetching: true,
	}
}

// Init implements tea.Model. The updates channel is not read here: handling
// the current state arms the first receive, and every later StateMsg arms
// the next one, so exactly one receive is outstanding at a time.
func (m Model) Init() tea.Cmd {
	current := func() tea.Msg { return StateMsg(m.source.State()) }
	return tea.Batch(m.spinner.Tick, current)
}

func (m Model) waitForState() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	ch := m.updates
	return func() tea.Msg {
		state, ok := <-ch
		if !ok {
			return nil
		}
		return StateMsg(state)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StateMsg:
		return m.applyState(core.FetchState(msg))

	case spinner.TickMsg:
		if !m.fetching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Select):
			if m.fetching || len(m.options) == 0 {
				return m, nil
			}
			m.selected = m.options[m.cursor]
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) applyState(state core.FetchState) (tea.Model, tea.Cmd) {
	wait := m.waitForState()
	if state.Fetching {
		restart := !m.fetching
		m.fetching = true
		if restart {
			return m, tea.Batch(m.spinner.Tick, wait)
		}
		return m, wait
	}

	m.fetching = false
	m.options = m.source.SelectOptions(m.accepted)
	if m.cursor >= len(m.options) {
		m.cursor = max(len(m.options)-1, 0)
	}
	return m, wait
}

// Selected returns the picked option, if any.
func (m Model) Selected() (core.SourceOption, bool) {
	return m.selected, m.selected != nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting || m.selected != nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Pick a source (" + m.accepted.String() + ")"))
	b.WriteString("\n\n")

	switch {
	case m.fetching:
		fmt.Fprintf(&b, "%s Loading sources…\n", m.spinner.View())
	case len(m.options) == 0:
		b.WriteString(mutedStyle.Render("No sources accept this geometry."))
		b.WriteString("\n")
	default:
		for i, opt := range m.options {
			b.WriteString(m.renderRow(i, opt))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("↑/↓ move • enter select • q quit"))
	return b.String()
}

func (m Model) renderRow(i int, opt core.SourceOption) string {
	cursor := "  "
	if i == m.cursor {
		cursor = cursorStyle.Render("> ")
	}

	swatch := " "
	label := opt.Label()
	if n, ok := opt.(core.NodeOption); ok {
		if n.LayerColor != "" {
			swatch = lipgloss.NewStyle().Foreground(lipgloss.Color(n.LayerColor)).Render("■")
		}
		label = fmt.Sprintf("%s  %s · %s", n.ID, n.Title, n.LayerName)
	}

	geom := string(opt.Geometry())
	if geom == "" {
		geom = "?"
	}
	return fmt.Sprintf("%s%s %s %s", cursor, swatch, label, geometryStyle.Render("["+geom+"]"))
}
