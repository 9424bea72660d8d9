package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/laterread/internal/firefox"
)

// ProfilePicker chooses the Firefox profile whose session the firefox host
// reads, when more than one exists and none is configured.
type ProfilePicker struct {
	Profiles []firefox.Profile
	Cursor   int
	Width    int
	Height   int

	chosen   bool
	canceled bool
}

func NewProfilePicker(profiles []firefox.Profile) ProfilePicker {
	// Pre-select the default profile
	cursor := 0
	for i, p := range profiles {
		if p.IsDefault {
			cursor = i
			break
		}
	}
	return ProfilePicker{
		Profiles: profiles,
		Cursor:   cursor,
	}
}

func (m *ProfilePicker) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
}

func (m *ProfilePicker) MoveDown() {
	if m.Cursor < len(m.Profiles)-1 {
		m.Cursor++
	}
}

func (m ProfilePicker) Selected() firefox.Profile {
	return m.Profiles[m.Cursor]
}

// Chosen reports the picked profile once enter was pressed.
func (m ProfilePicker) Chosen() (firefox.Profile, bool) {
	if !m.chosen || m.canceled || len(m.Profiles) == 0 {
		return firefox.Profile{}, false
	}
	return m.Selected(), true
}

func (m ProfilePicker) Init() tea.Cmd { return nil }

func (m ProfilePicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			m.MoveUp()
		case "down", "j":
			m.MoveDown()
		case "enter":
			m.chosen = true
			return m, tea.Quit
		case "esc", "q", "ctrl+c":
			m.canceled = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ProfilePicker) View() string {
	if m.chosen || m.canceled {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	normalStyle := lipgloss.NewStyle().Padding(0, 1)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Read the current page from which Firefox profile?") + "\n\n")

	for i, p := range m.Profiles {
		label := p.Name
		if p.IsDefault {
			label += " (default)"
		}
		line := fmt.Sprintf("  %s", label)
		if i == m.Cursor {
			line = selectedStyle.Render("> " + label)
		} else {
			line = normalStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + normalStyle.Render("↑↓ navigate · enter select · esc cancel"))

	box := boxStyle.Render(b.String())
	if m.Width == 0 || m.Height == 0 {
		return box
	}
	return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, box)
}
