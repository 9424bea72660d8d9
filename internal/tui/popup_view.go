package tui

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/laterread/internal/reltime"
	"github.com/lotas/laterread/internal/types"
)

var (
	popupTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	buttonStyle     = lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	disabledStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	statusOKStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusErrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cursorStyle     = lipgloss.NewStyle().Bold(true)
	metaStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	fadingStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	confirmStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

const popupTitleMaxLen = 50

func (m Popup) View() string {
	if m.quitting {
		return ""
	}
	if !m.loaded {
		return "\n  Loading saved pages...\n"
	}
	if m.confirmClear {
		return m.place(renderClearConfirm(len(m.items)))
	}

	var b strings.Builder
	b.WriteString(popupTitleStyle.Render(fmt.Sprintf("Read Later (%d)", len(m.items))) + "\n\n")

	// Save control and close-tab toggle.
	switch {
	case m.saving:
		b.WriteString(disabledStyle.Render("Saving...") + "\n")
	case m.AlreadySaved():
		b.WriteString(disabledStyle.Render("Already saved") + "\n")
	default:
		b.WriteString(buttonStyle.Render("[s] Save") + "\n")
	}
	toggle := "[ ]"
	if m.settings.CloseTabAfterSave {
		toggle = "[x]"
	}
	toggleLine := fmt.Sprintf("%s Close tab after saving (t)", toggle)
	if m.AlreadySaved() {
		b.WriteString(disabledStyle.Render(toggleLine) + "\n")
	} else {
		b.WriteString(" " + toggleLine + "\n")
	}

	if m.status != "" {
		st := statusOKStyle
		if m.statusErr {
			st = statusErrStyle
		}
		b.WriteString(" " + st.Render(m.status) + "\n")
	}
	b.WriteString("\n")

	if len(m.items) == 0 {
		b.WriteString(metaStyle.Render("  No saved pages yet") + "\n")
	}
	now := m.now()
	for i, item := range m.items {
		title := item.DisplayTitle()
		if r := []rune(title); len(r) > popupTitleMaxLen {
			title = string(r[:popupTitleMaxLen-1]) + "…"
		}
		line := "  " + title
		if i == m.cursor {
			line = cursorStyle.Render("> " + title)
		}
		meta := fmt.Sprintf("    %s · %s", hostOf(item), reltime.Since(now, item.SavedAt()))
		switch {
		case m.fading[item.ID]:
			line = fadingStyle.Render(line)
			meta = fadingStyle.Render(meta)
		case item.ID == m.confirmID:
			meta += "  " + confirmStyle.Render("Delete? [y/n]")
		default:
			meta = metaStyle.Render(meta)
		}
		b.WriteString(line + "\n" + meta + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("↑↓ navigate · enter open · d delete · C clear all · q quit"))
	return b.String()
}

func (m Popup) place(s string) string {
	if m.width == 0 || m.height == 0 {
		return s
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

func renderClearConfirm(n int) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("196")).
		Padding(1, 2)
	body := fmt.Sprintf("Remove all %d saved pages?\n\n", n) +
		helpStyle.Render("y confirm · n cancel")
	return boxStyle.Render(body)
}

func hostOf(item types.SavedItem) string {
	u, err := url.Parse(item.URL)
	if err != nil || u.Host == "" {
		return item.URL
	}
	return strings.TrimPrefix(u.Host, "www.")
}
