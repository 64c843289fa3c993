package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

func title(s string) string { return titleStyle.Render(s) }

// field renders "label: value" with the label dimmed.
func field(label string, value any) string {
	return fmt.Sprintf("  %s %v", labelStyle.Render(label+":"), value)
}

// bar renders completion in [0,1] as a fixed-width bar.
func bar(completion float64) string {
	const width = 20
	filled := int(completion*width + 0.5)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
