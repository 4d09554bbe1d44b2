package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette entries adapt to light and dark terminal backgrounds.
var (
	accent  = lipgloss.AdaptiveColor{Light: "25", Dark: "39"}
	heading = lipgloss.AdaptiveColor{Light: "162", Dark: "212"}
	good    = lipgloss.AdaptiveColor{Light: "28", Dark: "82"}
	caution = lipgloss.AdaptiveColor{Light: "130", Dark: "214"}
	bad     = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	muted   = lipgloss.AdaptiveColor{Light: "242", Dark: "245"}
	marker  = lipgloss.AdaptiveColor{Light: "136", Dark: "226"}
)

var (
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(muted)
	Highlight = lipgloss.NewStyle().Foreground(marker)
	Header    = lipgloss.NewStyle().Foreground(accent).Bold(true)

	Success = lipgloss.NewStyle().Foreground(good)
	Warning = lipgloss.NewStyle().Foreground(caution)
	Error   = lipgloss.NewStyle().Foreground(bad)

	DocName      = lipgloss.NewStyle().Foreground(accent)
	PassageText  = Dim.PaddingLeft(2)
	SectionTitle = lipgloss.NewStyle().Foreground(heading).Bold(true).MarginTop(1)

	owner = Highlight.Bold(true)
)

// FormatPassageRef renders a document name, with " p.N" when the passage
// has a page.
func FormatPassageRef(document string, page int) string {
	ref := DocName.Render(document)
	if page > 0 {
		ref += Dim.Render(fmt.Sprintf(" p.%d", page))
	}
	return ref
}

// FormatScore renders a similarity score as a percentage match.
func FormatScore(score float64) string {
	return Success.Render(fmt.Sprintf("(%.1f%% match)", score*100))
}

// FormatScope renders an owner/document pair as [owner] document.
func FormatScope(ownerName, document string) string {
	return owner.Render("["+ownerName+"]") + " " + DocName.Render(document)
}
