package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/rtc"
)

// Color palette
var (
	Primary = lipgloss.Color("#2DD4BF") // Teal accent
	Success = lipgloss.Color("#10B981") // Emerald
	Warning = lipgloss.Color("#F59E0B") // Amber
	Error   = lipgloss.Color("#EF4444") // Red
	Muted   = lipgloss.Color("#6B7280") // Gray
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			MarginBottom(1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)
)

const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconInfo    = "ℹ️"
	IconCall    = "📞"
	IconPeer    = "👤"
	IconMic     = "🎙️"
	IconCamera  = "📷"
)

var qualityStyles = map[rtc.Quality]lipgloss.Style{
	rtc.QualityExcellent:    SuccessStyle,
	rtc.QualityGood:         lipgloss.NewStyle().Foreground(Primary),
	rtc.QualityPoor:         WarningStyle,
	rtc.QualityDisconnected: ErrorStyle,
}

// QualityBadge renders the connection-quality enum in its display color.
func QualityBadge(q rtc.Quality) string {
	return qualityStyles[q].Render(string(q))
}

func PrintError(msg string) {
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintErrorf(format string, args ...any) {
	PrintError(fmt.Sprintf(format, args...))
}

func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintSuccessf(format string, args ...any) {
	PrintSuccess(fmt.Sprintf(format, args...))
}

func PrintInfo(msg string) {
	fmt.Printf("%s %s\n", IconInfo, msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}
