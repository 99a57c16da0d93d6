package display

import "github.com/charmbracelet/lipgloss"

// Palette. Zinc greys for chrome, pastel accents for state.
const (
	colBarBg = lipgloss.Color("#27272a")
	colMuted = lipgloss.Color("#a1a1aa")
	colDim   = lipgloss.Color("#71717a")
	colRule  = lipgloss.Color("#52525b")
	colText  = lipgloss.Color("#d4d4d8")
	colSlate = lipgloss.Color("#94a3b8")
	colSky   = lipgloss.Color("#bae6fd")
	colAmber = lipgloss.Color("#fde68a")
	colRose  = lipgloss.Color("#fca5a5")
	colMint  = lipgloss.Color("#bbf7d0")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

var (
	barBg        = fg(colMuted).Background(colBarBg)
	busyStyle    = fg(colAmber)
	waitingStyle = fg(colSky)
	failedStyle  = fg(colRose)
	labelStyle   = fg(colMuted)
	sepStyle     = fg(colRule)
	promptStyle  = fg(colSlate)

	// BannerStyle is used for the startup banner and its notes.
	BannerStyle = fg(colSlate)

	chatStyle      = fg(colSky)
	titleStyle     = fg(colMint).Bold(true)
	primaryStyle   = fg(colText)
	secondaryStyle = fg(colDim)
	urgentStyle    = fg(colRose)
	echoStyle      = fg(colMuted)
)
