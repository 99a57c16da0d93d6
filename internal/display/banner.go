package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

//go:embed banner.txt
var bannerArt string

// RenderBanner centres the banner art and the tagline under it for the
// terminal on stdout.
func RenderBanner(tagline string) string {
	cols := 80
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		cols = w
	}

	art := strings.Split(strings.TrimRight(bannerArt, "\n"), "\n")
	block := 0
	for _, row := range art {
		block = max(block, len(row))
	}

	var b strings.Builder
	for _, row := range art {
		// Rows share one left margin so the art keeps its shape.
		centre(&b, cols, block, BannerStyle, row)
	}
	if tagline != "" {
		centre(&b, cols, len(tagline), secondaryStyle, tagline)
	}
	return b.String()
}

func centre(b *strings.Builder, cols, width int, style lipgloss.Style, s string) {
	if cols > width {
		b.WriteString(strings.Repeat(" ", (cols-width)/2))
	}
	b.WriteString(style.Render(s))
	b.WriteByte('\n')
}
