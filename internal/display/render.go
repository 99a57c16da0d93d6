package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/hammamikhairi/mealscribe/internal/domain"
)

// ShortID is the prefix shown in lists. The shell accepts any unique
// prefix.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// RenderList renders one line per recipe, newest first as given.
func RenderList(rs []domain.Recipe, now time.Time) string {
	if len(rs) == 0 {
		return secondaryStyle.Render("  no recipes yet. Describe a dish to get started.") + "\n"
	}

	var b strings.Builder
	for _, r := range rs {
		pin := " "
		if r.InChecklist {
			pin = "*"
		}
		fmt.Fprintf(&b, "  %s %s  %s  %s\n",
			pin,
			secondaryStyle.Render(ShortID(r.ID)),
			stateStyle(r.State).Render(fmt.Sprintf("%-14s", r.State)),
			primaryStyle.Render(listName(r))+secondaryStyle.Render("  "+ago(now.Sub(r.CreatedAt))),
		)
	}
	return b.String()
}

func listName(r domain.Recipe) string {
	if r.IsPlaceholder() && r.Prompt != "" {
		return fmt.Sprintf("%q", truncate(r.Prompt, 48))
	}
	return r.Name
}

// RenderRecipe renders a full recipe card.
func RenderRecipe(r domain.Recipe) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("  "+r.Name) + "  " + stateStyle(r.State).Render(r.State.String()) + "\n")
	b.WriteString(secondaryStyle.Render("  id "+r.ID) + "\n")
	if r.Prompt != "" {
		b.WriteString(secondaryStyle.Render("  asked for: "+r.Prompt) + "\n")
	}
	if len(r.Tags) > 0 {
		b.WriteString(secondaryStyle.Render("  tags: "+strings.Join(r.Tags, ", ")) + "\n")
	}

	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		b.WriteString("\n" + chatStyle.Render("  "+title) + "\n")
		for _, l := range lines {
			b.WriteString(primaryStyle.Render("    "+l) + "\n")
		}
	}

	section("Ingredients", ingredientLines(r.Ingredients.Main))
	section("Seasoning", ingredientLines(r.Ingredients.Seasoning))
	section("Dip", ingredientLines(r.Ingredients.Dip))
	section("Tools", r.Tools)
	section("Preparation", numbered(r.PreparationSteps))
	section("Cooking", numbered(r.CookingSteps))
	section("Tips", r.Tips)

	if r.ImagePath != "" {
		b.WriteString("\n" + secondaryStyle.Render("  photo: "+r.ImagePath) + "\n")
	}
	return b.String()
}

// RenderChecklist renders one checklist tab. items should already be in
// display order.
func RenderChecklist(g domain.ChecklistGroup, items []domain.ChecklistEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s  %s\n",
		titleStyle.Render(string(g.Category)),
		secondaryStyle.Render(fmt.Sprintf("%d/%d done (%.0f%%)", g.Completed(), len(g.Entries), g.Progress()*100)),
	)
	for i, e := range items {
		box, style := "[ ]", primaryStyle
		if e.Completed {
			box, style = "[x]", secondaryStyle
		}
		line := fmt.Sprintf("  %2d %s %s", i+1, box, e.Title)
		if e.Subtitle != "" {
			line += secondaryStyle.Render("  " + e.Subtitle)
		}
		b.WriteString(style.Render(line) + "\n")
	}
	return b.String()
}

func stateStyle(s domain.State) interface{ Render(...string) string } {
	switch s {
	case domain.StateGenerating:
		return busyStyle
	case domain.StateAwaitingImage:
		return waitingStyle
	case domain.StateFailed:
		return failedStyle
	default:
		return titleStyle
	}
}

func ingredientLines(in []domain.Ingredient) []string {
	out := make([]string, 0, len(in))
	for _, i := range in {
		l := i.Name
		if i.Quantity != "" {
			l += " - " + i.Quantity
		}
		out = append(out, l)
	}
	return out
}

func numbered(steps []string) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = fmt.Sprintf("%d. %s", i+1, s)
	}
	return out
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
