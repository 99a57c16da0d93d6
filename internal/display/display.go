// Package display provides the terminal UI using Bubble Tea.
//
// The [UI] type keeps a generation status bar and an input prompt at the
// bottom of the terminal. All application output is printed above the
// rendered area via Program.Println / Printf, so concurrent writes never
// garble the display. The UI also reports terminal focus, which the
// engine reads as "foreground" versus "background".
package display

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/mealscribe/internal/domain"
)

var (
	_ domain.AppState = (*UI)(nil)
	_ domain.AppState = Fixed(false)
)

// Fixed is an AppState that never changes. One-shot commands use
// Fixed(false) so completions give local feedback.
type Fixed bool

// Backgrounded implements domain.AppState.
func (f Fixed) Backgrounded() bool { return bool(f) }

// ── UI ───────────────────────────────────────────────────────────

// UI manages the terminal through Bubble Tea.
//
// Call [NewUI], [UI.Follow], then [UI.Run] (blocking). Other goroutines may safely call
// [UI.Println], [UI.Printf], and read from [UI.InputChan] at any time
// after [UI.WaitReady] returns.
type UI struct {
	program    *tea.Program
	updates    <-chan []domain.Recipe
	inputCh    chan string
	readyCh    chan struct{}
	done       atomic.Bool
	background atomic.Bool
}

// NewUI creates the display.
func NewUI() *UI {
	return &UI{
		inputCh: make(chan string, 16),
		readyCh: make(chan struct{}),
	}
}

// Follow sets the repository subscription that drives the status bar.
// Each list it delivers refreshes the counts. Call before Run.
func (u *UI) Follow(updates <-chan []domain.Recipe) {
	u.updates = updates
}

// Backgrounded reports whether the terminal has lost focus. Terminals
// that never report focus are always treated as foreground.
func (u *UI) Backgrounded() bool { return u.background.Load() }

// Println prints above the prompt while the program runs and to stdout
// otherwise. Safe from any goroutine.
func (u *UI) Println(a ...any) {
	if u.live() {
		u.program.Println(a...)
		return
	}
	fmt.Println(a...)
}

// Printf is Println with formatting. A trailing newline is implied.
func (u *UI) Printf(format string, a ...any) {
	u.Println(fmt.Sprintf(format, a...))
}

func (u *UI) live() bool { return u.program != nil && !u.done.Load() }

// InputChan delivers submitted lines.
func (u *UI) InputChan() <-chan string { return u.inputCh }

// WaitReady blocks until the event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

// ── Output ───────────────────────────────────────────────────────

func (u *UI) indented(style lipgloss.Style, text string) {
	u.Println(style.Render("  " + text))
}

func (u *UI) PrintChat(text string)   { u.indented(chatStyle, text) }
func (u *UI) PrintHint(text string)   { u.indented(secondaryStyle, text) }
func (u *UI) PrintUrgent(text string) { u.indented(urgentStyle, text) }

// PrintBlock prints pre-rendered lines such as a recipe card.
func (u *UI) PrintBlock(text string) { u.Println(strings.TrimRight(text, "\n")) }

// PrintVoice shows what dictation heard.
func (u *UI) PrintVoice(text string) {
	u.Println(secondaryStyle.Render("  heard: ") + primaryStyle.Render(text))
}

// echo copies a submitted line into the scrollback.
func (u *UI) echo(text string) {
	u.Println(promptStyle.Render(promptText) + echoStyle.Render(text))
}

// Run owns the terminal until the user quits or Quit is called.
func (u *UI) Run() error {
	in := textinput.New()
	in.Prompt = promptText // styling the prompt text breaks width math
	in.PromptStyle = promptStyle
	in.TextStyle = echoStyle
	in.Cursor.Style = promptStyle
	in.CharLimit = 500
	in.Width = 60
	in.Focus()

	u.program = tea.NewProgram(model{
		input:      in,
		inputCh:    u.inputCh,
		readyCh:    u.readyCh,
		updates:    u.updates,
		background: &u.background,
		now:        time.Now,
		echo:       u.echo,
	}, tea.WithReportFocus())

	_, err := u.program.Run()
	u.done.Store(true)
	return err
}

// ── Bubble Tea model ─────────────────────────────────────────────

const promptText = "chef> "

type model struct {
	input      textinput.Model
	inputCh    chan<- string
	readyCh    chan struct{}
	updates    <-chan []domain.Recipe
	background *atomic.Bool
	echo       func(string)
	now        func() time.Time

	status status
	width  int
}

// Messages.
type (
	tickMsg     time.Time
	snapshotMsg []domain.Recipe
	closedMsg   struct{}
)

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
		waitForSnapshot(m.updates),
		signalReady(m.readyCh),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForSnapshot blocks on the subscription for the next recipe list.
func waitForSnapshot(updates <-chan []domain.Recipe) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		rs, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(rs)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}

	case tea.FocusMsg, tea.BlurMsg:
		_, blurred := msg.(tea.BlurMsg)
		m.background.Store(blurred)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - len(promptText); w > 0 {
			m.input.Width = w
		}
		return m, nil

	case snapshotMsg:
		m.status = summarize(msg, m.now())
		return m, tea.Batch(waitForSnapshot(m.updates), tea.SetWindowTitle(m.status.title()))

	case closedMsg:
		m.updates = nil
		return m, nil

	case tickMsg:
		m.status.tick(m.now())
		return m, tickCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit hands the typed line to the input channel and echoes it.
// The echo runs as a Cmd so Update never blocks on Println.
func (m model) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.Reset()
	if strings.TrimSpace(line) == "" {
		return m, nil
	}
	m.inputCh <- line
	echo := m.echo
	return m, func() tea.Msg {
		echo(line)
		return nil
	}
}

func (m model) View() string {
	var b strings.Builder

	if bar := m.renderBar(); bar != "" {
		b.WriteString(bar)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(m.input.View())
	return b.String()
}

func (m model) renderBar() string {
	s := m.status
	if s.generating == 0 && s.awaiting == 0 && s.failed == 0 {
		return ""
	}

	var parts []string
	if s.generating > 0 {
		parts = append(parts, labelStyle.Render("cooking up: ")+
			busyStyle.Render(fmt.Sprintf("%d (longest %s)", s.generating, fmtDuration(s.longest))))
	}
	if s.awaiting > 0 {
		parts = append(parts, labelStyle.Render("needs photo: ")+waitingStyle.Render(fmt.Sprint(s.awaiting)))
	}
	if s.failed > 0 {
		parts = append(parts, labelStyle.Render("failed: ")+failedStyle.Render(fmt.Sprint(s.failed)))
	}

	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "

	w := m.width
	if w <= 0 {
		w = 80
	}
	return barBg.Width(w).Render(content)
}

// ── Status ───────────────────────────────────────────────────────

// status is what the bar shows, derived from one recipe list.
type status struct {
	generating int
	awaiting   int
	failed     int
	oldest     time.Time // creation time of the oldest generating record
	longest    time.Duration
}

func summarize(rs []domain.Recipe, now time.Time) status {
	var s status
	for _, r := range rs {
		switch r.State {
		case domain.StateGenerating:
			s.generating++
			if s.oldest.IsZero() || r.CreatedAt.Before(s.oldest) {
				s.oldest = r.CreatedAt
			}
		case domain.StateAwaitingImage:
			s.awaiting++
		case domain.StateFailed:
			s.failed++
		}
	}
	s.tick(now)
	return s
}

func (s *status) tick(now time.Time) {
	if s.generating == 0 {
		s.longest = 0
		return
	}
	s.longest = now.Sub(s.oldest)
}

func (s status) title() string {
	if s.generating == 0 {
		return "mealscribe"
	}
	return fmt.Sprintf("mealscribe (%d cooking up)", s.generating)
}

// ── Helpers ──────────────────────────────────────────────────────

// fmtDuration renders d as "42s" or "3m07s".
func fmtDuration(d time.Duration) string {
	secs := int(max(d, 0).Round(time.Second) / time.Second)
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
}
