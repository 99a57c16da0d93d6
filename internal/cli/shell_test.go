package cli

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/mealscribe/internal/config"
	"github.com/hammamikhairi/mealscribe/internal/conversation"
	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
	"github.com/hammamikhairi/mealscribe/internal/speech"
)

// recordingPrinter captures shell output by kind.
type recordingPrinter struct {
	mu    sync.Mutex
	lines []string
}

func (p *recordingPrinter) add(kind, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, kind+": "+text)
}

func (p *recordingPrinter) PrintChat(text string)   { p.add("chat", text) }
func (p *recordingPrinter) PrintHint(text string)   { p.add("hint", text) }
func (p *recordingPrinter) PrintUrgent(text string) { p.add("urgent", text) }
func (p *recordingPrinter) PrintBlock(text string)  { p.add("block", text) }
func (p *recordingPrinter) PrintVoice(text string)  { p.add("voice", text) }

func (p *recordingPrinter) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lines) == 0 {
		return ""
	}
	return p.lines[len(p.lines)-1]
}

type cannedVoice struct {
	text string
	err  error
}

func (v cannedVoice) Dictate(context.Context) (string, error) { return v.text, v.err }

func setupShell(t *testing.T, voice dictator) (*shell, *recordingPrinter, context.Context) {
	t.Helper()
	env := testEnv(t, config.StoreMemory)
	opts := &RootOptions{
		Quiet:     true,
		getenv:    func(k string) string { return env[k] },
		generator: stubGenerator{},
	}
	ctx := context.Background()
	a, err := openApp(ctx, opts, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	out := &recordingPrinter{}
	parser := conversation.NewKeywordParser(logger.New(logger.LevelOff, nil))
	return newShell(a, out, parser, voice), out, ctx
}

// say parses and handles one line the way the input loop does.
func say(t *testing.T, s *shell, ctx context.Context, line string) bool {
	t.Helper()
	in, err := s.parser.Parse(ctx, line)
	require.NoError(t, err)
	return s.handle(ctx, in)
}

func TestShellGenerateAndShow(t *testing.T) {
	s, out, ctx := setupShell(t, nil)

	require.True(t, say(t, s, ctx, "a mild chickpea curry"))
	assert.Contains(t, out.last(), "Cooking up")
	s.app.Engine.Wait()

	snap := s.app.Repo.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.StateAwaitingImage, snap[0].State)

	say(t, s, ctx, "show "+snap[0].ID[:6])
	assert.Contains(t, out.last(), "Test Curry")
}

func TestShellQuitAndUnknown(t *testing.T) {
	s, out, ctx := setupShell(t, nil)

	assert.True(t, say(t, s, ctx, "retry"))
	assert.True(t, strings.HasPrefix(out.last(), "hint: I didn't catch that"))

	assert.False(t, say(t, s, ctx, "quit"))
}

func TestShellReportsErrorsInUserTerms(t *testing.T) {
	s, out, ctx := setupShell(t, nil)

	say(t, s, ctx, "show deadbeef")
	assert.Equal(t, "urgent: No recipe with that id.", out.last())

	say(t, s, ctx, "generate    ")
	// "generate" alone is a bare command, not a prompt.
	assert.True(t, strings.HasPrefix(out.last(), "hint: I didn't catch that"))
}

func TestShellChecklistFlow(t *testing.T) {
	s, out, ctx := setupShell(t, nil)

	say(t, s, ctx, "curry")
	s.app.Engine.Wait()
	id := s.app.Repo.Snapshot()[0].ID[:8]

	say(t, s, ctx, "pin "+id)
	assert.Contains(t, out.last(), "on your checklist")

	say(t, s, ctx, "tick "+id+" ingredients two")
	assert.Contains(t, out.last(), "not an entry number")

	say(t, s, ctx, "tick "+id+" ingredients 2")
	assert.Contains(t, out.last(), "[x] coconut milk")

	say(t, s, ctx, "unpin "+id)
	assert.Empty(t, s.app.Checklists.GroupsFor(s.app.Repo.Snapshot()[0].ID))
}

func TestShellCancelWithNothingRunning(t *testing.T) {
	s, out, ctx := setupShell(t, nil)

	say(t, s, ctx, "curry")
	s.app.Engine.Wait()
	id := s.app.Repo.Snapshot()[0].ID[:8]

	say(t, s, ctx, "cancel "+id)
	assert.Contains(t, out.last(), "Nothing is running")
}

func TestShellDictation(t *testing.T) {
	t.Run("off", func(t *testing.T) {
		s, out, ctx := setupShell(t, nil)
		say(t, s, ctx, "voice")
		assert.Contains(t, out.last(), "Voice input is off")
	})

	t.Run("silence", func(t *testing.T) {
		s, out, ctx := setupShell(t, cannedVoice{err: speech.ErrNoSpeech})
		say(t, s, ctx, "voice")
		assert.Equal(t, "hint: I didn't hear anything.", out.last())
		assert.Empty(t, s.app.Repo.Snapshot())
	})

	t.Run("heard", func(t *testing.T) {
		s, out, ctx := setupShell(t, cannedVoice{text: "lentil soup"})
		say(t, s, ctx, "voice")
		assert.Contains(t, out.last(), "Cooking up")
		s.app.Engine.Wait()

		snap := s.app.Repo.Snapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, "lentil soup", snap[0].Prompt)
	})
}

func TestShellRunStopsOnClosedInput(t *testing.T) {
	s, out, ctx := setupShell(t, nil)

	in := make(chan string, 2)
	in <- "list"
	close(in)
	s.run(ctx, in)

	assert.Contains(t, out.last(), "no recipes yet")
}
