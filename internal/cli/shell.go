package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hammamikhairi/mealscribe/internal/display"
	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
	"github.com/hammamikhairi/mealscribe/internal/speech"
)

// printer is the shell's output surface. display.UI implements it.
type printer interface {
	PrintChat(text string)
	PrintHint(text string)
	PrintUrgent(text string)
	PrintBlock(text string)
	PrintVoice(text string)
}

// dictator records one spoken prompt.
type dictator interface {
	Dictate(ctx context.Context) (string, error)
}

// shell reads commands and dispatches them to the app.
type shell struct {
	app    *App
	out    printer
	parser domain.IntentParser
	voice  dictator // nil when voice input is off
	log    *logger.Logger
	now    func() time.Time
}

func newShell(app *App, out printer, parser domain.IntentParser, voice dictator) *shell {
	return &shell{
		app:    app,
		out:    out,
		parser: parser,
		voice:  voice,
		log:    app.Log.Named("shell"),
		now:    time.Now,
	}
}

// run reads lines until ctx ends, the input closes, or the user quits.
func (s *shell) run(ctx context.Context, input <-chan string) {
	s.list()

	for {
		var line string
		var ok bool

		select {
		case <-ctx.Done():
			return
		case line, ok = <-input:
			if !ok {
				return
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		intent, err := s.parser.Parse(ctx, line)
		if err != nil {
			s.log.Error("parsing input: %v", err)
			continue
		}

		s.log.Debug("intent: %s (args=%v)", intent.Type, intent.Args)
		if !s.handle(ctx, intent) {
			return
		}
	}
}

// handle executes one intent. It returns false when the shell should exit.
func (s *shell) handle(ctx context.Context, in *domain.Intent) bool {
	switch in.Type {
	case domain.IntentQuit:
		s.out.PrintChat("Bye. Recipes still cooking will pick up next time.")
		return false
	case domain.IntentHelp:
		s.help()
	case domain.IntentList:
		s.list()
	case domain.IntentGenerate:
		s.generate(ctx, in.Payload)
	case domain.IntentDictate:
		s.dictate(ctx)
	case domain.IntentShow:
		if r, ok := s.resolve(in.Arg(0)); ok {
			s.out.PrintBlock(display.RenderRecipe(r))
		}
	case domain.IntentRetry:
		s.retry(ctx, in.Arg(0))
	case domain.IntentCancel:
		s.cancel(in.Arg(0))
	case domain.IntentAttach:
		s.attach(ctx, in.Arg(0), in.Arg(1))
	case domain.IntentDelete:
		s.remove(ctx, in.Arg(0))
	case domain.IntentChecklistAdd:
		s.pin(ctx, in.Arg(0), true)
	case domain.IntentChecklistRemove:
		s.pin(ctx, in.Arg(0), false)
	case domain.IntentChecklist:
		s.checklist(ctx, in.Arg(0), in.Arg(1))
	case domain.IntentToggle:
		s.toggle(ctx, in.Arg(0), in.Arg(1), in.Arg(2))
	case domain.IntentRepair:
		s.repair(ctx)
	default:
		s.out.PrintHint("I didn't catch that. Type 'help' for commands.")
	}
	return true
}

// ── Handlers ─────────────────────────────────────────────────────

func (s *shell) help() {
	s.out.PrintBlock(`  Describe a dish to generate a recipe, or:
    list                      all recipes
    show <id>                 print a recipe
    retry <id>                retry a failed generation
    cancel <id>               stop a running generation
    attach <id> <file>        add a photo
    delete <id>               remove a recipe
    pin <id> / unpin <id>     add to or drop from the checklist
    checklist <id> [tab]      show a tab: ingredients, steps, sauce
    tick <id> <tab> <n>       flip the n-th entry of a tab
    voice                     dictate a description
    repair                    clean up interrupted work
    quit
  Any unique id prefix works.`)
}

func (s *shell) list() {
	s.out.PrintBlock(display.RenderList(s.app.Repo.Snapshot(), s.now()))
}

func (s *shell) generate(ctx context.Context, prompt string) {
	id, err := s.app.Engine.GenerateAndSave(ctx, prompt)
	if err != nil {
		s.fail(err)
		return
	}
	s.out.PrintChat(fmt.Sprintf("On it. Cooking up %s...", display.ShortID(id)))
}

func (s *shell) dictate(ctx context.Context) {
	if s.voice == nil {
		s.out.PrintHint("Voice input is off. Start the shell with --voice.")
		return
	}
	s.out.PrintHint("Listening...")
	text, err := s.voice.Dictate(ctx)
	if errors.Is(err, speech.ErrNoSpeech) {
		s.out.PrintHint("I didn't hear anything.")
		return
	}
	if err != nil {
		s.fail(err)
		return
	}
	s.out.PrintVoice(text)
	s.generate(ctx, text)
}

func (s *shell) retry(ctx context.Context, ref string) {
	r, ok := s.resolve(ref)
	if !ok {
		return
	}
	if err := s.app.Engine.Retry(ctx, r.ID); err != nil {
		s.fail(err)
		return
	}
	s.out.PrintChat(fmt.Sprintf("Trying %s again...", display.ShortID(r.ID)))
}

func (s *shell) cancel(ref string) {
	r, ok := s.resolve(ref)
	if !ok {
		return
	}
	if !s.app.Engine.Cancel(r.ID) {
		s.out.PrintHint(fmt.Sprintf("Nothing is running for %s.", display.ShortID(r.ID)))
		return
	}
	s.out.PrintChat(fmt.Sprintf("Stopped %s. Use 'retry %s' to start it again.", display.ShortID(r.ID), display.ShortID(r.ID)))
}

func (s *shell) attach(ctx context.Context, ref, path string) {
	r, ok := s.resolve(ref)
	if !ok {
		return
	}
	updated, err := attachFile(ctx, s.app, r.ID, path)
	if err != nil {
		s.fail(err)
		return
	}
	s.out.PrintChat(fmt.Sprintf("Photo saved. %s is complete.", updated.Name))
}

func (s *shell) remove(ctx context.Context, ref string) {
	r, ok := s.resolve(ref)
	if !ok {
		return
	}
	if err := s.app.Engine.Delete(ctx, r.ID); err != nil {
		s.fail(err)
		return
	}
	s.out.PrintChat(fmt.Sprintf("Deleted %s.", display.ShortID(r.ID)))
}

func (s *shell) pin(ctx context.Context, ref string, on bool) {
	r, ok := s.resolve(ref)
	if !ok {
		return
	}
	r, err := s.app.Engine.SetInChecklist(ctx, r.ID, on)
	if err != nil {
		s.fail(err)
		return
	}
	if on {
		s.out.PrintChat(fmt.Sprintf("%s is on your checklist.", r.Name))
	} else {
		s.out.PrintChat(fmt.Sprintf("%s is off your checklist.", r.Name))
	}
}

func (s *shell) checklist(ctx context.Context, ref, tab string) {
	r, ok := s.resolve(ref)
	if !ok {
		return
	}
	cat, err := parseCategory(tab)
	if err != nil {
		s.fail(err)
		return
	}
	g, items, err := s.app.ChecklistView(ctx, r, cat)
	if err != nil {
		s.fail(err)
		return
	}
	s.out.PrintBlock(display.RenderChecklist(g, items))
}

func (s *shell) toggle(ctx context.Context, ref, tab, nth string) {
	r, ok := s.resolve(ref)
	if !ok {
		return
	}
	cat, err := parseCategory(tab)
	if err != nil {
		s.fail(err)
		return
	}
	n, err := strconv.Atoi(nth)
	if err != nil {
		s.out.PrintHint(fmt.Sprintf("%q is not an entry number.", nth))
		return
	}
	g, items, err := s.app.ToggleNth(ctx, r, cat, n)
	if err != nil {
		s.fail(err)
		return
	}
	s.out.PrintBlock(display.RenderChecklist(g, items))
}

func (s *shell) repair(ctx context.Context) {
	rep, err := s.app.Repair(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	s.out.PrintChat(fmt.Sprintf("Repair done: %d failed, %d relaunched, %d orphaned checklists removed.",
		rep.Recovery.Failed, rep.Recovery.Relaunched, rep.Orphans))
	for _, id := range rep.MissingPhotos {
		s.out.PrintHint(fmt.Sprintf("Photo missing for %s.", display.ShortID(id)))
	}
}

// ── Helpers ──────────────────────────────────────────────────────

func (s *shell) resolve(ref string) (domain.Recipe, bool) {
	r, err := s.app.Resolve(ref)
	if err != nil {
		s.fail(err)
		return domain.Recipe{}, false
	}
	return r, true
}

// fail reports err in user terms.
func (s *shell) fail(err error) {
	s.log.Debug("command failed: %v", err)
	switch {
	case errors.Is(err, domain.ErrEmptyPrompt):
		s.out.PrintHint("Tell me what you'd like to cook.")
	case errors.Is(err, domain.ErrMissingPrompt):
		s.out.PrintUrgent("That recipe has no description to retry from.")
	case errors.Is(err, domain.ErrNotFound):
		s.out.PrintUrgent("No recipe with that id.")
	case errors.Is(err, ErrAmbiguous):
		s.out.PrintUrgent("That id matches more than one recipe. Type more of it.")
	case errors.Is(err, domain.ErrNotImplemented):
		s.out.PrintUrgent("Photos are disabled in the config.")
	default:
		s.out.PrintUrgent(err.Error())
	}
}
