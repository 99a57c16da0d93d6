// Package conversation provides the shell's command parser and a terminal
// notifier.
package conversation

import (
	"context"
	"regexp"
	"strings"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// Compile-time interface check.
var _ domain.IntentParser = (*KeywordParser)(nil)

// KeywordParser matches shell input to intents. Anything that is not a
// command is taken as a recipe request.
type KeywordParser struct {
	log      *logger.Logger
	patterns []patternRule
}

// patternRule maps a leading command to an intent. minArgs is how many
// arguments the command needs; fewer makes the input unknown.
type patternRule struct {
	regex   *regexp.Regexp
	intent  domain.IntentType
	minArgs int
	// restFrom joins every argument from this index on into one, so file
	// paths with spaces survive. -1 disables joining.
	restFrom int
}

// NewKeywordParser creates the shell parser.
func NewKeywordParser(log *logger.Logger) *KeywordParser {
	p := &KeywordParser{log: log}
	p.patterns = []patternRule{
		{regexp.MustCompile(`(?i)^(quit|exit|q)$`), domain.IntentQuit, 0, -1},
		{regexp.MustCompile(`(?i)^(help|h|\?)$`), domain.IntentHelp, 0, -1},
		{regexp.MustCompile(`(?i)^(list|ls|recipes)$`), domain.IntentList, 0, -1},
		{regexp.MustCompile(`(?i)^(voice|dictate|listen)$`), domain.IntentDictate, 0, -1},
		{regexp.MustCompile(`(?i)^(repair|fix)$`), domain.IntentRepair, 0, -1},
		{regexp.MustCompile(`(?i)^(show|open|view)\s+`), domain.IntentShow, 1, -1},
		{regexp.MustCompile(`(?i)^retry\s+`), domain.IntentRetry, 1, -1},
		{regexp.MustCompile(`(?i)^cancel\s+`), domain.IntentCancel, 1, -1},
		{regexp.MustCompile(`(?i)^(delete|rm|remove)\s+`), domain.IntentDelete, 1, -1},
		{regexp.MustCompile(`(?i)^(attach|photo)\s+`), domain.IntentAttach, 2, 1},
		{regexp.MustCompile(`(?i)^(pin|checklist\s+add)\s+`), domain.IntentChecklistAdd, 1, -1},
		{regexp.MustCompile(`(?i)^(unpin|checklist\s+remove)\s+`), domain.IntentChecklistRemove, 1, -1},
		{regexp.MustCompile(`(?i)^(checklist|tab)\s+`), domain.IntentChecklist, 1, -1},
		{regexp.MustCompile(`(?i)^(toggle|tick|check)\s+`), domain.IntentToggle, 3, -1},
		{regexp.MustCompile(`(?i)^(generate|gen|make|cook)\s+`), domain.IntentGenerate, 1, 0},
	}
	return p
}

// Parse converts user input into an intent.
func (p *KeywordParser) Parse(_ context.Context, input string) (*domain.Intent, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return &domain.Intent{Type: domain.IntentUnknown}, nil
	}

	p.log.Debug("parsing input: %q", trimmed)

	for _, rule := range p.patterns {
		loc := rule.regex.FindStringIndex(trimmed)
		if loc == nil {
			continue
		}

		args := strings.Fields(trimmed[loc[1]:])
		if rule.restFrom >= 0 && len(args) > rule.restFrom {
			rest := strings.Join(args[rule.restFrom:], " ")
			args = append(args[:rule.restFrom:rule.restFrom], rest)
		}
		if len(args) < rule.minArgs {
			p.log.Debug("%s needs %d args, got %d", rule.intent, rule.minArgs, len(args))
			return &domain.Intent{Type: domain.IntentUnknown, Payload: trimmed}, nil
		}

		p.log.Debug("matched intent: %s", rule.intent)
		in := &domain.Intent{Type: rule.intent, Args: args}
		if rule.intent == domain.IntentGenerate {
			in.Payload = args[0]
		}
		return in, nil
	}

	// A lone command word with its arguments missing is a mistake, not a
	// recipe request.
	if isBareCommand(trimmed) {
		return &domain.Intent{Type: domain.IntentUnknown, Payload: trimmed}, nil
	}

	return &domain.Intent{Type: domain.IntentGenerate, Payload: trimmed}, nil
}

var bareCommands = map[string]struct{}{
	"show": {}, "open": {}, "view": {}, "retry": {}, "cancel": {},
	"delete": {}, "rm": {}, "remove": {}, "attach": {}, "photo": {},
	"pin": {}, "unpin": {}, "checklist": {}, "tab": {}, "toggle": {},
	"tick": {}, "check": {}, "generate": {}, "gen": {}, "make": {}, "cook": {},
}

func isBareCommand(s string) bool {
	_, ok := bareCommands[strings.ToLower(s)]
	return ok
}
