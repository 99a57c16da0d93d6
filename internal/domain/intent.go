package domain

// IntentType classifies what the user wants to do in the interactive shell.
type IntentType int

const (
	IntentUnknown IntentType = iota
	IntentGenerate
	IntentDictate // record a spoken prompt, then generate
	IntentList
	IntentShow
	IntentRetry
	IntentCancel
	IntentAttach
	IntentDelete
	IntentChecklistAdd
	IntentChecklistRemove
	IntentChecklist // show one checklist tab
	IntentToggle
	IntentRepair
	IntentHelp
	IntentQuit
)

// String returns a human-readable intent type.
func (i IntentType) String() string {
	for name, t := range intentNames {
		if t == i {
			return name
		}
	}
	return "unknown"
}

// Intent represents a parsed user action. Args carries the positional
// arguments after the command word; Payload carries free text (the prompt
// for a generate request).
type Intent struct {
	Type    IntentType
	Args    []string
	Payload string
}

// Arg returns the i-th argument or "" when missing.
func (in Intent) Arg(i int) string {
	if i < 0 || i >= len(in.Args) {
		return ""
	}
	return in.Args[i]
}

// intentNames maps snake_case names to IntentType values.
var intentNames = map[string]IntentType{
	"generate":         IntentGenerate,
	"dictate":          IntentDictate,
	"list":             IntentList,
	"show":             IntentShow,
	"retry":            IntentRetry,
	"cancel":           IntentCancel,
	"attach":           IntentAttach,
	"delete":           IntentDelete,
	"checklist_add":    IntentChecklistAdd,
	"checklist_remove": IntentChecklistRemove,
	"checklist":        IntentChecklist,
	"toggle":           IntentToggle,
	"repair":           IntentRepair,
	"help":             IntentHelp,
	"quit":             IntentQuit,
	"unknown":          IntentUnknown,
}

// IntentFromString converts a snake_case intent name to an IntentType.
// Returns IntentUnknown for unrecognized names.
func IntentFromString(name string) IntentType {
	if t, ok := intentNames[name]; ok {
		return t
	}
	return IntentUnknown
}
