package speech

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// ErrNoSpeech is returned when a recording transcribes to nothing usable.
var ErrNoSpeech = errors.New("no speech detected")

// envAnnotation matches whisper environmental annotations like
// "(keyboard clicking)", "[laughter]", "(speaking French)", etc.
var envAnnotation = regexp.MustCompile(`[\(\[][a-zA-Z][a-zA-Z\s_]*[\)\]]`)

// DictationOption configures Dictation.
type DictationOption func(*Dictation)

// WithRecordDuration sets how long one dictation records.
func WithRecordDuration(d time.Duration) DictationOption {
	return func(d2 *Dictation) {
		if d > 0 {
			d2.recordDuration = d
		}
	}
}

// WithTempDir sets the directory for temporary WAV files.
func WithTempDir(dir string) DictationOption {
	return func(d *Dictation) {
		if dir != "" {
			d.tempDir = dir
		}
	}
}

// Dictation records one spoken prompt from the microphone and transcribes
// it with a local Whisper model.
type Dictation struct {
	whisperBin     string
	modelPath      string
	tempDir        string
	recordDuration time.Duration
	log            *logger.Logger

	mu sync.Mutex // one recording at a time
}

// NewDictation creates a dictation source.
//
//   - whisperBin: path to the whisper-cli executable
//   - modelPath:  path to the GGML model file
func NewDictation(whisperBin, modelPath string, log *logger.Logger, opts ...DictationOption) (*Dictation, error) {
	d := &Dictation{
		whisperBin:     whisperBin,
		modelPath:      modelPath,
		tempDir:        DefaultTempDir,
		recordDuration: DefaultRecordDuration,
		log:            log,
	}
	if d.whisperBin == "" {
		d.whisperBin = DefaultWhisperBin
	}
	for _, opt := range opts {
		opt(d)
	}

	if _, err := exec.LookPath(d.whisperBin); err != nil {
		return nil, err
	}
	if _, err := os.Stat(d.modelPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.tempDir, 0o755); err != nil {
		return nil, err
	}
	return d, nil
}

// Dictate records for the configured duration and returns the cleaned
// transcription. Cancelling ctx stops the recording early and returns
// ctx.Err().
func (d *Dictation) Dictate(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		result string
		wg     sync.WaitGroup
	)
	wg.Add(1)
	callback := func(text string) {
		result = text
		wg.Done()
	}

	verbose := d.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(
		d.whisperBin,
		d.modelPath,
		d.tempDir,
		"wav",
		callback,
		verbose,
	)
	if err != nil {
		return "", err
	}
	if err := t.Start(); err != nil {
		return "", err
	}
	d.log.Debug("dictation: recording %s", d.recordDuration)

	select {
	case <-time.After(d.recordDuration):
	case <-ctx.Done():
		t.Stop()
		wg.Wait()
		return "", ctx.Err()
	}

	t.Stop()
	wg.Wait()

	text := cleanTranscription(result)
	if text == "" {
		return "", ErrNoSpeech
	}
	d.log.Info("dictation: heard %q", text)
	return text, nil
}

// ── Transcription cleanup ────────────────────────────────────────

// hallucinations are phrases whisper emits on silence.
var hallucinations = []string{
	"...",
	"you",
	"thank you.",
	"thanks for watching!",
	"thank you for watching.",
	"bye.",
	"bye!",
	"the end.",
}

// cleanTranscription normalizes whitespace and strips whisper artifacts
// such as "[BLANK_AUDIO]", "(keyboard clicking)" and timestamp prefixes.
// Returns "" when nothing but a known hallucination remains.
func cleanTranscription(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	s = strings.TrimSpace(s)

	// Timestamp prefixes like "[00:00:00.000 --> 00:00:05.000]".
	if strings.HasPrefix(s, "[") {
		if idx := strings.Index(s, "]"); idx != -1 && idx < 40 && strings.Contains(s[:idx], "-->") {
			s = s[idx+1:]
		}
	}

	s = envAnnotation.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	lower := strings.ToLower(s)
	for _, h := range hallucinations {
		if h == lower {
			return ""
		}
	}
	return s
}
