package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

func TestCleanTranscription(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  a spicy lentil soup\n", "a spicy lentil soup"},
		{"[BLANK_AUDIO]", ""},
		{"(keyboard clicking) tomato pasta", "tomato pasta"},
		{"[00:00:00.000 --> 00:00:05.000]  miso ramen", "miso ramen"},
		{"Thank you.", ""},
		{"you", ""},
		{"pancakes [laughter] with berries", "pancakes with berries"},
	}
	for _, tt := range tests {
		if got := cleanTranscription(tt.in); got != tt.want {
			t.Errorf("cleanTranscription(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSynthesizeLength(t *testing.T) {
	pcm := synthesize([]note{{440, 100 * time.Millisecond}, {880, 50 * time.Millisecond}})
	wantSamples := int(0.1*SampleRate) + int(0.05*SampleRate)
	if got := len(pcm); got != wantSamples*BitDepth/8 {
		t.Fatalf("pcm length = %d, want %d", got, wantSamples*BitDepth/8)
	}
	if pcm[0] != 0 || pcm[1] != 0 {
		t.Error("tone should fade in from silence")
	}
}

func TestNoOp(t *testing.T) {
	n := NewNoOp(logger.New(logger.LevelOff, nil))
	n.Success()
	n.Failure()
	if _, err := n.Dictate(context.Background()); !errors.Is(err, domain.ErrNotImplemented) {
		t.Fatalf("Dictate err = %v, want ErrNotImplemented", err)
	}
}

func TestNewDictationRequiresBinary(t *testing.T) {
	_, err := NewDictation("mealscribe-no-such-whisper", "missing.bin", logger.New(logger.LevelOff, nil))
	if err == nil {
		t.Fatal("expected an error for a missing whisper binary")
	}
}
