package speech

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

var _ domain.Feedback = (*Chime)(nil)

// note is one tone in a chime.
type note struct {
	freq float64 // Hz
	dur  time.Duration
}

var (
	successNotes = []note{{660, 90 * time.Millisecond}, {990, 140 * time.Millisecond}}
	failureNotes = []note{{440, 120 * time.Millisecond}, {294, 220 * time.Millisecond}}
)

// Chime plays short synthesized tones through the system audio device.
// It is the terminal's version of a haptic tap.
type Chime struct {
	ctx *oto.Context
	log *logger.Logger

	mu     sync.Mutex
	active *oto.Player // currently playing, nil when idle

	success []byte
	failure []byte
}

// NewChime initializes the system audio context. Returns an error if the
// audio device is unavailable. Only one audio context may exist per
// process.
func NewChime(log *logger.Logger) (*Chime, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	log.Debug("chime: audio initialized (rate=%d, channels=%d)", SampleRate, ChannelCount)
	return &Chime{
		ctx:     ctx,
		log:     log,
		success: synthesize(successNotes),
		failure: synthesize(failureNotes),
	}, nil
}

// Success plays the rising two-note chime without blocking.
func (c *Chime) Success() { go c.play(c.success) }

// Failure plays the falling two-note chime without blocking.
func (c *Chime) Failure() { go c.play(c.failure) }

// play plays PCM synchronously, cutting off any chime still sounding.
func (c *Chime) play(pcm []byte) {
	player := c.ctx.NewPlayer(bytes.NewReader(pcm))

	c.mu.Lock()
	if c.active != nil {
		c.active.Pause()
	}
	c.active = player
	c.mu.Unlock()

	player.Play()
	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}

	c.mu.Lock()
	if c.active == player {
		c.active = nil
	}
	c.mu.Unlock()

	if err := player.Close(); err != nil {
		c.log.Warn("chime: close player: %v", err)
	}
}

// synthesize renders notes as signed 16-bit little-endian mono PCM. Each
// note gets a short linear fade in and out so it does not click.
func synthesize(notes []note) []byte {
	const (
		amplitude = 0.3 * math.MaxInt16
		fade      = 5 * time.Millisecond
	)
	fadeSamples := int(fade.Seconds() * SampleRate)

	var buf bytes.Buffer
	for _, n := range notes {
		total := int(n.dur.Seconds() * SampleRate)
		for i := 0; i < total; i++ {
			env := 1.0
			if i < fadeSamples {
				env = float64(i) / float64(fadeSamples)
			} else if rest := total - i; rest < fadeSamples {
				env = float64(rest) / float64(fadeSamples)
			}
			v := amplitude * env * math.Sin(2*math.Pi*n.freq*float64(i)/SampleRate)
			_ = binary.Write(&buf, binary.LittleEndian, int16(v))
		}
	}
	return buf.Bytes()
}
