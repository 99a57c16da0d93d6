package speech

import "time"

// Audio parameters for the chime player.
const (
	SampleRate   = 24000
	ChannelCount = 1
	BitDepth     = 16
)

// Defaults for dictation.
const (
	DefaultWhisperBin     = "whisper-cli"
	DefaultRecordDuration = 5 * time.Second
	DefaultTempDir        = ".mealscribe/stt"
)
