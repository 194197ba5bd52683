package tts

import "context"

// Synthesizer defines the contract for any text-to-speech vendor implementation.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Synthesize renders text with the given voice and returns the encoded audio.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (Audio, error)
}

// VoiceProfile selects the synthesis voice for a target language.
type VoiceProfile struct {
	// LanguageCode is a region code such as "vi-VN".
	LanguageCode string `mapstructure:"language_code"`
	// Name is the vendor voice identifier; empty means the vendor default.
	Name string `mapstructure:"name"`
}

// Audio is one synthesized clip.
type Audio struct {
	Data     []byte
	Encoding string
	Language string
}

// EncodingMP3 is the encoding sent to browser clients.
const EncodingMP3 = "mp3"
