package orchestrator

import "github.com/harunnryd/juru/pkg/adapters/tts"

// Voices maps base language codes to synthesis voice profiles.
type Voices struct {
	ByLanguage map[string]tts.VoiceProfile
	Default    tts.VoiceProfile
}

// Select picks the voice for a language, ignoring its region subtag.
// Unmapped languages get the default profile; a profile without a language
// code inherits the region code from langs.
func (v Voices) Select(language string, langs Languages) tts.VoiceProfile {
	base := Base(language)
	profile, ok := v.ByLanguage[base]
	if !ok {
		profile = v.Default
	}
	if profile.LanguageCode == "" && base != "" {
		profile.LanguageCode = langs.Region(base)
	}
	return profile
}
