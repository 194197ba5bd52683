package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/errorsx"
	"github.com/harunnryd/juru/pkg/providers/mock"
	"github.com/harunnryd/juru/pkg/recognition"
)

func testLanguages() Languages {
	return Languages{
		Pairs:         map[string]string{"en": "vi", "vi": "en"},
		Regions:       map[string]string{"en": "en-US", "vi": "vi-VN"},
		DefaultTarget: "vi",
	}
}

func testVoices() Voices {
	return Voices{
		ByLanguage: map[string]tts.VoiceProfile{
			"en": {LanguageCode: "en-US", Name: "en-US-Wavenet-D"},
			"vi": {LanguageCode: "vi-VN", Name: "vi-VN-Wavenet-D"},
		},
		Default: tts.VoiceProfile{Name: "default"},
	}
}

func newTestOrchestrator(tr *mock.Translator, synth *mock.Synthesizer) *Orchestrator {
	return New(tr, synth, Config{
		Languages:   testLanguages(),
		Voices:      testVoices(),
		FillerWords: []string{"um", "uh"},
	})
}

func TestRunResolvesPairedTarget(t *testing.T) {
	tr := mock.NewTranslator(mock.TranslatorConfig{
		Dictionary: map[string]map[string]string{"vi": {"hello": "xin chào"}},
	})
	synth := mock.NewTTS(mock.TTSConfig{})
	o := newTestOrchestrator(tr, synth)

	res, err := o.Run(context.Background(), Request{
		Transcript: recognition.Transcript{Text: "hello", Language: "en-US"},
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if res.TargetLanguage != "vi" {
		t.Fatalf("expected target vi, got %q", res.TargetLanguage)
	}
	if res.Translated == nil || string(res.Translated.Data) != "mp3:vi-VN:xin chào" {
		t.Fatalf("unexpected translated audio: %+v", res.Translated)
	}
	if res.Echo != nil {
		t.Fatalf("expected no echo audio when echo is off")
	}
	calls := synth.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one synthesis call, got %d", len(calls))
	}
	if calls[0].Voice.Name != "vi-VN-Wavenet-D" {
		t.Fatalf("expected vietnamese voice, got %+v", calls[0].Voice)
	}
}

func TestRunFallsBackToOriginalText(t *testing.T) {
	tr := mock.NewTranslator(mock.TranslatorConfig{Err: errors.New("quota")})
	synth := mock.NewTTS(mock.TTSConfig{})
	o := newTestOrchestrator(tr, synth)

	res, err := o.Run(context.Background(), Request{
		Transcript:     recognition.Transcript{Text: "hello", Language: "en"},
		TargetLanguage: "vi",
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !res.Degraded {
		t.Fatalf("expected degraded result")
	}
	calls := synth.Calls()
	if len(calls) != 1 || calls[0].Text != "hello" {
		t.Fatalf("expected synthesizer to receive original text, got %+v", calls)
	}
	if res.Translated == nil {
		t.Fatalf("expected translated audio despite translation failure")
	}
}

func TestRunSynthesisFailureReturnsError(t *testing.T) {
	tr := mock.NewTranslator(mock.TranslatorConfig{})
	synth := mock.NewTTS(mock.TTSConfig{Err: errors.New("voice down")})
	o := newTestOrchestrator(tr, synth)

	res, err := o.Run(context.Background(), Request{
		Transcript:     recognition.Transcript{Text: "hello", Language: "en"},
		TargetLanguage: "vi",
	})
	if err == nil {
		t.Fatalf("expected synthesis error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonSynthesis) {
		t.Fatalf("expected synthesis reason, got %s", errorsx.Reason(err))
	}
	if res.Translated != nil {
		t.Fatalf("expected no translated audio")
	}
}

func TestRunEchoSynthesizesBothLanguages(t *testing.T) {
	tr := mock.NewTranslator(mock.TranslatorConfig{})
	synth := mock.NewTTS(mock.TTSConfig{})
	o := newTestOrchestrator(tr, synth)

	res, err := o.Run(context.Background(), Request{
		Transcript: recognition.Transcript{Text: "hello", Language: "en"},
		Echo:       true,
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if res.Echo == nil || string(res.Echo.Data) != "mp3:en-US:hello" {
		t.Fatalf("unexpected echo audio: %+v", res.Echo)
	}
	if res.Translated == nil || string(res.Translated.Data) != "mp3:vi-VN:[vi] hello" {
		t.Fatalf("unexpected translated audio: %+v", res.Translated)
	}
}

func TestRunEchoFailureKeepsTranslation(t *testing.T) {
	tr := mock.NewTranslator(mock.TranslatorConfig{})
	synth := mock.NewTTS(mock.TTSConfig{FailText: map[string]bool{"hello": true}})
	o := newTestOrchestrator(tr, synth)

	res, err := o.Run(context.Background(), Request{
		Transcript: recognition.Transcript{Text: "hello", Language: "en"},
		Echo:       true,
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if res.Echo != nil {
		t.Fatalf("expected echo to be dropped")
	}
	if res.Translated == nil {
		t.Fatalf("expected translated audio")
	}
}

func TestRunDetectsLanguageWhenTranscriptHasNone(t *testing.T) {
	tr := mock.NewTranslator(mock.TranslatorConfig{Detected: "vi"})
	synth := mock.NewTTS(mock.TTSConfig{})
	o := newTestOrchestrator(tr, synth)

	res, err := o.Run(context.Background(), Request{
		Transcript: recognition.Transcript{Text: "xin chào"},
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if res.SourceLanguage != "vi" || res.TargetLanguage != "en" {
		t.Fatalf("expected vi -> en, got %s -> %s", res.SourceLanguage, res.TargetLanguage)
	}
}

func TestRunDetectionFailureUsesDefaultTarget(t *testing.T) {
	tr := mock.NewTranslator(mock.TranslatorConfig{DetectErr: errors.New("detect down")})
	synth := mock.NewTTS(mock.TTSConfig{})
	o := newTestOrchestrator(tr, synth)

	res, err := o.Run(context.Background(), Request{
		Transcript: recognition.Transcript{Text: "hello"},
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if res.TargetLanguage != "vi" {
		t.Fatalf("expected default target vi, got %q", res.TargetLanguage)
	}
}

func TestRunSkipsTranslationForSameLanguage(t *testing.T) {
	tr := mock.NewTranslator(mock.TranslatorConfig{})
	synth := mock.NewTTS(mock.TTSConfig{})
	o := newTestOrchestrator(tr, synth)

	res, err := o.Run(context.Background(), Request{
		Transcript:     recognition.Transcript{Text: "hello", Language: "en"},
		TargetLanguage: "en-GB",
	})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if len(tr.Calls()) != 0 {
		t.Fatalf("expected no translate call, got %v", tr.Calls())
	}
	if res.Translation != "hello" {
		t.Fatalf("unexpected translation %q", res.Translation)
	}
}

func TestRunFillerOnlyTranscriptIsEmpty(t *testing.T) {
	tr := mock.NewTranslator(mock.TranslatorConfig{})
	synth := mock.NewTTS(mock.TTSConfig{})
	o := newTestOrchestrator(tr, synth)

	_, err := o.Run(context.Background(), Request{
		Transcript: recognition.Transcript{Text: "Um, uh...", Language: "en"},
	})
	if !errors.Is(err, recognition.ErrEmptyTranscript) {
		t.Fatalf("expected empty transcript error, got %v", err)
	}
	if len(synth.Calls()) != 0 {
		t.Fatalf("expected no synthesis for empty turn")
	}
}

func TestLanguagesSourceFor(t *testing.T) {
	langs := testLanguages()
	if got := langs.SourceFor("en"); got != "vi-VN" {
		t.Fatalf("expected vi-VN, got %q", got)
	}
	if got := langs.SourceFor("vi-VN"); got != "en-US" {
		t.Fatalf("expected en-US, got %q", got)
	}
	if got := langs.SourceFor("fr"); got != "" {
		t.Fatalf("expected no source for unsupported target, got %q", got)
	}
}

func TestLanguagesValidate(t *testing.T) {
	if err := testLanguages().Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	partial := Languages{Pairs: map[string]string{"en": "vi"}}
	if err := partial.Validate(); err == nil {
		t.Fatalf("expected error for non-total pair table")
	}
	cycle := Languages{Pairs: map[string]string{"en": "vi", "vi": "fr", "fr": "en"}}
	if err := cycle.Validate(); err == nil {
		t.Fatalf("expected error for a pair table that is total but not bidirectional")
	}
	self := Languages{Pairs: map[string]string{"en": "en"}}
	if err := self.Validate(); err == nil {
		t.Fatalf("expected error for self mapping")
	}
	badDefault := testLanguages()
	badDefault.DefaultTarget = "fr"
	if err := badDefault.Validate(); err == nil {
		t.Fatalf("expected error for unsupported default target")
	}
}

func TestVoicesSelectIgnoresRegion(t *testing.T) {
	voices := testVoices()
	if v := voices.Select("vi-VN", testLanguages()); v.Name != "vi-VN-Wavenet-D" {
		t.Fatalf("unexpected voice %+v", v)
	}
	v := voices.Select("fr-FR", testLanguages())
	if v.Name != "default" || v.LanguageCode != "fr" {
		t.Fatalf("expected default voice for fr, got %+v", v)
	}
}

func TestFillerCleaner(t *testing.T) {
	c := NewFillerCleaner([]string{"um", "Uh"})
	if got := c.Clean("  Um, I think  uh we should go "); got != "I think we should go" {
		t.Fatalf("unexpected cleaned text %q", got)
	}
	if got := NewFillerCleaner(nil).Clean(" a  b "); got != "a b" {
		t.Fatalf("unexpected text without fillers %q", got)
	}
}
