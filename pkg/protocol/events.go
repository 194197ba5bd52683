// Package protocol encodes and decodes the JSON events exchanged with browser clients.
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/errorsx"
)

const (
	EventStart = "start"
	EventAudio = "audio"
	EventStop  = "stop"
	EventError = "error"
)

// Audio kinds carried on outbound audio events.
const (
	KindEcho        = "echo"
	KindTranslation = "translation"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownEvent = errors.New("unknown event")
	ErrMissingAudio = errors.New("audio event without data")
)

// InboundKind is the decoded shape of a client message.
type InboundKind int

const (
	KindStart InboundKind = iota + 1
	KindAudioChunk
	KindStop
	// KindOneShot is the combined audioData+targetLang request.
	KindOneShot
)

func (k InboundKind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindAudioChunk:
		return "audio"
	case KindStop:
		return "stop"
	case KindOneShot:
		return "audio_oneshot"
	default:
		return "unknown"
	}
}

// Inbound is one decoded client event.
type Inbound struct {
	Kind           InboundKind
	TargetLanguage string
	Audio          []byte
}

type wireInbound struct {
	Event          string          `json:"event"`
	TargetLanguage string          `json:"targetLanguage"`
	TargetLang     string          `json:"targetLang"`
	Data           json.RawMessage `json:"data"`
	AudioData      string          `json:"audioData"`
}

// ParseText decodes a text websocket message.
func ParseText(msg []byte) (Inbound, error) {
	var w wireInbound
	if err := json.Unmarshal(msg, &w); err != nil {
		return Inbound{}, errorsx.Wrap(fmt.Errorf("%w: %v", ErrMalformed, err), errorsx.ReasonProtocol)
	}
	target := strings.TrimSpace(w.TargetLanguage)
	if target == "" {
		target = strings.TrimSpace(w.TargetLang)
	}
	switch strings.ToLower(strings.TrimSpace(w.Event)) {
	case EventStart:
		return Inbound{Kind: KindStart, TargetLanguage: target}, nil
	case EventStop:
		return Inbound{Kind: KindStop}, nil
	case EventAudio:
		if w.AudioData != "" {
			audio, err := decodeBase64(w.AudioData)
			if err != nil {
				return Inbound{}, errorsx.Wrap(fmt.Errorf("%w: audioData: %v", ErrMalformed, err), errorsx.ReasonProtocol)
			}
			return Inbound{Kind: KindOneShot, TargetLanguage: target, Audio: audio}, nil
		}
		audio, err := decodeData(w.Data)
		if err != nil {
			return Inbound{}, errorsx.Wrap(err, errorsx.ReasonProtocol)
		}
		return Inbound{Kind: KindAudioChunk, Audio: audio}, nil
	case "":
		return Inbound{}, errorsx.Wrap(fmt.Errorf("%w: missing event field", ErrMalformed), errorsx.ReasonProtocol)
	default:
		return Inbound{}, errorsx.Wrap(fmt.Errorf("%w: %q", ErrUnknownEvent, w.Event), errorsx.ReasonProtocol)
	}
}

// ParseBinary treats a binary websocket message as one raw audio chunk.
func ParseBinary(msg []byte) (Inbound, error) {
	if len(msg) == 0 {
		return Inbound{}, errorsx.Wrap(ErrMissingAudio, errorsx.ReasonProtocol)
	}
	return Inbound{Kind: KindAudioChunk, Audio: append([]byte(nil), msg...)}, nil
}

func decodeData(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrMissingAudio
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrMalformed, err)
		}
		if s == "" {
			return nil, ErrMissingAudio
		}
		b, err := decodeBase64(s)
		if err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrMalformed, err)
		}
		return b, nil
	case '[':
		var ints []int
		if err := json.Unmarshal(raw, &ints); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrMalformed, err)
		}
		out := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: data[%d] out of byte range", ErrMalformed, i)
			}
			out[i] = byte(v)
		}
		if len(out) == 0 {
			return nil, ErrMissingAudio
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: data must be base64 string or byte array", ErrMalformed)
	}
}

// decodeBase64 accepts plain base64 and data URLs ("data:audio/webm;base64,...").
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return b, nil
}

// Outbound is one server event.
type Outbound struct {
	Event    string `json:"event"`
	Data     string `json:"data,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Language string `json:"language,omitempty"`
	Message  string `json:"message,omitempty"`
}

// AudioEvent wraps synthesized audio for the client.
func AudioEvent(audio tts.Audio, kind string) Outbound {
	return Outbound{
		Event:    EventAudio,
		Data:     base64.StdEncoding.EncodeToString(audio.Data),
		Kind:     kind,
		Language: audio.Language,
	}
}

// ErrorEvent reports err to the client.
func ErrorEvent(err error) Outbound {
	return Outbound{Event: EventError, Message: errorsx.Message(err)}
}

// Encode marshals the event for a text websocket frame.
func (o Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}
