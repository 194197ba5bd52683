package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonTranscription      ReasonCode = "transcription_failed"
	ReasonTranscriptionEmpty ReasonCode = "transcription_empty"
	ReasonStreamOpen         ReasonCode = "stream_open"
	ReasonStreamState        ReasonCode = "stream_state"

	ReasonTranslation ReasonCode = "translation_failed"
	ReasonDetection   ReasonCode = "detection_failed"

	ReasonSynthesis ReasonCode = "synthesis_failed"

	ReasonProtocol      ReasonCode = "protocol_error"
	ReasonTransportSend ReasonCode = "transport_send"

	ReasonRateLimit   ReasonCode = "rate_limited"
	ReasonCircuitOpen ReasonCode = "circuit_open"
)
