package transcription

// Stream event statuses emitted by the transcription engine
const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// WordTimestamp is a word-level timing entry. Start and End are seconds
// from the beginning of the audio, with 0 <= Start <= End.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result carries the transcription payload of a stream event
type Result struct {
	Text       string          `json:"text"`
	Timestamps []WordTimestamp `json:"timestamps,omitempty"`
}

// StreamEvent is a single JSON object decoded from a streaming response
// body. Events are immutable once decoded.
type StreamEvent struct {
	Status  string  `json:"status"`
	Result  *Result `json:"result,omitempty"`
	Message string  `json:"message,omitempty"` // present when Status == "error"
}

// Terminal reports whether the event ends its request's stream
func (e *StreamEvent) Terminal() bool {
	return e.Status == StatusComplete || e.Status == StatusError
}

// Response is the body of a one-shot (non-streaming) transcription call
type Response struct {
	Text           string          `json:"text"`
	ProcessingTime float64         `json:"processing_time"`
	AudioDuration  float64         `json:"audio_duration,omitempty"`
	Timestamps     []WordTimestamp `json:"timestamps,omitempty"`
}

// Request describes one transcription call, streaming or one-shot. The
// audio snapshot travels as a WAV file in a multipart body together with
// the scalar options.
type Request struct {
	Audio          []byte // WAV-encoded audio
	Filename       string
	APIKey         string // caller credential, forwarded unchanged
	UseAPI         bool   // cloud backend vs self-hosted engine
	Device         string // "auto", "cpu", or "accelerated"
	WithTimestamps bool
}
