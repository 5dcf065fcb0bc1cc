package transcribe

import (
	"errors"
	"time"
)

// ErrInvalidResponse is returned when a successful response cannot be
// understood.
var ErrInvalidResponse = errors.New("invalid transcription response")

// Upload is one audio payload sent as the multipart "file" field.
type Upload struct {
	// Filename tags the multipart part (e.g. "recording.webm")
	Filename string

	// ContentType of the audio container (e.g. "audio/webm")
	ContentType string

	// Audio bytes
	Audio []byte
}

// Result represents a successful transcription
type Result struct {
	// Transcribed text
	Transcription string `json:"transcription"`

	// Spectrogram image reference, resolved against the service URL.
	// Empty when the service did not render one.
	MelSpectrogram string `json:"mel_spectrogram,omitempty"`

	// Request ID sent with the submission
	RequestID string `json:"request_id"`

	// Round trip time
	Elapsed time.Duration `json:"elapsed"`
}

// StatusResponse represents the service health probe
type StatusResponse struct {
	Running bool   `json:"running"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServiceError is a failure reported by the transcription service, either
// through an error status or an explicit error field.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// response is the wire body of POST /transcribe
type response struct {
	Transcription  string `json:"transcription"`
	MelSpectrogram string `json:"mel_spectrogram"`
	Error          string `json:"error"`
}
