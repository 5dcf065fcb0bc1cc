package controller

import (
	"fmt"
	"time"
)

// State is the controller's UI state
type State int

const (
	StateIdle State = iota
	StateRecording
	StateRecordingReady
	StateProcessing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateRecordingReady:
		return "recording_ready"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON snapshots
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateError; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Badge values
const (
	BadgeReady   = "Ready"
	BadgeWorking = "Working"
	BadgeError   = "Error"
)

// NoTranscription is shown when the service returns an empty transcript
const NoTranscription = "[No transcription found]"

// Controls is the enablement of each user control
type Controls struct {
	Upload              bool `json:"upload"`
	Start               bool `json:"start"`
	Stop                bool `json:"stop"`
	TranscribeRecording bool `json:"transcribe_recording"`
}

// RecordingInfo describes the current Recorded Audio Blob
type RecordingInfo struct {
	Filename string        `json:"filename"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// Snapshot is everything a view needs to render
type Snapshot struct {
	State    State    `json:"state"`
	Badge    string   `json:"badge"`
	Status   string   `json:"status"`
	Error    string   `json:"error,omitempty"`
	Controls Controls `json:"controls"`

	Transcript         string `json:"transcript"`
	Spectrogram        string `json:"spectrogram,omitempty"`
	SpectrogramVisible bool   `json:"spectrogram_visible"`

	Recording          *RecordingInfo `json:"recording,omitempty"`
	RecordingSupported bool           `json:"recording_supported"`
}

// View is the presentation surface driven by the controller
type View interface {
	Render(Snapshot)
	// Notice shows a blocking, one-off message
	Notice(msg string)
}

// controlsFor derives control enablement. canRecord is false when capture
// is unsupported or a microphone grant is pending.
func controlsFor(state State, hasBlob, canRecord bool) Controls {
	c := Controls{Upload: true, Start: canRecord}

	switch state {
	case StateRecording:
		c = Controls{Stop: true}
	case StateProcessing:
		c = Controls{}
	case StateRecordingReady:
		c.TranscribeRecording = hasBlob
	case StateDone, StateError:
		c.TranscribeRecording = hasBlob
	}
	return c
}

func statusText(state State, msg string) (badge, status string) {
	switch state {
	case StateRecording:
		return BadgeWorking, "Recording..."
	case StateProcessing:
		return BadgeWorking, "Uploading and transcribing..."
	case StateRecordingReady:
		return BadgeReady, "Recording is ready to be transcribed."
	case StateDone:
		return BadgeReady, "Done."
	case StateError:
		return BadgeError, "Error: " + msg
	default:
		return BadgeReady, "Select a file or start recording."
	}
}
