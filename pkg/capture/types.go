// Package capture records audio from the local microphone into a single
// in-memory blob.
package capture

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnsupported means this environment has no usable capture device
	ErrUnsupported = errors.New("audio capture is not supported")

	// ErrAccessDenied means the device exists but could not be opened
	ErrAccessDenied = errors.New("microphone access denied")

	// ErrDeviceLost is reported when the device goes away mid-recording
	ErrDeviceLost = errors.New("microphone disconnected")

	// ErrEmptyRecording is returned when a session stops before any audio arrived
	ErrEmptyRecording = errors.New("recording contains no audio")
)

// Blob is a finalized recording
type Blob struct {
	Data        []byte
	ContentType string
	// Filename is the fixed name uploads are tagged with
	Filename   string
	Duration   time.Duration
	SampleRate int
	Channels   int
}

// Microphone opens capture sessions
type Microphone interface {
	// Supported returns ErrUnsupported (wrapped) when recording cannot work here
	Supported() error
	Open(ctx context.Context) (Session, error)
}

// Session is one active capture. The device is held until Stop or Abort.
type Session interface {
	// Stop finalizes the capture into a Blob and releases the device,
	// also when finalization fails.
	Stop(ctx context.Context) (*Blob, error)

	// Abort releases the device and discards captured audio
	Abort()

	// Lost delivers at most one error if the device fails mid-recording
	Lost() <-chan error
}

// Config describes the capture format
type Config struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int

	// Container the WAV capture is transcoded into ("webm", "ogg", "mp3", "wav")
	Container  string
	FFmpegPath string
}

func (c *Config) setDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FramesPerBuffer == 0 {
		c.FramesPerBuffer = 1024
	}
	if c.Container == "" {
		c.Container = "webm"
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
}
