// Package controller mediates between user actions and the transcription
// service, keeping control enablement consistent with the current state.
//
// Operations may be called from any goroutine. Control enablement is the
// only concurrency guard: an operation whose control is disabled fails with
// ErrControlDisabled instead of waiting. The controller's state lock is never
// held while waiting for the microphone, the service or a view.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/soypete/melscribe/pkg/capture"
	"github.com/soypete/melscribe/pkg/metrics"
	"github.com/soypete/melscribe/pkg/transcribe"
)

var (
	ErrNoFile               = errors.New("no audio file selected")
	ErrNoRecording          = errors.New("no recording available")
	ErrControlDisabled      = errors.New("control is disabled in the current state")
	ErrRecordingUnsupported = errors.New("live recording is not supported")
)

// User-facing messages
const (
	NoticeNoFile      = "Please choose an audio file first."
	NoticeNoRecording = "Record some audio first."
	NoticeUnsupported = "Live recording is not supported on this system."

	MessageMicDenied = "microphone access denied"
)

// Transcriber submits one upload to the transcription service
type Transcriber interface {
	Transcribe(ctx context.Context, up transcribe.Upload) (*transcribe.Result, error)
}

// Options wires a Controller
type Options struct {
	Transcriber Transcriber

	// Microphone is optional; without one recording stays disabled
	Microphone capture.Microphone

	// RecordingDisabled marks recording as turned off on purpose, so no
	// unsupported notice is shown
	RecordingDisabled bool

	Views  []View
	Logger *slog.Logger
}

// Controller is the Recording & Upload Controller. One per session.
type Controller struct {
	transcriber Transcriber
	mic         capture.Microphone
	logger      *slog.Logger
	supported   bool

	mu          sync.Mutex
	views       []View
	state       State
	errMsg      string
	transcript  string
	spectrogram string
	blob        *capture.Blob
	session     capture.Session
	unwatch     chan struct{}
	acquiring   bool
	seq         uint64

	// renderMu keeps views seeing snapshots in commit order. It is never
	// acquired while mu is held.
	renderMu sync.Mutex
	rendered uint64
}

// New creates a controller in the Idle state and renders it
func New(opts Options) (*Controller, error) {
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("controller: transcriber is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		transcriber: opts.Transcriber,
		mic:         opts.Microphone,
		logger:      logger.With("component", "controller"),
		views:       append([]View(nil), opts.Views...),
		state:       StateIdle,
	}

	if c.mic != nil && !opts.RecordingDisabled {
		if err := c.mic.Supported(); err != nil {
			c.logger.Warn("recording disabled", "error", err)
		} else {
			c.supported = true
		}
	}

	c.mu.Lock()
	c.commit()

	if !c.supported && !opts.RecordingDisabled {
		c.notify(NoticeUnsupported)
	}
	return c, nil
}

// AddView attaches another view and renders the current snapshot to it
func (c *Controller) AddView(v View) {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	c.views = append(c.views, v)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	v.Render(snap)
}

// Snapshot returns the current UI state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Recording returns the current Recorded Audio Blob, or nil
func (c *Controller) Recording() *capture.Blob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blob
}

// SubmitFile uploads a user-selected file
func (c *Controller) SubmitFile(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		c.notify(NoticeNoFile)
		return ErrNoFile
	}

	c.mu.Lock()
	if !c.controlsLocked().Upload {
		c.mu.Unlock()
		return ErrControlDisabled
	}
	c.enterProcessingLocked()

	up, err := transcribe.UploadFromFile(path)
	if err != nil {
		return c.finish(metrics.SourceFile, nil, err)
	}
	res, err := c.transcriber.Transcribe(ctx, up)
	return c.finish(metrics.SourceFile, res, err)
}

// SubmitRecording uploads the Recorded Audio Blob
func (c *Controller) SubmitRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.blob == nil {
		c.mu.Unlock()
		c.notify(NoticeNoRecording)
		return ErrNoRecording
	}
	if !c.controlsLocked().TranscribeRecording {
		c.mu.Unlock()
		return ErrControlDisabled
	}

	up := transcribe.Upload{
		Filename:    c.blob.Filename,
		ContentType: c.blob.ContentType,
		Audio:       c.blob.Data,
	}
	c.enterProcessingLocked()

	res, err := c.transcriber.Transcribe(ctx, up)
	return c.finish(metrics.SourceRecording, res, err)
}

// StartRecording asks for the microphone and starts capturing
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if !c.supported {
		c.mu.Unlock()
		return ErrRecordingUnsupported
	}
	if !c.controlsLocked().Start {
		c.mu.Unlock()
		return ErrControlDisabled
	}
	c.acquiring = true
	c.commit()

	sess, err := c.mic.Open(ctx)

	c.mu.Lock()
	c.acquiring = false
	if err != nil {
		c.logger.Warn("microphone unavailable", "error", err)
		metrics.RecordingsTotal.WithLabelValues("denied").Inc()
		c.setErrorLocked(MessageMicDenied)
		c.commit()
		return fmt.Errorf("start recording: %w", err)
	}

	c.session = sess
	c.unwatch = make(chan struct{})
	c.setStateLocked(StateRecording)
	go c.watch(sess, c.unwatch)
	c.commit()
	return nil
}

// StopRecording finalizes the active capture. Without one it does nothing.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording || c.session == nil {
		c.mu.Unlock()
		return nil
	}
	sess := c.session
	c.session = nil
	close(c.unwatch)
	c.mu.Unlock()

	blob, err := sess.Stop(ctx)

	c.mu.Lock()
	if err != nil {
		c.logger.Warn("recording failed", "error", err)
		metrics.RecordingsTotal.WithLabelValues("failed").Inc()
		c.setErrorLocked(err.Error())
		c.commit()
		return fmt.Errorf("stop recording: %w", err)
	}

	c.blob = blob
	c.logger.Info("recording ready", "filename", blob.Filename, "bytes", len(blob.Data), "duration", blob.Duration)
	metrics.RecordingsTotal.WithLabelValues("ready").Inc()
	c.setStateLocked(StateRecordingReady)
	c.commit()
	return nil
}

// Close releases the microphone if a capture is still active
func (c *Controller) Close() {
	c.mu.Lock()
	sess := c.session
	if sess != nil {
		c.session = nil
		close(c.unwatch)
	}
	c.mu.Unlock()

	if sess != nil {
		sess.Abort()
	}
}

// watch turns a device failure mid-recording into an Error state
func (c *Controller) watch(sess capture.Session, unwatch <-chan struct{}) {
	var lostErr error
	select {
	case lostErr = <-sess.Lost():
	case <-unwatch:
		return
	}

	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.mu.Unlock()

	sess.Abort()

	c.mu.Lock()
	c.logger.Warn("recording interrupted", "error", lostErr)
	metrics.RecordingsTotal.WithLabelValues("lost").Inc()
	c.setErrorLocked(lostErr.Error())
	c.commit()
}

// enterProcessingLocked clears the last result and renders Processing.
// Releases c.mu.
func (c *Controller) enterProcessingLocked() {
	c.transcript = ""
	c.spectrogram = ""
	c.setStateLocked(StateProcessing)
	c.commit()
}

// finish records the outcome of a submission and renders it
func (c *Controller) finish(source string, res *transcribe.Result, err error) error {
	c.mu.Lock()
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(source, "error").Inc()
		c.setErrorLocked(errorMessage(err))
		c.commit()
		return err
	}

	c.transcript = res.Transcription
	if strings.TrimSpace(c.transcript) == "" {
		c.transcript = NoTranscription
	}
	c.spectrogram = res.MelSpectrogram
	metrics.SubmissionsTotal.WithLabelValues(source, "done").Inc()
	c.setStateLocked(StateDone)
	c.commit()
	return nil
}

// errorMessage surfaces service errors verbatim
func errorMessage(err error) string {
	var svcErr *transcribe.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return err.Error()
}

func (c *Controller) setErrorLocked(msg string) {
	c.errMsg = msg
	c.setStateLocked(StateError)
}

func (c *Controller) setStateLocked(s State) {
	if s != StateError {
		c.errMsg = ""
	}
	c.logger.Debug("state changed", "from", c.state, "to", s)
	c.state = s
}

func (c *Controller) controlsLocked() Controls {
	if c.acquiring {
		return Controls{}
	}
	return controlsFor(c.state, c.blob != nil, c.supported)
}

func (c *Controller) snapshotLocked() Snapshot {
	badge, status := statusText(c.state, c.errMsg)
	snap := Snapshot{
		State:              c.state,
		Badge:              badge,
		Status:             status,
		Error:              c.errMsg,
		Controls:           c.controlsLocked(),
		Transcript:         c.transcript,
		Spectrogram:        c.spectrogram,
		SpectrogramVisible: c.spectrogram != "",
		RecordingSupported: c.supported,
	}
	if c.blob != nil {
		snap.Recording = &RecordingInfo{
			Filename: c.blob.Filename,
			Bytes:    len(c.blob.Data),
			Duration: c.blob.Duration,
		}
	}
	return snap
}

// commit renders the current snapshot to every view. It must be called
// with c.mu held and releases it before rendering, so a slow view never
// blocks the controller. A snapshot overtaken by a newer one that already
// reached the views is dropped.
func (c *Controller) commit() {
	c.seq++
	seq := c.seq
	snap := c.snapshotLocked()
	views := append([]View(nil), c.views...)
	c.mu.Unlock()

	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	if seq <= c.rendered {
		return
	}
	c.rendered = seq

	for _, v := range views {
		v.Render(snap)
	}
}

func (c *Controller) notify(msg string) {
	c.mu.Lock()
	views := append([]View(nil), c.views...)
	c.mu.Unlock()

	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	for _, v := range views {
		v.Notice(msg)
	}
}
