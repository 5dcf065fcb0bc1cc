package repl

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/soypete/melscribe/pkg/capture"
	"github.com/soypete/melscribe/pkg/controller"
	"github.com/soypete/melscribe/pkg/transcribe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu       sync.Mutex
	calls    []string
	files    []string
	err      error
	snapshot controller.Snapshot
	blob     *capture.Blob
}

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) SubmitFile(_ context.Context, path string) error {
	f.mu.Lock()
	f.files = append(f.files, path)
	f.mu.Unlock()
	return f.record("upload")
}

func (f *fakeController) SubmitRecording(context.Context) error { return f.record("transcribe") }
func (f *fakeController) StartRecording(context.Context) error  { return f.record("start") }
func (f *fakeController) StopRecording(context.Context) error   { return f.record("stop") }
func (f *fakeController) Snapshot() controller.Snapshot          { return f.snapshot }
func (f *fakeController) Recording() *capture.Blob               { return f.blob }

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeProber struct {
	status *transcribe.StatusResponse
	err    error
}

func (p *fakeProber) Status(context.Context) (*transcribe.StatusResponse, error) {
	return p.status, p.err
}

// scriptedInput replays lines, then reports EOF
type scriptedInput struct {
	lines  []string
	closed bool
}

func (s *scriptedInput) ReadLine() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	if line == "^C" {
		return "", readline.ErrInterrupt
	}
	return line, nil
}

func (s *scriptedInput) Close() error {
	s.closed = true
	return nil
}

func newTestREPL(ctrl Controller, prober Prober, lines ...string) (*REPL, *syncBuffer, *scriptedInput) {
	out := &syncBuffer{}
	input := &scriptedInput{lines: lines}
	view := NewConsoleView(out, nil, PreviewOptions{}, quietLogger())
	return NewREPL(ctrl, prober, input, view, quietLogger()), out, input
}

func TestREPL_DispatchesControllerCommands(t *testing.T) {
	ctrl := &fakeController{}
	r, _, input := newTestREPL(ctrl, nil,
		"/upload clips/voice memo.wav",
		"^C",
		"/start",
		"/stop",
		"/transcribe",
	)

	require.NoError(t, r.Run())
	assert.True(t, input.closed)
	assert.ElementsMatch(t, []string{"upload", "start", "stop", "transcribe"}, ctrl.Calls())
	assert.Equal(t, []string{"clips/voice memo.wav"}, ctrl.files)
}

func TestREPL_QuitStopsReading(t *testing.T) {
	ctrl := &fakeController{}
	r, out, input := newTestREPL(ctrl, nil, "/quit", "/start")

	require.NoError(t, r.Run())
	assert.Empty(t, ctrl.Calls())
	assert.Len(t, input.lines, 1)
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestREPL_ReportsDisabledControl(t *testing.T) {
	ctrl := &fakeController{
		err:      controller.ErrControlDisabled,
		snapshot: controller.Snapshot{Status: "Uploading and transcribing..."},
	}
	r, out, _ := newTestREPL(ctrl, nil, "/upload a.wav")

	require.NoError(t, r.Run())
	assert.Contains(t, out.String(), "/upload is not available right now: Uploading and transcribing...")
}

func TestREPL_ReportsUnsupportedRecording(t *testing.T) {
	ctrl := &fakeController{err: controller.ErrRecordingUnsupported}
	r, out, _ := newTestREPL(ctrl, nil, "/start")

	require.NoError(t, r.Run())
	assert.Contains(t, out.String(), controller.NoticeUnsupported)
}

func TestREPL_SilentOnStateErrors(t *testing.T) {
	// The view already renders service failures
	ctrl := &fakeController{err: errors.New("file too large")}
	r, out, _ := newTestREPL(ctrl, nil, "/transcribe")

	require.NoError(t, r.Run())
	assert.NotContains(t, out.String(), "file too large")
}

func TestREPL_UnknownCommand(t *testing.T) {
	r, out, _ := newTestREPL(&fakeController{}, nil, "/dance")

	require.NoError(t, r.Run())
	assert.Contains(t, out.String(), "Unknown command: /dance")
}

func TestREPL_Status(t *testing.T) {
	ctrl := &fakeController{snapshot: controller.Snapshot{
		State:      controller.StateDone,
		Badge:      controller.BadgeReady,
		Status:     "Done.",
		Transcript: "hello",
		Controls:   controller.Controls{Upload: true},
	}}
	r, out, _ := newTestREPL(ctrl, nil, "/status")

	require.NoError(t, r.Run())
	assert.Contains(t, out.String(), "done [Ready]")
	assert.Contains(t, out.String(), "Commands: /upload")
	assert.Contains(t, out.String(), "hello")
	assert.Contains(t, out.String(), "Live recording is not supported.")
}

func TestREPL_Health(t *testing.T) {
	prober := &fakeProber{status: &transcribe.StatusResponse{Running: true, Message: "Server is running"}}
	r, out, _ := newTestREPL(&fakeController{}, prober, "/health")

	require.NoError(t, r.Run())
	assert.Contains(t, out.String(), "Transcription service is up: Server is running")

	prober = &fakeProber{err: errors.New("connection refused")}
	r, out, _ = newTestREPL(&fakeController{}, prober, "/health")

	require.NoError(t, r.Run())
	assert.Contains(t, out.String(), "transcription service unavailable: connection refused")
}

func TestREPL_SaveRecording(t *testing.T) {
	dir := t.TempDir()
	ctrl := &fakeController{blob: &capture.Blob{
		Data:        []byte("RIFF....WAVE"),
		ContentType: "audio/wav",
		Filename:    "recording.wav",
		Duration:    time.Second,
	}}

	explicit := filepath.Join(dir, "take1.wav")
	r, out, _ := newTestREPL(ctrl, nil, "/save "+explicit, "/save "+dir)
	require.NoError(t, r.Run())

	data, err := os.ReadFile(explicit)
	require.NoError(t, err)
	assert.Equal(t, "RIFF....WAVE", string(data))

	_, err = os.Stat(filepath.Join(dir, "recording.wav"))
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "Saved recording to")
}

func TestREPL_SaveWithoutRecording(t *testing.T) {
	r, out, _ := newTestREPL(&fakeController{}, nil, "/save out.wav")

	require.NoError(t, r.Run())
	assert.Contains(t, out.String(), controller.NoticeNoRecording)
}
