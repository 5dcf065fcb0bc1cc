package repl

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soypete/melscribe/pkg/controller"
	"github.com/soypete/melscribe/pkg/spectrogram"
	"github.com/soypete/melscribe/pkg/transcribe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedTranscriber struct {
	result transcribe.Result
}

func (c *cannedTranscriber) Transcribe(ctx context.Context, up transcribe.Upload) (*transcribe.Result, error) {
	res := c.result
	return &res, nil
}

func TestConsoleView_SlowSpectrogramDoesNotBlockController(t *testing.T) {
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 4, 4))))

	requested := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case requested <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(img.Bytes())
	}))
	defer server.Close()

	out := &syncBuffer{}
	view := NewConsoleView(out, spectrogram.NewFetcher(server.Client()), PreviewOptions{Width: 4}, quietLogger())
	ctrl, err := controller.New(controller.Options{
		Transcriber: &cannedTranscriber{result: transcribe.Result{
			Transcription:  "slow preview",
			MelSpectrogram: server.URL + "/mel.png",
		}},
		RecordingDisabled: true,
		Views:             []controller.View{view},
		Logger:            quietLogger(),
	})
	require.NoError(t, err)

	audio := filepath.Join(t.TempDir(), "take.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	submitted := make(chan error, 1)
	go func() { submitted <- ctrl.SubmitFile(context.Background(), audio) }()

	select {
	case err := <-submitted:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("SubmitFile waited on the spectrogram download")
	}

	select {
	case <-requested:
	case <-time.After(2 * time.Second):
		t.Fatal("spectrogram was never requested")
	}

	snapped := make(chan controller.Snapshot, 1)
	go func() { snapped <- ctrl.Snapshot() }()
	select {
	case snap := <-snapped:
		assert.Equal(t, controller.StateDone, snap.State)
		assert.Equal(t, "slow preview", snap.Transcript)
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked while the preview was loading")
	}
	assert.Contains(t, out.String(), "slow preview")
	assert.NotContains(t, out.String(), "Mel spectrogram:")

	close(release)
	view.Wait()
	assert.True(t, strings.Contains(out.String(), "Mel spectrogram:"))
}

func TestConsoleView_DropsPreviewForReplacedResult(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		var buf bytes.Buffer
		png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)))
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	out := &syncBuffer{}
	view := NewConsoleView(out, spectrogram.NewFetcher(server.Client()), PreviewOptions{Width: 4}, quietLogger())

	view.Render(controller.Snapshot{
		State:              controller.StateDone,
		Status:             "Done.",
		Transcript:         "first",
		Spectrogram:        server.URL + "/first.png",
		SpectrogramVisible: true,
	})
	view.Render(controller.Snapshot{
		State:  controller.StateProcessing,
		Status: "Transcribing...",
	})
	close(release)
	view.Wait()

	assert.Contains(t, out.String(), "Transcribing...")
	assert.NotContains(t, out.String(), "Mel spectrogram:")
}
