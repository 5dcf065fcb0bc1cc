package repl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/soypete/melscribe/pkg/controller"
	"github.com/soypete/melscribe/pkg/spectrogram"
)

// PreviewOptions controls how a spectrogram is shown after a transcription
type PreviewOptions struct {
	Disabled bool
	Width    int
	SaveDir  string
	Timeout  time.Duration
}

// PromptUpdater is told about state changes so the prompt can follow
type PromptUpdater interface {
	UpdatePrompt(controller.State)
}

// ConsoleView renders controller snapshots as terminal output
type ConsoleView struct {
	mu      sync.Mutex
	writer  io.Writer
	fetcher *spectrogram.Fetcher
	preview PreviewOptions
	prompt  PromptUpdater
	spinner *Spinner
	logger  *slog.Logger
	last    *controller.Snapshot

	// gen changes with the shown spectrogram; a preview is only printed
	// while its result is still the one on screen
	gen      uint64
	previews sync.WaitGroup
}

// NewConsoleView creates a console view. fetcher may be nil, in which
// case spectrograms are reported by reference only.
func NewConsoleView(w io.Writer, fetcher *spectrogram.Fetcher, preview PreviewOptions, logger *slog.Logger) *ConsoleView {
	if preview.Width <= 0 {
		preview.Width = 64
	}
	if preview.Timeout <= 0 {
		preview.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleView{
		writer:  w,
		fetcher: fetcher,
		preview: preview,
		logger:  logger,
	}
}

// SetPrompt attaches a prompt that follows the controller state
func (v *ConsoleView) SetPrompt(p PromptUpdater) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prompt = p
}

// SetSpinner animates the Processing state. Only use with a writer that
// owns its line, not a readline prompt.
func (v *ConsoleView) SetSpinner(s *Spinner) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spinner = s
}

// Render prints what changed since the last snapshot
func (v *ConsoleView) Render(s controller.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.prompt != nil {
		v.prompt.UpdatePrompt(s.State)
	}
	if v.last != nil && sameView(*v.last, s) {
		return
	}
	if v.last == nil || v.last.Spectrogram != s.Spectrogram {
		v.gen++
	}
	v.last = &s

	if v.spinner != nil {
		if s.State == controller.StateProcessing {
			v.spinner.UpdateMessage(s.Status)
			v.spinner.Start()
			return
		}
		v.spinner.Stop()
	}

	switch s.State {
	case controller.StateProcessing:
		v.PrintMessage("⏳ %s\n", s.Status)
	case controller.StateRecording:
		v.PrintMessage("🎙️  %s type /stop to finish\n", s.Status)
	case controller.StateRecordingReady:
		v.PrintMessage("🎧 %s%s\n", s.Status, recordingSummary(s.Recording))
	case controller.StateError:
		v.PrintError("%s\n", s.Status)
	case controller.StateDone:
		v.PrintSuccess("%s\n", s.Status)
		v.printResult(s)
	default:
		v.PrintMessage("%s\n", s.Status)
	}

	if avail := availableCommands(s.Controls); avail != "" {
		v.PrintMessage("   available: %s\n", avail)
	}
}

// Notice prints a one-off message
func (v *ConsoleView) Notice(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.PrintWarning("%s\n", msg)
}

func (v *ConsoleView) printResult(s controller.Snapshot) {
	v.PrintMessage("\n%s\n\n", s.Transcript)

	if !s.SpectrogramVisible {
		return
	}
	if v.fetcher == nil || (v.preview.Disabled && v.preview.SaveDir == "") {
		v.PrintMessage("Mel spectrogram: %s\n", s.Spectrogram)
		return
	}

	v.previews.Add(1)
	go v.showSpectrogram(v.gen, s.Spectrogram)
}

// showSpectrogram fetches the image off the render path, saves it and
// prints the preview when it arrives
func (v *ConsoleView) showSpectrogram(gen uint64, ref string) {
	defer v.previews.Done()

	ctx, cancel := context.WithTimeout(context.Background(), v.preview.Timeout)
	defer cancel()

	img, err := v.fetcher.Fetch(ctx, ref)

	var saved string
	var saveErr error
	if err == nil && v.preview.SaveDir != "" {
		saved, saveErr = spectrogram.WritePNG(img, ref, v.preview.SaveDir)
		if saveErr != nil {
			v.logger.Warn("failed to save spectrogram", "error", saveErr)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		v.logger.Debug("dropping spectrogram for an outdated result", "ref", ref)
		return
	}

	if err != nil {
		v.logger.Warn("failed to load spectrogram", "error", err)
		v.PrintWarning("Mel spectrogram unavailable: %v\n", err)
		return
	}
	if saveErr != nil {
		v.PrintWarning("Could not save mel spectrogram: %v\n", saveErr)
	} else if saved != "" {
		v.PrintMessage("Mel spectrogram saved to %s\n", saved)
	}
	if !v.preview.Disabled {
		v.PrintMessage("Mel spectrogram:\n%s\n", spectrogram.Preview(img, v.preview.Width))
	}
}

// Wait blocks until pending spectrogram previews are printed or dropped
func (v *ConsoleView) Wait() {
	v.previews.Wait()
}

// PrintMessage prints a message to the output
func (v *ConsoleView) PrintMessage(format string, args ...interface{}) {
	fmt.Fprintf(v.writer, format, args...)
}

// PrintError prints an error message
func (v *ConsoleView) PrintError(format string, args ...interface{}) {
	fmt.Fprintf(v.writer, "❌ "+format, args...)
}

// PrintSuccess prints a success message
func (v *ConsoleView) PrintSuccess(format string, args ...interface{}) {
	fmt.Fprintf(v.writer, "✅ "+format, args...)
}

// PrintWarning prints a warning message
func (v *ConsoleView) PrintWarning(format string, args ...interface{}) {
	fmt.Fprintf(v.writer, "⚠️  "+format, args...)
}

// sameView reports whether two snapshots print identically
func sameView(a, b controller.Snapshot) bool {
	return a.State == b.State &&
		a.Status == b.Status &&
		a.Controls == b.Controls &&
		a.Transcript == b.Transcript &&
		a.Spectrogram == b.Spectrogram
}

func recordingSummary(r *controller.RecordingInfo) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf(" (%s, %s, %d bytes)", r.Filename, r.Duration.Round(100*time.Millisecond), r.Bytes)
}

func availableCommands(c controller.Controls) string {
	var cmds []string
	if c.Upload {
		cmds = append(cmds, "/upload")
	}
	if c.Start {
		cmds = append(cmds, "/start")
	}
	if c.Stop {
		cmds = append(cmds, "/stop")
	}
	if c.TranscribeRecording {
		cmds = append(cmds, "/transcribe", "/save")
	}
	return strings.Join(cmds, " ")
}
