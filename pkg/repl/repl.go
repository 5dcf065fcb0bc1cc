package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/soypete/melscribe/pkg/capture"
	"github.com/soypete/melscribe/pkg/controller"
	"github.com/soypete/melscribe/pkg/transcribe"
)

// Controller is the set of controller operations the console drives
type Controller interface {
	SubmitFile(ctx context.Context, path string) error
	SubmitRecording(ctx context.Context) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	Snapshot() controller.Snapshot
	Recording() *capture.Blob
}

// Prober checks whether the transcription service is up
type Prober interface {
	Status(ctx context.Context) (*transcribe.StatusResponse, error)
}

// LineReader supplies console input
type LineReader interface {
	ReadLine() (string, error)
	Close() error
}

// REPL represents the interactive console
type REPL struct {
	ctrl   Controller
	prober Prober
	input  LineReader
	output *ConsoleView
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewREPL creates a new REPL instance
func NewREPL(ctrl Controller, prober Prober, input LineReader, output *ConsoleView, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &REPL{
		ctrl:   ctrl,
		prober: prober,
		input:  input,
		output: output,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run starts the REPL loop. It returns when the user quits or input ends.
func (r *REPL) Run() error {
	defer r.Close()

	r.printWelcome()

	for {
		line, err := r.input.ReadLine()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C - just show new prompt
				continue
			}
			if err == io.EOF {
				r.output.PrintMessage("\nGoodbye!\n")
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		cmd := ParseCommand(line)
		if cmd == nil {
			continue
		}

		if err := r.handleCommand(cmd); err != nil {
			if err == io.EOF {
				r.output.PrintMessage("\nGoodbye!\n")
				return nil
			}
			r.output.PrintError("Error: %v\n", err)
		}
	}
}

// handleCommand dispatches one command. Uploads and recording changes run in
// the background so the prompt stays responsive.
func (r *REPL) handleCommand(cmd *Command) error {
	switch cmd.Name {
	case "help":
		r.output.PrintMessage("%s", GetHelp())
		return nil

	case "quit":
		return io.EOF

	case "clear":
		ClearScreen(r.output.writer)
		return nil

	case "upload":
		path := cmd.Rest()
		r.background("upload", func(ctx context.Context) error {
			return r.ctrl.SubmitFile(ctx, path)
		})
		return nil

	case "start":
		r.background("start", r.ctrl.StartRecording)
		return nil

	case "stop":
		r.background("stop", r.ctrl.StopRecording)
		return nil

	case "transcribe":
		r.background("transcribe", r.ctrl.SubmitRecording)
		return nil

	case "save":
		return r.saveRecording(cmd.Rest())

	case "status":
		r.printStatus()
		return nil

	case "health":
		return r.checkHealth()

	default:
		r.output.PrintWarning("Unknown command: /%s (type /help for commands)\n", cmd.Name)
		return nil
	}
}

// background runs a controller operation and reports refusals. Failures
// that reach the controller state are already shown by the view.
func (r *REPL) background(name string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := fn(r.ctx)
		if err == nil {
			return
		}

		switch {
		case errors.Is(err, controller.ErrControlDisabled):
			r.output.PrintWarning("/%s is not available right now: %s\n", name, r.ctrl.Snapshot().Status)
		case errors.Is(err, controller.ErrRecordingUnsupported):
			r.output.PrintWarning("%s\n", controller.NoticeUnsupported)
		default:
			r.logger.Debug("command failed", "command", name, "error", err)
		}
	}()
}

// saveRecording writes the current recording to path. A directory or an
// empty path keeps the recording's own file name.
func (r *REPL) saveRecording(path string) error {
	blob := r.ctrl.Recording()
	if blob == nil {
		r.output.PrintWarning("%s\n", controller.NoticeNoRecording)
		return nil
	}

	if path == "" {
		path = blob.Filename
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, blob.Filename)
	}

	if err := os.WriteFile(path, blob.Data, 0644); err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}
	r.output.PrintSuccess("Saved recording to %s\n", path)
	return nil
}

func (r *REPL) printStatus() {
	s := r.ctrl.Snapshot()

	r.output.PrintMessage("\nState:    %s [%s]\n", s.State, s.Badge)
	r.output.PrintMessage("Status:   %s\n", s.Status)
	if avail := availableCommands(s.Controls); avail != "" {
		r.output.PrintMessage("Commands: %s\n", avail)
	}
	if s.Recording != nil {
		r.output.PrintMessage("Recording:%s\n", recordingSummary(s.Recording))
	}
	if !s.RecordingSupported {
		r.output.PrintMessage("Live recording is not supported.\n")
	}
	if s.Transcript != "" {
		r.output.PrintMessage("Transcript:\n%s\n", s.Transcript)
	}
	r.output.PrintMessage("\n")
}

func (r *REPL) checkHealth() error {
	if r.prober == nil {
		r.output.PrintWarning("No transcription service configured\n")
		return nil
	}

	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()

	status, err := r.prober.Status(ctx)
	if err != nil {
		return fmt.Errorf("transcription service unavailable: %w", err)
	}
	r.output.PrintSuccess("Transcription service is up: %s\n", status.Message)
	return nil
}

func (r *REPL) printWelcome() {
	r.output.PrintMessage("\nmelscribe - audio transcription console\n")
	r.output.PrintMessage("Type /help for commands, /quit to exit.\n\n")
}

// Close cancels running operations and waits for them to return
func (r *REPL) Close() error {
	r.cancel()
	r.wg.Wait()
	if r.output != nil {
		r.output.Wait()
	}
	if r.input == nil {
		return nil
	}
	return r.input.Close()
}
