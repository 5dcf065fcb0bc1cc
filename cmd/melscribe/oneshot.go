package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soypete/melscribe/pkg/controller"
	"github.com/soypete/melscribe/pkg/repl"
	"github.com/soypete/melscribe/pkg/spectrogram"
	"github.com/spf13/cobra"
)

// Record command flags
var (
	recordDuration time.Duration
	recordOutput   string
	recordOnly     bool
)

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Transcribe an audio file",
		Long: `Upload an audio file and print the transcript.

Examples:
  melscribe upload meeting.mp3
  melscribe upload --server http://gpu-box:5000 memo.wav`,
		Args: cobra.ExactArgs(1),
		RunE: runUpload,
	}
}

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone and transcribe",
		Long: `Record from the default microphone, then transcribe the recording.

Recording stops after --duration, or when Enter or Ctrl+C is pressed.

Examples:
  melscribe record
  melscribe record --duration 10s --output take1.webm`,
		Args: cobra.NoArgs,
		RunE: runRecord,
	}
	cmd.Flags().DurationVarP(&recordDuration, "duration", "d", 0, "Stop recording after this long (default: wait for Enter)")
	cmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Also save the recording to this file")
	cmd.Flags().BoolVar(&recordOnly, "no-transcribe", false, "Only record, do not transcribe")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the transcription service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stderr, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			status, err := a.client.Status(ctx)
			if err != nil {
				return fmt.Errorf("transcription service unavailable: %w", err)
			}
			fmt.Printf("✅ %s: %s\n", a.cfg.Server.BaseURL, status.Message)
			return nil
		},
	}
}

// newOneShot wires a controller to a stdout view with a stderr spinner.
// Callers wait on the view before exiting so a pending preview is printed.
func newOneShot(a *app) (*controller.Controller, *repl.ConsoleView, error) {
	view := repl.NewConsoleView(os.Stdout, spectrogram.NewFetcher(a.client.HTTPClient()), repl.PreviewOptions{
		Disabled: a.cfg.Spectrogram.NoPreview,
		Width:    a.cfg.Spectrogram.Width,
		SaveDir:  a.cfg.Spectrogram.SaveDir,
	}, a.logger)
	view.SetSpinner(repl.NewSpinner(os.Stderr, ""))

	ctrl, err := controller.New(controller.Options{
		Transcriber:       a.client,
		Microphone:        a.microphone(),
		RecordingDisabled: a.mic == nil,
		Views:             []controller.View{view},
		Logger:            a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return ctrl, view, nil
}

// interruptible returns a context canceled on SIGINT or SIGTERM
func interruptible() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, canceling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runUpload(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stderr, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, view, err := newOneShot(a)
	if err != nil {
		return err
	}
	defer view.Wait()

	ctx, cancel := interruptible()
	defer cancel()

	if err := ctrl.SubmitFile(ctx, args[0]); err != nil {
		return fmt.Errorf("%w: %v", errReported, err)
	}
	return nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stderr, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.mic == nil {
		return errors.New("recording is disabled in the configuration")
	}

	ctrl, view, err := newOneShot(a)
	if err != nil {
		return err
	}
	defer ctrl.Close()
	defer view.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.StartRecording(ctx); err != nil {
		if errors.Is(err, controller.ErrRecordingUnsupported) {
			return err
		}
		return fmt.Errorf("%w: %v", errReported, err)
	}

	waitForStop(ctrl.Snapshot, recordDuration)

	if err := ctrl.StopRecording(ctx); err != nil {
		return fmt.Errorf("%w: %v", errReported, err)
	}
	if ctrl.Snapshot().State == controller.StateError {
		return errReported
	}

	if recordOutput != "" {
		blob := ctrl.Recording()
		if err := os.WriteFile(recordOutput, blob.Data, 0644); err != nil {
			return fmt.Errorf("failed to save recording: %w", err)
		}
		fmt.Printf("Saved recording to %s\n", recordOutput)
	}
	if recordOnly {
		return nil
	}

	sctx, scancel := interruptible()
	defer scancel()
	if err := ctrl.SubmitRecording(sctx); err != nil {
		return fmt.Errorf("%w: %v", errReported, err)
	}
	return nil
}

// waitForStop blocks until the duration elapses, Enter or Ctrl+C is
// pressed, or the recording ends on its own.
func waitForStop(snapshot func() controller.Snapshot, d time.Duration) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	enter := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	} else {
		fmt.Fprintln(os.Stderr, "Press Enter to stop recording.")
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr)
			return
		case <-enter:
			return
		case <-timeout:
			return
		case <-ticker.C:
			if snapshot().State != controller.StateRecording {
				return
			}
		}
	}
}
