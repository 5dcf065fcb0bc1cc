package main

import (
	"context"
	"fmt"

	"github.com/soypete/melscribe/pkg/controller"
	"github.com/soypete/melscribe/pkg/monitor"
	"github.com/soypete/melscribe/pkg/repl"
	"github.com/soypete/melscribe/pkg/spectrogram"
	"github.com/spf13/cobra"
)

var monitorAddr string

func consoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Start the interactive console",
		Long: `Start the interactive console.

Upload files with /upload, record with /start and /stop, and send the
recording with /transcribe. With --monitor the controller state is also
streamed as JSON over a websocket at ws://<addr>/events.`,
		RunE: runConsole,
	}
	cmd.Flags().StringVar(&monitorAddr, "monitor", "", "Serve the state feed on this address (e.g. :8090)")
	return cmd
}

func runConsole(cmd *cobra.Command, args []string) error {
	input, err := repl.NewInputHandler()
	if err != nil {
		return err
	}

	a, err := newApp(input.Stdout(), true)
	if err != nil {
		input.Close()
		return err
	}
	defer a.Close()

	view := repl.NewConsoleView(input.Stdout(), spectrogram.NewFetcher(a.client.HTTPClient()), repl.PreviewOptions{
		Disabled: a.cfg.Spectrogram.NoPreview,
		Width:    a.cfg.Spectrogram.Width,
		SaveDir:  a.cfg.Spectrogram.SaveDir,
	}, a.logger)
	view.SetPrompt(input)

	views := []controller.View{view}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := a.cfg.Monitor.Addr
	if monitorAddr != "" {
		addr = monitorAddr
	}
	if addr != "" {
		feed := monitor.NewFeed(a.logger)
		views = append(views, feed)
		go func() {
			if err := feed.Serve(ctx, addr); err != nil {
				a.logger.Error("monitor stopped", "error", err)
			}
		}()
	}

	ctrl, err := controller.New(controller.Options{
		Transcriber:       a.client,
		Microphone:        a.microphone(),
		RecordingDisabled: a.mic == nil,
		Views:             views,
		Logger:            a.logger,
	})
	if err != nil {
		input.Close()
		return fmt.Errorf("failed to create controller: %w", err)
	}
	defer ctrl.Close()

	return repl.NewREPL(ctrl, a.client, input, view, a.logger).Run()
}
