// melscribe uploads audio files or microphone recordings to a speech
// transcription service and shows the transcript and mel spectrogram it
// returns.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/soypete/melscribe/pkg/capture"
	"github.com/soypete/melscribe/pkg/config"
	"github.com/soypete/melscribe/pkg/logging"
	"github.com/soypete/melscribe/pkg/transcribe"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var (
	// Global flags
	configFile string
	verbose    bool
	serverURL  string
	noRecord   bool
)

// errReported marks failures the view has already shown
var errReported = errors.New("already reported")

func main() {
	rootCmd := &cobra.Command{
		Use:   "melscribe",
		Short: "Transcribe audio files and microphone recordings",
		Long: `melscribe sends audio to a transcription service and shows the
transcript and mel spectrogram it returns.

Without a subcommand it starts the interactive console.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runConsole,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: ./"+config.FileName+" or ~/"+config.FileName+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Transcription service base URL")
	rootCmd.PersistentFlags().BoolVar(&noRecord, "no-record", false, "Disable microphone recording")

	rootCmd.AddCommand(consoleCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(healthCmd())

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// app holds what every subcommand shares
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	client    *transcribe.Client
	mic       *capture.PortAudio
}

// newApp loads configuration and builds the logger, the service client and,
// unless disabled, the microphone. Logs go to console.
func newApp(console io.Writer, withMic bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(cfg.Logging, console)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	opts := transcribe.Options{
		BaseURL:  cfg.Server.BaseURL,
		Endpoint: cfg.Server.Endpoint,
		Timeout:  cfg.Server.Timeout,
		Logger:   logger,
	}
	if cfg.Server.APIToken != "" {
		opts.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Server.APIToken})
	}
	client, err := transcribe.NewClient(opts)
	if err != nil {
		closer.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, logCloser: closer, client: client}
	if withMic && !cfg.Recording.Disabled {
		a.mic = capture.NewPortAudio(capture.Config{
			SampleRate:      cfg.Recording.SampleRate,
			Channels:        cfg.Recording.Channels,
			FramesPerBuffer: cfg.Recording.FramesPerBuffer,
			Container:       cfg.Recording.Container,
			FFmpegPath:      cfg.Recording.FFmpegPath,
		}, logger)
	}
	return a, nil
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		config.LoadEnvFiles()
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if noRecord {
		cfg.Recording.Disabled = true
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// microphone returns the capture device as an interface, nil when disabled
func (a *app) microphone() capture.Microphone {
	if a.mic == nil {
		return nil
	}
	return a.mic
}

func (a *app) Close() {
	if a.mic != nil {
		if err := a.mic.Close(); err != nil {
			a.logger.Warn("failed to release audio system", "error", err)
		}
	}
	a.logCloser.Close()
}
