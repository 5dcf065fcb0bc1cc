package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/soypete/melscribe/pkg/controller"
)

// InputHandler manages user input with readline support
type InputHandler struct {
	rl *readline.Instance
}

// NewInputHandler creates a new input handler
func NewInputHandler() (*InputHandler, error) {
	config := &readline.Config{
		Prompt:                 promptFor(controller.StateIdle),
		HistoryFile:            getHistoryFilePath(),
		HistoryLimit:           1000,
		DisableAutoSaveHistory: false,
		InterruptPrompt:        "^C",
		EOFPrompt:              "exit",
		AutoComplete:           completer(),
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &InputHandler{rl: rl}, nil
}

// ReadLine reads a single line of input
func (h *InputHandler) ReadLine() (string, error) {
	return h.rl.Readline()
}

// Stdout is a writer that keeps the prompt intact while printing
func (h *InputHandler) Stdout() io.Writer {
	return h.rl.Stdout()
}

// UpdatePrompt updates the prompt for a controller state
func (h *InputHandler) UpdatePrompt(state controller.State) {
	h.rl.SetPrompt(promptFor(state))
	h.rl.Refresh()
}

// Close closes the input handler
func (h *InputHandler) Close() error {
	return h.rl.Close()
}

func promptFor(state controller.State) string {
	switch state {
	case controller.StateRecording:
		return "melscribe:rec> "
	case controller.StateProcessing:
		return "melscribe:busy> "
	case controller.StateError:
		return "melscribe:err> "
	default:
		return "melscribe> "
	}
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("/upload", readline.PcItemDynamic(listAudioFiles)),
		readline.PcItem("/start"),
		readline.PcItem("/stop"),
		readline.PcItem("/transcribe"),
		readline.PcItem("/save"),
		readline.PcItem("/status"),
		readline.PcItem("/health"),
		readline.PcItem("/help"),
		readline.PcItem("/clear"),
		readline.PcItem("/quit"),
	)
}

// listAudioFiles offers audio files from the working directory
func listAudioFiles(string) []string {
	entries, err := os.ReadDir(".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".wav", ".mp3", ".webm", ".ogg", ".m4a", ".flac", ".opus":
			names = append(names, e.Name())
		}
	}
	return names
}

// getHistoryFilePath returns the path to the history file
func getHistoryFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "melscribe_history")
	}

	return filepath.Join(homeDir, ".melscribe_history")
}

// ClearScreen clears the terminal screen
func ClearScreen(w io.Writer) {
	fmt.Fprint(w, "\033[H\033[2J")
}
