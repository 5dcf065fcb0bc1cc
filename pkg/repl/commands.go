package repl

import (
	"strings"
)

// Command represents a parsed console command
type Command struct {
	Name string
	Args []string
	Raw  string // Original input

	rest string
}

// Arg returns the i-th argument or ""
func (c *Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// Rest returns the input after the command word exactly as typed, so
// paths with repeated spaces or tabs survive
func (c *Command) Rest() string {
	return c.rest
}

// aliases map alternate spellings to command names
var aliases = map[string]string{
	"h":      "help",
	"?":      "help",
	"q":      "quit",
	"exit":   "quit",
	"cls":    "clear",
	"u":      "upload",
	"send":   "upload",
	"rec":    "start",
	"record": "start",
	"t":      "transcribe",
	"info":   "status",
}

// ParseCommand parses user input into a Command. The leading slash is
// optional. Returns nil for blank input.
func ParseCommand(input string) *Command {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	body := strings.TrimPrefix(input, "/")
	parts := strings.Fields(body)
	if len(parts) == 0 {
		return nil
	}
	_, rest, _ := strings.Cut(body, parts[0])

	name := strings.ToLower(parts[0])
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}

	return &Command{
		Name: name,
		Args: parts[1:],
		Raw:  input,
		rest: strings.TrimLeft(rest, " \t"),
	}
}

// GetHelp returns help text for console commands
func GetHelp() string {
	return `
melscribe - transcribe audio files or microphone recordings

Commands:
  /upload <file>       Upload an audio file for transcription
  /start               Start recording from the microphone
  /stop                Stop recording
  /transcribe          Transcribe the last recording
  /save <file>         Save the last recording to a file
  /status              Show the current state and enabled controls
  /health              Check the transcription service
  /clear               Clear the screen
  /help                Show this help message
  /quit                Exit

The leading slash is optional. Uploads and recordings run in the
background; the prompt shows the current state.
`
}
