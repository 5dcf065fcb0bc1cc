package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Transcoder converts the raw WAV capture into the upload container using ffmpeg
type Transcoder struct {
	FFmpegPath string
	Container  string
}

// Available reports whether ffmpeg can be found
func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.FFmpegPath)
	return err == nil
}

// NeedsConversion checks if the container differs from the WAV capture
func NeedsConversion(container string) bool {
	switch strings.ToLower(container) {
	case "wav", "wave", "":
		return false
	default:
		return true
	}
}

// Transcode converts WAV bytes into t.Container
func (t *Transcoder) Transcode(ctx context.Context, wavData []byte) ([]byte, error) {
	container := strings.ToLower(t.Container)
	if !NeedsConversion(container) {
		return wavData, nil
	}

	if _, err := exec.LookPath(t.FFmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w (install with: brew install ffmpeg)", err)
	}

	codecArgs, err := codecFor(container)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "melscribe-convert-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(tmpDir, "input.wav")
	if err := os.WriteFile(inputPath, wavData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write input file: %w", err)
	}
	outputPath := filepath.Join(tmpDir, "output."+container)

	args := append([]string{"-y", "-i", inputPath}, codecArgs...)
	args = append(args, outputPath)
	cmd := exec.CommandContext(ctx, t.FFmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg conversion failed: %w\nstderr: %s", err, stderr.String())
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read converted file: %w", err)
	}
	return out, nil
}

func codecFor(container string) ([]string, error) {
	switch container {
	case "webm":
		return []string{"-c:a", "libopus", "-b:a", "32k", "-f", "webm"}, nil
	case "ogg":
		return []string{"-c:a", "libopus", "-b:a", "32k", "-f", "ogg"}, nil
	case "mp3":
		return []string{"-c:a", "libmp3lame", "-q:a", "4"}, nil
	default:
		return nil, fmt.Errorf("unsupported container %q", container)
	}
}

// contentTypeFor names the MIME type of a capture container
func contentTypeFor(container string) string {
	switch container {
	case "webm":
		return "audio/webm"
	case "ogg":
		return "audio/ogg"
	case "mp3":
		return "audio/mpeg"
	default:
		return "audio/wav"
	}
}
