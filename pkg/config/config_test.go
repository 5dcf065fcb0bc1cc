package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  string
		validate func(*testing.T, *Config)
	}{
		{
			name: "full config",
			content: `
server:
  base_url: https://asr.example.com
  endpoint: /api/transcribe
  timeout: 90s
recording:
  container: OGG
  sample_rate: 48000
  channels: 2
spectrogram:
  width: 40
  save_dir: /tmp/mels
logging:
  level: debug
  format: json
`,
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "https://asr.example.com", c.Server.BaseURL)
				assert.Equal(t, "/api/transcribe", c.Server.Endpoint)
				assert.Equal(t, 90*time.Second, c.Server.Timeout)
				assert.Equal(t, "ogg", c.Recording.Container)
				assert.Equal(t, 48000, c.Recording.SampleRate)
				assert.Equal(t, 2, c.Recording.Channels)
				assert.Equal(t, 40, c.Spectrogram.Width)
				assert.Equal(t, "json", c.Logging.Format)
			},
		},
		{
			name:    "empty file gets defaults",
			content: "",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "http://localhost:8000", c.Server.BaseURL)
				assert.Equal(t, "/transcribe", c.Server.Endpoint)
				assert.Equal(t, 2*time.Minute, c.Server.Timeout)
				assert.Equal(t, "webm", c.Recording.Container)
				assert.Equal(t, 16000, c.Recording.SampleRate)
				assert.Equal(t, 1, c.Recording.Channels)
				assert.Equal(t, "info", c.Logging.Level)
				assert.False(t, c.Spectrogram.NoPreview)
			},
		},
		{
			name:    "bad base url",
			content: "server:\n  base_url: localhost:8000\n",
			wantErr: "server.base_url",
		},
		{
			name:    "bad container",
			content: "recording:\n  container: flac\n",
			wantErr: "recording.container",
		},
		{
			name:    "bad channels",
			content: "recording:\n  channels: 6\n",
			wantErr: "recording.channels",
		},
		{
			name:    "bad log format",
			content: "logging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "invalid yaml",
			content: "server: [",
			wantErr: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MELSCRIBE_BASE_URL", "http://10.0.0.5:9000")
	t.Setenv("MELSCRIBE_TIMEOUT", "15s")
	t.Setenv("MELSCRIBE_DISABLE_RECORDING", "true")
	t.Setenv("MELSCRIBE_MONITOR_ADDR", "127.0.0.1:8090")

	cfg, err := Load(writeConfig(t, "server:\n  base_url: http://localhost:1\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:9000", cfg.Server.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Server.Timeout)
	assert.True(t, cfg.Recording.Disabled)
	assert.Equal(t, "127.0.0.1:8090", cfg.Monitor.Addr)
}

func TestLoad_BadEnvOverride(t *testing.T) {
	t.Setenv("MELSCRIBE_TIMEOUT", "soon")

	_, err := Load(writeConfig(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MELSCRIBE_TIMEOUT")
}

func TestLoadDefault_FromWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, os.WriteFile(".env", []byte("MELSCRIBE_API_TOKEN=from-dotenv\n"), 0644))
	require.NoError(t, os.WriteFile(FileName, []byte("server:\n  base_url: http://asr.local:8000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("MELSCRIBE_API_TOKEN") })

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "http://asr.local:8000", cfg.Server.BaseURL)
	assert.Equal(t, "from-dotenv", cfg.Server.APIToken)
}

func TestLoadDefault_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}
