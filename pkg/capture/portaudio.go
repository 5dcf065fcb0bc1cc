package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// PortAudio captures from the default input device
type PortAudio struct {
	cfg     Config
	logger  *slog.Logger
	initErr error
}

// NewPortAudio initializes PortAudio. Initialization failures are not
// returned; they surface through Supported so file uploads keep working.
func NewPortAudio(cfg Config, logger *slog.Logger) *PortAudio {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	p := &PortAudio{cfg: cfg, logger: logger.With("component", "capture")}
	if err := portaudio.Initialize(); err != nil {
		p.initErr = err
		p.logger.Warn("portaudio init failed", "error", err)
	}
	return p
}

// Supported checks that PortAudio is up and an input device exists
func (p *PortAudio) Supported() error {
	if p.initErr != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, p.initErr)
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if dev == nil || dev.MaxInputChannels < p.cfg.Channels {
		return fmt.Errorf("%w: no input device with %d channel(s)", ErrUnsupported, p.cfg.Channels)
	}
	return nil
}

// Open starts capturing from the default input device
func (p *PortAudio) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Supported(); err != nil {
		return nil, err
	}

	buf := make([]int16, p.cfg.FramesPerBuffer*p.cfg.Channels)
	st, err := portaudio.OpenDefaultStream(p.cfg.Channels, 0, float64(p.cfg.SampleRate), p.cfg.FramesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	if err := st.Start(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}

	p.logger.Debug("capture started", "sample_rate", p.cfg.SampleRate, "channels", p.cfg.Channels)
	return newSession(st, buf, p.cfg, isOverflow, p.logger), nil
}

// Close terminates PortAudio
func (p *PortAudio) Close() error {
	if p.initErr != nil {
		return nil
	}
	return portaudio.Terminate()
}

// Overflow drops a buffer but the stream is still healthy
func isOverflow(err error) bool {
	return errors.Is(err, portaudio.InputOverflowed)
}
