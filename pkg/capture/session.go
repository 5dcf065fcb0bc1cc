package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// stream is the part of a PortAudio stream a session drives. Read fills
// the buffer handed to the stream when it was opened.
type stream interface {
	Read() error
	Stop() error
	Close() error
}

// session pulls frames from a started stream until stopped
type session struct {
	st        stream
	buf       []int16
	cfg       Config
	transient func(error) bool
	logger    *slog.Logger

	mu     sync.Mutex
	frames []int16

	stop     chan struct{}
	done     chan struct{}
	lost     chan error
	stopOnce sync.Once
	freeOnce sync.Once
	readErr  error
}

func newSession(st stream, buf []int16, cfg Config, transient func(error) bool, logger *slog.Logger) *session {
	if transient == nil {
		transient = func(error) bool { return false }
	}
	s := &session{
		st:        st,
		buf:       buf,
		cfg:       cfg,
		transient: transient,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		lost:      make(chan error, 1),
	}
	go s.run()
	return s
}

func (s *session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if err := s.st.Read(); err != nil {
			if s.transient(err) {
				continue
			}
			lostErr := fmt.Errorf("%w: %v", ErrDeviceLost, err)
			s.mu.Lock()
			s.readErr = lostErr
			s.mu.Unlock()
			s.lost <- lostErr
			return
		}

		s.mu.Lock()
		s.frames = append(s.frames, s.buf...)
		s.mu.Unlock()
	}
}

func (s *session) Lost() <-chan error {
	return s.lost
}

// halt ends the read loop and releases the device exactly once. The
// stream is only freed after the read loop has returned; if ctx ends
// first the release happens in the background once the pending read does.
func (s *session) halt(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	select {
	case <-s.done:
		s.release()
		return nil
	case <-ctx.Done():
		go func() {
			<-s.done
			s.release()
		}()
		return ctx.Err()
	}
}

func (s *session) release() {
	s.freeOnce.Do(func() {
		if err := s.st.Stop(); err != nil {
			s.logger.Debug("stream stop failed", "error", err)
		}
		if err := s.st.Close(); err != nil {
			s.logger.Debug("stream close failed", "error", err)
		}
	})
}

func (s *session) Abort() {
	_ = s.halt(context.Background())
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

func (s *session) Stop(ctx context.Context) (*Blob, error) {
	if err := s.halt(ctx); err != nil {
		return nil, fmt.Errorf("failed to stop capture: %w", err)
	}

	s.mu.Lock()
	frames := s.frames
	readErr := s.readErr
	s.frames = nil
	s.mu.Unlock()

	if readErr != nil {
		return nil, readErr
	}
	if len(frames) == 0 {
		return nil, ErrEmptyRecording
	}

	wavData, err := EncodeWAV(frames, s.cfg.SampleRate, s.cfg.Channels)
	if err != nil {
		return nil, err
	}

	data, container := wavData, "wav"
	if NeedsConversion(s.cfg.Container) {
		tr := &Transcoder{FFmpegPath: s.cfg.FFmpegPath, Container: s.cfg.Container}
		converted, err := tr.Transcode(ctx, wavData)
		switch {
		case err == nil:
			data, container = converted, s.cfg.Container
		case ctx.Err() != nil:
			return nil, fmt.Errorf("failed to encode recording: %w", ctx.Err())
		default:
			s.logger.Warn("keeping wav recording", "container", s.cfg.Container, "error", err)
		}
	}

	return &Blob{
		Data:        data,
		ContentType: contentTypeFor(container),
		Filename:    "recording." + container,
		Duration:    frameDuration(len(frames), s.cfg.SampleRate, s.cfg.Channels),
		SampleRate:  s.cfg.SampleRate,
		Channels:    s.cfg.Channels,
	}, nil
}

func frameDuration(samples, rate, channels int) time.Duration {
	if rate <= 0 || channels <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(rate*channels)
}
