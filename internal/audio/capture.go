package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/scb10x/typhoon-scribe/pkg/logger"
)

// DeviceError indicates the capture device could not be acquired (missing
// device, permission denied, ffmpeg not installed). It is fatal to starting
// a session; the session stays idle.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio capture device unavailable: %v", e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// CaptureConfig contains configuration for the microphone capture source
type CaptureConfig struct {
	FFmpegPath  string
	Input       string // device identifier or stream URL
	InputFormat string // ffmpeg input format ("alsa", "pulse", ...); empty for URL inputs
	SampleRate  int
	Channels    int
	FrameMs     int // size of emitted fragments in milliseconds
}

// CaptureSource wraps a microphone (or any ffmpeg-readable input) and emits
// raw PCM fragments of a fixed duration while active. A single ffmpeg
// process converts whatever the device produces into s16le PCM on stdout.
type CaptureSource struct {
	cfg        CaptureConfig
	logger     *logger.Logger
	frameBytes int

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	cancel  context.CancelFunc
	running bool
}

// NewCaptureSource creates a new capture source
func NewCaptureSource(cfg CaptureConfig, logger *logger.Logger) *CaptureSource {
	// PCM-16: 2 bytes per sample per channel
	frameBytes := cfg.SampleRate * cfg.Channels * 2 * cfg.FrameMs / 1000

	return &CaptureSource{
		cfg:        cfg,
		logger:     logger.Named("capture"),
		frameBytes: frameBytes,
	}
}

// Start acquires the capture device and returns a channel of PCM fragments.
// The channel is closed when the device stops producing data, the context
// is canceled, or Stop is called. A failure to acquire the device is
// reported as a *DeviceError.
func (s *CaptureSource) Start(ctx context.Context) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, fmt.Errorf("capture source already running")
	}

	captureCtx, cancel := context.WithCancel(ctx)

	args := []string{
		"-loglevel", "error", // Minimal logging
		"-fflags", "nobuffer", // Disable input buffering
		"-flags", "low_delay", // Enable low delay mode
	}

	// Device inputs (ALSA, PulseAudio, avfoundation) need an explicit input
	// format; URL inputs let ffmpeg probe
	if s.cfg.InputFormat != "" {
		args = append(args, "-f", s.cfg.InputFormat)
	}

	args = append(args,
		"-i", s.cfg.Input, // Input device or URL
		"-f", "s16le", // Raw PCM output
		"-acodec", "pcm_s16le", // Audio codec
		"-ac", fmt.Sprintf("%d", s.cfg.Channels), // Channels
		"-ar", fmt.Sprintf("%d", s.cfg.SampleRate), // Sample rate
		"-flush_packets", "1", // Flush packets immediately
		"pipe:1", // Output to stdout
	)

	s.logger.Info("Acquiring capture device",
		logger.String("input", s.cfg.Input),
		logger.String("input_format", s.cfg.InputFormat),
		logger.Int("sample_rate", s.cfg.SampleRate),
		logger.Int("channels", s.cfg.Channels),
		logger.Int("frame_ms", s.cfg.FrameMs))

	cmd := exec.CommandContext(captureCtx, s.cfg.FFmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &DeviceError{Err: fmt.Errorf("failed to create stdout pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &DeviceError{Err: err}
	}

	s.cmd = cmd
	s.stdout = stdout
	s.cancel = cancel
	s.running = true

	frames := make(chan []byte, 8)
	go s.readFrames(captureCtx, stdout, frames)

	return frames, nil
}

// readFrames reads fixed-size fragments from the ffmpeg stdout pipe and
// pushes them to the frames channel until the pipe closes
func (s *CaptureSource) readFrames(ctx context.Context, stdout io.Reader, frames chan<- []byte) {
	defer close(frames)

	for {
		frame := make([]byte, s.frameBytes)
		n, err := io.ReadFull(stdout, frame)
		if n > 0 {
			select {
			case frames <- frame[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF && ctx.Err() == nil {
				s.logger.Error("Error reading from capture device", logger.Error(err))
			} else {
				s.logger.Debug("Capture stream ended")
			}
			return
		}
	}
}

// Stop releases the capture device. Safe to call regardless of state and
// always leaves the device released.
func (s *CaptureSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.logger.Info("Releasing capture device")

	if s.cancel != nil {
		s.cancel()
	}

	// Kill and reap the ffmpeg process; errors are expected here since the
	// process may already have exited
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}

	s.cmd = nil
	s.stdout = nil
	s.cancel = nil
	s.running = false

	return nil
}
