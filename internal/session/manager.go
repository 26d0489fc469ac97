package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scb10x/typhoon-scribe/internal/audio"
	"github.com/scb10x/typhoon-scribe/internal/transcription"
	"github.com/scb10x/typhoon-scribe/pkg/logger"
)

var (
	// ErrSessionActive is returned by Start when a session is already running
	ErrSessionActive = errors.New("a session is already active")
	// ErrNoActiveSession is returned by Stop when nothing is recording
	ErrNoActiveSession = errors.New("no active session")
)

// Source provides captured audio fragments. Start acquires the underlying
// device and begins emitting; Stop releases it unconditionally.
type Source interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
}

// Streamer issues streaming transcription requests
type Streamer interface {
	OpenStream(ctx context.Context, req transcription.Request) (transcription.Stream, error)
}

// Config represents the configuration for the session manager
type Config struct {
	FlushInterval  time.Duration // periodic re-transcription cadence
	SampleRate     int
	Channels       int
	APIKey         string
	UseAPI         bool
	Device         string
	WithTimestamps bool
}

// Manager orchestrates one live transcription session at a time: it feeds
// captured fragments into the accumulator, re-transcribes the growing
// buffer on a fixed cadence without waiting for earlier requests, and on
// stop issues one final authoritative request over the complete buffer.
//
// The periodic trigger deliberately overlaps requests: a slow response never
// delays the next flush, at the cost of results arriving out of order. The
// Reconciler's sequence-number arbitration keeps the observable outcome
// consistent; superseded in-flight requests are left to drain rather than
// cancelled.
type Manager struct {
	cfg    Config
	source Source
	client Streamer
	accum  *audio.Accumulator
	logger *logger.Logger
	notify func(Outcome)

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state Status
	cur   *liveSession
	rec   *Reconciler // reconciler of the current or most recent session
}

// liveSession holds the per-session machinery: one reconciler, one trigger,
// one capture feed, and the set of in-flight request goroutines
type liveSession struct {
	rec        *Reconciler
	recording  atomic.Bool
	seq        int64 // guarded by Manager.mu; incremented once per request
	stopTick   chan struct{}
	tickerDone chan struct{}
	feedDone   chan struct{}
	inflight   sync.WaitGroup
}

// NewManager creates a new session manager
func NewManager(ctx context.Context, cfg Config, source Source, client Streamer, logger *logger.Logger, notify func(Outcome)) *Manager {
	mgrCtx, mgrCancel := context.WithCancel(ctx)

	return &Manager{
		cfg:    cfg,
		source: source,
		client: client,
		accum:  audio.NewAccumulator(),
		logger: logger.Named("session"),
		notify: notify,
		ctx:    mgrCtx,
		cancel: mgrCancel,
		state:  StatusIdle,
	}
}

// Start begins a new recording session: acquires the capture device, resets
// the buffer and outcome, and arms the periodic trigger. Fails with
// *audio.DeviceError (session stays idle) when the device cannot be
// acquired, or ErrSessionActive when a session is already running.
func (m *Manager) Start() error {
	m.mu.Lock()

	if m.state != StatusIdle {
		m.mu.Unlock()
		return ErrSessionActive
	}

	frames, err := m.source.Start(m.ctx)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.accum.Reset()

	s := &liveSession{
		rec:        NewReconciler(m.notify),
		stopTick:   make(chan struct{}),
		tickerDone: make(chan struct{}),
		feedDone:   make(chan struct{}),
	}
	s.recording.Store(true)

	m.cur = s
	m.rec = s.rec
	m.state = StatusRecording
	m.mu.Unlock()

	s.rec.SetStatus(StatusRecording)

	go m.feed(s, frames)
	go m.runTrigger(s)

	m.logger.Info("Session started",
		logger.Duration("flush_interval", m.cfg.FlushInterval))

	return nil
}

// Stop ends the current session: disarms the trigger (no further periodic
// request is issued once Stop begins the final flush), releases the capture
// device unconditionally, issues the final request over the complete buffer,
// awaits its terminal event, and returns the resulting outcome. The session
// always reaches idle; a failing final request surfaces in the outcome's
// error field rather than as a stuck state.
func (m *Manager) Stop() (Outcome, error) {
	m.mu.Lock()
	if m.state != StatusRecording {
		m.mu.Unlock()
		return Outcome{}, ErrNoActiveSession
	}
	s := m.cur
	s.recording.Store(false)
	close(s.stopTick)
	m.state = StatusProcessing
	m.mu.Unlock()

	// Trigger goroutine has exited; no tick can issue a request past here
	<-s.tickerDone

	// Device release is unconditional, whatever the final request does
	if err := m.source.Stop(); err != nil {
		m.logger.Error("Error releasing capture device", logger.Error(err))
	}

	// Capture feed has drained; the buffer is frozen from here on
	<-s.feedDone

	s.rec.SetStatus(StatusProcessing)

	// The final sequence number is the global maximum for this session
	// because the trigger is already disarmed, so no stale periodic result
	// can overwrite the final one
	m.mu.Lock()
	s.seq++
	finalSeq := s.seq
	m.mu.Unlock()

	if snapshot := m.accum.Snapshot(); len(snapshot) > 0 {
		m.transcribe(s, finalSeq, snapshot, true)
	}

	m.mu.Lock()
	m.state = StatusIdle
	m.cur = nil
	m.mu.Unlock()

	s.rec.SetStatus(StatusIdle)

	outcome := s.rec.Outcome()
	m.logger.Info("Session stopped",
		logger.Int64("final_seq", finalSeq),
		logger.Int("transcript_len", len(outcome.Text)))

	return outcome, nil
}

// Status returns the current lifecycle status
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Outcome returns the current observable transcription outcome. After a
// session ends it keeps returning that session's result until a new one
// starts.
func (m *Manager) Outcome() Outcome {
	m.mu.Lock()
	rec := m.rec
	state := m.state
	m.mu.Unlock()

	if rec == nil {
		return Outcome{Status: state}
	}
	return rec.Outcome()
}

// Close shuts the manager down, releasing the device and abandoning any
// in-flight requests
func (m *Manager) Close() error {
	m.cancel()
	return m.source.Stop()
}

// feed pushes capture fragments into the accumulator until the source
// closes the channel. Append never blocks, so the capture cadence is never
// held up by in-flight requests.
func (m *Manager) feed(s *liveSession, frames <-chan []byte) {
	defer close(s.feedDone)
	for frame := range frames {
		m.accum.Append(frame)
	}
}

// runTrigger fires the periodic re-transcription. Each tick with a
// non-empty buffer issues a request over a fresh snapshot; it never waits
// for earlier requests to finish.
func (m *Manager) runTrigger(s *liveSession) {
	defer close(s.tickerDone)

	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopTick:
			return
		case <-ticker.C:
			// The recording check and the sequence increment share the
			// manager mutex with Stop, so a tick racing Stop either issues
			// before the final request is numbered or not at all
			m.mu.Lock()
			if !s.recording.Load() {
				m.mu.Unlock()
				return
			}
			snapshot := m.accum.Snapshot()
			if len(snapshot) == 0 {
				m.mu.Unlock()
				continue
			}
			s.seq++
			seq := s.seq
			m.mu.Unlock()

			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				m.transcribe(s, seq, snapshot, false)
			}()
		}
	}
}

// transcribe runs one request end to end: encode the snapshot, open the
// event stream, and hand events to the reconciler until a terminal event
// or end of stream
func (m *Manager) transcribe(s *liveSession, seq int64, pcm []byte, final bool) {
	// Killing the capture process mid-sample can leave a trailing half
	// sample in the buffer; drop it rather than fail the request
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	if len(pcm) == 0 {
		return
	}

	wav, err := audio.EncodeWAV(pcm, m.cfg.SampleRate, m.cfg.Channels)
	if err != nil {
		m.reportFailure(s, seq, final, err)
		return
	}

	stream, err := m.client.OpenStream(m.ctx, transcription.Request{
		Audio:          wav,
		Filename:       "live.wav",
		APIKey:         m.cfg.APIKey,
		UseAPI:         m.cfg.UseAPI,
		Device:         m.cfg.Device,
		WithTimestamps: m.cfg.WithTimestamps,
	})
	if err != nil {
		m.reportFailure(s, seq, final, err)
		return
	}
	defer stream.Close()

	terminal := false
	for !terminal {
		ev, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			m.reportFailure(s, seq, final, err)
			return
		}

		switch ev.Status {
		case transcription.StatusProcessing:
			// Informational only; never mutates the transcription text
			m.logger.Debug("Engine processing", logger.Int64("seq", seq))

		case transcription.StatusComplete:
			if s.rec.ApplyComplete(seq, ev.Result) {
				m.logger.Debug("Applied transcription result",
					logger.Int64("seq", seq),
					logger.Bool("final", final))
			} else {
				m.logger.Debug("Discarded stale transcription result",
					logger.Int64("seq", seq))
			}
			terminal = true

		case transcription.StatusError:
			m.reportFailure(s, seq, final, &transcription.ServiceError{Message: ev.Message})
			terminal = true

		default:
			m.logger.Debug("Ignoring stream event with unknown status",
				logger.String("status", ev.Status),
				logger.Int64("seq", seq))
		}
	}

	// An engine that closes the body without a terminal event violates the
	// protocol; treat it as an implicit error
	if !terminal {
		m.reportFailure(s, seq, final, &transcription.ProtocolError{Reason: "stream ended without a terminal event"})
	}
}

// reportFailure applies the periodic/final error asymmetry: failures of
// best-effort periodic requests are swallowed while recording is live (a
// later tick is expected to succeed), while failures of the final request,
// or of any request once recording has ended, surface in the outcome
func (m *Manager) reportFailure(s *liveSession, seq int64, final bool, err error) {
	if !final && s.recording.Load() {
		m.logger.Debug("Periodic transcription request failed",
			logger.Int64("seq", seq),
			logger.Error(err))
		return
	}

	m.logger.Warn("Transcription request failed",
		logger.Int64("seq", seq),
		logger.Bool("final", final),
		logger.Error(err))
	s.rec.ApplyError(err)
}
