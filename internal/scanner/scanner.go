// Package scanner implements the camera capture loop: it samples frames,
// detects QR symbols, debounces them, and hands application payloads to the
// decode handshake while sampling is paused.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/qrscan/internal/decodeapi"
	"github.com/and161185/qrscan/internal/errs"
	"github.com/and161185/qrscan/internal/model"
	"github.com/and161185/qrscan/internal/qruri"
)

// Defaults for Options fields left zero.
const (
	DefaultDebounce      = 1000 * time.Millisecond
	DefaultResumeDelay   = 1000 * time.Millisecond
	DefaultFrameInterval = 16 * time.Millisecond
)

// Options tune the loop. Zero values take the defaults above.
type Options struct {
	Constraints   model.CameraConstraints
	Debounce      time.Duration
	ResumeDelay   time.Duration
	FrameInterval time.Duration
	Clock         Clock
	// NewPacer builds the sampler for one session; defaults to a ticker at FrameInterval.
	NewPacer func() Pacer
}

func (o *Options) withDefaults() {
	if o.Constraints == (model.CameraConstraints{}) {
		o.Constraints = model.DefaultConstraints()
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.ResumeDelay <= 0 {
		o.ResumeDelay = DefaultResumeDelay
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = DefaultFrameInterval
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	if o.NewPacer == nil {
		interval := o.FrameInterval
		o.NewPacer = func() Pacer { return NewTickerPacer(interval) }
	}
}

// Scanner owns one camera and at most one running session.
type Scanner struct {
	cam  Camera
	det  Detector
	hs   Handshaker
	ui   Presenter
	log  *zap.Logger
	opts Options

	mu      sync.Mutex
	state   State
	session model.ScanSession
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// New constructs an idle Scanner. log may be nil.
func New(cam Camera, det Detector, hs Handshaker, ui Presenter, log *zap.Logger, opts Options) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	opts.withDefaults()
	done := make(chan struct{})
	close(done)
	return &Scanner{cam: cam, det: det, hs: hs, ui: ui, log: log, opts: opts, done: done}
}

// Start requests the camera and, once granted, launches the sampling loop.
// Camera failures are reported through Presenter.CameraFailed and returned.
// The loop runs until Stop, ctx cancellation, a decoded result or a terminal error.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle && s.state != Stopped {
		s.mu.Unlock()
		return errs.ErrAlreadyScanning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.state = Requesting
	s.session = model.NewScanSession()
	s.cancel, s.done, s.err = cancel, done, nil
	log := s.log.With(zap.String("session", s.session.ID.String()))
	s.mu.Unlock()

	log.Info("requesting camera",
		zap.String("facing", s.opts.Constraints.Facing),
		zap.Int("max_width", s.opts.Constraints.MaxWidth),
		zap.Int("max_height", s.opts.Constraints.MaxHeight),
	)
	stream, err := s.cam.Open(loopCtx, s.opts.Constraints)
	if err == nil && loopCtx.Err() != nil {
		// stopped while the request was pending
		_ = stream.Close()
		stream, err = nil, loopCtx.Err()
	}
	if err != nil {
		err = categorize(err)
		log.Warn("camera unavailable", zap.Error(err))
		s.finish(nil, err, done, false)
		if !errors.Is(err, context.Canceled) {
			s.safe(func() { s.ui.CameraFailed(err) })
		}
		return err
	}

	s.mu.Lock()
	s.state = Streaming
	s.mu.Unlock()
	s.safe(s.ui.Streaming)
	log.Info("streaming")

	go s.run(loopCtx, stream, log, done)
	return nil
}

// Stop ends the session from any state and waits until the camera is released.
// It is safe to call repeatedly and from any goroutine except Presenter callbacks.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.session.Active = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-done
}

// Done is closed when the current session has fully stopped.
func (s *Scanner) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err reports why the last session ended: nil after a decoded result or an
// explicit stop, errs.ErrCancelled after a cancelled prompt, otherwise the failure.
func (s *Scanner) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the current loop state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns a snapshot of the current session.
func (s *Scanner) Session() model.ScanSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Scanner) run(ctx context.Context, stream Stream, log *zap.Logger, done chan struct{}) {
	var cause error
	pacer := s.opts.NewPacer()
	defer func() {
		pacer.Stop()
		log.Info("stopping", zap.NamedError("cause", cause))
		s.finish(stream, cause, done, true)
	}()

	for {
		if err := pacer.Wait(ctx); err != nil {
			return
		}
		if !s.active(ctx) {
			return
		}

		frame, err := stream.Frame(ctx)
		if errors.Is(err, errs.ErrFrameNotReady) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			cause = fmt.Errorf("read frame: %w", err)
			s.safe(func() { s.ui.ShowError(decodeapi.FriendlyMessage(cause)) })
			return
		}
		n := s.sampled()

		det, ok := s.det.Detect(frame)
		if !ok || !s.active(ctx) {
			continue
		}
		s.safe(func() { s.ui.Overlay(det.Corners) })

		if !s.admit(det.Text) {
			continue
		}
		payload, ok := qruri.Parse(det.Text)
		if !ok {
			log.Debug("foreign code ignored", zap.Int64("frame", n), zap.Int("len", len(det.Text)))
			continue
		}

		s.setState(Detected)
		s.safe(s.ui.Feedback)
		log.Info("payload accepted", zap.Int64("frame", n), zap.String("content_id", payload.ContentID))

		res, err := s.hs.Run(ctx, det.Text)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err == nil:
			s.safe(func() { s.ui.ShowResult(res) })
			return
		case errors.Is(err, errs.ErrCancelled):
			cause = err
			s.safe(s.ui.Cancelled)
			return
		case recoverable(err):
			log.Warn("decode deferred", zap.Error(err), zap.Duration("resume_in", s.opts.ResumeDelay))
			select {
			case <-ctx.Done():
				return
			case <-s.opts.Clock.After(s.opts.ResumeDelay):
			}
			s.setState(Detecting)
		default:
			cause = err
			log.Warn("decode failed", zap.Error(err))
			s.safe(func() { s.ui.ShowError(decodeapi.FriendlyMessage(err)) })
			return
		}
	}
}

// finish releases the stream, resets the session and, when notify is set,
// clears the preview. It closes done last.
func (s *Scanner) finish(stream Stream, cause error, done chan struct{}, notify bool) {
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.log.Warn("camera release", zap.Error(err))
		}
	}
	s.mu.Lock()
	s.state = Stopped
	s.session.Reset()
	s.err = cause
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	if notify {
		s.safe(s.ui.Stopped)
	}
	close(done)
}

// active is the guard every scheduled step checks; it is false after Stop.
func (s *Scanner) active(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Active
}

// sampled counts a frame and moves Streaming to Detecting on the first one.
func (s *Scanner) sampled() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.FrameCounter++
	if s.state == Streaming {
		s.state = Detecting
	}
	return s.session.FrameCounter
}

func (s *Scanner) admit(text string) bool {
	now := s.opts.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Admit(text, now, s.opts.Debounce)
}

func (s *Scanner) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// safe runs a presenter callback; a panicking UI must not take the loop down.
func (s *Scanner) safe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("presenter panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn()
}

func recoverable(err error) bool {
	var de *model.DecodeError
	return errors.As(err, &de) && de.Recoverable()
}

func categorize(err error) error {
	switch {
	case errors.Is(err, errs.ErrCameraDenied),
		errors.Is(err, errs.ErrNoCamera),
		errors.Is(err, errs.ErrCameraBusy),
		errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("camera: %w", err)
}
