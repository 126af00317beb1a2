package scanner

import (
	"context"
	"time"

	"github.com/and161185/qrscan/internal/model"
)

// Camera acquires a frame stream.
type Camera interface {
	// Open requests the device. Failures should wrap errs.ErrCameraDenied,
	// errs.ErrNoCamera or errs.ErrCameraBusy where the cause is known.
	Open(ctx context.Context, c model.CameraConstraints) (Stream, error)
}

// Stream is a live frame source.
type Stream interface {
	// Frame snapshots the current frame, or returns errs.ErrFrameNotReady.
	Frame(ctx context.Context) (model.Frame, error)
	// Close releases the device.
	Close() error
}

// Detector locates and decodes a QR symbol in a frame.
type Detector interface {
	Detect(f model.Frame) (model.Detection, bool)
}

// Handshaker exchanges an accepted raw payload for content. Implemented by *handshake.Handshake.
type Handshaker interface {
	Run(ctx context.Context, raw string) (*model.DecodeResult, error)
}

// Presenter is the UI collaborator. Every method is required; calls arrive
// on the loop goroutine and must not call Stop.
type Presenter interface {
	Streaming()
	CameraFailed(err error)
	Overlay(q model.Quad)
	Feedback()
	ShowResult(r *model.DecodeResult)
	ShowError(msg string)
	Cancelled()
	Stopped()
}

// Pacer schedules frame sampling. Wait returns when the next frame is due.
type Pacer interface {
	Wait(ctx context.Context) error
	Stop()
}

// Clock is the time source for debounce and resume delays.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// tickerPacer samples at a fixed cadence. Ticks that elapse while a frame is
// being processed are dropped by time.Ticker, so slow detection lowers the
// sampling rate instead of queueing frames.
type tickerPacer struct{ t *time.Ticker }

// NewTickerPacer returns a Pacer firing every interval.
func NewTickerPacer(interval time.Duration) Pacer {
	return &tickerPacer{t: time.NewTicker(interval)}
}

func (p *tickerPacer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.t.C:
		return nil
	}
}

func (p *tickerPacer) Stop() { p.t.Stop() }
