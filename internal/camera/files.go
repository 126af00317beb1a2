// Package camera provides frame sources for the scanner.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/qrscan/internal/errs"
	"github.com/and161185/qrscan/internal/model"
	"github.com/and161185/qrscan/internal/scanner"
)

// ErrFrameNotReady is returned while the stream warms up.
var ErrFrameNotReady = errs.ErrFrameNotReady

var errClosed = errors.New("stream closed")

// Files is a camera backed by still images. Frames are served in order and
// cycle after the last one. Only one stream may be open at a time.
type Files struct {
	paths  []string
	warmup int
	log    *zap.Logger

	mu   sync.Mutex
	open bool
}

// NewFiles builds a camera over paths. warmup frames report ErrFrameNotReady
// before the first image is served.
func NewFiles(paths []string, warmup int, log *zap.Logger) *Files {
	if log == nil {
		log = zap.NewNop()
	}
	if warmup < 0 {
		warmup = 0
	}
	return &Files{paths: append([]string(nil), paths...), warmup: warmup, log: log}
}

// Open loads every image, subsampled to fit cons.MaxWidth × cons.MaxHeight.
func (c *Files) Open(ctx context.Context, cons model.CameraConstraints) (scanner.Stream, error) {
	if len(c.paths) == 0 {
		return nil, errs.ErrNoCamera
	}
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return nil, errs.ErrCameraBusy
	}
	c.open = true
	c.mu.Unlock()

	frames := make([]model.Frame, 0, len(c.paths))
	for _, p := range c.paths {
		if err := ctx.Err(); err != nil {
			c.release()
			return nil, err
		}
		img, err := load(p)
		if err != nil {
			c.release()
			return nil, err
		}
		f := ToFrame(img, cons.MaxWidth, cons.MaxHeight)
		c.log.Debug("frame loaded", zap.String("path", p), zap.Int("width", f.Width), zap.Int("height", f.Height))
		frames = append(frames, f)
	}
	return &stream{cam: c, frames: frames, warm: c.warmup}, nil
}

func (c *Files) release() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

func load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classify(path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func classify(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", path, errs.ErrNoCamera)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", path, errs.ErrCameraDenied)
	}
	return fmt.Errorf("open %s: %w", path, err)
}

// ToFrame converts img to RGBA, dropping rows and columns by an integer
// step until it fits the cap. Zero caps mean unbounded.
func ToFrame(img image.Image, maxW, maxH int) model.Frame {
	b := img.Bounds()
	step := 1
	for (maxW > 0 && ceilDiv(b.Dx(), step) > maxW) || (maxH > 0 && ceilDiv(b.Dy(), step) > maxH) {
		step++
	}
	src := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)
	if step == 1 {
		return model.Frame{Width: b.Dx(), Height: b.Dy(), Pix: src.Pix}
	}

	w, h := ceilDiv(b.Dx(), step), ceilDiv(b.Dy(), step)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := src.PixOffset(x*step, y*step)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return model.Frame{Width: w, Height: h, Pix: dst.Pix}
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

type stream struct {
	cam    *Files
	frames []model.Frame

	mu     sync.Mutex
	warm   int
	seq    int64
	closed bool
}

func (s *stream) Frame(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Frame{}, errClosed
	}
	if s.warm > 0 {
		s.warm--
		return model.Frame{}, ErrFrameNotReady
	}
	f := s.frames[int(s.seq%int64(len(s.frames)))]
	s.seq++
	f.Seq = s.seq
	return f, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cam.release()
	return nil
}
