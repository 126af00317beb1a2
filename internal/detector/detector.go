// Package detector finds QR symbols in frames using gozxing.
package detector

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/and161185/qrscan/internal/model"
)

// QR detects and renders QR codes.
type QR struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewQR returns a detector that searches the whole frame.
func NewQR() *QR {
	return &QR{hints: map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}}
}

// Detect decodes the first QR symbol in f. A miss, an empty frame or an
// unreadable symbol all report false.
func (q *QR) Detect(f model.Frame) (model.Detection, bool) {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) < 4*f.Width*f.Height {
		return model.Detection{}, false
	}
	img := &image.RGBA{
		Pix:    f.Pix,
		Stride: 4 * f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return model.Detection{}, false
	}
	// readers keep state between calls
	res, err := qrcode.NewQRCodeReader().Decode(bmp, q.hints)
	if err != nil {
		return model.Detection{}, false
	}
	return model.Detection{Text: res.GetText(), Corners: quad(res.GetResultPoints())}, true
}

// quad turns finder pattern centres (bottom-left, top-left, top-right) into
// an outline; the fourth corner is completed as a parallelogram.
func quad(pts []gozxing.ResultPoint) model.Quad {
	if len(pts) < 3 {
		return model.Quad{}
	}
	bl := model.Point{X: pts[0].GetX(), Y: pts[0].GetY()}
	tl := model.Point{X: pts[1].GetX(), Y: pts[1].GetY()}
	tr := model.Point{X: pts[2].GetX(), Y: pts[2].GetY()}
	br := model.Point{X: tr.X + bl.X - tl.X, Y: tr.Y + bl.Y - tl.Y}
	return model.Quad{tl, tr, br, bl}
}

// Render draws text as a size×size QR image with the default quiet zone.
func Render(text string, size int) (*image.Gray, error) {
	if text == "" {
		return nil, errors.New("render: empty text")
	}
	if size <= 0 {
		return nil, fmt.Errorf("render: invalid size %d", size)
	}
	m, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	w, h := m.GetWidth(), m.GetHeight()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.Gray{Y: 0xff}
			if m.Get(x, y) {
				c.Y = 0
			}
			img.SetGray(x, y, c)
		}
	}
	return img, nil
}
