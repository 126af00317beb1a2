// Package model defines domain entities shared by the scanner, the decode client and the journal.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// ScanSession is the ephemeral state of one camera use. It is owned by the capture loop.
type ScanSession struct {
	ID            uuid.UUID // correlates log lines of one session
	Active        bool
	LastPayload   string    // last string that passed the debounce rule ("" = none)
	LastDetection time.Time // when LastPayload was admitted
	FrameCounter  int64
}

// NewScanSession returns an active session with a fresh id.
func NewScanSession() ScanSession {
	return ScanSession{ID: uuid.Must(uuid.NewV4()), Active: true}
}

// Admit applies the debounce rule: the same payload seen again within window is rejected.
// An admitted payload becomes the new reference for later calls.
func (s *ScanSession) Admit(payload string, now time.Time, window time.Duration) bool {
	if payload == s.LastPayload && !s.LastDetection.IsZero() && now.Sub(s.LastDetection) < window {
		return false
	}
	s.LastPayload = payload
	s.LastDetection = now
	return true
}

// Reset empties the session and marks it inactive.
func (s *ScanSession) Reset() { *s = ScanSession{} }

// SecureQRPayload is the structure embedded in an application QR symbol.
type SecureQRPayload struct {
	ContentID string
	Fields    map[string]any // every decoded field, content_id included
}

// Point is a location in frame coordinates.
type Point struct{ X, Y float64 }

// Quad is the four-corner outline of a detected symbol, used only for overlays.
type Quad [4]Point

// Frame is one RGBA snapshot of the video surface (stride = 4*Width).
type Frame struct {
	Seq    int64
	Width  int
	Height int
	Pix    []byte
}

// Detection is a symbol found in a frame.
type Detection struct {
	Text    string
	Corners Quad
}

// Facing modes for camera acquisition.
const (
	FacingEnvironment = "environment"
	FacingUser        = "user"
)

// CameraConstraints describes the requested capture device and resolution.
type CameraConstraints struct {
	Facing      string
	IdealWidth  int
	IdealHeight int
	MaxWidth    int
	MaxHeight   int
}

// DefaultConstraints prefers the rear camera at HD, capped at 1920x1080.
func DefaultConstraints() CameraConstraints {
	return CameraConstraints{
		Facing:      FacingEnvironment,
		IdealWidth:  1280,
		IdealHeight: 720,
		MaxWidth:    1920,
		MaxHeight:   1080,
	}
}

// DecodeResult is the normalised body of a successful decode call.
type DecodeResult struct {
	ContentID       string
	ContentType     string // "text", "file", ...
	SenderID        string
	SenderName      string
	EncryptionLabel string
	Content         string // decrypted text; base64 for files
	Encrypted       bool
	DecryptionError string
	MediaType       string // MIME type of a shared file
	Filename        string
	Size            int64
	DownloadURL     string
	CreatedAt       time.Time
	Metadata        map[string]any
}

// ScanRecord is a journaled decode result. Content is stored encrypted.
type ScanRecord struct {
	ID              uuid.UUID
	SessionID       uuid.UUID
	ContentID       string
	ContentType     string
	SenderName      string
	EncryptionLabel string
	ContentEnc      []byte
	ScannedAt       time.Time
}
