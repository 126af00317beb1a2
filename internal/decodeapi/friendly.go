package decodeapi

import (
	"errors"
	"strings"

	"github.com/and161185/qrscan/internal/errs"
	"github.com/and161185/qrscan/internal/model"
)

// MaxMessageLen caps server text shown to the user verbatim.
const MaxMessageLen = 200

var friendly = []struct {
	pattern string
	text    string
}{
	{"deactivated", "The sender has deactivated this content."},
	{"expired", "This content has expired and can no longer be viewed."},
	{"content not found", "This QR code points to content that no longer exists."},
	{"not a valid objectid", "This QR code points to content that is no longer available."},
	{"24-character hex", "This QR code points to content that is no longer available."},
	{"not authorized", "This content was shared with someone else."},
	{"not found in gridfs", "The shared file is no longer available."},
	{"private key not found", "Your keys are unavailable. Log out and log in again to decrypt content."},
	{"qr data required", "The QR code is empty."},
}

// FriendlyMessage renders err for display. Known server texts get a fixed
// sentence; anything else is shown close to verbatim, capped at MaxMessageLen runes.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *model.DecodeError
	if errors.As(err, &de) {
		if de.Kind == model.ErrorNetwork {
			return "Network error. Please try again."
		}
		if de.Kind == model.ErrorUnauthorized {
			return "Your session has expired. Please log in again."
		}
		low := strings.ToLower(de.Message)
		for _, f := range friendly {
			if strings.Contains(low, f.pattern) {
				return f.text
			}
		}
		switch de.Kind {
		case model.ErrorNotFound:
			return "This QR code points to content that no longer exists."
		case model.ErrorUnavailable:
			return "The service is busy. Please try again in a moment."
		}
		return capRunes(de.Message, MaxMessageLen)
	}
	switch {
	case errors.Is(err, errs.ErrCancelled):
		return "Decoding cancelled."
	case errors.Is(err, errs.ErrNoToken):
		return "Please log in first."
	case errors.Is(err, errs.ErrCameraDenied):
		return "Could not access camera. Please check permissions."
	case errors.Is(err, errs.ErrNoCamera):
		return "No camera found."
	case errors.Is(err, errs.ErrCameraBusy):
		return "The camera is in use by another application."
	}
	return capRunes(err.Error(), MaxMessageLen)
}

func capRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
