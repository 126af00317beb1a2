// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Camera acquisition failures. Terminal for a scan session.
var (
	// ErrCameraDenied indicates the user or OS refused access to the capture device.
	ErrCameraDenied = errors.New("camera permission denied")

	// ErrNoCamera indicates no capture device (or frame source) is available.
	ErrNoCamera = errors.New("no camera found")

	// ErrCameraBusy indicates the device is held by another session.
	ErrCameraBusy = errors.New("camera busy")
)

// Scan lifecycle.
var (
	// ErrAlreadyScanning is returned by Start on a scanner that is not idle.
	ErrAlreadyScanning = errors.New("scan already in progress")

	// ErrCancelled indicates the user abandoned a decode attempt at the password prompt.
	ErrCancelled = errors.New("decode cancelled")
)

// Remote decode failures, mapped from HTTP responses.
var (
	// ErrBadRequest indicates the server rejected the payload shape.
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized indicates missing or rejected credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the content is not shared with the caller.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExpired indicates the shared content passed its expiry.
	ErrExpired = errors.New("content expired")

	// ErrDeactivated indicates the sender switched the content off.
	ErrDeactivated = errors.New("content deactivated")

	// ErrUnavailable indicates a temporary server condition (rate limit, maintenance).
	ErrUnavailable = errors.New("service unavailable")

	// ErrServer indicates an internal server failure.
	ErrServer = errors.New("server error")

	// ErrNetwork indicates the request never produced an HTTP response.
	ErrNetwork = errors.New("network error")
)

// ErrNoToken indicates no valid bearer token is stored locally.
var ErrNoToken = errors.New("no valid token (login required)")

// ErrFrameNotReady is returned by a frame stream whose surface has no frame yet.
var ErrFrameNotReady = errors.New("frame not ready")

// ErrDuplicateRecord indicates a journal record with the same id already exists.
var ErrDuplicateRecord = errors.New("duplicate record")
