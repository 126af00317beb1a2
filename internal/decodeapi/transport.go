package decodeapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// LoggingTransport returns a RoundTripper that logs request metadata.
// Bodies and headers are never logged: they carry QR payloads and passwords.
func LoggingTransport(log *zap.Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("dur", time.Since(start)),
			zap.Bool("with_password", r.Header.Get(PasswordHeader) != ""),
		}
		if err != nil {
			log.Warn("http", append(fields, zap.Error(err))...)
			return resp, err
		}
		log.Info("http", append(fields, zap.Int("status", resp.StatusCode))...)
		return resp, nil
	})
}
