package decodeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/qrscan/internal/errs"
	"github.com/and161185/qrscan/internal/model"
)

type seenRequest struct {
	QRData   string
	Password string
	Auth     string
}

// newBackend routes /api/content/decode to h and records what it received.
func newBackend(t *testing.T, h func(w http.ResponseWriter, r *http.Request, body map[string]string)) (*httptest.Server, func() []seenRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []seenRequest
	)
	r := mux.NewRouter()
	r.HandleFunc("/api"+DecodePath, func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(req.Body).Decode(&body)
		mu.Lock()
		seen = append(seen, seenRequest{
			QRData:   body["qr_data"],
			Password: req.Header.Get(PasswordHeader),
			Auth:     req.Header.Get("Authorization"),
		})
		mu.Unlock()
		h(w, req, body)
	}).Methods(http.MethodPost)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, func() []seenRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]seenRequest(nil), seen...)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Decode_OK_NormalisesResult(t *testing.T) {
	t.Parallel()
	srv, seen := newBackend(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		writeJSON(w, http.StatusOK, map[string]any{
			"content_id":        "abc123",
			"sender_id":         "u-1",
			"sender_name":       "alice",
			"decrypted_content": "hello",
			"is_encrypted":      false,
			"created_at":        "2026-03-01T10:00:00.123456",
			"metadata": map[string]any{
				"type":            "text",
				"encryption_name": "AES-256-GCM",
			},
		})
	})
	c := New(srv.URL+"/api", 5*time.Second,
		WithLogger(zaptest.NewLogger(t)),
		WithToken(func() (string, error) { return "tok", nil }))

	out := c.Decode(context.Background(), "qrs://v?d=xyz", "")
	require.Equal(t, model.OutcomeOK, out.Kind)
	require.Equal(t, "abc123", out.Result.ContentID)
	require.Equal(t, "text", out.Result.ContentType)
	require.Equal(t, "alice", out.Result.SenderName)
	require.Equal(t, "AES-256-GCM", out.Result.EncryptionLabel)
	require.Equal(t, "hello", out.Result.Content)
	require.Equal(t, 2026, out.Result.CreatedAt.Year())

	require.Len(t, seen(), 1)
	require.Equal(t, "qrs://v?d=xyz", seen()[0].QRData)
	require.Equal(t, "Bearer tok", seen()[0].Auth)
	require.Empty(t, seen()[0].Password)
}

func TestClient_Decode_FileFallbacks(t *testing.T) {
	t.Parallel()
	srv, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		writeJSON(w, http.StatusOK, map[string]any{
			"content_id":        "f1",
			"sender_id":         "u-9",
			"content_type":      "file",
			"encryption_name":   "top-level",
			"decrypted_content": "aGVsbG8=",
			"download_url":      "/api/content/download/f1",
			"metadata": map[string]any{
				"content_type": "image/png",
				"filename":     "cat.png",
				"size":         2048,
			},
		})
	})
	out := New(srv.URL+"/api", time.Second).Decode(context.Background(), "x", "")
	require.Equal(t, model.OutcomeOK, out.Kind)
	r := out.Result
	require.Equal(t, "file", r.ContentType)
	require.Equal(t, "u-9", r.SenderName)
	require.Equal(t, "top-level", r.EncryptionLabel)
	require.Equal(t, "image/png", r.MediaType)
	require.Equal(t, "cat.png", r.Filename)
	require.EqualValues(t, 2048, r.Size)
	require.Equal(t, "/api/content/download/f1", r.DownloadURL)
}

func TestClient_Decode_PasswordRequired_And_HeaderOnRetry(t *testing.T) {
	t.Parallel()
	srv, seen := newBackend(t, func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		if r.Header.Get(PasswordHeader) != "correct" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"requires_password": true, "error": "Password required"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"content_id": "p1"})
	})
	c := New(srv.URL+"/api", time.Second)

	out := c.Decode(context.Background(), "raw", "")
	require.Equal(t, model.OutcomePasswordRequired, out.Kind)
	require.Equal(t, "Password required", out.Err.Message)

	out = c.Decode(context.Background(), "raw", "correct")
	require.Equal(t, model.OutcomeOK, out.Kind)
	require.Equal(t, "correct", seen()[1].Password)
}

func TestClient_Decode_ErrorClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		msg    string
		want   model.ErrorKind
		is     error
	}{
		{http.StatusNotFound, "Content not found", model.ErrorNotFound, errs.ErrNotFound},
		{http.StatusForbidden, "This content has been deactivated by the sender", model.ErrorDeactivated, errs.ErrDeactivated},
		{http.StatusForbidden, "Not authorized to view this content", model.ErrorForbidden, errs.ErrForbidden},
		{http.StatusGone, "gone", model.ErrorExpired, errs.ErrExpired},
		{http.StatusBadRequest, "This content has expired", model.ErrorExpired, errs.ErrExpired},
		{http.StatusBadRequest, "QR data required", model.ErrorBadRequest, errs.ErrBadRequest},
		{http.StatusUnauthorized, "Token has expired", model.ErrorUnauthorized, errs.ErrUnauthorized},
		{http.StatusUnauthorized, "Missing Authorization Header", model.ErrorUnauthorized, errs.ErrUnauthorized},
		{http.StatusTooManyRequests, "slow down", model.ErrorUnavailable, errs.ErrUnavailable},
		{http.StatusServiceUnavailable, "maintenance", model.ErrorUnavailable, errs.ErrUnavailable},
		{http.StatusInternalServerError, "boom", model.ErrorServer, errs.ErrServer},
		{http.StatusTeapot, "teapot", model.ErrorUnknown, nil},
	}
	for _, tc := range cases {
		tc := tc
		srv, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
			writeJSON(w, tc.status, map[string]any{"error": tc.msg})
		})
		out := New(srv.URL+"/api", time.Second).Decode(context.Background(), "x", "")
		require.Equal(t, model.OutcomeError, out.Kind, tc.msg)
		require.Equal(t, tc.want, out.Err.Kind, tc.msg)
		require.Equal(t, tc.status, out.Err.Status)
		require.Equal(t, tc.msg, out.Err.Message)
		if tc.is != nil {
			require.ErrorIs(t, out.Err, tc.is)
		}
	}
}

func TestClient_Decode_ExpiredLoginToken(t *testing.T) {
	t.Parallel()
	srv, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Token has expired"})
	})
	out := New(srv.URL+"/api", time.Second, WithToken(func() (string, error) { return "old", nil })).
		Decode(context.Background(), "x", "")
	require.Equal(t, model.OutcomeError, out.Kind)
	require.Equal(t, model.ErrorUnauthorized, out.Err.Kind)
	require.Equal(t, "Token has expired", out.Err.Message)
	require.ErrorIs(t, out.Err, errs.ErrUnauthorized)
	require.Equal(t, "Your session has expired. Please log in again.", FriendlyMessage(out.Err))
}

func TestClient_Decode_NonJSONErrorBody(t *testing.T) {
	t.Parallel()
	srv, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	out := New(srv.URL+"/api", time.Second).Decode(context.Background(), "x", "")
	require.Equal(t, model.ErrorServer, out.Err.Kind)
	require.Equal(t, "upstream exploded", out.Err.Message)
}

func TestClient_Decode_MalformedOKBody(t *testing.T) {
	t.Parallel()
	srv, _ := newBackend(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>"))
	})
	out := New(srv.URL+"/api", time.Second).Decode(context.Background(), "x", "")
	require.Equal(t, model.OutcomeError, out.Kind)
	require.Equal(t, model.ErrorServer, out.Err.Kind)
}

func TestClient_Decode_NetworkError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := New(url, time.Second).Decode(context.Background(), "x", "")
	require.Equal(t, model.OutcomeError, out.Kind)
	require.Equal(t, model.ErrorNetwork, out.Err.Kind)
	require.ErrorIs(t, out.Err, errs.ErrNetwork)
	require.Zero(t, out.Err.Status)
}

func TestClient_Decode_TokenSourceError(t *testing.T) {
	t.Parallel()
	c := New("http://127.0.0.1:1", time.Second, WithToken(func() (string, error) { return "", errs.ErrNoToken }))
	out := c.Decode(context.Background(), "x", "")
	require.Equal(t, model.ErrorUnauthorized, out.Err.Kind)
}

func TestFriendlyMessage(t *testing.T) {
	t.Parallel()
	long := make([]rune, 500)
	for i := range long {
		long[i] = 'x'
	}
	cases := []struct {
		err  error
		want string
	}{
		{&model.DecodeError{Kind: model.ErrorDeactivated, Status: 403, Message: "This content has been deactivated by the sender"}, "The sender has deactivated this content."},
		{&model.DecodeError{Kind: model.ErrorNotFound, Status: 404, Message: "Content not found"}, "This QR code points to content that no longer exists."},
		{&model.DecodeError{Kind: model.ErrorNotFound, Status: 404, Message: "User not found"}, "This QR code points to content that no longer exists."},
		{&model.DecodeError{Kind: model.ErrorNetwork, Message: "dial tcp"}, "Network error. Please try again."},
		{&model.DecodeError{Kind: model.ErrorServer, Status: 500, Message: "  odd failure  "}, "odd failure"},
		{&model.DecodeError{Kind: model.ErrorServer, Status: 500, Message: "'abc' is not a valid ObjectId, it must be a 12-byte input or a 24-character hex string"}, "This QR code points to content that is no longer available."},
		{&model.DecodeError{Kind: model.ErrorServer, Status: 500, Message: "id must be a 24-character hex string"}, "This QR code points to content that is no longer available."},
		{errs.ErrCancelled, "Decoding cancelled."},
		{errors.New("plain"), "plain"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, FriendlyMessage(c.err))
	}

	got := []rune(FriendlyMessage(&model.DecodeError{Kind: model.ErrorServer, Message: string(long)}))
	require.Len(t, got, MaxMessageLen)
	require.Empty(t, FriendlyMessage(nil))
}
