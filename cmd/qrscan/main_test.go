package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/qrscan/internal/camera"
	"github.com/and161185/qrscan/internal/detector"
	"github.com/and161185/qrscan/internal/journal"
	"github.com/and161185/qrscan/internal/model"
	"github.com/and161185/qrscan/internal/qruri"
)

func withTmpConfig(t *testing.T, apiURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("QRSCAN_CONFIG_DIR", dir)
	t.Setenv("QRSCAN_DATABASE_URL", "")
	t.Setenv("QRSCAN_API_URL", apiURL)
	t.Setenv("QRSCAN_WARMUP_FRAMES", "0")
	t.Setenv("QRSCAN_FRAME_INTERVAL", "1ms")
	t.Setenv("QRSCAN_RESUME_DELAY", "10ms")
	return dir
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out, errw bytes.Buffer
	code := run(ctx, args, strings.NewReader(stdin), &out, &errw)
	return code, out.String(), errw.String()
}

// newBackend serves the decode endpoint; content needs password "correct"
// when protected is set.
func newBackend(t *testing.T, protected bool) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu        sync.Mutex
		passwords []string
	)
	r := mux.NewRouter()
	r.HandleFunc("/api/content/decode", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"Missing Authorization Header"}`))
			return
		}
		pw := req.Header.Get("X-Content-Password")
		mu.Lock()
		passwords = append(passwords, pw)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if protected && pw != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "Password required", "requires_password": true})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content_id":        "abc123",
			"sender_name":       "alice",
			"metadata":          map[string]any{"type": "text", "encryption_name": "AES-256"},
			"decrypted_content": "hello from alice",
			"created_at":        "2026-05-01T10:00:00.123456",
		})
	}).Methods(http.MethodPost)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), passwords...)
	}
}

func Test_version_and_usage(t *testing.T) {
	withTmpConfig(t, "http://127.0.0.1:1/api")

	code, out, _ := runCLI(t, "", "version")
	require.Equal(t, 0, code)
	require.Contains(t, out, "qrscan dev")

	code, _, errOut := runCLI(t, "")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "Commands:")

	code, _, errOut = runCLI(t, "", "bogus")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, `unknown command "bogus"`)
}

func Test_inspect(t *testing.T) {
	withTmpConfig(t, "http://127.0.0.1:1/api")
	raw, err := qruri.Encode(map[string]any{"content_id": "abc123", "v": "2"})
	require.NoError(t, err)

	code, out, _ := runCLI(t, "", "inspect", "-data", raw)
	require.Equal(t, 0, code)
	var v inspectView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.True(t, v.Secure)
	require.True(t, v.Structured)
	require.Equal(t, "abc123", v.ContentID)

	code, out, _ = runCLI(t, "", "inspect", "-data", "https://example.com")
	require.Equal(t, 0, code)
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.False(t, v.Structured)

	code, _, _ = runCLI(t, "", "inspect")
	require.Equal(t, 2, code)
}

func Test_encode_WritesDecodablePNG(t *testing.T) {
	withTmpConfig(t, "http://127.0.0.1:1/api")
	pngPath := filepath.Join(t.TempDir(), "qr.png")

	code, out, errOut := runCLI(t, "", "encode", "-content-id", "abc123", "-field", "note=hi", "-png", pngPath, "-size", "300")
	require.Equal(t, 0, code, errOut)
	uri := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(uri, qruri.Prefix))

	p, ok := qruri.Parse(uri)
	require.True(t, ok)
	require.Equal(t, "abc123", p.ContentID)
	require.Equal(t, "hi", p.Fields["note"])

	f, err := os.Open(pngPath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	det, ok := detector.NewQR().Detect(camera.ToFrame(img, 0, 0))
	require.True(t, ok)
	require.Equal(t, uri, det.Text)

	code, _, _ = runCLI(t, "", "encode", "-content-id", "x", "-field", "content_id=y")
	require.Equal(t, 2, code)
}

func Test_login_then_decode_with_password_retry(t *testing.T) {
	srv, passwords := newBackend(t, true)
	withTmpConfig(t, srv.URL+"/api")

	code, out, _ := runCLI(t, "", "login", "-token", "tok")
	require.Equal(t, 0, code)
	require.Contains(t, out, "ok (expires")

	raw, _ := qruri.Encode(map[string]any{"content_id": "abc123"})
	code, out, errOut := runCLI(t, "wrong\ncorrect\n", "decode", "-data", raw)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "This content is password protected.")
	require.Contains(t, out, "Incorrect password. Try again.")
	require.Contains(t, out, "hello from alice")
	require.Contains(t, out, "alice")
	require.Equal(t, []string{"", "wrong", "correct"}, passwords())
}

func Test_decode_CancelAndNoToken(t *testing.T) {
	srv, _ := newBackend(t, true)
	withTmpConfig(t, srv.URL+"/api")
	raw, _ := qruri.Encode(map[string]any{"content_id": "abc123"})

	code, _, errOut := runCLI(t, "", "decode", "-data", raw)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "Your session has expired. Please log in again.")

	code, _, _ = runCLI(t, "", "login", "-token", "tok")
	require.Equal(t, 0, code)
	code, _, errOut = runCLI(t, "\n", "decode", "-data", raw)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "Decoding cancelled.")
}

func Test_scan_ImageEndToEnd(t *testing.T) {
	srv, passwords := newBackend(t, false)
	withTmpConfig(t, srv.URL+"/api")
	code, _, _ := runCLI(t, "", "login", "-token", "tok")
	require.Equal(t, 0, code)

	raw, _ := qruri.Encode(map[string]any{"content_id": "abc123"})
	img, err := detector.Render(raw, 400)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "code.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	code, out, errOut := runCLI(t, "", "scan", path)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Camera ready")
	require.Contains(t, out, "QR code detected")
	require.Contains(t, out, "hello from alice")
	require.Equal(t, []string{""}, passwords())

	code, out, _ = runCLI(t, "", "scan", filepath.Join(t.TempDir(), "missing.png"))
	require.Equal(t, 1, code)
	require.Contains(t, out, "No camera found.")
}

func Test_history_RequiresDatabase(t *testing.T) {
	withTmpConfig(t, "http://127.0.0.1:1/api")
	code, _, errOut := runCLI(t, "", "history")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "QRSCAN_DATABASE_URL")
}

func Test_fieldFlag(t *testing.T) {
	f := fieldFlag{}
	require.NoError(t, f.Set("b=2"))
	require.NoError(t, f.Set("a = x=y"))
	require.Equal(t, " x=y", f["a"])
	require.Equal(t, "a,b", f.String())
	require.Error(t, f.Set("novalue"))
	require.Error(t, f.Set("=v"))
}

func Test_termPrompter(t *testing.T) {
	var out bytes.Buffer
	p := newTermPrompter(strings.NewReader("s3cret\r\n\n"), &out)
	ctx := context.Background()

	pw, ok, err := p.PromptPassword(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "s3cret", pw)

	_, ok, err = p.PromptPassword(ctx, true)
	require.NoError(t, err)
	require.False(t, ok, "empty line cancels")

	_, ok, err = p.PromptPassword(ctx, true)
	require.NoError(t, err)
	require.False(t, ok, "end of input cancels")
	require.Contains(t, out.String(), "Incorrect password")
}

func Test_termPrompter_ContextCancel(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()
	defer r.Close()

	p := newTermPrompter(r, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := p.PromptPassword(ctx, false)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ok)
}

func Test_presenter_ResultAndJournalHook(t *testing.T) {
	var out bytes.Buffer
	p := newTermPresenter(&out, zaptest.NewLogger(t))
	var got *model.DecodeResult
	p.onResult = func(r *model.DecodeResult) { got = r }

	res := &model.DecodeResult{
		ContentID: "f1", ContentType: "file", SenderName: "bob", EncryptionLabel: "None",
		Filename: "a.pdf", MediaType: "application/pdf", Size: 42, Content: "QUJD",
	}
	p.ShowResult(res)
	require.Same(t, res, got)
	s := out.String()
	require.Contains(t, s, "a.pdf (application/pdf, 42 bytes)")
	require.NotContains(t, s, "QUJD")

	out.Reset()
	printResult(&out, &model.DecodeResult{ContentID: "t", ContentType: "text", DecryptionError: "bad key"})
	require.Contains(t, out.String(), "Could not decrypt: bad key")
}

func Test_printHistory(t *testing.T) {
	var out bytes.Buffer
	printHistory(&out, nil)
	require.Contains(t, out.String(), "no scans yet")

	out.Reset()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	printHistory(&out, []journal.Entry{
		{ScanRecord: model.ScanRecord{ContentID: "c1", ContentType: "text", SenderName: "alice", ScannedAt: at}, Content: "line one\nline two"},
		{ScanRecord: model.ScanRecord{ContentID: "c2", ContentType: "text", ScannedAt: at}, Sealed: true},
	})
	s := out.String()
	require.Contains(t, s, "2026-05-01T10:00:00Z")
	require.Contains(t, s, "line one line two")
	require.Contains(t, s, "(sealed)")
}

func Test_snippet(t *testing.T) {
	require.Equal(t, "abc", snippet("  abc ", 10))
	require.Equal(t, "abcd…", snippet("abcdefgh", 5))
}
