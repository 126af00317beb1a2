package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/qrscan/internal/decodeapi"
	"github.com/and161185/qrscan/internal/journal"
	"github.com/and161185/qrscan/internal/model"
)

// termPresenter renders scanner events as terminal lines.
type termPresenter struct {
	out io.Writer
	log *zap.Logger

	mu       sync.Mutex
	onResult func(*model.DecodeResult)
}

func newTermPresenter(out io.Writer, log *zap.Logger) *termPresenter {
	return &termPresenter{out: out, log: log}
}

func (p *termPresenter) println(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, a...)
}

func (p *termPresenter) Streaming() { p.println("Camera ready. Point it at a QR code.") }

func (p *termPresenter) CameraFailed(err error) { p.println(decodeapi.FriendlyMessage(err)) }

func (p *termPresenter) Overlay(q model.Quad) {
	p.log.Debug("overlay",
		zap.Float64("x0", q[0].X), zap.Float64("y0", q[0].Y),
		zap.Float64("x2", q[2].X), zap.Float64("y2", q[2].Y),
	)
}

func (p *termPresenter) Feedback() { p.println("QR code detected, decoding...") }

func (p *termPresenter) ShowResult(res *model.DecodeResult) {
	p.mu.Lock()
	printResult(p.out, res)
	p.mu.Unlock()
	if p.onResult != nil {
		p.onResult(res)
	}
}

func (p *termPresenter) ShowError(msg string) { p.println("Error:", msg) }

func (p *termPresenter) Cancelled() { p.println("Decoding cancelled.") }

func (p *termPresenter) Stopped() { p.log.Debug("preview cleared") }

func printResult(w io.Writer, res *model.DecodeResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Content ID:\t%s\n", res.ContentID)
	fmt.Fprintf(tw, "Type:\t%s\n", res.ContentType)
	fmt.Fprintf(tw, "From:\t%s\n", res.SenderName)
	fmt.Fprintf(tw, "Encryption:\t%s\n", res.EncryptionLabel)
	if !res.CreatedAt.IsZero() {
		fmt.Fprintf(tw, "Created:\t%s\n", res.CreatedAt.UTC().Format(time.RFC3339))
	}
	if res.Filename != "" {
		fmt.Fprintf(tw, "File:\t%s (%s, %d bytes)\n", res.Filename, res.MediaType, res.Size)
	}
	if res.DownloadURL != "" {
		fmt.Fprintf(tw, "Download:\t%s\n", res.DownloadURL)
	}
	_ = tw.Flush()

	switch {
	case res.DecryptionError != "":
		fmt.Fprintf(w, "Could not decrypt: %s\n", res.DecryptionError)
	case res.ContentType == "file":
		// file bodies are base64; not printed
	case res.Content != "":
		fmt.Fprintln(w, "---")
		fmt.Fprintln(w, res.Content)
	}
}

func printHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no scans yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCANNED\tCONTENT\tTYPE\tFROM\tPREVIEW")
	for _, e := range entries {
		preview := "(sealed)"
		if !e.Sealed {
			preview = snippet(e.Content, 40)
			if e.ContentType == "file" {
				preview = "(file)"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.ScannedAt.UTC().Format(time.RFC3339), e.ContentID, e.ContentType, e.SenderName, preview)
	}
	_ = tw.Flush()
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
