package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/qrscan/internal/camera"
	"github.com/and161185/qrscan/internal/decodeapi"
	"github.com/and161185/qrscan/internal/detector"
	"github.com/and161185/qrscan/internal/handshake"
	"github.com/and161185/qrscan/internal/journal"
	"github.com/and161185/qrscan/internal/migrate"
	"github.com/and161185/qrscan/internal/model"
	"github.com/and161185/qrscan/internal/qruri"
	"github.com/and161185/qrscan/internal/repository/postgres"
	"github.com/and161185/qrscan/internal/scanner"
)

func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.errw)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func cmdLogin(e *env, args []string) error {
	fs := newFlagSet(e, "login")
	tok := fs.String("token", "", "bearer token (JWT)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*tok) == "" {
		fmt.Fprintln(e.errw, "need -token")
		return errUsage
	}
	exp, err := e.store.SaveToken(strings.TrimSpace(*tok))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "ok (expires %s)\n", exp.UTC().Format(time.RFC3339))
	return nil
}

func (e *env) client() *decodeapi.Client {
	return decodeapi.New(e.cfg.APIURL, e.cfg.HTTPTimeout,
		decodeapi.WithToken(e.store.Token),
		decodeapi.WithLogger(e.log),
	)
}

// openJournal returns nil when no database is configured.
func (e *env) openJournal(ctx context.Context) (*journal.Journal, func(), error) {
	noop := func() {}
	if !e.cfg.JournalEnabled() {
		return nil, noop, nil
	}
	if err := migrate.Up(ctx, e.cfg.DatabaseURL); err != nil {
		return nil, noop, err
	}
	db, err := postgres.New(ctx, e.cfg.DatabaseURL)
	if err != nil {
		return nil, noop, fmt.Errorf("journal db: %w", err)
	}
	key, err := e.store.DataKey()
	if err != nil {
		db.Close()
		return nil, noop, err
	}
	j, err := journal.New(postgres.NewScanRepo(db), key, e.log.Named("journal"))
	if err != nil {
		db.Close()
		return nil, noop, err
	}
	return j, db.Close, nil
}

func cmdScan(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "scan")
	loop := fs.Bool("loop", false, "keep scanning after each decoded code")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(e.errw, "need at least one image")
		return errUsage
	}

	jr, closeJournal, err := e.openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	prompt := newTermPrompter(e.in, e.out)
	ui := newTermPresenter(e.out, e.log)
	sc := scanner.New(
		camera.NewFiles(fs.Args(), e.cfg.WarmupFrames, e.log.Named("camera")),
		detector.NewQR(),
		handshake.New(e.client(), prompt, e.log.Named("handshake")),
		ui,
		e.log.Named("scanner"),
		scanner.Options{
			Constraints:   e.cfg.Constraints(),
			Debounce:      e.cfg.Debounce,
			ResumeDelay:   e.cfg.ResumeDelay,
			FrameInterval: e.cfg.FrameInterval,
		},
	)
	if jr != nil {
		ui.onResult = func(res *model.DecodeResult) {
			if _, err := jr.Record(ctx, sc.Session().ID, res); err != nil {
				e.log.Warn("journal record", zap.Error(err))
			}
		}
	}

	for {
		if err := sc.Start(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errShown{err}
		}
		select {
		case <-ctx.Done():
			sc.Stop()
			return nil
		case <-sc.Done():
		}
		if err := sc.Err(); err != nil {
			return errShown{err}
		}
		if !*loop {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.cfg.ResumeDelay):
		}
	}
}

// errShown is a failure the presenter has already reported.
type errShown struct{ err error }

func (e errShown) Error() string { return e.err.Error() }
func (e errShown) Unwrap() error { return e.err }

func cmdDecode(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "decode")
	data := fs.String("data", "", "raw QR string")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *data == "" {
		fmt.Fprintln(e.errw, "need -data")
		return errUsage
	}
	if _, ok := qruri.Parse(*data); !ok {
		e.log.Debug("not an application payload, sending as is")
	}

	jr, closeJournal, err := e.openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	hs := handshake.New(e.client(), newTermPrompter(e.in, e.out), e.log.Named("handshake"))
	res, err := hs.Run(ctx, *data)
	if err != nil {
		return err
	}
	printResult(e.out, res)
	if jr != nil {
		if _, err := jr.Record(ctx, uuid.Must(uuid.NewV4()), res); err != nil {
			e.log.Warn("journal record", zap.Error(err))
		}
	}
	return nil
}

type inspectView struct {
	Raw        string         `json:"raw"`
	Structured bool           `json:"structured"`
	Secure     bool           `json:"secure"`
	ContentID  string         `json:"content_id,omitempty"`
	Record     map[string]any `json:"record,omitempty"`
}

func cmdInspect(e *env, args []string) error {
	fs := newFlagSet(e, "inspect")
	data := fs.String("data", "", "raw QR string")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *data == "" {
		fmt.Fprintln(e.errw, "need -data")
		return errUsage
	}
	d := qruri.Decode(*data)
	v := inspectView{Raw: d.Raw, Structured: d.Structured(), Record: d.Record}
	if p, ok := qruri.Parse(*data); ok {
		v.Secure, v.ContentID = true, p.ContentID
	}
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fieldFlag collects repeated -field k=v pairs.
type fieldFlag map[string]any

func (f fieldFlag) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (f fieldFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return fmt.Errorf("field %q: want key=value", s)
	}
	if k == qruri.ContentIDField {
		return errors.New("use -content-id for content_id")
	}
	f[k] = v
	return nil
}

func cmdEncode(e *env, args []string) error {
	fs := newFlagSet(e, "encode")
	id := fs.String("content-id", "", "content id")
	fields := fieldFlag{}
	fs.Var(fields, "field", "extra field key=value (repeatable)")
	out := fs.String("png", "", "write a QR image to this file")
	size := fs.Int("size", 512, "QR image size in pixels")
	if err := parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		fmt.Fprintln(e.errw, "need -content-id")
		return errUsage
	}
	rec := map[string]any{qruri.ContentIDField: strings.TrimSpace(*id)}
	for k, v := range fields {
		rec[k] = v
	}
	uri, err := qruri.Encode(rec)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, uri)

	if *out == "" {
		return nil
	}
	img, err := detector.Render(uri, *size)
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func cmdHistory(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "history")
	n := fs.Int("n", 10, "number of entries")
	if err := parse(fs, args); err != nil {
		return err
	}
	jr, closeJournal, err := e.openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()
	if jr == nil {
		return errors.New("history needs QRSCAN_DATABASE_URL")
	}
	entries, err := jr.Recent(ctx, *n)
	if err != nil {
		return err
	}
	printHistory(e.out, entries)
	return nil
}
