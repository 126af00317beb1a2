// Package handshake runs the decode exchange for one accepted QR payload,
// including the password prompt and retry loop.
package handshake

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/qrscan/internal/errs"
	"github.com/and161185/qrscan/internal/model"
)

// Decoder performs one decode call. Implemented by *decodeapi.Client.
type Decoder interface {
	Decode(ctx context.Context, raw, password string) model.DecodeOutcome
}

// Prompter asks the user for a content password.
type Prompter interface {
	// PromptPassword blocks until the user submits (ok=true) or cancels (ok=false).
	// retry is true when the prompt is re-shown after a rejected password and
	// should carry an error cue; the same prompt stays open between attempts.
	PromptPassword(ctx context.Context, retry bool) (password string, ok bool, err error)
	// Close dismisses the prompt once the sub-flow ends.
	Close()
}

// Handshake exchanges a raw payload for a DecodeResult.
type Handshake struct {
	api    Decoder
	prompt Prompter
	log    *zap.Logger
}

// New constructs a Handshake. log may be nil.
func New(api Decoder, prompt Prompter, log *zap.Logger) *Handshake {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handshake{api: api, prompt: prompt, log: log}
}

// Run decodes raw. A password-required answer opens the prompt and retries
// with each submitted password until the server accepts one or the user
// cancels (errs.ErrCancelled). Any other failure is returned as *model.DecodeError.
func (h *Handshake) Run(ctx context.Context, raw string) (*model.DecodeResult, error) {
	out := h.api.Decode(ctx, raw, "")
	if out.Kind != model.OutcomePasswordRequired {
		return unwrap(out)
	}

	h.log.Info("password required")
	defer h.prompt.Close()

	for attempt := 0; ; attempt++ {
		pw, ok, err := h.prompt.PromptPassword(ctx, attempt > 0)
		if err != nil {
			return nil, fmt.Errorf("password prompt: %w", err)
		}
		if !ok {
			h.log.Info("password prompt cancelled", zap.Int("attempts", attempt))
			return nil, errs.ErrCancelled
		}
		out = h.api.Decode(ctx, raw, pw)
		if out.Kind != model.OutcomePasswordRequired {
			return unwrap(out)
		}
		h.log.Debug("password rejected", zap.Int("attempt", attempt+1))
	}
}

func unwrap(out model.DecodeOutcome) (*model.DecodeResult, error) {
	switch out.Kind {
	case model.OutcomeOK:
		return out.Result, nil
	case model.OutcomeError:
		if out.Err != nil {
			return nil, out.Err
		}
	}
	return nil, &model.DecodeError{Kind: model.ErrorUnknown, Message: "unexpected decode outcome " + out.Kind.String()}
}
