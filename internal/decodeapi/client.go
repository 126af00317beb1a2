// Package decodeapi is the HTTP client for the remote content decode endpoint.
package decodeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/qrscan/internal/model"
)

const (
	// DecodePath is appended to the API base URL.
	DecodePath = "/content/decode"
	// PasswordHeader carries the content password on retries.
	PasswordHeader = "X-Content-Password"

	maxBody = 32 << 20
)

// TokenSource yields the bearer token for a request. An empty token sends no Authorization header.
type TokenSource func() (string, error)

// Client calls POST {baseURL}/content/decode.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	log     *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithToken sets the bearer token source.
func WithToken(ts TokenSource) Option { return func(c *Client) { c.token = ts } }

// WithLogger sets the logger; requests are logged through LoggingTransport.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New constructs a decode client. timeout applies to the default HTTP client only.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   timeout,
			Transport: LoggingTransport(c.log, http.DefaultTransport),
		}
	}
	return c
}

type decodeRequest struct {
	QRData string `json:"qr_data"`
}

type errorBody struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	Msg              string `json:"msg"` // auth layer errors
	RequiresPassword bool   `json:"requires_password"`
}

// Decode sends raw to the server, attaching password when non-empty.
// It never returns a Go error: every failure is folded into an OutcomeError.
func (c *Client) Decode(ctx context.Context, raw, password string) model.DecodeOutcome {
	body, _ := json.Marshal(decodeRequest{QRData: raw})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+DecodePath, bytes.NewReader(body))
	if err != nil {
		return model.Failed(&model.DecodeError{Kind: model.ErrorNetwork, Message: err.Error()})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		tok, err := c.token()
		if err != nil {
			return model.Failed(&model.DecodeError{Kind: model.ErrorUnauthorized, Message: err.Error()})
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	if password != "" {
		req.Header.Set(PasswordHeader, password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return model.Failed(&model.DecodeError{Kind: model.ErrorNetwork, Message: "request cancelled"})
		}
		return model.Failed(&model.DecodeError{Kind: model.ErrorNetwork, Message: err.Error()})
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return model.Failed(&model.DecodeError{Kind: model.ErrorNetwork, Status: resp.StatusCode, Message: err.Error()})
	}

	if resp.StatusCode == http.StatusOK {
		res, err := parseResult(data)
		if err != nil {
			return model.Failed(&model.DecodeError{Kind: model.ErrorServer, Status: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)})
		}
		return model.OK(res)
	}

	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	msg := eb.Error
	if msg == "" {
		msg = eb.Message
	}
	if msg == "" {
		msg = eb.Msg
	}
	if resp.StatusCode == http.StatusUnauthorized && eb.RequiresPassword {
		return model.PasswordRequired(msg)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return model.Failed(&model.DecodeError{Kind: classify(resp.StatusCode, msg), Status: resp.StatusCode, Message: msg})
}

// classify maps a non-200 status and its server text onto an error kind.
// A 401 that is not a password challenge always means the login session ended.
func classify(status int, msg string) model.ErrorKind {
	if status == http.StatusUnauthorized {
		return model.ErrorUnauthorized
	}
	low := strings.ToLower(msg)
	switch {
	case strings.Contains(low, "deactivated"):
		return model.ErrorDeactivated
	case strings.Contains(low, "expired"):
		return model.ErrorExpired
	}
	switch {
	case status == http.StatusBadRequest:
		return model.ErrorBadRequest
	case status == http.StatusForbidden:
		return model.ErrorForbidden
	case status == http.StatusNotFound:
		return model.ErrorNotFound
	case status == http.StatusGone:
		return model.ErrorExpired
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		return model.ErrorUnavailable
	case status >= 500:
		return model.ErrorServer
	}
	return model.ErrorUnknown
}
