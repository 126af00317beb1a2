// Package localstore keeps client state on disk: the bearer token and the
// journal data key.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/qrscan/internal/crypto/clientcrypto"
	"github.com/and161185/qrscan/internal/errs"
)

// DefaultTokenTTL applies when a token carries no exp claim.
const DefaultTokenTTL = 15 * time.Minute

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store reads and writes files under one directory.
type Store struct {
	dir string
	now func() time.Time
}

// Dir resolves the state directory: override, then $XDG_CONFIG_HOME/qrscan,
// then ~/.config/qrscan.
func Dir(override string) string {
	if override != "" {
		return override
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "qrscan")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "qrscan")
}

func New(dir string) *Store { return &Store{dir: dir, now: time.Now} }

func (s *Store) TokenPath() string   { return filepath.Join(s.dir, "token.json") }
func (s *Store) DataKeyPath() string { return filepath.Join(s.dir, "data.key") }

// SaveToken stores tok with the expiry from its exp claim. The signature is
// not checked; the server does that.
func (s *Store) SaveToken(tok string) (time.Time, error) {
	if tok == "" {
		return time.Time{}, errors.New("empty token")
	}
	exp := s.now().Add(DefaultTokenTTL)
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err == nil && claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return exp, s.saveToken(tok, exp)
}

func (s *Store) saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(s.TokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

// Token returns the stored token, or an error wrapping errs.ErrNoToken when
// it is missing or expired.
func (s *Store) Token() (string, error) {
	b, err := os.ReadFile(s.TokenPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", errs.ErrNoToken
	}
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", fmt.Errorf("token file: %w", err)
	}
	if tf.AccessToken == "" || s.now().After(tf.ExpiresAt) {
		return "", fmt.Errorf("token expired at %s: %w", tf.ExpiresAt.Format(time.RFC3339), errs.ErrNoToken)
	}
	return tf.AccessToken, nil
}

// DataKey returns the journal key, creating it on first use.
func (s *Store) DataKey() ([]byte, error) {
	b, err := os.ReadFile(s.DataKeyPath())
	if err == nil {
		if len(b) != clientcrypto.KeyLen {
			return nil, fmt.Errorf("data key: want %d bytes, got %d", clientcrypto.KeyLen, len(b))
		}
		return b, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	key, err := clientcrypto.Rand(clientcrypto.KeyLen)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.DataKeyPath(), key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
