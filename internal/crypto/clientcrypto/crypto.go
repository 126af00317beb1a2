// Package clientcrypto seals journal content on the client with
// XChaCha20-Poly1305 under per-record HKDF keys.
package clientcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeyLen is the size of the data key and of derived record keys.
const KeyLen = 32

var errShort = errors.New("blob too short")

func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveRecordKey derives a per-record key via HKDF-SHA256 using recordID as info.
func DeriveRecordKey(dataKey, recordID []byte) ([]byte, error) {
	if len(dataKey) != KeyLen {
		return nil, errors.New("data key must be 32 bytes")
	}
	r := hkdf.New(sha256.New, dataKey, nil, recordID)
	key := make([]byte, KeyLen)
	_, err := r.Read(key)
	return key, err
}

// RecordAAD binds a ciphertext to its record and content: recordID||contentID.
func RecordAAD(recordID []byte, contentID string) []byte {
	aad := make([]byte, 0, len(recordID)+len(contentID))
	aad = append(aad, recordID...)
	return append(aad, contentID...)
}

// Seal encrypts plaintext with a random nonce; the result is nonce||ciphertext.
func Seal(key, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open reverses Seal. It fails on a wrong key or mismatched aad.
func Open(key, aad, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, errShort
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, aad)
}
