// Package envelope seals and opens the bodies exchanged between controllers
// and the server.
//
// A sealed body is
//
//	AES-256-CBC(PKCS#7(plaintext)) || BLAKE3-keyed(nonce || ciphertext)
//
// The 16-byte nonce doubles as the CBC IV. It travels out of band (base64 in
// the X-IV header) and the same nonce seals the response to a request.
// The pre-shared key is the AES key, as controllers use it. Only the MAC key
// is derived from it, with HKDF.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

const (
	KeySize   = 32
	NonceSize = aes.BlockSize
	TagSize   = 32
)

var (
	ErrInvalidKey       = errors.New("envelope key must be 32 bytes")
	ErrInvalidNonce     = errors.New("nonce must decode to 16 bytes")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrMalformedPayload = errors.New("malformed payload")
)

const macInfo = "portunus envelope v1 blake3 mac"

// Envelope holds the cipher and the derived MAC key. It has no mutable state and is safe for
// concurrent use.
type Envelope struct {
	block  cipher.Block
	macKey []byte
}

func New(key []byte) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	macKey, err := deriveKey(key, macInfo)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope cipher: %w", err)
	}
	return &Envelope{block: block, macKey: macKey}, nil
}

// ParseKey accepts a 32-byte key encoded as base64 (standard or URL) or hex.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	for _, dec := range []func(string) ([]byte, error){
		base64.StdEncoding.DecodeString,
		base64.URLEncoding.DecodeString,
		hex.DecodeString,
	} {
		if b, err := dec(s); err == nil && len(b) == KeySize {
			return b, nil
		}
	}
	return nil, ErrInvalidKey
}

// DecodeNonce decodes the base64 nonce header value.
func DecodeNonce(header string) ([]byte, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrInvalidNonce
	}
	nonce, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		nonce, err = base64.RawStdEncoding.DecodeString(header)
		if err != nil {
			return nil, ErrInvalidNonce
		}
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}
	return nonce, nil
}

// EncodeNonce is the inverse of DecodeNonce.
func EncodeNonce(nonce []byte) string {
	return base64.StdEncoding.EncodeToString(nonce)
}

// Seal encrypts plaintext under nonce and appends the authentication tag.
func (e *Envelope) Seal(plaintext, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}

	padded := pad(plaintext)
	out := make([]byte, len(padded), len(padded)+TagSize)
	cipher.NewCBCEncrypter(e.block, nonce).CryptBlocks(out, padded)

	return append(out, e.tag(nonce, out)...), nil
}

// Open verifies and decrypts a body produced by Seal with the same nonce.
// Every failure is reported as ErrDecryptionFailed.
func (e *Envelope) Open(body, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}

	n := len(body) - TagSize
	if n < aes.BlockSize || n%aes.BlockSize != 0 {
		return nil, ErrDecryptionFailed
	}
	ct, tag := body[:n], body[n:]

	if subtle.ConstantTimeCompare(tag, e.tag(nonce, ct)) != 1 {
		return nil, ErrDecryptionFailed
	}

	plain := make([]byte, n)
	cipher.NewCBCDecrypter(e.block, nonce).CryptBlocks(plain, ct)

	out, ok := unpad(plain)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return out, nil
}

// OpenJSON opens body and decodes the plaintext document into v.
func (e *Envelope) OpenJSON(body, nonce []byte, v any) error {
	plain, err := e.Open(body, nonce)
	if err != nil {
		return err
	}
	return DecodeJSON(plain, v)
}

// SealJSON encodes v and seals it.
func (e *Envelope) SealJSON(v any, nonce []byte) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return e.Seal(plain, nonce)
}

// DecodeJSON decodes a plaintext document. Error text names the offending
// field at most, never the plaintext itself.
func DecodeJSON(plain []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(plain))
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return fmt.Errorf("%w: field %s has wrong type", ErrMalformedPayload, typeErr.Field)
		}
		return ErrMalformedPayload
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrMalformedPayload)
	}
	return nil
}

func (e *Envelope) tag(nonce, ct []byte) []byte {
	h, err := blake3.NewKeyed(e.macKey)
	if err != nil {
		// macKey length is fixed at construction.
		panic("envelope: blake3 keyed hasher: " + err.Error())
	}
	_, _ = h.Write(nonce)
	_, _ = h.Write(ct)
	return h.Sum(nil)
}

func deriveKey(secret []byte, info string) ([]byte, error) {
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("derive %q: %w", info, err)
	}
	return out, nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
