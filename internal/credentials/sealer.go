package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "sealed:v1:"

var (
	// ErrNotSealed is returned when opening a value that was stored in plain text.
	ErrNotSealed = errors.New("credentials: value is not sealed")
	// ErrInvalidSeal is returned when a sealed value cannot be authenticated.
	ErrInvalidSeal = errors.New("credentials: sealed value is invalid")
)

// KeyParams controls the argon2id derivation of the sealing key.
type KeyParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
}

// DefaultKeyParams mirrors the argon2id cost used for password hashing.
var DefaultKeyParams = KeyParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
}

// Sealer encrypts token values at rest with a passphrase derived key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSalt returns a random salt sized for params.
func NewSalt(params KeyParams) ([]byte, error) {
	if params.SaltLength == 0 {
		params.SaltLength = DefaultKeyParams.SaltLength
	}
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("credentials: generate salt: %w", err)
	}
	return salt, nil
}

// NewSealer derives an XChaCha20-Poly1305 key from passphrase and salt.
func NewSealer(passphrase string, salt []byte, params KeyParams) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("credentials: passphrase is required")
	}
	if len(salt) == 0 {
		return nil, errors.New("credentials: salt is required")
	}
	key := argon2.IDKey([]byte(passphrase), salt, params.Iterations, params.Memory, params.Parallelism, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plain and returns a printable value.
func (s *Sealer) Seal(plain string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credentials: generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return "", ErrNotSealed
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrInvalidSeal
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrInvalidSeal
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidSeal
	}
	return string(plain), nil
}
