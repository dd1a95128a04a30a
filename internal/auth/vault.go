package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrSealedTokenInvalid is returned when a sealed token cannot be opened,
// typically because TOKEN_KEY changed since it was written.
var ErrSealedTokenInvalid = errors.New("auth: sealed token cannot be opened")

// Vault seals OAuth tokens at rest with NaCl secretbox
// (XSalsa20-Poly1305). The layout of a sealed value is nonce || box.
type Vault struct {
	key [32]byte
}

// NewVault derives the 32-byte secretbox key from a passphrase.
func NewVault(passphrase string) (*Vault, error) {
	if len(passphrase) < 16 {
		return nil, errors.New("auth: token key must be at least 16 characters")
	}
	return &Vault{key: sha256.Sum256([]byte(passphrase))}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (v *Vault) Seal(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("auth: generating nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key), nil
}

// Open decrypts a value produced by Seal.
func (v *Vault) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrSealedTokenInvalid
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &v.key)
	if !ok {
		return "", ErrSealedTokenInvalid
	}
	return string(out), nil
}
