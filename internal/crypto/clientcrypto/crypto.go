// Package clientcrypto contains the client-side primitives: password-derived signing and
// encryption keys, and sealing of note fields. None of it runs on the server.
package clientcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// Params
const (
	SaltLen  = 16
	KeyLen   = 32
	NonceLen = 24
)

// KDF holds Argon2id cost parameters.
type KDF struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDF matches the interactive-login cost the browser client uses.
var DefaultKDF = KDF{Time: 3, Memory: 64 * 1024, Threads: 1}

func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) { return Rand(SaltLen) }

func (k KDF) derive(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, k.Time, k.Memory, k.Threads, KeyLen)
}

// SigningKey derives the Ed25519 key pair from password and the signature salt.
// The same inputs always yield the same key, which is how login works without a stored secret.
func (k KDF) SigningKey(password, signatureSalt []byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(k.derive(password, signatureSalt))
}

// EncryptionKey derives the secretbox key from password and the encryption salt.
func (k KDF) EncryptionKey(password, encryptionSalt []byte) *[KeyLen]byte {
	var key [KeyLen]byte
	copy(key[:], k.derive(password, encryptionSalt))
	return &key
}

// SignNonce produces the detached signature the server expects at login.
func SignNonce(priv ed25519.PrivateKey, nonce []byte) []byte {
	return ed25519.Sign(priv, nonce)
}

// Seal encrypts plaintext as nonce||secretbox(plaintext).
func Seal(key *[KeyLen]byte, plaintext []byte) ([]byte, error) {
	var nonce [NonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open reverses Seal.
func Open(key *[KeyLen]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < NonceLen+secretbox.Overhead {
		return nil, errors.New("sealed too short")
	}
	var nonce [NonceLen]byte
	copy(nonce[:], sealed[:NonceLen])
	out, ok := secretbox.Open(nil, sealed[NonceLen:], &nonce, key)
	if !ok {
		return nil, errors.New("decryption failed")
	}
	return out, nil
}
