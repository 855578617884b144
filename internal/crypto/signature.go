// Package crypto implements server-side randomness and detached signature verification.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
)

// Ed25519 sizes, in bytes.
const (
	PublicKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize
	NonceSize     = 32
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// VerifyDetached reports whether signature is a valid Ed25519 signature of message by
// publicKey. Inputs of the wrong size are rejected before any curve arithmetic.
func VerifyDetached(signature, message, publicKey []byte) bool {
	if len(signature) != SignatureSize || len(publicKey) != PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}
