package ledger

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns passwords into stored hashes and checks them.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
	// Secure is false for encodings that can be reversed.
	Secure() bool
}

// BcryptHasher is the default hasher.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (BcryptHasher) Secure() bool { return true }

// FuncHasher adapts a deterministic one-way function. Verification recomputes
// the hash.
type FuncHasher func(password string) string

func (f FuncHasher) Hash(password string) (string, error) { return f(password), nil }

func (f FuncHasher) Verify(hash, password string) bool {
	return subtle.ConstantTimeCompare([]byte(f(password)), []byte(hash)) == 1
}

func (FuncHasher) Secure() bool { return true }

// SHA256 is an unsalted SHA-256 hex digest, usable with FuncHasher.
func SHA256(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// ReversibleHasher base64-encodes passwords. It is not secure and is only
// used when no hasher is configured.
type ReversibleHasher struct{}

func (ReversibleHasher) Hash(password string) (string, error) {
	return "b64:" + base64.StdEncoding.EncodeToString([]byte(password)), nil
}

func (h ReversibleHasher) Verify(hash, password string) bool {
	want, _ := h.Hash(password)
	return subtle.ConstantTimeCompare([]byte(want), []byte(hash)) == 1
}

func (ReversibleHasher) Secure() bool { return false }
