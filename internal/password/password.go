// Package password hashes and verifies identity secrets with scrypt.
//
// Stored form is hex(digest) + "." + salt, where salt is the hex text of
// 16 random bytes and is fed to scrypt as-is.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN   = 16384
	scryptR   = 8
	scryptP   = 1
	keyLen    = 64
	saltBytes = 16
	separator = "."
)

// ErrMalformedHash means a stored hash cannot be parsed. It indicates bad
// data in the identity store, not a wrong password.
var ErrMalformedHash = errors.New("malformed password hash")

// Hash derives the stored form for secret using a fresh random salt.
func Hash(secret string) (string, error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)
	digest, err := derive(secret, salt)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest) + separator + salt, nil
}

// Verify reports whether supplied matches stored. The digest comparison
// runs in constant time. A non-nil error is returned only for a malformed
// stored form.
func Verify(stored, supplied string) (bool, error) {
	digestHex, salt, ok := strings.Cut(stored, separator)
	if !ok || digestHex == "" || salt == "" {
		return false, ErrMalformedHash
	}
	want, err := hex.DecodeString(digestHex)
	if err != nil || len(want) != keyLen {
		return false, ErrMalformedHash
	}
	got, err := derive(supplied, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

func derive(secret, salt string) ([]byte, error) {
	digest, err := scrypt.Key([]byte(secret), []byte(salt), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	return digest, nil
}
