package hash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	saltLen = 16
	keyLen  = 64

	// scrypt cost parameters.
	costN = 16384
	costR = 8
	costP = 1
)

// HashPassword returns hex(key) + "." + hex(salt). The hex salt string itself is
// fed to scrypt, so digests stay compatible with ones produced by the node service.
func HashPassword(password string) (string, error) {
	raw := make([]byte, saltLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("hash: salt: %w", err)
	}
	salt := hex.EncodeToString(raw)

	key, err := derive(password, salt)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key) + "." + salt, nil
}

func CheckPassword(stored, password string) bool {
	hashed, salt, ok := strings.Cut(stored, ".")
	if !ok || hashed == "" || salt == "" {
		return false
	}
	want, err := hex.DecodeString(hashed)
	if err != nil || len(want) != keyLen {
		return false
	}

	got, err := derive(password, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, got) == 1
}

func derive(password, salt string) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), []byte(salt), costN, costR, costP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("hash: scrypt: %w", err)
	}
	return key, nil
}
