package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const (
	apiKeyLength   = 32
	apiKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Largest multiple of the alphabet size that fits in a byte. Bytes at
	// or above it are redrawn so the modulo stays uniform.
	apiKeyByteCeil = 256 - 256%len(apiKeyAlphabet)

	keyPrefixLength = 8
)

// GenerateAPIKey returns a fresh 32-character alphanumeric project key.
func GenerateAPIKey() (string, error) {
	key := make([]byte, apiKeyLength)
	buf := make([]byte, apiKeyLength)
	filled := 0
	for filled < apiKeyLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= apiKeyByteCeil {
				continue
			}
			key[filled] = apiKeyAlphabet[int(b)%len(apiKeyAlphabet)]
			filled++
			if filled == apiKeyLength {
				break
			}
		}
	}
	return string(key), nil
}

// HashAPIKey hashes the raw API key using the same strategy as key creation.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the short display prefix stored alongside the hash.
func KeyPrefix(raw string) string {
	if len(raw) <= keyPrefixLength {
		return raw
	}
	return raw[:keyPrefixLength]
}
