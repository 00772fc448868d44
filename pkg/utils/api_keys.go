package utils

import (
	"crypto/rand"
	"encoding/base64"
)

const apiKeyPrefix = "tl_"

// GenerateRandomKey returns a URL-safe random key of the given byte length,
// prefixed so keys are recognizable in logs and support requests.
func GenerateRandomKey(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return apiKeyPrefix + base64.URLEncoding.EncodeToString(b), nil
}
