package tool

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"

	"github.com/google/uuid"
)

func GenerateRandomUUID() string {
	return uuid.New().String()
}

// GenerateShortID returns a short alphanumeric ID (8 hex chars) for share
// tokens and default aliases. Shorter than UUID so URLs stay readable.
func GenerateShortID() string {
	b := make([]byte, 4) // 4 bytes = 8 hex chars
	if _, err := rand.Read(b); err != nil {
		return GenerateRandomUUID()[:8] // fallback
	}
	return hex.EncodeToString(b)
}

// DeviceIDFromLocation derives the short routable device id from the
// description URL. Stable across restarts: the same location always maps to
// the same id, so the id carries no identity of its own.
func DeviceIDFromLocation(location string) string {
	sum := sha1.Sum([]byte(location))
	return "dev_" + hex.EncodeToString(sum[:8])
}
