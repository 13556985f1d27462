package types

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuthToken is a one-shot bearer credential bound to a resource name. The
// directory removes a token on its first validation attempt, successful or
// not.
type AuthToken struct {
	ID           uuid.UUID `json:"id"`
	ResourceName string    `json:"resourceName"`
	Content      string    `json:"content"`
	ValidityDate int64     `json:"validityDate"`
}

// IsNull reports whether the token carries no credential.
func (t AuthToken) IsNull() bool {
	return t.ID == uuid.Nil || t.ResourceName == "" || t.Content == ""
}

// GenerateTokenContent returns the Base64 encoding of 32 random bytes.
func GenerateTokenContent() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token content: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// ValidityMonthsFromNow returns the UTC epoch seconds n calendar months
// from now.
func ValidityMonthsFromNow(n int) int64 {
	return time.Now().UTC().AddDate(0, n, 0).Unix()
}
