package main

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Tokens older than this are rejected. Tokens are replayable within
	// the window; uniqueness comes from the nonce, not server-side state.
	csrfMaxAge = 3600 * time.Second

	// Tolerance for tokens whose timestamp is slightly in the future
	// (clock drift between issue and validation).
	csrfClockSkew = time.Minute

	secretLength = 32
)

var (
	errTokenMalformed    = errors.New("csrf token malformed")
	errTokenBadSignature = errors.New("csrf token signature mismatch")
	errTokenExpired      = errors.New("csrf token expired")
)

// newSecret generates the process-lifetime signing key. Called once at
// startup; the returned key is shared read-only by every handler and is
// never persisted or logged.
func newSecret() ([]byte, error) {
	secret := make([]byte, secretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return secret, nil
}

// signMessage computes an HMAC-SHA256 over message.
func signMessage(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// verifySignature recomputes the MAC and compares in constant time.
func verifySignature(secret, message, signature []byte) bool {
	return hmac.Equal(signature, signMessage(secret, message))
}

// generateCSRFToken issues a "timestamp:nonce:signature" token. The nonce
// is a hex-encoded UUIDv4 and the signature is the hex HMAC over
// "timestamp:nonce", so the whole token is safe inside form values.
func generateCSRFToken(secret []byte) string {
	timestamp := time.Now().Unix()
	id := uuid.New()
	nonce := hex.EncodeToString(id[:])
	payload := fmt.Sprintf("%d:%s", timestamp, nonce)
	signature := hex.EncodeToString(signMessage(secret, []byte(payload)))
	return payload + ":" + signature
}

// validateCSRFToken checks a submitted token against the shared secret.
// Validation order is fixed: shape, then signature, then age. A stale
// token with a bad signature reports the signature error, not expiry.
func validateCSRFToken(secret []byte, token string, now time.Time) error {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return errTokenMalformed
	}

	timestamp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return errTokenMalformed
	}

	payload := parts[0] + ":" + parts[1]
	signature, err := hex.DecodeString(parts[2])
	if err != nil {
		return errTokenBadSignature
	}
	if !verifySignature(secret, []byte(payload), signature) {
		return errTokenBadSignature
	}

	age := now.Unix() - timestamp
	if age > int64(csrfMaxAge.Seconds()) {
		return errTokenExpired
	}
	if age < -int64(csrfClockSkew.Seconds()) {
		return errTokenExpired
	}

	return nil
}
