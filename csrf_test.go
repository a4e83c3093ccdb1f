package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"
)

// buildToken constructs a token with a chosen timestamp, bypassing
// generateCSRFToken so expiry cases can be tested deterministically.
func buildToken(secret []byte, timestamp int64, nonce string) string {
	payload := fmt.Sprintf("%d:%s", timestamp, nonce)
	signature := hex.EncodeToString(signMessage(secret, []byte(payload)))
	return payload + ":" + signature
}

func mustSecret(t *testing.T) []byte {
	t.Helper()
	secret, err := newSecret()
	if err != nil {
		t.Fatalf("newSecret failed: %v", err)
	}
	return secret
}

func TestNewSecret(t *testing.T) {
	secret := mustSecret(t)
	if len(secret) != secretLength {
		t.Errorf("secret length = %d, want %d", len(secret), secretLength)
	}

	other := mustSecret(t)
	if bytes.Equal(secret, other) {
		t.Error("two generated secrets are identical")
	}
}

func TestSignAndVerify(t *testing.T) {
	secret := mustSecret(t)
	message := []byte("1700000000:deadbeef")

	sig := signMessage(secret, message)
	if !verifySignature(secret, message, sig) {
		t.Error("valid signature rejected")
	}
	if verifySignature(secret, []byte("1700000000:deadbeff"), sig) {
		t.Error("signature accepted for a different message")
	}

	otherSecret := mustSecret(t)
	if verifySignature(otherSecret, message, sig) {
		t.Error("signature accepted under a different secret")
	}
}

func TestVerifySignatureBitFlips(t *testing.T) {
	secret := mustSecret(t)
	message := []byte("1700000000:deadbeef")
	sig := signMessage(secret, message)

	for i := range sig {
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(sig))
			copy(mutated, sig)
			mutated[i] ^= 1 << bit
			if verifySignature(secret, message, mutated) {
				t.Fatalf("accepted signature with byte %d bit %d flipped", i, bit)
			}
		}
	}
}

func TestGenerateCSRFTokenShape(t *testing.T) {
	secret := mustSecret(t)
	token := generateCSRFToken(secret)

	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts, want 3: %q", len(parts), token)
	}

	timestamp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		t.Errorf("timestamp %q is not an integer: %v", parts[0], err)
	}
	if delta := time.Now().Unix() - timestamp; delta < 0 || delta > 5 {
		t.Errorf("timestamp %d is not current (delta %d)", timestamp, delta)
	}

	if len(parts[1]) != 32 {
		t.Errorf("nonce length = %d, want 32 hex chars", len(parts[1]))
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		t.Errorf("nonce is not hex: %v", err)
	}

	if len(parts[2]) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(parts[2]))
	}
	if _, err := hex.DecodeString(parts[2]); err != nil {
		t.Errorf("signature is not hex: %v", err)
	}
}

func TestGenerateCSRFTokenUniqueNonces(t *testing.T) {
	secret := mustSecret(t)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		nonce := strings.Split(generateCSRFToken(secret), ":")[1]
		if seen[nonce] {
			t.Fatalf("nonce repeated: %s", nonce)
		}
		seen[nonce] = true
	}
}

func TestValidateCSRFTokenRoundTrip(t *testing.T) {
	secret := mustSecret(t)
	token := generateCSRFToken(secret)

	if err := validateCSRFToken(secret, token, time.Now()); err != nil {
		t.Errorf("fresh token rejected: %v", err)
	}

	// Stateless tokens stay valid on repeat submission within the window.
	if err := validateCSRFToken(secret, token, time.Now()); err != nil {
		t.Errorf("token rejected on second validation: %v", err)
	}
}

func TestValidateCSRFTokenMalformed(t *testing.T) {
	secret := mustSecret(t)
	now := time.Now()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"one part", "justonepart"},
		{"two parts", "1700000000:deadbeef"},
		{"four parts", "1700000000:dead:beef:cafe"},
		{"non-numeric timestamp", "soon:deadbeef:cafe"},
		{"float timestamp", "17.5:deadbeef:cafe"},
		{"whitespace", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCSRFToken(secret, tt.token, now)
			if !errors.Is(err, errTokenMalformed) {
				t.Errorf("got %v, want errTokenMalformed", err)
			}
		})
	}
}

func TestValidateCSRFTokenBadSignature(t *testing.T) {
	secret := mustSecret(t)
	now := time.Now()

	valid := generateCSRFToken(secret)

	// Flip the last hex character of the signature.
	tampered := valid[:len(valid)-1]
	if strings.HasSuffix(valid, "0") {
		tampered += "1"
	} else {
		tampered += "0"
	}

	otherSecret := mustSecret(t)

	tests := []struct {
		name  string
		token string
	}{
		{"tampered signature", tampered},
		{"non-hex signature", "1700000000:deadbeef:zzzz"},
		{"wrong secret", generateCSRFToken(otherSecret)},
		{"altered timestamp", "9" + valid[1:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCSRFToken(secret, tt.token, now)
			if !errors.Is(err, errTokenBadSignature) {
				t.Errorf("got %v, want errTokenBadSignature", err)
			}
		})
	}
}

func TestValidateCSRFTokenExpiry(t *testing.T) {
	secret := mustSecret(t)
	now := time.Unix(1700000000, 0)
	maxAge := int64(csrfMaxAge.Seconds())
	skew := int64(csrfClockSkew.Seconds())

	tests := []struct {
		name      string
		timestamp int64
		wantErr   error
	}{
		{"fresh", now.Unix(), nil},
		{"at max age", now.Unix() - maxAge, nil},
		{"one second past max age", now.Unix() - maxAge - 1, errTokenExpired},
		{"long expired", now.Unix() - 86400, errTokenExpired},
		{"slightly in the future", now.Unix() + skew, nil},
		{"beyond clock skew", now.Unix() + skew + 1, errTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := buildToken(secret, tt.timestamp, "deadbeefdeadbeefdeadbeefdeadbeef")
			err := validateCSRFToken(secret, token, now)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("got %v, want valid", err)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCSRFTokenSignatureCheckedBeforeExpiry(t *testing.T) {
	secret := mustSecret(t)
	now := time.Unix(1700000000, 0)

	// A token that is both expired and tampered must report the signature
	// failure, proving expiry is not computed on unauthenticated input.
	expired := buildToken(secret, now.Unix()-86400, "deadbeefdeadbeefdeadbeefdeadbeef")
	tampered := expired[:len(expired)-4] + "0000"
	if strings.HasSuffix(expired, "0000") {
		tampered = expired[:len(expired)-4] + "1111"
	}

	err := validateCSRFToken(secret, tampered, now)
	if !errors.Is(err, errTokenBadSignature) {
		t.Errorf("got %v, want errTokenBadSignature", err)
	}
}
