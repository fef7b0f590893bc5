package integration

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/panelsmith/panelsmith/internal/config"
)

// bearerClaims builds the claim set the server expects, with caller-chosen
// issue and expiry times so tests can produce stale or future tokens.
func bearerClaims(cfg config.AuthConfig, subject string, issuedAt, expiresAt time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": cfg.Issuer,
		"aud": cfg.Audience,
		"sub": subject,
		"iat": jwt.NewNumericDate(issuedAt),
		"exp": jwt.NewNumericDate(expiresAt),
	}
}

// signHS256 signs claims with the given secret. Used to mint tokens the real
// issuer refuses to produce: expired, wrong-secret, and so on.
func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// unsignedToken crafts a token with alg "none" and an empty signature. Any
// verifier that honors the header's algorithm instead of its own allowlist
// will accept it, so the server must reject it.
func unsignedToken(t *testing.T, cfg config.AuthConfig, subject string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, bearerClaims(cfg, subject, now, now.Add(time.Hour)))
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("encoding unsigned token: %v", err)
	}
	return signed
}

// truncateSignature strips the signature segment from a compact JWT, leaving
// header.payload. — malformed by construction.
func truncateSignature(token string) string {
	headerAndPayload := token
	if idx := lastDot(token); idx >= 0 {
		headerAndPayload = token[:idx+1]
	}
	return headerAndPayload
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// garbageToken returns bytes that are valid base64url but not a JWT at all.
func garbageToken() string {
	return base64.RawURLEncoding.EncodeToString([]byte("not a token"))
}
