package token

import (
	"encoding/base64"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error: %v", err)
	}
	return raw
}

func TestValidFutureExpiry(t *testing.T) {
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	v := NewValidatorWithClock(func() time.Time { return now })

	raw := signedToken(t, jwt.MapClaims{"sub": "admin", "exp": now.Add(time.Hour).Unix()})
	if !v.Valid(raw) {
		t.Fatalf("expected token with future expiry to be valid")
	}

	exp, err := v.Expiry(raw)
	if err != nil {
		t.Fatalf("Expiry() error: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected expiry %v, got %v", now.Add(time.Hour), exp)
	}
}

func TestExpiredToken(t *testing.T) {
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	v := NewValidatorWithClock(func() time.Time { return now })

	raw := signedToken(t, jwt.MapClaims{"sub": "admin", "exp": now.Add(-time.Second).Unix()})
	if v.Valid(raw) {
		t.Fatalf("expected expired token to be invalid")
	}
	if err := v.Check(raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestExpiryBoundaryIsStillValid(t *testing.T) {
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	v := NewValidatorWithClock(func() time.Time { return now })

	raw := signedToken(t, jwt.MapClaims{"exp": now.Unix()})
	if !v.Valid(raw) {
		t.Fatalf("expected token expiring exactly now to be valid")
	}
}

func TestMissingExpiry(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{"sub": "admin"})
	if err := NewValidator().Check(raw); !errors.Is(err, ErrNoExpiry) {
		t.Fatalf("expected ErrNoExpiry, got %v", err)
	}
}

func TestNonNumericExpiry(t *testing.T) {
	raw := signedToken(t, jwt.MapClaims{"exp": "tomorrow"})
	if Valid(raw) {
		t.Fatalf("expected token with string exp to be invalid")
	}
}

func TestMalformedTokens(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	cases := map[string]string{
		"empty":             "",
		"one segment":       "abc",
		"two segments":      header + ".abc",
		"four segments":     header + ".e30.sig.extra",
		"non-base64 middle": header + ".%%%not-base64%%%.sig",
		"non-json middle":   header + "." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig",
	}
	v := NewValidator()
	for name, raw := range cases {
		if v.Valid(raw) {
			t.Fatalf("%s: expected invalid token", name)
		}
	}
}

func TestSignatureIsNotVerified(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("SignedString() error: %v", err)
	}
	if !Valid(raw) {
		t.Fatalf("expected token signed with an unknown key to pass the client-side check")
	}
}

func TestOnlyPayloadSegmentIsDecoded(t *testing.T) {
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	v := NewValidatorWithClock(func() time.Time { return now })

	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"exp":` + strconv.FormatInt(now.Add(time.Hour).Unix(), 10) + `}`))
	noAlg := base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT"}`))
	cases := map[string]string{
		"opaque header":      "header." + payload + ".signature",
		"header without alg": noAlg + "." + payload + ".sig",
		"empty signature":    noAlg + "." + payload + ".",
	}
	for name, raw := range cases {
		if !v.Valid(raw) {
			t.Fatalf("%s: expected token with future expiry to be valid, got %v", name, v.Check(raw))
		}
	}
}

func TestPayloadEncodings(t *testing.T) {
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	v := NewValidatorWithClock(func() time.Time { return now })

	// exp 1792206937 plus a claim that encodes to '+' in standard base64.
	std := "eyJleHAiOjE3OTIyMDY5MzcsIm4iOiIwPz8+PiJ9"
	body := []byte(`{"exp":1792206937,"n":"0??>>"}`)
	cases := map[string]string{
		"std padded":   std,
		"std unpadded": base64.RawStdEncoding.EncodeToString(body),
		"url padded":   base64.URLEncoding.EncodeToString(body),
		"url unpadded": base64.RawURLEncoding.EncodeToString(body),
	}
	for name, seg := range cases {
		exp, err := v.Expiry("h." + seg + ".s")
		if err != nil {
			t.Fatalf("%s: Expiry() error: %v", name, err)
		}
		if exp.Unix() != 1792206937 {
			t.Fatalf("%s: unexpected expiry %v", name, exp)
		}
	}
}
