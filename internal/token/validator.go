package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("malformed token")
	ErrNoExpiry  = errors.New("token has no expiry")
	ErrExpired   = errors.New("token expired")
)

// Validator decides whether a bearer token is still usable on the client.
// Signatures are not verified; the backend re-validates every request.
type Validator struct {
	nowFunc func() time.Time
}

func NewValidator() *Validator {
	return NewValidatorWithClock(time.Now)
}

func NewValidatorWithClock(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{nowFunc: now}
}

// Expiry decodes the payload segment and returns its exp claim. The header
// and signature segments are not inspected.
func (v *Validator) Expiry(raw string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 {
		return time.Time{}, ErrMalformed
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNoExpiry, err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// decodeSegment accepts url-safe and standard base64, padded or not.
func decodeSegment(seg string) ([]byte, error) {
	if seg == "" {
		return nil, errors.New("empty payload")
	}
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		b, err := enc.DecodeString(seg)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// Validate returns the token's expiry when it decodes, carries an expiry
// and has not expired yet.
func (v *Validator) Validate(raw string) (time.Time, error) {
	exp, err := v.Expiry(raw)
	if err != nil {
		return time.Time{}, err
	}
	if exp.UnixMilli() < v.nowFunc().UnixMilli() {
		return exp, ErrExpired
	}
	return exp, nil
}

func (v *Validator) Check(raw string) error {
	_, err := v.Validate(raw)
	return err
}

func (v *Validator) Valid(raw string) bool {
	return v.Check(raw) == nil
}

var defaultValidator = NewValidator()

// Valid reports whether raw is usable right now.
func Valid(raw string) bool {
	return defaultValidator.Valid(raw)
}
