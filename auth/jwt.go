package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hazyhaar/tubemaster/horosafe"
)

// GenerateToken signs claims with HS256, setting IssuedAt and ExpiresAt.
// The secret must be at least horosafe.MinSecretLen bytes.
func GenerateToken(secret []byte, claims *ControlClaims, expiry time.Duration) (string, error) {
	if err := horosafe.ValidateSecret(secret); err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken parses a control token. Only HS256 is accepted.
func ValidateToken(secret []byte, tokenStr string) (*ControlClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ControlClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*ControlClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// TokenInfo describes an account token without trusting it.
type TokenInfo struct {
	JWT       bool      `json:"jwt"`
	Subject   string    `json:"subject,omitempty"`
	Email     string    `json:"email,omitempty"`
	Plan      string    `json:"plan,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the token carries an expiry before now. Opaque
// tokens never expire locally; the API decides.
func (ti TokenInfo) Expired(now time.Time) bool {
	return !ti.ExpiresAt.IsZero() && !now.Before(ti.ExpiresAt)
}

// Inspect reads an account token issued by the generation API. The
// signature is not checked: the API remains the authority, this only lets
// the daemon drop a token that has visibly expired.
func Inspect(token string) TokenInfo {
	var c accountClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return TokenInfo{}
	}
	ti := TokenInfo{JWT: true, Subject: c.Subject, Email: c.Email, Plan: c.Plan}
	if c.ExpiresAt != nil {
		ti.ExpiresAt = c.ExpiresAt.Time
	}
	return ti
}
