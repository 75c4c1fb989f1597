package credstore

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of JWT payload fields the UI cares about.
// Decoded without signature verification: the backend remains the sole
// authority on token validity, this is display-only.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Claims decodes the credential token's payload without verifying it.
// An undecodable token yields an error the caller may ignore.
func (c Credential) Claims() (Claims, error) {
	parser := jwt.NewParser()
	tok, _, err := parser.ParseUnverified(c.Token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("credstore: decoding token: %w", err)
	}

	var out Claims
	if sub, err := tok.Claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := tok.Claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// Expired reports whether the claims carry an expiry in the past.
// A token without an exp claim is never considered expired here.
func (cl Claims) Expired(now time.Time) bool {
	return !cl.ExpiresAt.IsZero() && cl.ExpiresAt.Before(now)
}
