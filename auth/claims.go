// Package auth handles the two kinds of tokens tubemaster sees:
//
//   - control tokens: HS256 JWTs minted by `tubemaster -control-token` and
//     required on every /api route of the local control server;
//   - TubeMaster account tokens: issued by api.tubemaster.ai and only
//     inspected here (never verified) to learn their expiry.
package auth

import "github.com/golang-jwt/jwt/v5"

// ControlClaims are carried by control API tokens.
type ControlClaims struct {
	jwt.RegisteredClaims
	Client string `json:"client"` // "cli", "mcp", "script"
	Scope  string `json:"scope"`  // "read" or "write"
}

// CanWrite reports whether the token may change studio state.
func (c *ControlClaims) CanWrite() bool { return c.Scope == "write" }

// accountClaims is the subset of an account token we read.
type accountClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Plan  string `json:"plan,omitempty"`
}
