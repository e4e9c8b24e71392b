package token

import "github.com/golang-jwt/jwt/v5"

// Claims is the payload of a session credential. Subject holds the identity
// id and ID a unique credential id used for revocation.
type Claims struct {
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

// IdentityID returns the identity the credential was issued to.
func (c *Claims) IdentityID() string {
	return c.Subject
}
