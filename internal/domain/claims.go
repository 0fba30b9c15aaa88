package domain

import "time"

// RoleUser is the only role issued to accounts.
const RoleUser = "User"

// TokenClaims is the validated content of a bearer token.
type TokenClaims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
