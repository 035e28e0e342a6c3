package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
// Role and approval state are deliberately absent: they are re-read on every request.
type AccessTokenPayload struct {
	PrincipalID uuid.UUID
	Email       string
	JTI         string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	PrincipalID uuid.UUID `json:"pid"`
	Email       string    `json:"email"`
	jwt.RegisteredClaims
}
