package identity

import (
	"time"

	"github.com/google/uuid"
)

// Principal is the authenticated identity behind a session token.
type Principal struct {
	ID        uuid.UUID
	Email     string
	SessionID string
}

// Tokens is returned by sign-in and refresh.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	PrincipalID  uuid.UUID `json:"principal_id"`
	// RefreshExpiresAt bounds the browser refresh cookie.
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}
