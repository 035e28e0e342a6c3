package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/internal/access"
	"github.com/angelmondragon/medfarma-backend/internal/users"
)

type contextKey string

const (
	ctxUser         contextKey = "application_user"
	ctxCapabilities contextKey = "capabilities"
)

// WithUser places the resolved application user on the context.
func WithUser(ctx context.Context, user *users.ApplicationUser) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUser, user)
}

// UserFromContext returns the user resolved by Authenticate, or nil.
func UserFromContext(ctx context.Context) *users.ApplicationUser {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxUser).(*users.ApplicationUser); ok {
		return v
	}
	return nil
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	user := UserFromContext(ctx)
	if user == nil {
		return uuid.Nil, false
	}
	return user.ID, true
}

func withCapabilities(ctx context.Context, caps access.Capabilities) context.Context {
	return context.WithValue(ctx, ctxCapabilities, caps)
}

// CapabilitiesFromContext returns the set loaded by a capability check
// earlier in the chain.
func CapabilitiesFromContext(ctx context.Context) (access.Capabilities, bool) {
	if ctx == nil {
		return access.Capabilities{}, false
	}
	caps, ok := ctx.Value(ctxCapabilities).(access.Capabilities)
	return caps, ok
}
