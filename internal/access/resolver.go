package access

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/internal/identity"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

type principalSource interface {
	CurrentPrincipal(ctx context.Context, accessToken string) (*identity.Principal, error)
}

type userSource interface {
	Get(ctx context.Context, id uuid.UUID) (*users.ApplicationUser, error)
}

// Resolver turns a session token into the application user behind it.
type Resolver struct {
	principals principalSource
	users      userSource
	logg       *logger.Logger
}

func NewResolver(principals principalSource, users userSource, logg *logger.Logger) *Resolver {
	return &Resolver{principals: principals, users: users, logg: logg}
}

// Resolve returns nil for any failure. It never returns an error.
func (r *Resolver) Resolve(ctx context.Context, token string) *users.ApplicationUser {
	if r == nil || strings.TrimSpace(token) == "" {
		return nil
	}
	principal, err := r.principals.CurrentPrincipal(ctx, token)
	if err != nil {
		r.report(ctx, "session.principal_unresolved", err)
		return nil
	}
	if principal == nil {
		return nil
	}
	user, err := r.users.Get(ctx, principal.ID)
	if err != nil {
		r.report(r.withPrincipal(ctx, principal), "session.user_unresolved", err)
		return nil
	}
	return user
}

func (r *Resolver) withPrincipal(ctx context.Context, principal *identity.Principal) context.Context {
	if r.logg == nil {
		return ctx
	}
	return r.logg.WithField(ctx, "principal_id", principal.ID.String())
}

func (r *Resolver) report(ctx context.Context, msg string, err error) {
	if r.logg == nil {
		return
	}
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeDependency), pkgerrors.IsCode(err, pkgerrors.CodeInternal), pkgerrors.As(err) == nil:
		r.logg.Error(ctx, msg, err)
	default:
		r.logg.Warn(r.logg.WithField(ctx, "reason", err.Error()), msg)
	}
}
