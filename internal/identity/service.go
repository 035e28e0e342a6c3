package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/angelmondragon/medfarma-backend/pkg/auth"
	"github.com/angelmondragon/medfarma-backend/pkg/auth/session"
	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
	redisclient "github.com/angelmondragon/medfarma-backend/pkg/redis"
	"github.com/angelmondragon/medfarma-backend/pkg/security"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	resetTokenBytes           = 32
)

// Service is the local identity provider: credentials, sessions and password flows.
type Service interface {
	SignIn(ctx context.Context, email, password string) (*Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, accessToken, refreshToken string) (*Tokens, error)
	CurrentPrincipal(ctx context.Context, accessToken string) (*Principal, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, principalID uuid.UUID, current, next string) error
	CreatePrincipal(ctx context.Context, tx *gorm.DB, email, password string) (*models.Principal, error)
}

type principalStore interface {
	CreateTx(tx *gorm.DB, principal *models.Principal) error
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string, principalID uuid.UUID) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, uuid.UUID, error)
	Revoke(ctx context.Context, accessID string) error
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type resetStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	PasswordResetKey(token string) string
}

// profileStore clears the forced password change flag on the application user.
type profileStore interface {
	ClearMustChangePassword(ctx context.Context, id uuid.UUID) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams bundles the dependencies required to build the identity provider.
type ServiceParams struct {
	Principals     principalStore
	Sessions       sessionManager
	Resets         resetStore
	Profiles       profileStore
	Tx             db.TxRunner
	Outbox         outboxEmitter
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	SessionConfig  config.SessionConfig
	Logger         *logger.Logger
}

type service struct {
	principals  principalStore
	sessions    sessionManager
	resets      resetStore
	profiles    profileStore
	tx          db.TxRunner
	outbox      outboxEmitter
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	sessionCfg  config.SessionConfig
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Principals == nil {
		return nil, fmt.Errorf("principal repository is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Resets == nil {
		return nil, fmt.Errorf("password reset store is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter is required")
	}
	return &service{
		principals:  params.Principals,
		sessions:    params.Sessions,
		resets:      params.Resets,
		profiles:    params.Profiles,
		tx:          params.Tx,
		outbox:      params.Outbox,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		sessionCfg:  params.SessionConfig,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

func (s *service) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	input := normalizeEmail(email)
	if input == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	principal, err := s.principals.FindByEmail(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup principal")
	}

	valid, err := security.VerifyPassword(password, principal.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	now := s.now().UTC()
	if err := s.principals.UpdateLastSignIn(ctx, principal.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last sign in")
	}

	return s.issue(ctx, now, session.NewAccessID(), principal.ID, principal.Email, "")
}

func (s *service) SignOut(ctx context.Context, accessToken string) error {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		// Nothing to revoke; logout stays idempotent.
		return nil
	}
	if err := s.sessions.Revoke(ctx, claims.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*Tokens, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}

	newAccessID, newRefresh, principalID, err := s.sessions.Rotate(ctx, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}
	if principalID != claims.PrincipalID {
		_ = s.sessions.Revoke(ctx, newAccessID)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
	}

	return s.issue(ctx, s.now().UTC(), newAccessID, principalID, claims.Email, newRefresh)
}

func (s *service) CurrentPrincipal(ctx context.Context, accessToken string) (*Principal, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session token")
	}
	claims, err := pkgAuth.ParseAccessToken(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid session token")
	}
	live, err := s.sessions.HasSession(ctx, claims.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check session")
	}
	if !live {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session revoked")
	}
	return &Principal{ID: claims.PrincipalID, Email: claims.Email, SessionID: claims.ID}, nil
}

// RequestPasswordReset never reports whether the email exists.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	input := normalizeEmail(email)
	if input == "" {
		return nil
	}
	if err := s.requestPasswordReset(ctx, input); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "step", "password_reset_request"), "password reset request failed", err)
	}
	return nil
}

func (s *service) requestPasswordReset(ctx context.Context, email string) error {
	principal, err := s.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	token, err := security.GenerateToken(resetTokenBytes)
	if err != nil {
		return err
	}
	ttl := s.sessionCfg.PasswordResetTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := s.resets.Set(ctx, s.resets.PasswordResetKey(token), principal.ID.String(), ttl); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPasswordResetRequested,
			AggregateType: enums.AggregatePrincipal,
			AggregateID:   principal.ID,
			Data: payloads.PasswordResetRequestedEvent{
				PrincipalID: principal.ID,
				Email:       principal.Email,
				ResetToken:  token,
				ExpiresAt:   s.now().UTC().Add(ttl),
			},
		})
	})
}

func (s *service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reset token is required")
	}
	if err := s.checkPolicy(newPassword); err != nil {
		return err
	}

	raw, err := s.resets.GetDel(ctx, s.resets.PasswordResetKey(token))
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired reset token")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reset token")
	}
	principalID, err := uuid.Parse(raw)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired reset token")
	}
	return s.setPassword(ctx, principalID, newPassword)
}

func (s *service) ChangePassword(ctx context.Context, principalID uuid.UUID, current, next string) error {
	principal, err := s.principals.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "principal not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup principal")
	}
	valid, err := security.VerifyPassword(current, principal.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return pkgerrors.New(pkgerrors.CodeValidation, "current password is incorrect").
			WithDetails(map[string]string{"current_password": "is incorrect"})
	}
	if current == next {
		return pkgerrors.New(pkgerrors.CodeValidation, "new password must differ from the current one").
			WithDetails(map[string]string{"new_password": "must differ from current_password"})
	}
	if err := s.checkPolicy(next); err != nil {
		return err
	}
	return s.setPassword(ctx, principalID, next)
}

func (s *service) CreatePrincipal(ctx context.Context, tx *gorm.DB, email, password string) (*models.Principal, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if err := s.checkPolicy(password); err != nil {
		return nil, err
	}
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	principal := &models.Principal{Email: email, PasswordHash: hash}
	if err := s.principals.CreateTx(tx, principal); err != nil {
		if db.IsUniqueViolation(err, "principals_email_key") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create principal")
	}
	return principal, nil
}

func (s *service) issue(ctx context.Context, now time.Time, accessID string, principalID uuid.UUID, email, refresh string) (*Tokens, error) {
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		PrincipalID: principalID,
		Email:       email,
		JTI:         accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if refresh == "" {
		refresh, err = s.sessions.Generate(ctx, accessID, principalID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
		}
	}
	return &Tokens{
		AccessToken:  accessToken,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    now.Add(s.jwtCfg.AccessTokenTTL()),
		PrincipalID:  principalID,

		RefreshExpiresAt: now.Add(s.jwtCfg.RefreshTokenTTL()),
	}, nil
}

func (s *service) setPassword(ctx context.Context, principalID uuid.UUID, password string) error {
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.principals.UpdatePasswordHash(ctx, principalID, hash); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "principal not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update password")
	}
	if err := s.profiles.ClearMustChangePassword(ctx, principalID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear must_change_password")
	}
	return nil
}

func (s *service) checkPolicy(password string) error {
	if err := security.CheckPolicy(password, s.passwordCfg); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "password does not meet the policy").
			WithDetails(map[string]string{"password": fmt.Sprintf("must have at least %d characters with letters and digits", s.minLength())})
	}
	return nil
}

func (s *service) minLength() int {
	if s.passwordCfg.MinLength > 0 {
		return s.passwordCfg.MinLength
	}
	return 8
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
