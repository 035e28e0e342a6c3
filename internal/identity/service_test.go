package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/angelmondragon/medfarma-backend/pkg/auth"
	"github.com/angelmondragon/medfarma-backend/pkg/auth/session"
	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
	redisclient "github.com/angelmondragon/medfarma-backend/pkg/redis"
	"github.com/angelmondragon/medfarma-backend/pkg/security"
)

var (
	testJWT = config.JWTConfig{
		Secret:                 "test-secret",
		Issuer:                 "medfarma-test",
		ExpirationMinutes:      15,
		RefreshTokenTTLMinutes: 60,
	}
	testPassword = config.PasswordConfig{
		ArgonMemoryKB:    64,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
		MinLength:        8,
	}
)

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubPrincipals struct {
	byEmail   map[string]*models.Principal
	createErr error
	findErr   error
	signIns   int
}

func newStubPrincipals(principals ...*models.Principal) *stubPrincipals {
	s := &stubPrincipals{byEmail: map[string]*models.Principal{}}
	for _, p := range principals {
		s.byEmail[p.Email] = p
	}
	return s
}

func (s *stubPrincipals) CreateTx(_ *gorm.DB, principal *models.Principal) error {
	if s.createErr != nil {
		return s.createErr
	}
	if principal.ID == uuid.Nil {
		principal.ID = uuid.New()
	}
	s.byEmail[principal.Email] = principal
	return nil
}

func (s *stubPrincipals) FindByEmail(_ context.Context, email string) (*models.Principal, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if p, ok := s.byEmail[email]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPrincipals) FindByID(_ context.Context, id uuid.UUID) (*models.Principal, error) {
	for _, p := range s.byEmail {
		if p.ID == id {
			clone := *p
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPrincipals) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	for _, p := range s.byEmail {
		if p.ID == id {
			p.PasswordHash = hash
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubPrincipals) UpdateLastSignIn(_ context.Context, id uuid.UUID, at time.Time) error {
	s.signIns++
	return nil
}

type sessionEntry struct {
	principalID uuid.UUID
	refresh     string
}

type stubSessions struct {
	entries map[string]sessionEntry
	seq     int
}

func newStubSessions() *stubSessions {
	return &stubSessions{entries: map[string]sessionEntry{}}
}

func (s *stubSessions) Generate(_ context.Context, accessID string, principalID uuid.UUID) (string, error) {
	s.seq++
	token := "refresh-" + uuid.NewString()
	s.entries[accessID] = sessionEntry{principalID: principalID, refresh: token}
	return token, nil
}

func (s *stubSessions) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, uuid.UUID, error) {
	entry, ok := s.entries[oldAccessID]
	if !ok || entry.refresh != provided {
		return "", "", uuid.Nil, session.ErrInvalidRefreshToken
	}
	delete(s.entries, oldAccessID)
	newID := session.NewAccessID()
	token, _ := s.Generate(ctx, newID, entry.principalID)
	return newID, token, entry.principalID, nil
}

func (s *stubSessions) Revoke(_ context.Context, accessID string) error {
	delete(s.entries, accessID)
	return nil
}

func (s *stubSessions) HasSession(_ context.Context, accessID string) (bool, error) {
	_, ok := s.entries[accessID]
	return ok, nil
}

type stubResets struct {
	values map[string]string
	ttl    time.Duration
}

func newStubResets() *stubResets {
	return &stubResets{values: map[string]string{}}
}

func (s *stubResets) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.values[key] = value.(string)
	s.ttl = ttl
	return nil
}

func (s *stubResets) GetDel(_ context.Context, key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", redisclient.Nil
	}
	delete(s.values, key)
	return v, nil
}

func (s *stubResets) PasswordResetKey(token string) string {
	return "mf:pwreset:" + token
}

type stubProfiles struct {
	cleared []uuid.UUID
}

func (s *stubProfiles) ClearMustChangePassword(_ context.Context, id uuid.UUID) error {
	s.cleared = append(s.cleared, id)
	return nil
}

type captureOutbox struct {
	events []outbox.DomainEvent
}

func (c *captureOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

type fixture struct {
	svc        *service
	principals *stubPrincipals
	sessions   *stubSessions
	resets     *stubResets
	profiles   *stubProfiles
	outbox     *captureOutbox
	principal  *models.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := security.HashPassword("Secreto123", testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	principal := &models.Principal{ID: uuid.New(), Email: "ana@farmacia.test", PasswordHash: hash}
	f := &fixture{
		principals: newStubPrincipals(principal),
		sessions:   newStubSessions(),
		resets:     newStubResets(),
		profiles:   &stubProfiles{},
		outbox:     &captureOutbox{},
		principal:  principal,
	}
	svc, err := NewService(ServiceParams{
		Principals:     f.principals,
		Sessions:       f.sessions,
		Resets:         f.resets,
		Profiles:       f.profiles,
		Tx:             stubTx{},
		Outbox:         f.outbox,
		JWTConfig:      testJWT,
		PasswordConfig: testPassword,
		SessionConfig:  config.SessionConfig{PasswordResetTTL: time.Hour},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc.(*service)
	return f
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !pkgerrors.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestSignInIssuesTokens(t *testing.T) {
	f := newFixture(t)

	tokens, err := f.svc.SignIn(context.Background(), "  ANA@farmacia.test ", "Secreto123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if tokens.PrincipalID != f.principal.ID {
		t.Fatalf("principal mismatch: %s", tokens.PrincipalID)
	}
	if tokens.RefreshToken == "" || tokens.AccessToken == "" {
		t.Fatal("expected both tokens")
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, tokens.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if _, ok := f.sessions.entries[claims.ID]; !ok {
		t.Fatal("expected refresh session keyed by jti")
	}
	if f.principals.signIns != 1 {
		t.Fatalf("expected last sign in update, got %d", f.principals.signIns)
	}
}

func TestSignInInvalidCredentialsAreIndistinguishable(t *testing.T) {
	f := newFixture(t)

	_, wrongPassword := f.svc.SignIn(context.Background(), f.principal.Email, "otra-clave1")
	_, unknownEmail := f.svc.SignIn(context.Background(), "nadie@farmacia.test", "Secreto123")

	requireCode(t, wrongPassword, pkgerrors.CodeUnauthorized)
	requireCode(t, unknownEmail, pkgerrors.CodeUnauthorized)
	if pkgerrors.As(wrongPassword).Message() != pkgerrors.As(unknownEmail).Message() {
		t.Fatal("expected identical messages for wrong password and unknown email")
	}
}

func TestSignInDependencyFailure(t *testing.T) {
	f := newFixture(t)
	f.principals.findErr = errors.New("connection refused")

	_, err := f.svc.SignIn(context.Background(), f.principal.Email, "Secreto123")
	requireCode(t, err, pkgerrors.CodeDependency)
}

func TestCurrentPrincipalAndSignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens, err := f.svc.SignIn(ctx, f.principal.Email, "Secreto123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	principal, err := f.svc.CurrentPrincipal(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("current principal: %v", err)
	}
	if principal.ID != f.principal.ID || principal.Email != f.principal.Email {
		t.Fatalf("unexpected principal %+v", principal)
	}

	if err := f.svc.SignOut(ctx, tokens.AccessToken); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	_, err = f.svc.CurrentPrincipal(ctx, tokens.AccessToken)
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	if err := f.svc.SignOut(ctx, "not-a-jwt"); err != nil {
		t.Fatalf("sign out with garbage should be a no-op, got %v", err)
	}
}

func TestCurrentPrincipalRejectsMissingAndForeignTokens(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CurrentPrincipal(context.Background(), "")
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	foreign := testJWT
	foreign.Secret = "other"
	token, err := pkgAuth.MintAccessToken(foreign, time.Now(), pkgAuth.AccessTokenPayload{PrincipalID: f.principal.ID})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err = f.svc.CurrentPrincipal(context.Background(), token)
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestRefreshRotatesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.SignIn(ctx, f.principal.Email, "Secreto123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	second, err := f.svc.Refresh(ctx, first.AccessToken, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.AccessToken == first.AccessToken {
		t.Fatal("expected new token pair")
	}
	if _, err := f.svc.CurrentPrincipal(ctx, first.AccessToken); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected old session revoked, got %v", err)
	}
	if _, err := f.svc.CurrentPrincipal(ctx, second.AccessToken); err != nil {
		t.Fatalf("expected new session live: %v", err)
	}

	_, err = f.svc.Refresh(ctx, first.AccessToken, first.RefreshToken)
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestRequestPasswordResetStoresTokenAndEmitsEvent(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.RequestPasswordReset(context.Background(), f.principal.Email); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if len(f.outbox.events) != 1 {
		t.Fatalf("expected one event, got %d", len(f.outbox.events))
	}
	event := f.outbox.events[0]
	if event.EventType != enums.EventPasswordResetRequested || event.AggregateType != enums.AggregatePrincipal {
		t.Fatalf("unexpected event %+v", event)
	}
	payload, ok := event.Data.(payloads.PasswordResetRequestedEvent)
	if !ok {
		t.Fatalf("unexpected payload %T", event.Data)
	}
	if got := f.resets.values[f.resets.PasswordResetKey(payload.ResetToken)]; got != f.principal.ID.String() {
		t.Fatalf("expected reset token stored for principal, got %q", got)
	}
	if f.resets.ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", f.resets.ttl)
	}
}

func TestRequestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.RequestPasswordReset(context.Background(), "nadie@farmacia.test"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	f.principals.findErr = errors.New("db down")
	if err := f.svc.RequestPasswordReset(context.Background(), f.principal.Email); err != nil {
		t.Fatalf("expected nil on dependency failure, got %v", err)
	}
	if len(f.outbox.events) != 0 || len(f.resets.values) != 0 {
		t.Fatal("expected no side effects")
	}
}

func TestResetPasswordConsumesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.RequestPasswordReset(ctx, f.principal.Email); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	token := f.outbox.events[0].Data.(payloads.PasswordResetRequestedEvent).ResetToken

	requireCode(t, f.svc.ResetPassword(ctx, token, "corta"), pkgerrors.CodeValidation)

	if err := f.svc.ResetPassword(ctx, token, "NuevaClave9"); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if _, err := f.svc.SignIn(ctx, f.principal.Email, "NuevaClave9"); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
	if len(f.profiles.cleared) != 1 || f.profiles.cleared[0] != f.principal.ID {
		t.Fatalf("expected must_change_password cleared, got %v", f.profiles.cleared)
	}

	requireCode(t, f.svc.ResetPassword(ctx, token, "OtraClave99"), pkgerrors.CodeValidation)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	requireCode(t, f.svc.ChangePassword(ctx, f.principal.ID, "incorrecta1", "NuevaClave9"), pkgerrors.CodeValidation)
	requireCode(t, f.svc.ChangePassword(ctx, f.principal.ID, "Secreto123", "Secreto123"), pkgerrors.CodeValidation)
	requireCode(t, f.svc.ChangePassword(ctx, f.principal.ID, "Secreto123", "solamenteletras"), pkgerrors.CodeValidation)

	if err := f.svc.ChangePassword(ctx, f.principal.ID, "Secreto123", "NuevaClave9"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := f.svc.SignIn(ctx, f.principal.Email, "NuevaClave9"); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
}

func TestCreatePrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	principal, err := f.svc.CreatePrincipal(ctx, nil, " Nuevo@Farmacia.test", "Clave12345")
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}
	if principal.Email != "nuevo@farmacia.test" {
		t.Fatalf("expected normalized email, got %q", principal.Email)
	}
	if principal.PasswordHash == "Clave12345" || principal.PasswordHash == "" {
		t.Fatal("expected hashed password")
	}

	_, err = f.svc.CreatePrincipal(ctx, nil, "otro@farmacia.test", "123")
	requireCode(t, err, pkgerrors.CodeValidation)

	f.principals.createErr = errors.New("insert failed")
	_, err = f.svc.CreatePrincipal(ctx, nil, "otro@farmacia.test", "Clave12345")
	requireCode(t, err, pkgerrors.CodeDependency)
}
