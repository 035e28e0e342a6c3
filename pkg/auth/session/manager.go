package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/config"
	redisclient "github.com/angelmondragon/medfarma-backend/pkg/redis"
	"github.com/angelmondragon/medfarma-backend/pkg/security"
)

const refreshTokenBytes = 32

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	AccessSessionKey(accessID string) string
}

// record is what lives under mf:session:access:<jti>. Only a digest of the refresh token is kept.
type record struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	TokenHash   string    `json:"token_hash"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Manager handles refresh token creation, storage, and rotation.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
	now   func() time.Time
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("refresh token ttl must be positive")
	}
	if ttl <= cfg.AccessTokenTTL() {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, cfg.AccessTokenTTL())
	}
	return &Manager{store: client, keyer: client, ttl: ttl, now: time.Now}, nil
}

// Generate creates a refresh token bound to accessID and principalID.
func (m *Manager) Generate(ctx context.Context, accessID string, principalID uuid.UUID) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", fmt.Errorf("access id is required")
	}
	if principalID == uuid.Nil {
		return "", fmt.Errorf("principal id is required")
	}
	token, err := security.GenerateToken(refreshTokenBytes)
	if err != nil {
		return "", err
	}
	if err := m.put(ctx, accessID, principalID, token); err != nil {
		return "", err
	}
	return token, nil
}

// Rotate checks the refresh token presented for oldAccessID, retires that session and
// opens a new one. The returned principal is the owner recorded at issue time.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, provided string) (newAccessID, newToken string, principalID uuid.UUID, err error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(provided) == "" {
		return "", "", uuid.Nil, ErrInvalidRefreshToken
	}

	key := m.keyer.AccessSessionKey(oldAccessID)
	rec, err := m.load(ctx, key)
	if err != nil {
		return "", "", uuid.Nil, err
	}
	if subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(digest(provided))) != 1 {
		return "", "", uuid.Nil, ErrInvalidRefreshToken
	}

	newAccessID = NewAccessID()
	newToken, err = security.GenerateToken(refreshTokenBytes)
	if err != nil {
		return "", "", uuid.Nil, err
	}
	if err := m.put(ctx, newAccessID, rec.PrincipalID, newToken); err != nil {
		return "", "", uuid.Nil, err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return "", "", uuid.Nil, err
	}
	return newAccessID, newToken, rec.PrincipalID, nil
}

// Revoke deletes the refresh session tied to the access identifier.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return fmt.Errorf("access id is required")
	}
	return m.store.Del(ctx, m.keyer.AccessSessionKey(accessID))
}

// HasSession reports whether the access ID still has a live refresh session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	if _, err := m.store.Get(ctx, m.keyer.AccessSessionKey(accessID)); err != nil {
		if errors.Is(err, redisclient.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NewAccessID produces the identifier used as the JWT jti and session key.
func NewAccessID() string {
	return uuid.NewString()
}

func (m *Manager) put(ctx context.Context, accessID string, principalID uuid.UUID, token string) error {
	raw, err := json.Marshal(record{
		PrincipalID: principalID,
		TokenHash:   digest(token),
		IssuedAt:    m.now().UTC(),
	})
	if err != nil {
		return err
	}
	return m.store.Set(ctx, m.keyer.AccessSessionKey(accessID), string(raw), m.ttl)
}

func (m *Manager) load(ctx context.Context, key string) (record, error) {
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return record{}, ErrInvalidRefreshToken
		}
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.PrincipalID == uuid.Nil {
		return record{}, ErrInvalidRefreshToken
	}
	return rec, nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
