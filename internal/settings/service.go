package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
)

// Setting is the public view of a configuration entry.
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Category    string    `json:"category"`
	Description *string   `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type UpdateRequest struct {
	Value string `json:"value" validate:"max=2000"`
}

type Service interface {
	List(ctx context.Context) ([]Setting, error)
	ByCategory(ctx context.Context, category string) ([]Setting, error)
	Update(ctx context.Context, actorID uuid.UUID, key, value string) (*Setting, error)
}

type store interface {
	List(ctx context.Context) ([]models.Setting, error)
	ByCategory(ctx context.Context, category string) ([]models.Setting, error)
	Get(ctx context.Context, key string) (*models.Setting, error)
	Update(ctx context.Context, key, value string) error
}

type auditLogger interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
}

type service struct {
	repo  store
	audit auditLogger
}

func NewService(repo store, audit auditLogger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit logger is required")
	}
	return &service{repo: repo, audit: audit}, nil
}

func (s *service) List(ctx context.Context) ([]Setting, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settings")
	}
	return toViews(rows), nil
}

func (s *service) ByCategory(ctx context.Context, category string) ([]Setting, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}
	rows, err := s.repo.ByCategory(ctx, category)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settings by category")
	}
	return toViews(rows), nil
}

func (s *service) Update(ctx context.Context, actorID uuid.UUID, key, value string) (*Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "key is required")
	}
	if err := s.repo.Update(ctx, key, value); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "setting not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update setting")
	}
	row, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload setting")
	}

	actor := actorID
	s.audit.Log(ctx, "actualizar_configuracion", "configuracion", map[string]any{"key": key, "value": value}, &actor)
	view := toView(*row)
	return &view, nil
}

func toViews(rows []models.Setting) []Setting {
	out := make([]Setting, 0, len(rows))
	for _, row := range rows {
		out = append(out, toView(row))
	}
	return out
}

func toView(row models.Setting) Setting {
	return Setting{
		Key:         row.Key,
		Value:       row.Value,
		Category:    row.Category,
		Description: row.Description,
		UpdatedAt:   row.UpdatedAt,
	}
}
