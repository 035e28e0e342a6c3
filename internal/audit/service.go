package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Filter narrows the audit listing.
type Filter struct {
	Module string
	UserID *uuid.UUID
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// Entry is the public view of an audit row.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Module    string         `json:"module"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type Service interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

type store interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter Filter) ([]models.AuditLog, error)
}

type service struct {
	repo store
	logg *logger.Logger
}

func NewService(repo store, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository is required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Log records an action. Failures are logged and never reach the caller.
func (s *service) Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID) {
	entry := &models.AuditLog{
		UserID: userID,
		Action: strings.TrimSpace(action),
		Module: strings.TrimSpace(module),
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			s.fail(ctx, entry, err)
			return
		}
		entry.Details = datatypes.JSON(raw)
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.fail(ctx, entry, err)
	}
}

func (s *service) fail(ctx context.Context, entry *models.AuditLog, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"audit_action": entry.Action,
		"audit_module": entry.Module,
	})
	s.logg.Error(ctx, "audit.write_failed", err)
}

func (s *service) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from").
			WithDetails(map[string]string{"to": "must not be before from"})
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit logs")
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry := Entry{
			ID:        row.ID,
			UserID:    row.UserID,
			Action:    row.Action,
			Module:    row.Module,
			CreatedAt: row.CreatedAt,
		}
		if len(row.Details) > 0 {
			_ = json.Unmarshal(row.Details, &entry.Details)
		}
		out = append(out, entry)
	}
	return out, nil
}
