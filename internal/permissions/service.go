package permissions

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/internal/access"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

// CatalogueEntry is the public view of a permission.
type CatalogueEntry struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Module      string  `json:"module"`
}

// UserPermissions reports both the explicit rows and the effective set.
type UserPermissions struct {
	UserID      uuid.UUID    `json:"user_id"`
	Super       bool         `json:"super"`
	Assignments []Assignment `json:"assignments"`
	Effective   []string     `json:"effective"`
}

// ReplaceRequest overwrites every explicit row for a user.
type ReplaceRequest struct {
	Assignments []AssignmentInput `json:"assignments" validate:"dive"`
}

type AssignmentInput struct {
	Code    string `json:"code" validate:"required,max=64"`
	Granted bool   `json:"granted"`
}

type Service interface {
	Catalogue(ctx context.Context) ([]CatalogueEntry, error)
	ForUser(ctx context.Context, userID uuid.UUID) (*UserPermissions, error)
	Replace(ctx context.Context, actorID, userID uuid.UUID, req ReplaceRequest) error
	Capabilities(ctx context.Context, user *users.ApplicationUser) (access.Capabilities, error)
}

type catalogueStore interface {
	Catalogue(ctx context.Context) ([]models.Permission, error)
	FindByCodes(ctx context.Context, codes []string) ([]models.Permission, error)
	ReplaceAssignmentsTx(tx *gorm.DB, userID uuid.UUID, rows []models.PermissionAssignment) error
}

type splitLoader interface {
	LoadSplit(ctx context.Context, userID uuid.UUID) ([]string, []string, error)
}

type invalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type userGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*users.ApplicationUser, error)
}

type auditLogger interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
}

type ServiceParams struct {
	Repo   catalogueStore
	Loader splitLoader
	Cache  invalidator
	Users  userGetter
	Tx     db.TxRunner
	Audit  auditLogger
	Policy access.Policy
	Logger *logger.Logger
}

type service struct {
	repo   catalogueStore
	loader splitLoader
	cache  invalidator
	users  userGetter
	tx     db.TxRunner
	audit  auditLogger
	policy access.Policy
	logg   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("permissions repository is required")
	}
	if params.Loader == nil {
		return nil, fmt.Errorf("permissions loader is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users service is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit logger is required")
	}
	return &service{
		repo:   params.Repo,
		loader: params.Loader,
		cache:  params.Cache,
		users:  params.Users,
		tx:     params.Tx,
		audit:  params.Audit,
		policy: params.Policy,
		logg:   params.Logger,
	}, nil
}

func (s *service) Catalogue(ctx context.Context) ([]CatalogueEntry, error) {
	rows, err := s.repo.Catalogue(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list permissions")
	}
	out := make([]CatalogueEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, CatalogueEntry{Code: row.Code, Name: row.Name, Description: row.Description, Module: row.Module})
	}
	return out, nil
}

func (s *service) ForUser(ctx context.Context, userID uuid.UUID) (*UserPermissions, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	granted, denied, err := s.loader.LoadSplit(ctx, userID)
	if err != nil {
		return nil, err
	}
	assignments := make([]Assignment, 0, len(granted)+len(denied))
	for _, code := range granted {
		assignments = append(assignments, Assignment{Code: code, Granted: true})
	}
	for _, code := range denied {
		assignments = append(assignments, Assignment{Code: code, Granted: false})
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].Code < assignments[j].Code })

	caps := s.policy.Effective(user.Role, granted, denied)
	return &UserPermissions{
		UserID:      userID,
		Super:       caps.Super(),
		Assignments: assignments,
		Effective:   caps.Codes(),
	}, nil
}

func (s *service) Replace(ctx context.Context, actorID, userID uuid.UUID, req ReplaceRequest) error {
	if actorID == userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot change your own permissions")
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return err
	}

	codes := make([]string, 0, len(req.Assignments))
	seen := make(map[string]bool, len(req.Assignments))
	for _, input := range req.Assignments {
		if seen[input.Code] {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate permission code").
				WithDetails(map[string]string{"assignments": input.Code})
		}
		seen[input.Code] = true
		codes = append(codes, input.Code)
	}

	catalogue, err := s.repo.FindByCodes(ctx, codes)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup permissions")
	}
	byCode := make(map[string]uuid.UUID, len(catalogue))
	for _, row := range catalogue {
		byCode[row.Code] = row.ID
	}

	rows := make([]models.PermissionAssignment, 0, len(req.Assignments))
	for _, input := range req.Assignments {
		permissionID, ok := byCode[input.Code]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "unknown permission code").
				WithDetails(map[string]string{"assignments": input.Code})
		}
		granter := actorID
		rows = append(rows, models.PermissionAssignment{
			PermissionID: permissionID,
			Granted:      input.Granted,
			GrantedBy:    &granter,
		})
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.ReplaceAssignmentsTx(tx, userID, rows)
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace permissions")
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "permissions.cache_invalidate_failed")
		}
	}

	actor := actorID
	s.audit.Log(ctx, "cambio_permisos", "usuarios", map[string]any{
		"user_id":     userID.String(),
		"assignments": req.Assignments,
	}, &actor)
	return nil
}

func (s *service) Capabilities(ctx context.Context, user *users.ApplicationUser) (access.Capabilities, error) {
	if user == nil {
		return access.Capabilities{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if user.IsSuper() {
		return access.SuperCapabilities(), nil
	}
	granted, denied, err := s.loader.LoadSplit(ctx, user.ID)
	if err != nil {
		return access.Capabilities{}, err
	}
	return s.policy.Effective(user.Role, granted, denied), nil
}
