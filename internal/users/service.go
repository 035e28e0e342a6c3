package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/medfarma-backend/pkg/pagination"
	"github.com/angelmondragon/medfarma-backend/pkg/security"
	"github.com/angelmondragon/medfarma-backend/pkg/types"
)

const (
	auditModule       = "usuarios"
	tempPasswordChars = 16
)

// Service is the user administration surface used by controllers and cmd/create-superuser.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*ApplicationUser, error)
	Get(ctx context.Context, id uuid.UUID) (*ApplicationUser, error)
	List(ctx context.Context, filter ListFilter) (*types.Page[ApplicationUser], error)
	UpdateState(ctx context.Context, actorID, id uuid.UUID, state enums.ApprovalState) (*ApplicationUser, error)
	UpdateRole(ctx context.Context, actorID, id uuid.UUID, role enums.UserRole) (*ApplicationUser, error)
	Stats(ctx context.Context) (*Stats, error)
	BootstrapSuperuser(ctx context.Context, email, fullName string) (*ApplicationUser, string, error)
}

type userStore interface {
	CreateTx(tx *gorm.DB, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByIDForUpdateTx(tx *gorm.DB, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, filter ListFilter) ([]models.User, int64, error)
	UpdateStateTx(tx *gorm.DB, id uuid.UUID, state enums.ApprovalState) error
	UpdateRoleTx(tx *gorm.DB, id uuid.UUID, role enums.UserRole) error
	CountBy(ctx context.Context, column string) (map[string]int64, error)
}

// principalCreator is satisfied by the identity provider.
type principalCreator interface {
	CreatePrincipal(ctx context.Context, tx *gorm.DB, email, password string) (*models.Principal, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditLogger interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
}

// ServiceParams bundles the dependencies required to build the users service.
type ServiceParams struct {
	Repo       userStore
	Principals principalCreator
	Tx         db.TxRunner
	Outbox     outboxEmitter
	Audit      auditLogger
	Logger     *logger.Logger
}

type service struct {
	repo       userStore
	principals principalCreator
	tx         db.TxRunner
	outbox     outboxEmitter
	audit      auditLogger
	logg       *logger.Logger
	now        func() time.Time
}

// NewService constructs the users service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Principals == nil {
		return nil, fmt.Errorf("principal creator is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter is required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit logger is required")
	}
	return &service{
		repo:       params.Repo,
		principals: params.Principals,
		tx:         params.Tx,
		outbox:     params.Outbox,
		audit:      params.Audit,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*ApplicationUser, error) {
	email := normalizeEmail(req.Email)
	fullName := strings.TrimSpace(req.FullName)
	if email == "" || fullName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and full name are required")
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	var created *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		principal, err := s.principals.CreatePrincipal(ctx, tx, email, req.Password)
		if err != nil {
			return err
		}

		user := &models.User{
			ID:            principal.ID,
			Email:         email,
			FullName:      fullName,
			Role:          enums.RoleCliente,
			ApprovalState: enums.ApprovalPendiente,
			TaxID:         trimOptional(req.TaxID),
			WhatsApp:      trimOptional(req.WhatsApp),
			Institution:   trimOptional(req.Institution),
		}
		if err := s.repo.CreateTx(tx, user); err != nil {
			return mapWriteError(err, "create user")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventClientRegistered,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
			Data: payloads.ClientRegisteredEvent{
				UserID:       user.ID,
				Email:        user.Email,
				FullName:     user.FullName,
				TaxID:        user.TaxID,
				WhatsApp:     user.WhatsApp,
				Institution:  user.Institution,
				RegisteredAt: s.now().UTC(),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue client_registered")
		}
		created = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, "registro_cliente", auditModule, map[string]any{"email": created.Email}, &created.ID)
	return FromModel(created), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ApplicationUser, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapReadError(err, "load user")
	}
	return FromModel(user), nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*types.Page[ApplicationUser], error) {
	page := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	items := make([]ApplicationUser, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return &types.Page[ApplicationUser]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (s *service) UpdateState(ctx context.Context, actorID, id uuid.UUID, state enums.ApprovalState) (*ApplicationUser, error) {
	if !state.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid approval state")
	}
	if actorID == id {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you cannot change your own state")
	}

	var (
		updated  *models.User
		previous enums.ApprovalState
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := s.repo.FindByIDForUpdateTx(tx, id)
		if err != nil {
			return mapReadError(err, "lock user")
		}
		previous = user.ApprovalState
		if previous == state {
			updated = user
			return nil
		}
		if err := s.repo.UpdateStateTx(tx, id, state); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update state")
		}
		user.ApprovalState = state

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserStateChanged,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
			Actor:         &outbox.ActorRef{UserID: actorID},
			Data: payloads.UserStateChangedEvent{
				UserID:        user.ID,
				Email:         user.Email,
				FullName:      user.FullName,
				PreviousState: previous,
				NewState:      state,
				ChangedBy:     actorID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue user_state_changed")
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previous != state {
		s.audit.Log(ctx, "cambio_estado", auditModule, map[string]any{
			"target_user_id": id.String(),
			"from":           previous,
			"to":             state,
		}, &actorID)
	}
	return FromModel(updated), nil
}

func (s *service) UpdateRole(ctx context.Context, actorID, id uuid.UUID, role enums.UserRole) (*ApplicationUser, error) {
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if actorID == id {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "you cannot change your own role")
	}

	var (
		updated  *models.User
		previous enums.UserRole
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := s.repo.FindByIDForUpdateTx(tx, id)
		if err != nil {
			return mapReadError(err, "lock user")
		}
		previous = user.Role
		if previous != role {
			if err := s.repo.UpdateRoleTx(tx, id, role); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update role")
			}
			user.Role = role
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previous != role {
		s.audit.Log(ctx, "cambio_rol", auditModule, map[string]any{
			"target_user_id": id.String(),
			"from":           previous,
			"to":             role,
		}, &actorID)
	}
	return FromModel(updated), nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	byState, err := s.repo.CountBy(ctx, "approval_state")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count users by state")
	}
	byRole, err := s.repo.CountBy(ctx, "role")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count users by role")
	}

	stats := &Stats{
		ByState: map[enums.ApprovalState]int64{},
		ByRole:  map[enums.UserRole]int64{},
	}
	for key, count := range byState {
		stats.ByState[enums.ApprovalState(key)] = count
		stats.Total += count
	}
	for key, count := range byRole {
		stats.ByRole[enums.UserRole(key)] = count
	}
	return stats, nil
}

// BootstrapSuperuser creates an approved gerencia account with a generated
// password the operator must change on first sign-in.
func (s *service) BootstrapSuperuser(ctx context.Context, email, fullName string) (*ApplicationUser, string, error) {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if email == "" || fullName == "" {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "email and full name are required")
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, "", err
	}

	password, err := security.GenerateTempPassword(tempPasswordChars)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate password")
	}

	var created *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		principal, err := s.principals.CreatePrincipal(ctx, tx, email, password)
		if err != nil {
			return err
		}
		user := &models.User{
			ID:                 principal.ID,
			Email:              email,
			FullName:           fullName,
			Role:               enums.RoleGerencia,
			ApprovalState:      enums.ApprovalAprobado,
			MustChangePassword: true,
		}
		if err := s.repo.CreateTx(tx, user); err != nil {
			return mapWriteError(err, "create superuser")
		}
		created = user
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	s.audit.Log(ctx, "alta_superusuario", auditModule, map[string]any{"email": email}, &created.ID)
	return FromModel(created), password, nil
}

func (s *service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check user email")
	}
}

func mapReadError(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func mapWriteError(err error, action string) error {
	if db.IsUniqueViolation(err, "users_email_key") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
