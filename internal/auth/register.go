package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/internal/customers"
	"github.com/stampbook/stampbook-backend/internal/users"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/security"
	"gorm.io/gorm"
)

// RegisterService handles account creation.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error)
}

type registerUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
}

// UsersRepoFactory binds the users repository to the registration transaction.
func UsersRepoFactory(repo *users.Repository) func(tx *gorm.DB) registerUserRepository {
	return func(tx *gorm.DB) registerUserRepository {
		return repo.WithTx(tx)
	}
}

type pendingMerger interface {
	MergePending(ctx context.Context, tx *gorm.DB, userID uuid.UUID, email string) (*customers.MergeResult, error)
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	TxRunner        db.TxRunner
	UserRepoFactory func(tx *gorm.DB) registerUserRepository
	PendingMerger   pendingMerger
	PasswordConfig  config.PasswordConfig
	JWTConfig       config.JWTConfig
	Logger          *logger.Logger
	Now             func() time.Time
}

type registerService struct {
	tx          db.TxRunner
	userRepo    func(tx *gorm.DB) registerUserRepository
	merger      pendingMerger
	passwordCfg config.PasswordConfig
	jwtCfg      config.JWTConfig
	logg        *logger.Logger
	now         func() time.Time
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.UserRepoFactory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repository factory required")
	}
	if params.PendingMerger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pending customer merger required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &registerService{
		tx:          params.TxRunner,
		userRepo:    params.UserRepoFactory,
		merger:      params.PendingMerger,
		passwordCfg: params.PasswordConfig,
		jwtCfg:      params.JWTConfig,
		logg:        logg,
		now:         now,
	}, nil
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	role, err := enums.ParseUserRole(req.Role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display_name is required")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "hash password")
	}

	var (
		user   *models.User
		merged *customers.MergeResult
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.userRepo(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		created, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			DisplayName:  req.DisplayName,
			Role:         role,
		})
		if errors.Is(err, users.ErrEmailTaken) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}
		user = created

		if role != enums.UserRoleCustomer {
			return nil
		}
		merged, err = s.merger.MergePending(ctx, tx, user.ID, email)
		return err
	})
	if err != nil {
		return nil, err
	}

	if merged != nil {
		s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "auth.register.pending_merged")
	}

	resp, err := issueToken(s.jwtCfg, s.now(), user)
	if err != nil {
		return nil, err
	}
	resp.MergedPendingCustomer = merged != nil
	return resp, nil
}
