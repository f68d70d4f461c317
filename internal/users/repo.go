package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"gorm.io/gorm"
)

// ErrEmailTaken is returned by Create when another account owns the email.
var ErrEmailTaken = errors.New("email already registered")

// Repository persists merchant and customer accounts.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx, or r itself when tx is nil.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// NormalizeEmail is the canonical form emails are stored and matched in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts the account. A unique violation on email maps to ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	err := r.db.WithContext(ctx).Create(user).Error
	switch {
	case err == nil:
		return user, nil
	case db.IsUniqueViolation(err, ""):
		return nil, ErrEmailTaken
	default:
		return nil, err
	}
}

// FindByEmail returns gorm.ErrRecordNotFound when no account matches.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("lower(email) = ?", NormalizeEmail(email)).
		Take(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin stamps a successful login. A missing account yields
// gorm.ErrRecordNotFound.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
