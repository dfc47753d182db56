package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/viralforge/sessionauth/internal/domain"
	"github.com/viralforge/sessionauth/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserStore implements ports.UserStore on a single Postgres transaction per scope.
// Reads inside a scope take a row lock (SELECT ... FOR UPDATE) so concurrent
// logins and refreshes for one email serialize on the database.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) InTx(ctx context.Context, fn func(ctx context.Context, tx ports.UserTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &userTx{db: tx})
	})
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return findUserByEmail(s.db.WithContext(ctx), email, false)
}

type userTx struct {
	db *gorm.DB
}

func (t *userTx) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return findUserByEmail(t.db.WithContext(ctx), email, true)
}

func (t *userTx) Create(ctx context.Context, user domain.User) (domain.User, error) {
	if user.UserID == uuid.Nil {
		user.UserID = uuid.New()
	}
	row := toUserModel(user)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrDuplicateEmail
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return toDomainUser(row), nil
}

func (t *userTx) Save(ctx context.Context, user domain.User) error {
	res := t.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", user.UserID).
		Updates(map[string]any{
			"email":          user.Email,
			"full_name":      user.FullName,
			"password_hash":  user.PasswordHash,
			"is_active":      user.IsActive,
			"login_attempts": user.LoginAttempts,
			"locked_until":   user.LockedUntil,
			"token_version":  user.TokenVersion,
			"updated_at":     user.UpdatedAt,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *userTx) Delete(ctx context.Context, userID uuid.UUID) error {
	res := t.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&userModel{})
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *userTx) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	row := authOutboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      string(event.Payload),
		CreatedAt:    event.OccurredAt,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

func findUserByEmail(db *gorm.DB, email string, forUpdate bool) (domain.User, error) {
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row userModel
	if err := db.Where("email = ?", email).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return toDomainUser(row), nil
}
