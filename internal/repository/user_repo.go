package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/vesper/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// UserRepo is the repository for user operations
type UserRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewUserRepo creates a new UserRepo
func NewUserRepo(db *gorm.DB, rdb *redis.Client) *UserRepo {
	return &UserRepo{db: db, rdb: rdb}
}

// Create creates a new user
func (r *UserRepo) Create(ctx context.Context, user *entity.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetById gets user by Id
func (r *UserRepo) GetById(ctx context.Context, userId string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", userId).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIds gets multiple users by Ids
func (r *UserRepo) GetByIds(ctx context.Context, userIds []string) ([]*entity.User, error) {
	var users []*entity.User
	err := r.db.WithContext(ctx).Where("id IN ?", userIds).Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Exists checks if a user exists
func (r *UserRepo) Exists(ctx context.Context, userId string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.User{}).Where("id = ?", userId).Count(&count).Error
	return count > 0, err
}

// Update updates user fields
func (r *UserRepo) Update(ctx context.Context, userId string, updates map[string]interface{}) error {
	updates["updated_at"] = entity.NowUnixMilli()
	return r.db.WithContext(ctx).
		Model(&entity.User{}).
		Where("id = ?", userId).
		Updates(updates).Error
}

// GetPublicKey fetches a user's published public key. Returns "" without
// error when the user exists but has not published a key yet.
func (r *UserRepo) GetPublicKey(ctx context.Context, userId string) (string, error) {
	var user entity.User
	err := r.db.WithContext(ctx).
		Select("public_key").
		Where("id = ?", userId).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", gorm.ErrRecordNotFound
		}
		return "", err
	}
	return user.PublicKey, nil
}
