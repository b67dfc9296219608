package repository

import (
	"engz_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.First(&user, id).Error
	return &user, err
}

func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.DB.Where("email = ?", email).First(&user).Error
	return &user, err
}

func (r *UserRepository) UpdateLastLogin(userID uint, at time.Time) error {
	return r.DB.Model(&model.User{}).Where("id = ?", userID).Update("last_login", at).Error
}

// SetEntitled 由支付回调转发调用，返回受影响行数用于判断用户是否存在
func (r *UserRepository) SetEntitled(userID uint, entitled bool) (int64, error) {
	res := r.DB.Model(&model.User{}).Where("id = ?", userID).Update("entitled", entitled)
	return res.RowsAffected, res.Error
}

func (r *UserRepository) IsEntitled(userID uint) (bool, error) {
	var user model.User
	if err := r.DB.Select("id", "entitled", "disabled").First(&user, userID).Error; err != nil {
		return false, err
	}
	return user.Entitled && !user.Disabled, nil
}
