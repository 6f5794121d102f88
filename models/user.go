package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Username     string    `gorm:"size:100;not null;uniqueIndex" json:"username" binding:"required"`
	FullName     string    `gorm:"size:200" json:"full_name"`
	PasswordHash string    `gorm:"size:100;not null" json:"-"`
	Role         UserRole  `gorm:"size:20;not null;default:'leitura'" json:"role"`
	HealthUnitId *int      `gorm:"index" json:"health_unit_id"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username     string   `json:"username" binding:"required"`
	FullName     string   `json:"full_name"`
	Password     string   `json:"password" binding:"required,min=8"`
	Role         UserRole `json:"role"`
	HealthUnitId *int     `json:"health_unit_id"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Role == "" {
		input.Role = UserRoleReader
	}
	if !input.Role.Valid() {
		return nil, errors.New("perfil de usuário inválido")
	}
	if err := utils.ValidateUnique[User](ctx, "username", input.Username, 0); err != nil {
		if err == utils.ErrorDuplicate {
			return nil, errors.New("já existe um usuário com este nome de login")
		}
		return nil, err
	}
	if input.HealthUnitId != nil {
		if err := utils.ValidateResourceId[HealthUnit](ctx, *input.HealthUnitId); err != nil {
			return nil, err
		}
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	user := User{
		Username:     input.Username,
		FullName:     input.FullName,
		PasswordHash: hash,
		Role:         input.Role,
		HealthUnitId: input.HealthUnitId,
		Active:       true,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// AuthenticateUser checks the password for an active user and returns the
// user on success.
func AuthenticateUser(ctx context.Context, username string, password string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ? AND active = ?", username, true).
		First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, errors.New("usuário ou senha inválidos")
	}
	return &user, nil
}

func ChangeUserPassword(ctx context.Context, id int, newPassword string) error {
	if err := utils.ValidateResourceId[User](ctx, id); err != nil {
		return err
	}
	if len(newPassword) < 8 {
		return errors.New("a senha deve ter ao menos 8 caracteres")
	}
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	db := config.GetDB()
	return db.WithContext(ctx).Model(&User{}).Where("id = ?", id).
		Update("password_hash", hash).Error
}

func GetUser(ctx context.Context, id int) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func GetUsers(ctx context.Context) ([]User, error) {
	db := config.GetDB()
	var users []User
	if err := db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
