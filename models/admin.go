package models

import (
	"context"
	"errors"
	"time"

	"github.com/greenaudit/greenwash_backend/utils"
	"gorm.io/gorm"
)

// Admin is an issuing authority (government official). The admins table is the only
// source of admin identities; BOOTSTRAP_ADMINS merely seeds it.
type Admin struct {
	ID           string    `gorm:"type:char(36);primary_key" json:"id"`
	Email        string    `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Department   string    `gorm:"size:100" json:"department"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (a *Admin) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.NewId()
	}
	return nil
}

type NewAdmin struct {
	Email            string `json:"email" validate:"required,email"`
	Name             string `json:"name" validate:"required,max=100"`
	Department       string `json:"department" validate:"max=100"`
	Password         string `json:"password" validate:"required,min=6"`
	RegistrationCode string `json:"registration_code" validate:"required"`
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) Insert(ctx context.Context, admin *Admin) (string, error) {
	if err := r.db.WithContext(ctx).Create(admin).Error; err != nil {
		return "", insertError(err, "admin")
	}
	return admin.ID, nil
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (*Admin, error) {
	var admin Admin
	err := r.db.WithContext(ctx).Where("email = ?", utils.NormalizeEmail(email)).Take(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}
