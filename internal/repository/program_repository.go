package repository

import (
	"errors"

	"github.com/stamp-next/internal/models"

	"gorm.io/gorm"
)

// ProgramRepository 集章计划仓储接口（只读）
type ProgramRepository interface {
	GetByID(id uint) (*models.LoyaltyProgram, error)
	GetByIDWithMerchant(id uint) (*models.LoyaltyProgram, error)
	WithTx(tx *gorm.DB) ProgramRepository
}

// GormProgramRepository GORM 集章计划仓储实现
type GormProgramRepository struct {
	db *gorm.DB
}

// NewProgramRepository 创建集章计划仓储
func NewProgramRepository(db *gorm.DB) *GormProgramRepository {
	return &GormProgramRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProgramRepository) WithTx(tx *gorm.DB) ProgramRepository {
	if tx == nil {
		return r
	}
	return &GormProgramRepository{db: tx}
}

// GetByID 根据 ID 查询集章计划，已删除的计划返回 nil
func (r *GormProgramRepository) GetByID(id uint) (*models.LoyaltyProgram, error) {
	if id == 0 {
		return nil, nil
	}
	var program models.LoyaltyProgram
	if err := r.db.First(&program, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &program, nil
}

// GetByIDWithMerchant 查询集章计划并加载所属商户
func (r *GormProgramRepository) GetByIDWithMerchant(id uint) (*models.LoyaltyProgram, error) {
	if id == 0 {
		return nil, nil
	}
	var program models.LoyaltyProgram
	if err := r.db.Preload("Merchant").First(&program, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &program, nil
}
