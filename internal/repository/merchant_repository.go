package repository

import (
	"errors"

	"github.com/stamp-next/internal/models"

	"gorm.io/gorm"
)

// MerchantRepository 商户仓储接口（只读）
type MerchantRepository interface {
	GetByID(id uint) (*models.Merchant, error)
	WithTx(tx *gorm.DB) MerchantRepository
}

// GormMerchantRepository GORM 商户仓储实现
type GormMerchantRepository struct {
	db *gorm.DB
}

// NewMerchantRepository 创建商户仓储
func NewMerchantRepository(db *gorm.DB) *GormMerchantRepository {
	return &GormMerchantRepository{db: db}
}

// WithTx 绑定事务
func (r *GormMerchantRepository) WithTx(tx *gorm.DB) MerchantRepository {
	if tx == nil {
		return r
	}
	return &GormMerchantRepository{db: tx}
}

// GetByID 根据 ID 查询商户
func (r *GormMerchantRepository) GetByID(id uint) (*models.Merchant, error) {
	if id == 0 {
		return nil, nil
	}
	var merchant models.Merchant
	if err := r.db.First(&merchant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}
