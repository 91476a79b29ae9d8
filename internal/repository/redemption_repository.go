package repository

import (
	"errors"

	"github.com/stamp-next/internal/models"

	"gorm.io/gorm"
)

// RedemptionRepository 兑换码核销记录仓储接口
type RedemptionRepository interface {
	Create(redemption *models.VoucherRedemption) error
	List(filter RedemptionListFilter) ([]models.VoucherRedemption, int64, error)
	WithTx(tx *gorm.DB) RedemptionRepository
}

// GormRedemptionRepository GORM 核销记录仓储实现
type GormRedemptionRepository struct {
	db *gorm.DB
}

// NewRedemptionRepository 创建核销记录仓储
func NewRedemptionRepository(db *gorm.DB) *GormRedemptionRepository {
	return &GormRedemptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRedemptionRepository) WithTx(tx *gorm.DB) RedemptionRepository {
	if tx == nil {
		return r
	}
	return &GormRedemptionRepository{db: tx}
}

// Create 追加核销记录
func (r *GormRedemptionRepository) Create(redemption *models.VoucherRedemption) error {
	if redemption == nil {
		return errors.New("invalid voucher redemption")
	}
	return r.db.Create(redemption).Error
}

// List 分页查询核销记录
func (r *GormRedemptionRepository) List(filter RedemptionListFilter) ([]models.VoucherRedemption, int64, error) {
	query := r.db.Model(&models.VoucherRedemption{})
	if filter.MembershipID > 0 {
		query = query.Where("membership_id = ?", filter.MembershipID)
	}
	if filter.Channel != "" {
		query = query.Where("channel = ?", filter.Channel)
	}
	if filter.RedeemedFrom != nil {
		query = query.Where("redeemed_at >= ?", *filter.RedeemedFrom)
	}
	if filter.RedeemedTo != nil {
		query = query.Where("redeemed_at <= ?", *filter.RedeemedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))
	var rows []models.VoucherRedemption
	if err := query.Order("redeemed_at desc, id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
