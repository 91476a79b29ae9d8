package repository

import (
	"errors"
	"time"

	"github.com/stamp-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipRepository 会员卡仓储接口
type MembershipRepository interface {
	GetByID(id uint) (*models.Membership, error)
	GetByIDForUpdate(id uint) (*models.Membership, error)
	GetByCustomerProgram(customerID, programID uint) (*models.Membership, error)
	ListByCustomer(customerID uint) ([]models.Membership, error)
	VoucherCodeExists(code string) (bool, error)
	Create(membership *models.Membership) error
	UpdateWithVersion(membership *models.Membership) (bool, error)
	WithTx(tx *gorm.DB) MembershipRepository
	Transaction(fn func(tx *gorm.DB) error) error
}

// GormMembershipRepository GORM 会员卡仓储实现
type GormMembershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository 创建会员卡仓储
func NewMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	return &GormMembershipRepository{db: db}
}

// WithTx 绑定事务
func (r *GormMembershipRepository) WithTx(tx *gorm.DB) MembershipRepository {
	if tx == nil {
		return r
	}
	return &GormMembershipRepository{db: tx}
}

// Transaction 执行事务
func (r *GormMembershipRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 根据 ID 查询会员卡
func (r *GormMembershipRepository) GetByID(id uint) (*models.Membership, error) {
	if id == 0 {
		return nil, nil
	}
	var membership models.Membership
	if err := r.db.First(&membership, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

// GetByIDForUpdate 根据 ID 加锁查询会员卡
func (r *GormMembershipRepository) GetByIDForUpdate(id uint) (*models.Membership, error) {
	if id == 0 {
		return nil, nil
	}
	var membership models.Membership
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

// GetByCustomerProgram 根据顾客与集章计划查询会员卡
func (r *GormMembershipRepository) GetByCustomerProgram(customerID, programID uint) (*models.Membership, error) {
	if customerID == 0 || programID == 0 {
		return nil, nil
	}
	var membership models.Membership
	if err := r.db.Where("customer_id = ? AND program_id = ?", customerID, programID).
		First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

// ListByCustomer 查询顾客的全部会员卡
func (r *GormMembershipRepository) ListByCustomer(customerID uint) ([]models.Membership, error) {
	if customerID == 0 {
		return []models.Membership{}, nil
	}
	var memberships []models.Membership
	if err := r.db.Preload("Program").
		Where("customer_id = ?", customerID).
		Order("id asc").
		Find(&memberships).Error; err != nil {
		return nil, err
	}
	return memberships, nil
}

// VoucherCodeExists 兑换码是否已被占用
func (r *GormMembershipRepository) VoucherCodeExists(code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	var count int64
	if err := r.db.Model(&models.Membership{}).Where("voucher_code = ?", code).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create 创建会员卡
func (r *GormMembershipRepository) Create(membership *models.Membership) error {
	if membership == nil {
		return errors.New("invalid membership")
	}
	return r.db.Create(membership).Error
}

// UpdateWithVersion 按版本号条件更新会员卡，版本不匹配时返回 false
func (r *GormMembershipRepository) UpdateWithVersion(membership *models.Membership) (bool, error) {
	if membership == nil || membership.ID == 0 {
		return false, errors.New("invalid membership")
	}
	expected := membership.Version
	updatedAt := membership.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	result := r.db.Model(&models.Membership{}).
		Where("id = ? AND version = ?", membership.ID, expected).
		Updates(map[string]interface{}{
			"status":             membership.Status,
			"cycle_stamp_count":  membership.CycleStampCount,
			"cycle_threshold":    membership.CycleThreshold,
			"cycle_started_at":   membership.CycleStartedAt,
			"voucher_code":       membership.VoucherCode,
			"voucher_issued_at":  membership.VoucherIssuedAt,
			"voucher_expires_at": membership.VoucherExpiresAt,
			"last_stamped_at":    membership.LastStampedAt,
			"version":            expected + 1,
			"updated_at":         updatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	membership.Version = expected + 1
	membership.UpdatedAt = updatedAt
	return true, nil
}
