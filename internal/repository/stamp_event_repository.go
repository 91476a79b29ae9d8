package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/stamp-next/internal/models"

	"gorm.io/gorm"
)

// StampEventRepository 盖章记录仓储接口（只追加）
type StampEventRepository interface {
	GetByTxID(membershipID uint, txID string) (*models.StampEvent, error)
	Create(event *models.StampEvent) error
	LatestStampedAt(membershipID uint) (*time.Time, error)
	CountAfter(membershipID uint, after time.Time) (int64, error)
	List(filter StampEventListFilter) ([]models.StampEvent, int64, error)
	WithTx(tx *gorm.DB) StampEventRepository
}

// GormStampEventRepository GORM 盖章记录仓储实现
type GormStampEventRepository struct {
	db *gorm.DB
}

// NewStampEventRepository 创建盖章记录仓储
func NewStampEventRepository(db *gorm.DB) *GormStampEventRepository {
	return &GormStampEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormStampEventRepository) WithTx(tx *gorm.DB) StampEventRepository {
	if tx == nil {
		return r
	}
	return &GormStampEventRepository{db: tx}
}

// GetByTxID 按会员卡与业务流水号查询盖章记录
func (r *GormStampEventRepository) GetByTxID(membershipID uint, txID string) (*models.StampEvent, error) {
	txID = strings.TrimSpace(txID)
	if membershipID == 0 || txID == "" {
		return nil, nil
	}
	var event models.StampEvent
	if err := r.db.Where("membership_id = ? AND tx_id = ?", membershipID, txID).
		First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// Create 追加盖章记录
func (r *GormStampEventRepository) Create(event *models.StampEvent) error {
	if event == nil {
		return errors.New("invalid stamp event")
	}
	return r.db.Create(event).Error
}

// LatestStampedAt 查询最近一次盖章时间，无记录时返回 nil
func (r *GormStampEventRepository) LatestStampedAt(membershipID uint) (*time.Time, error) {
	if membershipID == 0 {
		return nil, nil
	}
	var event models.StampEvent
	err := r.db.Select("stamped_at").
		Where("membership_id = ?", membershipID).
		Order("stamped_at desc").
		Limit(1).
		Take(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	stampedAt := event.StampedAt
	return &stampedAt, nil
}

// CountAfter 统计指定时间之后（不含）的盖章数
func (r *GormStampEventRepository) CountAfter(membershipID uint, after time.Time) (int64, error) {
	var total int64
	if membershipID == 0 {
		return 0, nil
	}
	err := r.db.Model(&models.StampEvent{}).
		Where("membership_id = ? AND stamped_at > ?", membershipID, after).
		Count(&total).Error
	return total, err
}

// List 分页查询盖章记录（新记录在前）
func (r *GormStampEventRepository) List(filter StampEventListFilter) ([]models.StampEvent, int64, error) {
	query := r.db.Model(&models.StampEvent{}).Where("membership_id = ?", filter.MembershipID)
	if filter.StampedFrom != nil {
		query = query.Where("stamped_at >= ?", *filter.StampedFrom)
	}
	if filter.StampedTo != nil {
		query = query.Where("stamped_at <= ?", *filter.StampedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Scopes(paginate(filter.Page, filter.PageSize))
	var events []models.StampEvent
	if err := query.Order("stamped_at desc, id desc").Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
