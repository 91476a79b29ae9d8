package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/stamp-next/internal/models"

	"gorm.io/gorm"
)

// QRTokenRepository 二维码令牌仓储接口
type QRTokenRepository interface {
	Create(token *models.QRToken) error
	GetByNonce(nonce string) (*models.QRToken, error)
	RevokeLive(liveKey string, revokedAt time.Time) (int64, error)
	MarkConsumed(nonce string, consumedAt time.Time) (bool, error)
	PurgeDead(before time.Time) (int64, error)
	WithTx(tx *gorm.DB) QRTokenRepository
	Transaction(fn func(tx *gorm.DB) error) error
}

// GormQRTokenRepository GORM 二维码令牌仓储实现
type GormQRTokenRepository struct {
	db *gorm.DB
}

// NewQRTokenRepository 创建二维码令牌仓储
func NewQRTokenRepository(db *gorm.DB) *GormQRTokenRepository {
	return &GormQRTokenRepository{db: db}
}

// WithTx 绑定事务
func (r *GormQRTokenRepository) WithTx(tx *gorm.DB) QRTokenRepository {
	if tx == nil {
		return r
	}
	return &GormQRTokenRepository{db: tx}
}

// Transaction 执行事务
func (r *GormQRTokenRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建令牌
func (r *GormQRTokenRepository) Create(token *models.QRToken) error {
	if token == nil {
		return errors.New("invalid qr token")
	}
	return r.db.Create(token).Error
}

// GetByNonce 根据随机串查询令牌
func (r *GormQRTokenRepository) GetByNonce(nonce string) (*models.QRToken, error) {
	nonce = strings.TrimSpace(nonce)
	if nonce == "" {
		return nil, nil
	}
	var token models.QRToken
	if err := r.db.Where("nonce = ?", nonce).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

// RevokeLive 作废同一主体同一用途的存活令牌
func (r *GormQRTokenRepository) RevokeLive(liveKey string, revokedAt time.Time) (int64, error) {
	liveKey = strings.TrimSpace(liveKey)
	if liveKey == "" {
		return 0, nil
	}
	result := r.db.Model(&models.QRToken{}).
		Where("live_key = ?", liveKey).
		Updates(map[string]interface{}{
			"revoked_at": revokedAt,
			"live_key":   gorm.Expr("NULL"),
		})
	return result.RowsAffected, result.Error
}

// MarkConsumed 原子消费令牌，已消费或已作废时返回 false
func (r *GormQRTokenRepository) MarkConsumed(nonce string, consumedAt time.Time) (bool, error) {
	nonce = strings.TrimSpace(nonce)
	if nonce == "" {
		return false, nil
	}
	result := r.db.Model(&models.QRToken{}).
		Where("nonce = ? AND consumed_at IS NULL AND revoked_at IS NULL", nonce).
		Updates(map[string]interface{}{
			"consumed_at": consumedAt,
			"live_key":    gorm.Expr("NULL"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// PurgeDead 删除早于指定时间失效的令牌（已消费、已作废或已过期）
func (r *GormQRTokenRepository) PurgeDead(before time.Time) (int64, error) {
	result := r.db.
		Where("(consumed_at IS NOT NULL AND consumed_at < ?) OR (revoked_at IS NOT NULL AND revoked_at < ?) OR expires_at < ?",
			before, before, before).
		Delete(&models.QRToken{})
	return result.RowsAffected, result.Error
}
