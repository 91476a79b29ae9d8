package models

import "time"

// VoucherRedemption 兑换码核销记录
type VoucherRedemption struct {
	ID              uint      `gorm:"primarykey" json:"id"`                                // 主键
	MembershipID    uint      `gorm:"not null;index" json:"membership_id"`                 // 会员卡ID
	VoucherCode     string    `gorm:"type:varchar(32);not null;index" json:"voucher_code"` // 兑换码
	Channel         string    `gorm:"type:varchar(16);not null" json:"channel"`            // 核销渠道（scan/manual）
	RedeemedBy      string    `gorm:"type:varchar(64);not null" json:"redeemed_by"`        // 核销店员
	RedeemedAt      time.Time `gorm:"not null;index" json:"redeemed_at"`                   // 核销时间
	CycleStampCount int       `gorm:"not null" json:"cycle_stamp_count"`                   // 核销时本轮印章数
	CreatedAt       time.Time `json:"created_at"`                                          // 创建时间
}

// TableName 指定表名
func (VoucherRedemption) TableName() string {
	return "voucher_redemptions"
}
