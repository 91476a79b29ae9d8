package models

import (
	"time"
)

// Membership 顾客在某个集章计划下的会员卡
// CycleStampCount 是账本的缓存投影，权威数据为 cycle_started_at 之后的 StampEvent 数量
type Membership struct {
	ID               uint            `gorm:"primarykey" json:"id"`                                                                   // 主键
	CustomerID       uint            `gorm:"not null;uniqueIndex:uk_membership_customer_program,priority:1" json:"customer_id"`      // 顾客ID
	ProgramID        uint            `gorm:"not null;uniqueIndex:uk_membership_customer_program,priority:2;index" json:"program_id"` // 集章计划ID
	Status           string          `gorm:"type:varchar(24);index;not null;default:'inactive'" json:"status"`                       // 状态
	CycleStampCount  int             `gorm:"not null;default:0" json:"cycle_stamp_count"`                                            // 本轮印章数
	CycleThreshold   int             `gorm:"not null" json:"cycle_threshold"`                                                        // 本轮门槛（开轮时快照）
	CycleStartedAt   time.Time       `gorm:"not null" json:"cycle_started_at"`                                                       // 本轮开始时间
	VoucherCode      *string         `gorm:"type:varchar(32);uniqueIndex" json:"voucher_code,omitempty"`                             // 当前兑换码
	VoucherIssuedAt  *time.Time      `json:"voucher_issued_at,omitempty"`                                                            // 兑换码签发时间
	VoucherExpiresAt *time.Time      `gorm:"index" json:"voucher_expires_at,omitempty"`                                              // 兑换码过期时间
	LastStampedAt    *time.Time      `json:"last_stamped_at,omitempty"`                                                              // 最近盖章时间
	Version          uint64          `gorm:"not null;default:0" json:"-"`                                                            // 乐观锁版本号
	EnrolledAt       time.Time       `gorm:"not null" json:"enrolled_at"`                                                            // 入会时间
	CreatedAt        time.Time       `json:"created_at"`                                                                             // 创建时间
	UpdatedAt        time.Time       `json:"updated_at"`                                                                             // 更新时间
	Program          *LoyaltyProgram `gorm:"foreignKey:ProgramID" json:"program,omitempty"`                                          // 集章计划
}

// TableName 指定表名
func (Membership) TableName() string {
	return "memberships"
}

// HasVoucher 是否持有兑换码
func (m *Membership) HasVoucher() bool {
	return m != nil && m.VoucherCode != nil && *m.VoucherCode != ""
}

// ClearVoucher 清空兑换码
func (m *Membership) ClearVoucher() {
	if m == nil {
		return
	}
	m.VoucherCode = nil
	m.VoucherIssuedAt = nil
	m.VoucherExpiresAt = nil
}
