package models

import (
	"time"

	"gorm.io/gorm"
)

// LoyaltyProgram 集章计划
type LoyaltyProgram struct {
	ID                uint           `gorm:"primarykey" json:"id"`                                           // 主键
	MerchantID        uint           `gorm:"index;not null" json:"merchant_id"`                              // 商户ID
	Name              string         `gorm:"type:varchar(120);not null" json:"name"`                         // 计划名称
	RewardDescription string         `gorm:"type:varchar(255)" json:"reward_description"`                    // 奖励说明
	RewardThreshold   int            `gorm:"not null" json:"reward_threshold"`                               // 每轮所需印章数
	Status            string         `gorm:"type:varchar(24);index;not null;default:'active'" json:"status"` // 状态
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`                                        // 创建时间
	UpdatedAt         time.Time      `json:"updated_at"`                                                     // 更新时间
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`                                                 // 软删除时间
	Merchant          *Merchant      `gorm:"foreignKey:MerchantID" json:"merchant,omitempty"`                // 商户信息
}

// TableName 指定表名
func (LoyaltyProgram) TableName() string {
	return "loyalty_programs"
}
