package models

import (
	"time"

	"gorm.io/gorm"
)

// Merchant 商户（资料由外部系统维护，本服务只读）
type Merchant struct {
	ID                   uint           `gorm:"primarykey" json:"id"`                             // 主键
	Name                 string         `gorm:"type:varchar(120);not null" json:"name"`           // 商户名称
	Latitude             *Coordinate    `gorm:"type:decimal(10,7)" json:"latitude,omitempty"`     // 登记纬度
	Longitude            *Coordinate    `gorm:"type:decimal(10,7)" json:"longitude,omitempty"`    // 登记经度
	GeofenceRadiusMeters int            `gorm:"not null;default:0" json:"geofence_radius_meters"` // 围栏半径（0 表示使用全局配置）
	CreatedAt            time.Time      `gorm:"index" json:"created_at"`                          // 创建时间
	UpdatedAt            time.Time      `json:"updated_at"`                                       // 更新时间
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`                                   // 软删除时间
}

// TableName 指定表名
func (Merchant) TableName() string {
	return "merchants"
}

// HasLocation 是否登记了坐标
func (m *Merchant) HasLocation() bool {
	return m != nil && m.Latitude != nil && m.Longitude != nil
}
