package models

import (
	"time"

	"gorm.io/gorm"
)

// Customer 顾客
type Customer struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	DisplayName string         `gorm:"type:varchar(120)" json:"display_name"`
	Email       string         `gorm:"type:varchar(255);index" json:"email"`
	Locale      string         `gorm:"type:varchar(20)" json:"locale"`
	Status      string         `gorm:"type:varchar(24);not null;default:'active'" json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName 指定表名
func (Customer) TableName() string {
	return "customers"
}
