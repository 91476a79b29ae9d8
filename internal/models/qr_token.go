package models

import "time"

// QRToken 一次性二维码令牌
// LiveKey 在令牌存活期间为 "purpose:subject"，消费或作废时置空，唯一索引保证同一主体同一用途最多一个存活令牌
type QRToken struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	Nonce      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	Purpose    string     `gorm:"type:varchar(16);not null;index:idx_qr_token_subject,priority:1" json:"purpose"`
	SubjectID  uint       `gorm:"not null;index:idx_qr_token_subject,priority:2" json:"subject_id"`
	LiveKey    *string    `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	IssuedBy   string     `gorm:"type:varchar(64)" json:"issued_by"`
	IssuedAt   time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	ConsumedAt *time.Time `gorm:"index" json:"consumed_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// TableName 指定表名
func (QRToken) TableName() string {
	return "qr_tokens"
}
