package models

import "time"

// StampEvent 盖章记录（只追加，不更新不删除）
type StampEvent struct {
	ID           uint        `gorm:"primarykey" json:"id"`
	MembershipID uint        `gorm:"not null;uniqueIndex:uk_stamp_membership_tx,priority:1;index:idx_stamp_membership_time,priority:1" json:"membership_id"`
	TxID         string      `gorm:"type:varchar(64);not null;uniqueIndex:uk_stamp_membership_tx,priority:2" json:"tx_id"`
	TokenNonce   *string     `gorm:"type:varchar(64);index" json:"-"`
	Actor        string      `gorm:"type:varchar(64);not null" json:"actor"`
	Latitude     *Coordinate `gorm:"type:decimal(10,7)" json:"latitude,omitempty"`
	Longitude    *Coordinate `gorm:"type:decimal(10,7)" json:"longitude,omitempty"`
	StampedAt    time.Time   `gorm:"not null;index:idx_stamp_membership_time,priority:2" json:"stamped_at"`

	// 结果快照：幂等重放时原样返回
	ResultStatus           string     `gorm:"type:varchar(24);not null" json:"result_status"`
	ResultCycleStampCount  int        `gorm:"not null" json:"result_cycle_stamp_count"`
	ResultCycleThreshold   int        `gorm:"not null" json:"result_cycle_threshold"`
	ResultVoucherCode      *string    `gorm:"type:varchar(32)" json:"-"`
	ResultVoucherExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (StampEvent) TableName() string {
	return "stamp_events"
}
