package repository

import (
	"time"

	"gorm.io/gorm"
)

// StampEventListFilter 查询盖章记录的过滤条件
type StampEventListFilter struct {
	Page         int
	PageSize     int
	MembershipID uint
	StampedFrom  *time.Time
	StampedTo    *time.Time
}

// RedemptionListFilter 查询核销记录的过滤条件
type RedemptionListFilter struct {
	Page         int
	PageSize     int
	MembershipID uint
	Channel      string
	RedeemedFrom *time.Time
	RedeemedTo   *time.Time
}

// maxPageSize 单页最大条数
const maxPageSize = 100

// paginate 分页 scope，pageSize 非正时不分页
func paginate(page, pageSize int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if pageSize <= 0 {
			return db
		}
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
		if page < 1 {
			page = 1
		}
		return db.Limit(pageSize).Offset((page - 1) * pageSize)
	}
}
