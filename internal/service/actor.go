package service

import (
	"fmt"

	"github.com/stamp-next/internal/constants"
)

// Actor 由身份层认证后的调用方
type Actor struct {
	ID         uint
	Type       string
	MerchantID uint
}

// IsStaff 是否为商户店员
func (a Actor) IsStaff() bool {
	return a.Type == constants.ActorTypeStaff && a.ID > 0
}

// IsCustomer 是否为顾客
func (a Actor) IsCustomer() bool {
	return a.Type == constants.ActorTypeCustomer && a.ID > 0
}

// Label 写入账本的操作者标识，顾客自助扫码记为 self-scan
func (a Actor) Label() string {
	if a.IsStaff() {
		return fmt.Sprintf("staff:%d", a.ID)
	}
	return constants.ActorSelfScan
}

// IssuerLabel 令牌签发者标识
func (a Actor) IssuerLabel() string {
	if a.IsCustomer() {
		return fmt.Sprintf("customer:%d", a.ID)
	}
	return a.Label()
}
