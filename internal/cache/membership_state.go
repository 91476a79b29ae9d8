package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/stamp-next/internal/models"
)

const defaultMembershipStateTTL = 5 * time.Second

var membershipStateTTL = defaultMembershipStateTTL

// MembershipSnapshot 会员卡状态快照
// 缓存的是持久化字段而不是派生状态，读取后仍需按当前时间派生，过期判断不受缓存影响
type MembershipSnapshot struct {
	MembershipID     uint       `json:"membership_id"`
	CustomerID       uint       `json:"customer_id"`
	ProgramID        uint       `json:"program_id"`
	Status           string     `json:"status"`
	CycleStampCount  int        `json:"cycle_stamp_count"`
	CycleThreshold   int        `json:"cycle_threshold"`
	CycleStartedAt   time.Time  `json:"cycle_started_at"`
	VoucherCode      *string    `json:"voucher_code,omitempty"`
	VoucherIssuedAt  *time.Time `json:"voucher_issued_at,omitempty"`
	VoucherExpiresAt *time.Time `json:"voucher_expires_at,omitempty"`
	LastStampedAt    *time.Time `json:"last_stamped_at,omitempty"`
	Version          uint64     `json:"version"`
	Invalidated      bool       `json:"invalidated,omitempty"` // 失效标记，只用于阻止旧版本回填
}

// SetMembershipStateTTL 设置会员卡状态缓存时长，非正数表示关闭缓存
func SetMembershipStateTTL(ttl time.Duration) {
	membershipStateTTL = ttl
}

func membershipStateKey(membershipID uint) string {
	return fmt.Sprintf("membership:state:%d", membershipID)
}

// BuildMembershipSnapshot 从会员卡模型构建快照
func BuildMembershipSnapshot(m *models.Membership) *MembershipSnapshot {
	if m == nil {
		return nil
	}
	return &MembershipSnapshot{
		MembershipID:     m.ID,
		CustomerID:       m.CustomerID,
		ProgramID:        m.ProgramID,
		Status:           m.Status,
		CycleStampCount:  m.CycleStampCount,
		CycleThreshold:   m.CycleThreshold,
		CycleStartedAt:   m.CycleStartedAt,
		VoucherCode:      m.VoucherCode,
		VoucherIssuedAt:  m.VoucherIssuedAt,
		VoucherExpiresAt: m.VoucherExpiresAt,
		LastStampedAt:    m.LastStampedAt,
		Version:          m.Version,
	}
}

// ToModel 还原为会员卡模型
func (s *MembershipSnapshot) ToModel() *models.Membership {
	if s == nil {
		return nil
	}
	return &models.Membership{
		ID:               s.MembershipID,
		CustomerID:       s.CustomerID,
		ProgramID:        s.ProgramID,
		Status:           s.Status,
		CycleStampCount:  s.CycleStampCount,
		CycleThreshold:   s.CycleThreshold,
		CycleStartedAt:   s.CycleStartedAt,
		VoucherCode:      s.VoucherCode,
		VoucherIssuedAt:  s.VoucherIssuedAt,
		VoucherExpiresAt: s.VoucherExpiresAt,
		LastStampedAt:    s.LastStampedAt,
		Version:          s.Version,
	}
}

// GetMembershipSnapshot 获取会员卡状态快照
func GetMembershipSnapshot(ctx context.Context, membershipID uint) (*MembershipSnapshot, bool, error) {
	if membershipID == 0 || membershipStateTTL <= 0 {
		return nil, false, nil
	}
	var snapshot MembershipSnapshot
	hit, err := GetJSON(ctx, membershipStateKey(membershipID), &snapshot)
	if err != nil || !hit || snapshot.Invalidated {
		return nil, false, err
	}
	return &snapshot, true, nil
}

// SetMembershipSnapshot 回填会员卡状态快照，缓存中已有更高版本（含失效标记）时跳过
func SetMembershipSnapshot(ctx context.Context, snapshot *MembershipSnapshot) (bool, error) {
	if snapshot == nil || snapshot.MembershipID == 0 || membershipStateTTL <= 0 {
		return false, nil
	}
	return SetJSONIfNewer(ctx, membershipStateKey(snapshot.MembershipID), snapshot, snapshot.Version, membershipStateTTL)
}

// InvalidateMembershipSnapshot 写入携带已提交版本号的失效标记
// 读库早于提交的回填版本更低，会被标记挡住；写标记失败时退化为删除
func InvalidateMembershipSnapshot(ctx context.Context, membershipID uint, version uint64) error {
	if membershipID == 0 || membershipStateTTL <= 0 {
		return nil
	}
	key := membershipStateKey(membershipID)
	marker := &MembershipSnapshot{MembershipID: membershipID, Version: version, Invalidated: true}
	if _, err := SetJSONIfNewer(ctx, key, marker, version, membershipStateTTL); err != nil {
		return Del(ctx, key)
	}
	return nil
}
