package service

import (
	"fmt"
	"time"

	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/models"
)

const maxVoucherCodeAttempts = 5

// RewardOptions 奖励参数
type RewardOptions struct {
	VoucherValidity   time.Duration
	VoucherCodeLength int
}

// CycleTransition 一次状态机推进的结果
type CycleTransition struct {
	PreviousStatus string
	Status         string
	VoucherMinted  bool
	VoucherCleared bool
}

// Changed 派生状态是否发生变化
func (t CycleTransition) Changed() bool {
	return t.PreviousStatus != t.Status
}

// VoucherCodeTaken 检查兑换码是否已被占用
type VoucherCodeTaken func(code string) (bool, error)

// RewardCycleEngine 奖励周期状态机
//
// inactive -> redeemable：本轮印章数达到门槛时生成兑换码
// redeemable -> redeemed -> inactive：核销成功后立即开启新一轮
// redeemable -> expired：读取时按兑换码有效期惰性派生
// expired -> inactive：下一次盖章清除过期兑换码，已得印章保留
type RewardCycleEngine struct {
	opts     RewardOptions
	generate func(length int) (string, error)
}

// NewRewardCycleEngine 创建奖励周期状态机
func NewRewardCycleEngine(opts RewardOptions) *RewardCycleEngine {
	if opts.VoucherValidity <= 0 {
		opts.VoucherValidity = 24 * time.Hour
	}
	if opts.VoucherCodeLength <= 0 {
		opts.VoucherCodeLength = defaultVoucherCodeLength
	}
	return &RewardCycleEngine{opts: opts, generate: generateVoucherCode}
}

// Derive 按当前时间派生会员卡状态（纯函数）
func (e *RewardCycleEngine) Derive(m *models.Membership, now time.Time) string {
	if m == nil {
		return constants.MembershipStatusInactive
	}
	if m.HasVoucher() {
		if m.VoucherExpiresAt != nil && now.After(*m.VoucherExpiresAt) {
			return constants.MembershipStatusExpired
		}
		return constants.MembershipStatusRedeemable
	}
	return constants.MembershipStatusInactive
}

// ApplyStamp 记入一枚新印章后推进状态机
// cycleCount 为账本中本轮开始之后的印章数（含本次）
func (e *RewardCycleEngine) ApplyStamp(m *models.Membership, cycleCount int, stampedAt time.Time, taken VoucherCodeTaken) (CycleTransition, error) {
	transition := CycleTransition{PreviousStatus: e.Derive(m, stampedAt)}
	if transition.PreviousStatus == constants.MembershipStatusExpired {
		m.ClearVoucher()
		transition.VoucherCleared = true
	}
	m.CycleStampCount = cycleCount
	m.LastStampedAt = &stampedAt

	// 已有有效兑换码时继续累计，不重复生成
	if !m.HasVoucher() && m.CycleThreshold > 0 && m.CycleStampCount >= m.CycleThreshold {
		if err := e.mintVoucher(m, stampedAt, taken); err != nil {
			return transition, err
		}
		transition.VoucherMinted = true
	}
	transition.Status = e.Derive(m, stampedAt)
	m.Status = transition.Status
	return transition, nil
}

func (e *RewardCycleEngine) mintVoucher(m *models.Membership, now time.Time, taken VoucherCodeTaken) error {
	for attempt := 0; attempt < maxVoucherCodeAttempts; attempt++ {
		code, err := e.generate(e.opts.VoucherCodeLength)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		if taken != nil {
			used, err := taken(code)
			if err != nil {
				return err
			}
			if used {
				continue
			}
		}
		issuedAt := now
		expiresAt := now.Add(e.opts.VoucherValidity)
		m.VoucherCode = &code
		m.VoucherIssuedAt = &issuedAt
		m.VoucherExpiresAt = &expiresAt
		return nil
	}
	return fmt.Errorf("%w: voucher code space exhausted", ErrConcurrencyConflict)
}

// CloseCycle 核销成功后关闭本轮并开启新一轮
// 门槛在新一轮开始时按计划当前配置重新快照
func (e *RewardCycleEngine) CloseCycle(m *models.Membership, program *models.LoyaltyProgram, redeemedAt time.Time) CycleTransition {
	transition := CycleTransition{
		PreviousStatus: e.Derive(m, redeemedAt),
		Status:         constants.MembershipStatusRedeemed,
	}
	m.ClearVoucher()
	m.CycleStampCount = 0
	m.CycleStartedAt = redeemedAt
	if program != nil && program.RewardThreshold > 0 {
		m.CycleThreshold = program.RewardThreshold
	}
	m.Status = constants.MembershipStatusInactive
	return transition
}

// MarkExpired 持久化惰性过期状态，返回是否有变化
func (e *RewardCycleEngine) MarkExpired(m *models.Membership, now time.Time) bool {
	if e.Derive(m, now) != constants.MembershipStatusExpired || m.Status == constants.MembershipStatusExpired {
		return false
	}
	m.Status = constants.MembershipStatusExpired
	return true
}
