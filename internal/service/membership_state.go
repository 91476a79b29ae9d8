package service

import (
	"time"

	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/models"
)

// MembershipState 会员卡对外状态
type MembershipState struct {
	MembershipID     uint       `json:"membership_id"`
	ProgramID        uint       `json:"program_id"`
	Status           string     `json:"status"`
	CycleStampCount  int        `json:"cycle_stamp_count"`
	Threshold        int        `json:"threshold"`
	VoucherCode      *string    `json:"voucher_code,omitempty"`
	VoucherExpiresAt *time.Time `json:"voucher_expires_at,omitempty"`
	LastStampedAt    *time.Time `json:"last_stamped_at,omitempty"`
}

// buildMembershipState 按派生状态构建对外视图，兑换码仅在可兑换时返回
func buildMembershipState(m *models.Membership, status string) *MembershipState {
	if m == nil {
		return nil
	}
	state := &MembershipState{
		MembershipID:    m.ID,
		ProgramID:       m.ProgramID,
		Status:          status,
		CycleStampCount: m.CycleStampCount,
		Threshold:       m.CycleThreshold,
		LastStampedAt:   copyTime(m.LastStampedAt),
	}
	if m.HasVoucher() {
		state.VoucherExpiresAt = copyTime(m.VoucherExpiresAt)
		if status == constants.MembershipStatusRedeemable {
			code := *m.VoucherCode
			state.VoucherCode = &code
		}
	}
	return state
}

// stateFromStampEvent 从盖章记录的结果快照还原状态（幂等重放）
func stateFromStampEvent(m *models.Membership, event *models.StampEvent) *MembershipState {
	if event == nil {
		return nil
	}
	state := &MembershipState{
		MembershipID:     event.MembershipID,
		Status:           event.ResultStatus,
		CycleStampCount:  event.ResultCycleStampCount,
		Threshold:        event.ResultCycleThreshold,
		VoucherExpiresAt: copyTime(event.ResultVoucherExpiresAt),
	}
	if m != nil {
		state.ProgramID = m.ProgramID
	}
	stampedAt := event.StampedAt
	state.LastStampedAt = &stampedAt
	if event.ResultVoucherCode != nil && event.ResultStatus == constants.MembershipStatusRedeemable {
		code := *event.ResultVoucherCode
		state.VoucherCode = &code
	}
	return state
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
