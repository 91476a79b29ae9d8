package service

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/metrics"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/repository"

	"gorm.io/gorm"
)

// RedeemInput 核销参数
type RedeemInput struct {
	MembershipID uint
	Code         string
	StaffActor   Actor
	Channel      string
}

// redeemOutcome 一次核销的事务内结果
// rejection 为已提交的业务拒绝（过期状态需要落库，因此不回滚）
type redeemOutcome struct {
	membership    *models.Membership
	state         *MembershipState
	transition    CycleTransition
	expiredMarked bool
	rejection     error
	at            time.Time
}

// RedemptionService 兑换码核销服务
type RedemptionService struct {
	membershipRepo repository.MembershipRepository
	redemptionRepo repository.RedemptionRepository
	programRepo    repository.ProgramRepository
	engine         *RewardCycleEngine
	effects        *membershipEffects
	retry          RetryPolicy
	clock          Clock
	metrics        *metrics.Collector
}

// NewRedemptionService 创建核销服务
func NewRedemptionService(
	membershipRepo repository.MembershipRepository,
	redemptionRepo repository.RedemptionRepository,
	programRepo repository.ProgramRepository,
	engine *RewardCycleEngine,
	notifier Notifier,
	retry RetryPolicy,
	clock Clock,
	m *metrics.Collector,
) *RedemptionService {
	return &RedemptionService{
		membershipRepo: membershipRepo,
		redemptionRepo: redemptionRepo,
		programRepo:    programRepo,
		engine:         engine,
		effects:        newMembershipEffects(notifier, m),
		retry:          retry,
		clock:          clockOrSystem(clock),
		metrics:        m,
	}
}

// Redeem 核销兑换码，与同一会员卡的盖章串行执行
func (s *RedemptionService) Redeem(ctx context.Context, input RedeemInput) (*MembershipState, error) {
	if input.MembershipID == 0 {
		return nil, ErrMembershipNotFound
	}
	if !input.StaffActor.IsStaff() {
		return nil, ErrActorNotAllowed
	}
	if input.Channel == "" {
		input.Channel = constants.RedeemChannelManual
	}

	var outcome *redeemOutcome
	err := s.retry.run(ctx, "redeem", s.metrics, func() error {
		outcome = nil
		txErr := s.membershipRepo.Transaction(func(tx *gorm.DB) error {
			membership, err := s.membershipRepo.WithTx(tx).GetByIDForUpdate(input.MembershipID)
			if err != nil {
				return storageError(err)
			}
			if membership == nil {
				return ErrMembershipNotFound
			}
			result, err := s.RedeemInTx(tx, membership, input)
			if err != nil {
				return err
			}
			outcome = result
			return nil
		})
		return transactionError(txErr)
	})
	if err != nil {
		logger.Warnw("voucher_redeem_failed",
			"membership_id", input.MembershipID,
			"reason", ReasonOf(err),
			"error", err,
		)
		return nil, err
	}
	s.afterCommit(ctx, input, outcome)
	if outcome.rejection != nil {
		return nil, outcome.rejection
	}
	return outcome.state, nil
}

// RedeemInTx 在调用方事务内核销，调用方须已持有会员卡锁
// 返回 error 时事务应回滚，业务拒绝通过 rejection 返回并随事务提交
func (s *RedemptionService) RedeemInTx(tx *gorm.DB, membership *models.Membership, input RedeemInput) (*redeemOutcome, error) {
	now := s.clock.Now()
	outcome := &redeemOutcome{membership: membership, at: now}
	membershipRepo := s.membershipRepo.WithTx(tx)

	switch s.engine.Derive(membership, now) {
	case constants.MembershipStatusExpired:
		if s.engine.MarkExpired(membership, now) {
			membership.UpdatedAt = now
			if err := saveMembership(membershipRepo, membership); err != nil {
				return nil, err
			}
			outcome.expiredMarked = true
		}
		outcome.rejection = ErrVoucherExpired
		return outcome, nil
	case constants.MembershipStatusRedeemable:
	default:
		outcome.rejection = ErrNoPendingReward
		return outcome, nil
	}

	if !voucherCodeMatches(membership.VoucherCode, input.Code) {
		outcome.rejection = ErrCodeMismatch
		return outcome, nil
	}

	program, err := s.programRepo.WithTx(tx).GetByID(membership.ProgramID)
	if err != nil {
		return nil, storageError(err)
	}
	redemption := &models.VoucherRedemption{
		MembershipID:    membership.ID,
		VoucherCode:     *membership.VoucherCode,
		Channel:         input.Channel,
		RedeemedBy:      input.StaffActor.Label(),
		RedeemedAt:      now,
		CycleStampCount: membership.CycleStampCount,
	}
	if err := s.redemptionRepo.WithTx(tx).Create(redemption); err != nil {
		return nil, storageError(err)
	}

	outcome.transition = s.engine.CloseCycle(membership, program, now)
	membership.UpdatedAt = now
	if err := saveMembership(membershipRepo, membership); err != nil {
		return nil, err
	}
	outcome.state = buildMembershipState(membership, outcome.transition.Status)
	return outcome, nil
}

// ListRedemptions 分页查询核销记录
func (s *RedemptionService) ListRedemptions(ctx context.Context, filter repository.RedemptionListFilter) ([]models.VoucherRedemption, int64, error) {
	_ = ctx
	items, total, err := s.redemptionRepo.List(filter)
	if err != nil {
		return nil, 0, storageError(err)
	}
	return items, total, nil
}

// voucherCodeMatches 大小写不敏感的定长比较
func voucherCodeMatches(stored *string, supplied string) bool {
	if stored == nil {
		return false
	}
	expected := []byte(normalizeVoucherCode(*stored))
	actual := []byte(normalizeVoucherCode(supplied))
	if len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(expected, actual) == 1
}

func (s *RedemptionService) afterCommit(ctx context.Context, input RedeemInput, outcome *redeemOutcome) {
	if outcome == nil || outcome.membership == nil {
		return
	}
	membership := outcome.membership
	if outcome.rejection != nil {
		if outcome.expiredMarked {
			s.effects.invalidate(ctx, membership)
			s.effects.notify(ctx, membership, constants.MembershipStatusRedeemable, constants.MembershipStatusExpired, outcome.at)
		}
		logger.Infow("voucher_redeem_rejected",
			"membership_id", membership.ID,
			"channel", input.Channel,
			"reason", ReasonOf(outcome.rejection),
		)
		return
	}

	s.effects.invalidate(ctx, membership)
	s.metrics.RecordRedemption(input.Channel)
	s.effects.notify(ctx, membership, outcome.transition.PreviousStatus, constants.MembershipStatusRedeemed, outcome.at)
	s.effects.notify(ctx, membership, constants.MembershipStatusRedeemed, constants.MembershipStatusInactive, outcome.at)
	logger.Infow("voucher_redeemed",
		"membership_id", membership.ID,
		"channel", input.Channel,
		"redeemed_by", input.StaffActor.Label(),
		"next_threshold", membership.CycleThreshold,
	)
}
