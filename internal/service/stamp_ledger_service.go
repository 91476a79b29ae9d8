package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/metrics"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/repository"

	"gorm.io/gorm"
)

var txIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,64}$`)

// RecordStampInput 记录印章参数
type RecordStampInput struct {
	MembershipID uint
	TxID         string
	Actor        string
	Geo          *models.GeoPoint
	TokenNonce   string
}

// stampOutcome 一次盖章的事务内结果
type stampOutcome struct {
	membership *models.Membership
	state      *MembershipState
	transition CycleTransition
	replayed   bool
	at         time.Time
}

// StampLedgerService 印章账本服务
type StampLedgerService struct {
	membershipRepo repository.MembershipRepository
	stampRepo      repository.StampEventRepository
	programRepo    repository.ProgramRepository
	engine         *RewardCycleEngine
	effects        *membershipEffects
	retry          RetryPolicy
	clock          Clock
	metrics        *metrics.Collector
}

// NewStampLedgerService 创建印章账本服务
func NewStampLedgerService(
	membershipRepo repository.MembershipRepository,
	stampRepo repository.StampEventRepository,
	programRepo repository.ProgramRepository,
	engine *RewardCycleEngine,
	notifier Notifier,
	retry RetryPolicy,
	clock Clock,
	m *metrics.Collector,
) *StampLedgerService {
	return &StampLedgerService{
		membershipRepo: membershipRepo,
		stampRepo:      stampRepo,
		programRepo:    programRepo,
		engine:         engine,
		effects:        newMembershipEffects(notifier, m),
		retry:          retry,
		clock:          clockOrSystem(clock),
		metrics:        m,
	}
}

// normalizeTxID 校验业务流水号
func normalizeTxID(txID string) (string, error) {
	txID = strings.TrimSpace(txID)
	if !txIDPattern.MatchString(txID) {
		return "", ErrScanPayloadInvalid
	}
	return txID, nil
}

// RecordStamp 记入一枚印章，同一 (会员卡, 流水号) 重放时返回首次结果
func (s *StampLedgerService) RecordStamp(ctx context.Context, input RecordStampInput) (*MembershipState, error) {
	if input.MembershipID == 0 {
		return nil, ErrMembershipNotFound
	}
	txID, err := normalizeTxID(input.TxID)
	if err != nil {
		return nil, err
	}
	input.TxID = txID
	if strings.TrimSpace(input.Actor) == "" {
		input.Actor = constants.ActorSelfScan
	}

	var outcome *stampOutcome
	err = s.retry.run(ctx, "record_stamp", s.metrics, func() error {
		outcome = nil
		txErr := s.membershipRepo.Transaction(func(tx *gorm.DB) error {
			membership, err := s.lockMembership(tx, input.MembershipID)
			if err != nil {
				return err
			}
			result, err := s.RecordStampInTx(tx, membership, input)
			if err != nil {
				return err
			}
			outcome = result
			return nil
		})
		return transactionError(txErr)
	})
	if err != nil {
		logger.Warnw("stamp_record_failed",
			"membership_id", input.MembershipID,
			"tx_id", input.TxID,
			"reason", ReasonOf(err),
			"error", err,
		)
		return nil, err
	}
	s.afterCommit(ctx, outcome)
	return outcome.state, nil
}

// ListStamps 分页查询印章记录
func (s *StampLedgerService) ListStamps(ctx context.Context, membershipID uint, page, pageSize int) ([]models.StampEvent, int64, error) {
	_ = ctx
	events, total, err := s.stampRepo.List(repository.StampEventListFilter{
		MembershipID: membershipID,
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		return nil, 0, storageError(err)
	}
	return events, total, nil
}

// lockMembership 加锁读取会员卡，作为单会员卡串行化边界
func (s *StampLedgerService) lockMembership(tx *gorm.DB, membershipID uint) (*models.Membership, error) {
	membership, err := s.membershipRepo.WithTx(tx).GetByIDForUpdate(membershipID)
	if err != nil {
		return nil, storageError(err)
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}
	return membership, nil
}

// RecordStampInTx 在调用方事务内记入印章，调用方须已持有会员卡锁
func (s *StampLedgerService) RecordStampInTx(tx *gorm.DB, membership *models.Membership, input RecordStampInput) (*stampOutcome, error) {
	replay, err := s.replayInTx(tx, membership, input.TxID)
	if err != nil || replay != nil {
		return replay, err
	}
	return s.appendStampInTx(tx, membership, input)
}

// replayInTx 查找已记录的流水号
func (s *StampLedgerService) replayInTx(tx *gorm.DB, membership *models.Membership, txID string) (*stampOutcome, error) {
	event, err := s.stampRepo.WithTx(tx).GetByTxID(membership.ID, txID)
	if err != nil {
		return nil, storageError(err)
	}
	if event == nil {
		return nil, nil
	}
	return &stampOutcome{
		membership: membership,
		state:      stateFromStampEvent(membership, event),
		replayed:   true,
		at:         event.StampedAt,
	}, nil
}

// appendStampInTx 追加印章并推进状态机，调用方已持有会员卡锁
func (s *StampLedgerService) appendStampInTx(tx *gorm.DB, membership *models.Membership, input RecordStampInput) (*stampOutcome, error) {
	program, err := s.programRepo.WithTx(tx).GetByID(membership.ProgramID)
	if err != nil {
		return nil, storageError(err)
	}
	if program == nil || program.Status != constants.ProgramStatusActive {
		return nil, ErrProgramInactive
	}
	if membership.CycleThreshold <= 0 {
		membership.CycleThreshold = program.RewardThreshold
	}

	now := s.clock.Now()
	stampedAt := now
	// 只有本轮开始之后的印章计入本轮
	if !stampedAt.After(membership.CycleStartedAt) {
		stampedAt = membership.CycleStartedAt.Add(time.Microsecond)
	}

	stampRepo := s.stampRepo.WithTx(tx)
	prior, err := stampRepo.CountAfter(membership.ID, membership.CycleStartedAt)
	if err != nil {
		return nil, storageError(err)
	}

	membershipRepo := s.membershipRepo.WithTx(tx)
	transition, err := s.engine.ApplyStamp(membership, int(prior)+1, stampedAt, func(code string) (bool, error) {
		used, err := membershipRepo.VoucherCodeExists(code)
		if err != nil {
			return false, storageError(err)
		}
		return used, nil
	})
	if err != nil {
		return nil, err
	}

	event := &models.StampEvent{
		MembershipID:           membership.ID,
		TxID:                   input.TxID,
		Actor:                  input.Actor,
		StampedAt:              stampedAt,
		ResultStatus:           transition.Status,
		ResultCycleStampCount:  membership.CycleStampCount,
		ResultCycleThreshold:   membership.CycleThreshold,
		ResultVoucherCode:      membership.VoucherCode,
		ResultVoucherExpiresAt: copyTime(membership.VoucherExpiresAt),
	}
	if input.TokenNonce != "" {
		nonce := input.TokenNonce
		event.TokenNonce = &nonce
	}
	if input.Geo != nil {
		lat, lng := input.Geo.Latitude, input.Geo.Longitude
		event.Latitude = &lat
		event.Longitude = &lng
	}
	if err := stampRepo.Create(event); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrConcurrencyConflict
		}
		return nil, storageError(err)
	}

	membership.UpdatedAt = now
	if err := saveMembership(membershipRepo, membership); err != nil {
		return nil, err
	}
	return &stampOutcome{
		membership: membership,
		state:      buildMembershipState(membership, transition.Status),
		transition: transition,
		at:         stampedAt,
	}, nil
}

// saveMembership 按版本号写回会员卡，版本冲突或兑换码唯一冲突视为并发冲突
func saveMembership(repo repository.MembershipRepository, membership *models.Membership) error {
	ok, err := repo.UpdateWithVersion(membership)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return ErrConcurrencyConflict
		}
		return storageError(err)
	}
	if !ok {
		return ErrConcurrencyConflict
	}
	return nil
}

func (s *StampLedgerService) afterCommit(ctx context.Context, outcome *stampOutcome) {
	if outcome == nil || outcome.membership == nil {
		return
	}
	membership := outcome.membership
	if outcome.replayed {
		logger.Infow("stamp_replayed",
			"membership_id", membership.ID,
			"status", outcome.state.Status,
			"cycle_stamp_count", outcome.state.CycleStampCount,
		)
		return
	}
	s.effects.invalidate(ctx, membership)
	if outcome.transition.VoucherMinted {
		s.metrics.RecordVoucherMinted()
	}
	if outcome.transition.Changed() {
		s.effects.notify(ctx, membership, outcome.transition.PreviousStatus, outcome.transition.Status, outcome.at)
	}
	logger.Infow("stamp_recorded",
		"membership_id", membership.ID,
		"status", outcome.transition.Status,
		"previous_status", outcome.transition.PreviousStatus,
		"cycle_stamp_count", membership.CycleStampCount,
		"threshold", membership.CycleThreshold,
		"voucher_minted", outcome.transition.VoucherMinted,
		"voucher_cleared", outcome.transition.VoucherCleared,
	)
}
