package service

import (
	"context"
	"errors"
	"time"

	"github.com/stamp-next/internal/cache"
	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/metrics"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScanService 扫码入口：串联令牌、防作弊、账本与核销
type ScanService struct {
	membershipRepo repository.MembershipRepository
	programRepo    repository.ProgramRepository
	customerRepo   repository.CustomerRepository
	tokens         *QRTokenService
	guard          *FraudGuard
	ledger         *StampLedgerService
	redemption     *RedemptionService
	engine         *RewardCycleEngine
	retry          RetryPolicy
	clock          Clock
	metrics        *metrics.Collector
}

// ScanServiceDeps 扫码服务依赖
type ScanServiceDeps struct {
	MembershipRepo repository.MembershipRepository
	ProgramRepo    repository.ProgramRepository
	CustomerRepo   repository.CustomerRepository
	Tokens         *QRTokenService
	Guard          *FraudGuard
	Ledger         *StampLedgerService
	Redemption     *RedemptionService
	Engine         *RewardCycleEngine
	Retry          RetryPolicy
	Clock          Clock
	Metrics        *metrics.Collector
}

// NewScanService 创建扫码服务
func NewScanService(deps ScanServiceDeps) *ScanService {
	return &ScanService{
		membershipRepo: deps.MembershipRepo,
		programRepo:    deps.ProgramRepo,
		customerRepo:   deps.CustomerRepo,
		tokens:         deps.Tokens,
		guard:          deps.Guard,
		ledger:         deps.Ledger,
		redemption:     deps.Redemption,
		engine:         deps.Engine,
		retry:          deps.Retry,
		clock:          clockOrSystem(deps.Clock),
		metrics:        deps.Metrics,
	}
}

// ScanResult 扫码结果
type ScanResult struct {
	Kind         string           `json:"kind"`
	MembershipID uint             `json:"membership_id"`
	State        *MembershipState `json:"state,omitempty"`
}

// HandleScan 按扫码类型分发
func (s *ScanService) HandleScan(ctx context.Context, actor Actor, request ScanRequest) (*ScanResult, error) {
	switch scan := request.(type) {
	case JoinScan:
		membershipID, err := s.ScanJoin(ctx, actor, scan)
		if err != nil {
			return nil, err
		}
		state, err := s.GetMembershipState(ctx, membershipID)
		if err != nil {
			return nil, err
		}
		return &ScanResult{Kind: scan.Kind(), MembershipID: membershipID, State: state}, nil
	case StampScan:
		state, err := s.ScanStamp(ctx, actor, scan)
		if err != nil {
			return nil, err
		}
		return &ScanResult{Kind: scan.Kind(), MembershipID: state.MembershipID, State: state}, nil
	case RedeemScan:
		state, err := s.ScanRedeem(ctx, actor, scan)
		if err != nil {
			return nil, err
		}
		return &ScanResult{Kind: scan.Kind(), MembershipID: state.MembershipID, State: state}, nil
	}
	return nil, ErrScanPayloadInvalid
}

// decodeScanToken 验签并校验用途；过期令牌连同解析结果一起返回，由调用方决定是否先做幂等重放
func (s *ScanService) decodeScanToken(encoded, purpose string) (*DecodedToken, error) {
	decoded, err := s.tokens.Decode(encoded)
	if decoded == nil {
		return nil, err
	}
	if decoded.Purpose != purpose {
		return nil, ErrTokenInvalid
	}
	return decoded, err
}

// ScanJoin 顾客扫描入会码，成功返回会员卡ID
func (s *ScanService) ScanJoin(ctx context.Context, actor Actor, scan JoinScan) (membershipID uint, err error) {
	defer func() { s.recordScan(constants.ScanKindJoin, err) }()
	if !actor.IsCustomer() {
		return 0, ErrActorNotAllowed
	}
	decoded, err := s.decodeScanToken(scan.Token, constants.TokenPurposeJoin)
	if err != nil {
		return 0, err
	}

	var rejection error
	var created *models.Membership
	err = s.retry.run(ctx, "scan_join", s.metrics, func() error {
		rejection, created = nil, nil
		txErr := s.membershipRepo.Transaction(func(tx *gorm.DB) error {
			program, err := s.programRepo.WithTx(tx).GetByIDWithMerchant(decoded.SubjectID)
			if err != nil {
				return storageError(err)
			}
			var merchant *models.Merchant
			if program != nil {
				merchant = program.Merchant
			}
			verdict, err := s.guard.Evaluate(tx, ScanCheck{Token: decoded, Merchant: merchant, Geo: scan.Geo, ScannerType: actor.Type})
			if err != nil {
				return err
			}
			if !verdict.Allowed() {
				rejection = verdict.Reason
				return nil
			}
			if program == nil || program.Status != constants.ProgramStatusActive {
				rejection = ErrProgramInactive
				return nil
			}
			customer, err := s.customerRepo.WithTx(tx).GetByID(actor.ID)
			if err != nil {
				return storageError(err)
			}
			if customer == nil || customer.Status != constants.CustomerStatusActive {
				rejection = ErrCustomerInactive
				return nil
			}
			membershipRepo := s.membershipRepo.WithTx(tx)
			existing, err := membershipRepo.GetByCustomerProgram(customer.ID, program.ID)
			if err != nil {
				return storageError(err)
			}
			if existing != nil {
				rejection = ErrDuplicateJoin
				return nil
			}
			now := s.clock.Now()
			membership := &models.Membership{
				CustomerID:     customer.ID,
				ProgramID:      program.ID,
				Status:         constants.MembershipStatusInactive,
				CycleThreshold: program.RewardThreshold,
				CycleStartedAt: now,
				EnrolledAt:     now,
			}
			if err := membershipRepo.Create(membership); err != nil {
				// 并发入会：回滚后重试，下一轮会命中已存在的会员卡
				if repository.IsUniqueViolation(err) {
					return ErrConcurrencyConflict
				}
				return storageError(err)
			}
			created = membership
			return nil
		})
		return transactionError(txErr)
	})
	if err != nil {
		s.logScanFailure(constants.ScanKindJoin, decoded.SubjectID, err)
		return 0, err
	}
	if rejection != nil {
		s.logScanRejected(constants.ScanKindJoin, decoded.SubjectID, rejection)
		return 0, rejection
	}
	logger.Infow("scan_join_accepted",
		"membership_id", created.ID,
		"program_id", created.ProgramID,
		"customer_id", created.CustomerID,
	)
	return created.ID, nil
}

// ScanStamp 扫描盖章码；流水号已记录时直接返回首次结果，不再消费令牌
func (s *ScanService) ScanStamp(ctx context.Context, actor Actor, scan StampScan) (state *MembershipState, err error) {
	defer func() { s.recordScan(constants.ScanKindStamp, err) }()
	decoded, decodeErr := s.decodeScanToken(scan.Token, constants.TokenPurposeStamp)
	if decoded == nil {
		return nil, decodeErr
	}
	txID := scan.TxID
	if txID == "" {
		txID = uuid.NewString()
	}
	if txID, err = normalizeTxID(txID); err != nil {
		return nil, err
	}

	var rejection error
	var outcome *stampOutcome
	err = s.retry.run(ctx, "scan_stamp", s.metrics, func() error {
		rejection, outcome = nil, nil
		txErr := s.membershipRepo.Transaction(func(tx *gorm.DB) error {
			membership, err := s.ledger.lockMembership(tx, decoded.SubjectID)
			if err != nil {
				return err
			}
			program, err := s.programRepo.WithTx(tx).GetByIDWithMerchant(membership.ProgramID)
			if err != nil {
				return storageError(err)
			}
			if err := authorizeMembershipActor(actor, membership, program); err != nil {
				return err
			}
			replay, err := s.ledger.replayInTx(tx, membership, txID)
			if err != nil {
				return err
			}
			if replay != nil {
				outcome = replay
				return nil
			}
			if decodeErr != nil {
				rejection = decodeErr
				return nil
			}

			var merchant *models.Merchant
			if program != nil {
				merchant = program.Merchant
			}
			verdict, err := s.guard.Evaluate(tx, ScanCheck{
				Token:        decoded,
				Merchant:     merchant,
				Geo:          scan.Geo,
				MembershipID: membership.ID,
				ScannerType:  actor.Type,
			})
			if err != nil {
				return err
			}
			if !verdict.Allowed() {
				rejection = verdict.Reason
				return nil
			}
			if program == nil || program.Status != constants.ProgramStatusActive {
				rejection = ErrProgramInactive
				return nil
			}
			result, err := s.ledger.appendStampInTx(tx, membership, RecordStampInput{
				MembershipID: membership.ID,
				TxID:         txID,
				Actor:        actor.Label(),
				Geo:          scan.Geo,
				TokenNonce:   decoded.Nonce,
			})
			if err != nil {
				return err
			}
			outcome = result
			return nil
		})
		return transactionError(txErr)
	})
	if err != nil {
		s.logScanFailure(constants.ScanKindStamp, decoded.SubjectID, err)
		return nil, err
	}
	if rejection != nil {
		s.logScanRejected(constants.ScanKindStamp, decoded.SubjectID, rejection)
		return nil, rejection
	}
	s.ledger.afterCommit(ctx, outcome)
	return outcome.state, nil
}

// ScanRedeem 店员扫描顾客出示的核销码
func (s *ScanService) ScanRedeem(ctx context.Context, staff Actor, scan RedeemScan) (state *MembershipState, err error) {
	defer func() { s.recordScan(constants.ScanKindRedeem, err) }()
	if !staff.IsStaff() {
		return nil, ErrActorNotAllowed
	}
	decoded, err := s.decodeScanToken(scan.Token, constants.TokenPurposeRedeem)
	if err != nil {
		return nil, err
	}

	input := RedeemInput{MembershipID: decoded.SubjectID, StaffActor: staff, Channel: constants.RedeemChannelScan}
	var rejection error
	var outcome *redeemOutcome
	err = s.retry.run(ctx, "scan_redeem", s.metrics, func() error {
		rejection, outcome = nil, nil
		txErr := s.membershipRepo.Transaction(func(tx *gorm.DB) error {
			membership, err := s.ledger.lockMembership(tx, decoded.SubjectID)
			if err != nil {
				return err
			}
			program, err := s.programRepo.WithTx(tx).GetByIDWithMerchant(membership.ProgramID)
			if err != nil {
				return storageError(err)
			}
			if err := authorizeMembershipActor(staff, membership, program); err != nil {
				return err
			}
			var merchant *models.Merchant
			if program != nil {
				merchant = program.Merchant
			}
			verdict, err := s.guard.Evaluate(tx, ScanCheck{Token: decoded, Merchant: merchant, Geo: scan.Geo, ScannerType: staff.Type})
			if err != nil {
				return err
			}
			if !verdict.Allowed() {
				rejection = verdict.Reason
				return nil
			}
			// 核销码绑定会员卡，出示即视为提交当前兑换码
			redeem := input
			if membership.VoucherCode != nil {
				redeem.Code = *membership.VoucherCode
			}
			result, err := s.redemption.RedeemInTx(tx, membership, redeem)
			if err != nil {
				return err
			}
			outcome = result
			return nil
		})
		return transactionError(txErr)
	})
	if err != nil {
		s.logScanFailure(constants.ScanKindRedeem, decoded.SubjectID, err)
		return nil, err
	}
	if rejection != nil {
		s.logScanRejected(constants.ScanKindRedeem, decoded.SubjectID, rejection)
		return nil, rejection
	}
	s.redemption.afterCommit(ctx, input, outcome)
	if outcome.rejection != nil {
		return nil, outcome.rejection
	}
	return outcome.state, nil
}

// ManualRedeem 店员手动输入兑换码核销
func (s *ScanService) ManualRedeem(ctx context.Context, staff Actor, membershipID uint, code string) (*MembershipState, error) {
	if !staff.IsStaff() {
		return nil, ErrActorNotAllowed
	}
	if _, err := s.loadAuthorizedMembership(staff, membershipID); err != nil {
		return nil, err
	}
	return s.redemption.Redeem(ctx, RedeemInput{
		MembershipID: membershipID,
		Code:         code,
		StaffActor:   staff,
		Channel:      constants.RedeemChannelManual,
	})
}

// GetMembershipState 读取会员卡当前状态，不加锁，按当前时间派生
func (s *ScanService) GetMembershipState(ctx context.Context, membershipID uint) (*MembershipState, error) {
	membership, err := s.readMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	return buildMembershipState(membership, s.engine.Derive(membership, s.clock.Now())), nil
}

// GetMembershipStateFor 带权限校验的状态读取
func (s *ScanService) GetMembershipStateFor(ctx context.Context, actor Actor, membershipID uint) (*MembershipState, error) {
	membership, err := s.readMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(actor, membership); err != nil {
		return nil, err
	}
	return buildMembershipState(membership, s.engine.Derive(membership, s.clock.Now())), nil
}

// ListStampsFor 带权限校验的印章记录查询
func (s *ScanService) ListStampsFor(ctx context.Context, actor Actor, membershipID uint, page, pageSize int) ([]models.StampEvent, int64, error) {
	if _, err := s.loadAuthorizedMembership(actor, membershipID); err != nil {
		return nil, 0, err
	}
	return s.ledger.ListStamps(ctx, membershipID, page, pageSize)
}

// ListMembershipsFor 顾客查询自己的全部会员卡
func (s *ScanService) ListMembershipsFor(ctx context.Context, customer Actor) ([]*MembershipState, error) {
	_ = ctx
	if !customer.IsCustomer() {
		return nil, ErrActorNotAllowed
	}
	memberships, err := s.membershipRepo.ListByCustomer(customer.ID)
	if err != nil {
		return nil, storageError(err)
	}
	now := s.clock.Now()
	states := make([]*MembershipState, 0, len(memberships))
	for i := range memberships {
		states = append(states, buildMembershipState(&memberships[i], s.engine.Derive(&memberships[i], now)))
	}
	return states, nil
}

// ListRedemptionsFor 店员查询本商户会员卡的核销记录
func (s *ScanService) ListRedemptionsFor(ctx context.Context, staff Actor, membershipID uint, page, pageSize int) ([]models.VoucherRedemption, int64, error) {
	if !staff.IsStaff() {
		return nil, 0, ErrActorNotAllowed
	}
	if _, err := s.loadAuthorizedMembership(staff, membershipID); err != nil {
		return nil, 0, err
	}
	return s.redemption.ListRedemptions(ctx, repository.RedemptionListFilter{
		Page:         page,
		PageSize:     pageSize,
		MembershipID: membershipID,
	})
}

// IssueMembershipToken 顾客为自己的会员卡生成盖章码或核销码
func (s *ScanService) IssueMembershipToken(ctx context.Context, customer Actor, membershipID uint, purpose string) (*IssuedToken, error) {
	if !customer.IsCustomer() {
		return nil, ErrActorNotAllowed
	}
	if purpose != constants.TokenPurposeStamp && purpose != constants.TokenPurposeRedeem {
		return nil, ErrTokenRequestInvalid
	}
	if _, err := s.loadAuthorizedMembership(customer, membershipID); err != nil {
		return nil, err
	}
	return s.tokens.IssueToken(ctx, IssueTokenInput{
		Purpose:   purpose,
		SubjectID: membershipID,
		IssuedBy:  customer.IssuerLabel(),
	})
}

// IssueJoinToken 店员为本商户的集章计划生成入会码
func (s *ScanService) IssueJoinToken(ctx context.Context, staff Actor, programID uint, ttl time.Duration) (*IssuedToken, error) {
	if !staff.IsStaff() {
		return nil, ErrActorNotAllowed
	}
	program, err := s.programRepo.GetByID(programID)
	if err != nil {
		return nil, storageError(err)
	}
	if program == nil || program.Status != constants.ProgramStatusActive {
		return nil, ErrProgramInactive
	}
	if program.MerchantID != staff.MerchantID {
		return nil, ErrActorNotAllowed
	}
	return s.tokens.IssueToken(ctx, IssueTokenInput{
		Purpose:   constants.TokenPurposeJoin,
		SubjectID: programID,
		TTL:       ttl,
		IssuedBy:  staff.Label(),
	})
}

// IssueStampToken 店员为顾客会员卡生成盖章码（顾客扫描终端屏幕）
func (s *ScanService) IssueStampToken(ctx context.Context, staff Actor, membershipID uint, ttl time.Duration) (*IssuedToken, error) {
	if !staff.IsStaff() {
		return nil, ErrActorNotAllowed
	}
	if _, err := s.loadAuthorizedMembership(staff, membershipID); err != nil {
		return nil, err
	}
	return s.tokens.IssueToken(ctx, IssueTokenInput{
		Purpose:   constants.TokenPurposeStamp,
		SubjectID: membershipID,
		TTL:       ttl,
		IssuedBy:  staff.Label(),
	})
}

// readMembership 优先读缓存快照，未命中时读库并回填；缓存中已有更新版本时不回填
func (s *ScanService) readMembership(ctx context.Context, membershipID uint) (*models.Membership, error) {
	if membershipID == 0 {
		return nil, ErrMembershipNotFound
	}
	snapshot, hit, err := cache.GetMembershipSnapshot(ctx, membershipID)
	if err != nil {
		logger.Warnw("membership_cache_read_failed", "membership_id", membershipID, "error", err)
	}
	if hit && snapshot != nil {
		return snapshot.ToModel(), nil
	}
	membership, err := s.membershipRepo.GetByID(membershipID)
	if err != nil {
		return nil, storageError(err)
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}
	written, err := cache.SetMembershipSnapshot(ctx, cache.BuildMembershipSnapshot(membership))
	if err != nil {
		logger.Warnw("membership_cache_write_failed", "membership_id", membershipID, "error", err)
	} else if !written && cache.Enabled() {
		logger.Debugw("membership_cache_backfill_skipped", "membership_id", membershipID, "version", membership.Version)
	}
	return membership, nil
}

func (s *ScanService) loadAuthorizedMembership(actor Actor, membershipID uint) (*models.Membership, error) {
	if membershipID == 0 {
		return nil, ErrMembershipNotFound
	}
	membership, err := s.membershipRepo.GetByID(membershipID)
	if err != nil {
		return nil, storageError(err)
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}
	if err := s.authorizeRead(actor, membership); err != nil {
		return nil, err
	}
	return membership, nil
}

func (s *ScanService) authorizeRead(actor Actor, membership *models.Membership) error {
	if actor.IsCustomer() {
		return authorizeMembershipActor(actor, membership, nil)
	}
	program, err := s.programRepo.GetByID(membership.ProgramID)
	if err != nil {
		return storageError(err)
	}
	return authorizeMembershipActor(actor, membership, program)
}

// authorizeMembershipActor 顾客只能操作自己的会员卡，店员只能操作本商户计划下的会员卡
func authorizeMembershipActor(actor Actor, membership *models.Membership, program *models.LoyaltyProgram) error {
	switch {
	case actor.IsCustomer():
		if membership.CustomerID != actor.ID {
			return ErrActorNotAllowed
		}
		return nil
	case actor.IsStaff():
		if program == nil {
			return ErrProgramInactive
		}
		if program.MerchantID != actor.MerchantID {
			return ErrActorNotAllowed
		}
		return nil
	}
	return ErrActorNotAllowed
}

func (s *ScanService) recordScan(kind string, err error) {
	s.metrics.RecordScan(kind, ReasonOf(err))
}

func (s *ScanService) logScanRejected(kind string, subjectID uint, reason error) {
	logger.Infow("scan_"+kind+"_rejected",
		"subject_id", subjectID,
		"reason", ReasonOf(reason),
	)
}

func (s *ScanService) logScanFailure(kind string, subjectID uint, err error) {
	if IsBusinessRejection(err) && !errors.Is(err, ErrConcurrencyConflict) {
		s.logScanRejected(kind, subjectID, err)
		return
	}
	logger.Errorw("scan_"+kind+"_failed",
		"subject_id", subjectID,
		"reason", ReasonOf(err),
		"error", err,
	)
}
