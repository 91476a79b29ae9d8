package service

import (
	"time"

	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/repository"

	"gorm.io/gorm"
)

// FraudOptions 防作弊参数
type FraudOptions struct {
	GeofenceRadiusMeters int
	StampCooldown        time.Duration
	AllowMissingGeo      bool
}

// ScanCheck 一次扫码的校验上下文
type ScanCheck struct {
	Token        *DecodedToken
	Merchant     *models.Merchant
	Geo          *models.GeoPoint
	MembershipID uint   // 非零时执行盖章冷却校验
	ScannerType  string // 扫码方类型，不得与令牌签发方相同
}

// Verdict 防作弊结论，Reason 为 nil 表示放行
type Verdict struct {
	Reason         error
	DistanceMeters float64
	DegradedTrust  bool
}

// Allowed 是否放行
func (v Verdict) Allowed() bool {
	return v.Reason == nil
}

// FraudGuard 防作弊守卫：令牌消费、地理围栏、盖章冷却
type FraudGuard struct {
	tokens    *QRTokenService
	stampRepo repository.StampEventRepository
	opts      FraudOptions
	clock     Clock
}

// NewFraudGuard 创建防作弊守卫
func NewFraudGuard(tokens *QRTokenService, stampRepo repository.StampEventRepository, opts FraudOptions, clock Clock) *FraudGuard {
	return &FraudGuard{
		tokens:    tokens,
		stampRepo: stampRepo,
		opts:      opts,
		clock:     clockOrSystem(clock),
	}
}

// Evaluate 在调用方事务内执行校验
// 令牌在地理与冷却校验之前消费，被拒绝的扫码同样烧掉令牌
// 扫码方必须是签发方的对手方：顾客不能扫自己出示的码，店员不能扫自己生成的码
// 返回 error 仅表示存储故障或并发冲突
func (g *FraudGuard) Evaluate(tx *gorm.DB, check ScanCheck) (Verdict, error) {
	if check.Token != nil {
		row, err := g.tokens.ConsumeInTx(tx, check.Token)
		if err != nil {
			if isInfraError(err) {
				return Verdict{}, err
			}
			return Verdict{Reason: err}, nil
		}
		if issuer := issuerActorType(row.IssuedBy); issuer != "" && issuer == check.ScannerType {
			logger.Warnw("fraud_guard_self_issued_token",
				"nonce", row.Nonce,
				"purpose", row.Purpose,
				"issued_by", row.IssuedBy,
			)
			return Verdict{Reason: ErrTokenInvalid}, nil
		}
	}

	verdict := g.checkGeofence(check.Merchant, check.Geo)
	if !verdict.Allowed() {
		return verdict, nil
	}

	if check.MembershipID != 0 && g.opts.StampCooldown > 0 {
		last, err := g.stampRepo.WithTx(tx).LatestStampedAt(check.MembershipID)
		if err != nil {
			return Verdict{}, storageError(err)
		}
		if last != nil && g.clock.Now().Sub(*last) < g.opts.StampCooldown {
			verdict.Reason = ErrTooFrequent
			return verdict, nil
		}
	}
	return verdict, nil
}

func (g *FraudGuard) checkGeofence(merchant *models.Merchant, geo *models.GeoPoint) Verdict {
	if merchant == nil || !merchant.HasLocation() {
		logger.Infow("fraud_guard_degraded_trust",
			"merchant_id", merchantID(merchant),
			"reason", "merchant_location_missing",
		)
		return Verdict{DegradedTrust: true}
	}
	if geo == nil {
		if g.opts.AllowMissingGeo {
			logger.Infow("fraud_guard_degraded_trust",
				"merchant_id", merchant.ID,
				"reason", "scan_location_missing",
			)
			return Verdict{DegradedTrust: true}
		}
		return Verdict{Reason: ErrOutOfRange}
	}
	radius := g.opts.GeofenceRadiusMeters
	if merchant.GeofenceRadiusMeters > 0 {
		radius = merchant.GeofenceRadiusMeters
	}
	registered := models.GeoPoint{Latitude: *merchant.Latitude, Longitude: *merchant.Longitude}
	distance := distanceMeters(registered, *geo)
	verdict := Verdict{DistanceMeters: distance}
	if radius > 0 && distance > float64(radius) {
		verdict.Reason = ErrOutOfRange
		logger.Infow("fraud_guard_out_of_range",
			"merchant_id", merchant.ID,
			"distance_meters", int(distance),
			"radius_meters", radius,
		)
	}
	return verdict
}

func merchantID(m *models.Merchant) uint {
	if m == nil {
		return 0
	}
	return m.ID
}
