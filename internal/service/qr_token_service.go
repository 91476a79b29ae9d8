package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/metrics"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
	"gorm.io/gorm"
)

const (
	qrTokenKeyInfo   = "stamp-next qr token v1"
	qrTokenNonceSize = 16
	maxEncodedToken  = 2048
)

// TokenOptions 二维码令牌参数
type TokenOptions struct {
	Secret     string
	DefaultTTL map[string]time.Duration
	MaxTTL     time.Duration
}

// IssueTokenInput 签发令牌参数
type IssueTokenInput struct {
	Purpose   string
	SubjectID uint
	TTL       time.Duration
	IssuedBy  string
}

// IssuedToken 签发结果
type IssuedToken struct {
	Token     string    `json:"token"`
	Purpose   string    `json:"purpose"`
	SubjectID uint      `json:"subject_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DecodedToken 验签后的令牌内容
type DecodedToken struct {
	Nonce     string
	Purpose   string
	SubjectID uint
	ExpiresAt time.Time
}

type qrClaims struct {
	Purpose string `json:"pur"`
	jwt.RegisteredClaims
}

// QRTokenService 二维码令牌服务
type QRTokenService struct {
	repo       repository.QRTokenRepository
	signingKey []byte
	opts       TokenOptions
	retry      RetryPolicy
	clock      Clock
	metrics    *metrics.Collector
}

// NewQRTokenService 创建二维码令牌服务，签名密钥由配置密钥经 HKDF-SHA256 派生
func NewQRTokenService(repo repository.QRTokenRepository, opts TokenOptions, retry RetryPolicy, clock Clock, m *metrics.Collector) (*QRTokenService, error) {
	secret := strings.TrimSpace(opts.Secret)
	if secret == "" {
		return nil, errors.New("qr token secret is empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(qrTokenKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive qr token key: %w", err)
	}
	if opts.MaxTTL <= 0 {
		opts.MaxTTL = 24 * time.Hour
	}
	return &QRTokenService{
		repo:       repo,
		signingKey: key,
		opts:       opts,
		retry:      retry,
		clock:      clockOrSystem(clock),
		metrics:    m,
	}, nil
}

func isValidTokenPurpose(purpose string) bool {
	switch purpose {
	case constants.TokenPurposeJoin, constants.TokenPurposeStamp, constants.TokenPurposeRedeem:
		return true
	}
	return false
}

func tokenLiveKey(purpose string, subjectID uint) string {
	return fmt.Sprintf("%s:%d", purpose, subjectID)
}

func (s *QRTokenService) resolveTTL(purpose string, ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = s.opts.DefaultTTL[purpose]
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if ttl > s.opts.MaxTTL {
		ttl = s.opts.MaxTTL
	}
	return ttl
}

// IssueToken 签发令牌，并在同一事务内作废同一主体同一用途的旧令牌
func (s *QRTokenService) IssueToken(ctx context.Context, input IssueTokenInput) (*IssuedToken, error) {
	purpose := strings.TrimSpace(input.Purpose)
	if !isValidTokenPurpose(purpose) || input.SubjectID == 0 {
		return nil, ErrTokenRequestInvalid
	}
	ttl := s.resolveTTL(purpose, input.TTL)

	var issued *IssuedToken
	err := s.retry.run(ctx, "issue_token", s.metrics, func() error {
		nonce, err := newTokenNonce()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		now := s.clock.Now()
		expiresAt := now.Add(ttl)
		liveKey := tokenLiveKey(purpose, input.SubjectID)
		row := &models.QRToken{
			Nonce:     nonce,
			Purpose:   purpose,
			SubjectID: input.SubjectID,
			LiveKey:   &liveKey,
			IssuedBy:  strings.TrimSpace(input.IssuedBy),
			IssuedAt:  now,
			ExpiresAt: expiresAt,
		}
		txErr := s.repo.Transaction(func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if _, err := repo.RevokeLive(liveKey, now); err != nil {
				return err
			}
			return repo.Create(row)
		})
		if txErr != nil {
			// 并发签发时唯一索引冲突，重试即可拿到新的存活位
			if repository.IsUniqueViolation(txErr) {
				return fmt.Errorf("%w: %w", ErrConcurrencyConflict, txErr)
			}
			return storageError(txErr)
		}
		encoded, err := s.sign(nonce, purpose, input.SubjectID, now, expiresAt)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		issued = &IssuedToken{
			Token:     encoded,
			Purpose:   purpose,
			SubjectID: input.SubjectID,
			ExpiresAt: expiresAt,
		}
		return nil
	})
	if err != nil {
		logger.Warnw("qr_token_issue_failed",
			"purpose", purpose,
			"subject_id", input.SubjectID,
			"error", err,
		)
		return nil, err
	}
	s.metrics.RecordTokenIssued(purpose)
	logger.Infow("qr_token_issued",
		"purpose", purpose,
		"subject_id", input.SubjectID,
		"issued_by", input.IssuedBy,
		"expires_at", issued.ExpiresAt,
	)
	return issued, nil
}

func (s *QRTokenService) sign(nonce, purpose string, subjectID uint, issuedAt, expiresAt time.Time) (string, error) {
	claims := qrClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Subject:   strconv.FormatUint(uint64(subjectID), 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// Decode 验签并解析令牌，不访问存储；过期判断基于服务时钟
func (s *QRTokenService) Decode(encoded string) (*DecodedToken, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" || len(encoded) > maxEncodedToken {
		return nil, ErrTokenInvalid
	}
	claims := &qrClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(encoded, claims, func(*jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.ID == "" || !isValidTokenPurpose(claims.Purpose) || claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}
	subjectID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || subjectID == 0 {
		return nil, ErrTokenInvalid
	}
	decoded := &DecodedToken{
		Nonce:     claims.ID,
		Purpose:   claims.Purpose,
		SubjectID: uint(subjectID),
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if s.clock.Now().After(decoded.ExpiresAt) {
		return decoded, ErrTokenExpired
	}
	return decoded, nil
}

// ConsumeToken 独立事务内验签并消费令牌
func (s *QRTokenService) ConsumeToken(ctx context.Context, encoded string) (*DecodedToken, error) {
	decoded, err := s.Decode(encoded)
	if err != nil {
		return nil, err
	}
	err = s.retry.run(ctx, "consume_token", s.metrics, func() error {
		var outcome error
		txErr := s.repo.Transaction(func(tx *gorm.DB) error {
			_, outcome = s.ConsumeInTx(tx, decoded)
			if isInfraError(outcome) {
				return outcome
			}
			return nil
		})
		if txErr != nil {
			return transactionError(txErr)
		}
		return outcome
	})
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// ConsumeInTx 在调用方事务内原子消费令牌，返回存储的令牌记录（含签发者）
// 存储记录是单次使用的权威来源：未知、已作废或与签名内容不一致的令牌视为无效
func (s *QRTokenService) ConsumeInTx(tx *gorm.DB, decoded *DecodedToken) (*models.QRToken, error) {
	if decoded == nil {
		return nil, ErrTokenInvalid
	}
	repo := s.repo.WithTx(tx)
	row, err := repo.GetByNonce(decoded.Nonce)
	if err != nil {
		return nil, storageError(err)
	}
	if row == nil || row.Purpose != decoded.Purpose || row.SubjectID != decoded.SubjectID {
		return nil, ErrTokenInvalid
	}
	if row.RevokedAt != nil {
		return row, ErrTokenInvalid
	}
	if row.ConsumedAt != nil {
		return row, ErrTokenAlreadyUsed
	}
	now := s.clock.Now()
	if now.After(row.ExpiresAt) {
		return row, ErrTokenExpired
	}
	ok, err := repo.MarkConsumed(row.Nonce, now)
	if err != nil {
		return nil, storageError(err)
	}
	if !ok {
		return row, ErrTokenAlreadyUsed
	}
	row.ConsumedAt = &now
	return row, nil
}

// issuerActorType 从签发者标识（customer:7 / staff:3）解析操作者类型，无法识别时返回空
func issuerActorType(issuedBy string) string {
	kind, _, found := strings.Cut(strings.TrimSpace(issuedBy), ":")
	if !found {
		return ""
	}
	switch kind {
	case constants.ActorTypeCustomer, constants.ActorTypeStaff:
		return kind
	}
	return ""
}

// PurgeExpired 清理早于 before 失效的令牌
func (s *QRTokenService) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	_ = ctx
	purged, err := s.repo.PurgeDead(before)
	if err != nil {
		return 0, storageError(err)
	}
	s.metrics.RecordTokensPurged(purged)
	return purged, nil
}

func newTokenNonce() (string, error) {
	buf := make([]byte, qrTokenNonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
