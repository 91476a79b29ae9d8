package service

import (
	"errors"
	"fmt"

	"github.com/stamp-next/internal/repository"
)

// 令牌与防作弊错误
var (
	ErrTokenInvalid     = errors.New("token invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenAlreadyUsed = errors.New("token already used")
	ErrOutOfRange       = errors.New("scan out of range")
	ErrTooFrequent      = errors.New("stamp too frequent")
)

// 账本与奖励错误
var (
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrProgramInactive     = errors.New("program inactive")
	ErrNoPendingReward     = errors.New("no pending reward")
	ErrVoucherExpired      = errors.New("voucher expired")
	ErrCodeMismatch        = errors.New("voucher code mismatch")
	ErrDuplicateJoin       = errors.New("duplicate join")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// 边界与基础设施错误
var (
	ErrScanPayloadInvalid  = errors.New("scan payload invalid")
	ErrTokenRequestInvalid = errors.New("token request invalid")
	ErrCustomerInactive    = errors.New("customer inactive")
	ErrActorNotAllowed     = errors.New("actor not allowed")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

var reasonCodes = []struct {
	err    error
	reason string
}{
	{ErrTokenInvalid, "token_invalid"},
	{ErrTokenExpired, "token_expired"},
	{ErrTokenAlreadyUsed, "token_already_used"},
	{ErrOutOfRange, "out_of_range"},
	{ErrTooFrequent, "too_frequent"},
	{ErrMembershipNotFound, "membership_not_found"},
	{ErrProgramInactive, "program_inactive"},
	{ErrNoPendingReward, "no_pending_reward"},
	{ErrVoucherExpired, "voucher_expired"},
	{ErrCodeMismatch, "code_mismatch"},
	{ErrDuplicateJoin, "duplicate_join"},
	{ErrConcurrencyConflict, "concurrency_conflict"},
	{ErrScanPayloadInvalid, "scan_payload_invalid"},
	{ErrTokenRequestInvalid, "token_request_invalid"},
	{ErrCustomerInactive, "customer_inactive"},
	{ErrActorNotAllowed, "actor_not_allowed"},
	{ErrStorageUnavailable, "storage_unavailable"},
}

// ReasonOf 将错误映射为稳定的原因码，nil 返回 ok，未知错误归为 storage_unavailable
func ReasonOf(err error) string {
	if err == nil {
		return "ok"
	}
	for _, item := range reasonCodes {
		if errors.Is(err, item.err) {
			return item.reason
		}
	}
	return "storage_unavailable"
}

// IsBusinessRejection 判断是否为可预期的业务拒绝（非基础设施故障）
func IsBusinessRejection(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrStorageUnavailable) && ReasonOf(err) != "storage_unavailable"
}

// storageError 归类仓储层错误：锁冲突可重试，其余视为存储不可用
func storageError(err error) error {
	if err == nil {
		return nil
	}
	if repository.IsLockConflict(err) {
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// transactionError 归类事务返回的错误，已归类的业务错误原样返回
func transactionError(err error) error {
	if err == nil {
		return nil
	}
	for _, item := range reasonCodes {
		if errors.Is(err, item.err) {
			return err
		}
	}
	return storageError(err)
}

// isInfraError 判断是否为需要回滚事务的基础设施错误
func isInfraError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrConcurrencyConflict)
}
