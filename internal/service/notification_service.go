package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stamp-next/internal/cache"
	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/i18n"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/models"
	"github.com/stamp-next/internal/queue"
	"github.com/stamp-next/internal/repository"
)

var notificationTemplateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

const notificationDedupeTTL = 24 * time.Hour

// ErrNotificationSendFailed 通知发送失败
var ErrNotificationSendFailed = errors.New("notification send failed")

// NotificationSender 通知发送通道
type NotificationSender interface {
	Send(ctx context.Context, channel, recipient, title, body string) error
}

// LogNotificationSender 模拟推送与邮件发送，只写日志
type LogNotificationSender struct{}

// Send 记录一条模拟发送日志
func (LogNotificationSender) Send(_ context.Context, channel, recipient, title, body string) error {
	logger.Infow("notification_simulated_send",
		"channel", channel,
		"recipient", recipient,
		"title", title,
		"body", body,
	)
	return nil
}

// NotificationService 会员卡状态通知投递（由队列消费者调用）
type NotificationService struct {
	customerRepo repository.CustomerRepository
	sender       NotificationSender
}

// NewNotificationService 创建通知投递服务
func NewNotificationService(customerRepo repository.CustomerRepository, sender NotificationSender) *NotificationService {
	if sender == nil {
		sender = LogNotificationSender{}
	}
	return &NotificationService{customerRepo: customerRepo, sender: sender}
}

// Dispatch 投递一条会员卡状态变更通知，同一事件重复投递时跳过
func (s *NotificationService) Dispatch(ctx context.Context, payload queue.MembershipStatusNotifyPayload) error {
	if s == nil || payload.MembershipID == 0 {
		return nil
	}
	status := strings.ToLower(strings.TrimSpace(payload.Status))
	if !isNotifiableStatus(status) {
		return nil
	}

	customer, err := s.customerRepo.GetByID(payload.CustomerID)
	if err != nil {
		return err
	}
	if customer == nil || customer.Status != constants.CustomerStatusActive {
		logger.Infow("notification_skipped_customer_inactive",
			"membership_id", payload.MembershipID,
			"customer_id", payload.CustomerID,
		)
		return nil
	}

	ok, err := cache.Claim(ctx, buildNotificationDedupeKey(payload), notificationDedupeTTL)
	if err != nil {
		logger.Warnw("notification_dedupe_failed", "membership_id", payload.MembershipID, "error", err)
	}
	if err == nil && !ok {
		return nil
	}

	locale := i18n.NormalizeLocale(customer.Locale)
	if locale == "" {
		locale = i18n.DefaultLocale
	}
	variables := buildNotificationTemplateVariables(payload)
	title := renderNotificationTemplate(i18n.T(locale, "notify."+status+".title"), variables)
	body := renderNotificationTemplate(i18n.T(locale, "notify."+status+".body"), variables)
	if strings.TrimSpace(body) == "" {
		body = title
	}

	var firstErr error
	for _, target := range notificationTargets(customer) {
		if err := s.sender.Send(ctx, target.channel, target.recipient, title, body); err != nil {
			logger.Warnw("notification_send_failed",
				"membership_id", payload.MembershipID,
				"channel", target.channel,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		// 发送失败时释放去重键，让队列重试重新投递
		if delErr := cache.Release(ctx, buildNotificationDedupeKey(payload)); delErr != nil {
			logger.Warnw("notification_dedupe_release_failed", "membership_id", payload.MembershipID, "error", delErr)
		}
		return fmt.Errorf("%w: %v", ErrNotificationSendFailed, firstErr)
	}
	return nil
}

type notificationTarget struct {
	channel   string
	recipient string
}

func notificationTargets(customer *models.Customer) []notificationTarget {
	targets := []notificationTarget{{
		channel:   constants.NotifyChannelPush,
		recipient: fmt.Sprintf("customer:%d", customer.ID),
	}}
	if email := strings.TrimSpace(customer.Email); email != "" {
		targets = append(targets, notificationTarget{channel: constants.NotifyChannelEmail, recipient: email})
	}
	return targets
}

func isNotifiableStatus(status string) bool {
	switch status {
	case constants.MembershipStatusRedeemable,
		constants.MembershipStatusRedeemed,
		constants.MembershipStatusExpired,
		constants.MembershipStatusInactive:
		return true
	}
	return false
}

func buildNotificationDedupeKey(payload queue.MembershipStatusNotifyPayload) string {
	signature := fmt.Sprintf("%d|%s|%s|%d",
		payload.MembershipID,
		strings.ToLower(strings.TrimSpace(payload.PreviousStatus)),
		strings.ToLower(strings.TrimSpace(payload.Status)),
		payload.OccurredAt.UnixNano(),
	)
	hash := sha1.Sum([]byte(signature))
	return "notification:dedupe:" + hex.EncodeToString(hash[:])
}

func buildNotificationTemplateVariables(payload queue.MembershipStatusNotifyPayload) map[string]interface{} {
	data := map[string]interface{}{
		"membership_id":     payload.MembershipID,
		"program_id":        payload.ProgramID,
		"status":            payload.Status,
		"cycle_stamp_count": payload.CycleStampCount,
		"threshold":         payload.CycleThreshold,
		"occurred_at":       payload.OccurredAt.Format("2006-01-02 15:04:05"),
	}
	if payload.VoucherExpiresAt != nil {
		data["voucher_expires_at"] = payload.VoucherExpiresAt.Format("2006-01-02 15:04")
	}
	return data
}

func renderNotificationTemplate(template string, variables map[string]interface{}) string {
	template = strings.TrimSpace(template)
	if template == "" {
		return ""
	}
	return notificationTemplateVarPattern.ReplaceAllStringFunc(template, func(matched string) string {
		submatch := notificationTemplateVarPattern.FindStringSubmatch(matched)
		if len(submatch) != 2 {
			return matched
		}
		value, ok := variables[strings.TrimSpace(submatch[1])]
		if !ok {
			return ""
		}
		return strings.TrimSpace(fmt.Sprintf("%v", value))
	})
}
