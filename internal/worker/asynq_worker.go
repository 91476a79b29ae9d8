package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/provider"
	"github.com/stamp-next/internal/queue"
	"github.com/stamp-next/internal/service"

	"github.com/hibiken/asynq"
)

// 通知消费结果
const (
	notifyOutcomeSent    = "sent"
	notifyOutcomeSkipped = "skipped"
	notifyOutcomeRetry   = "retry"
	notifyOutcomeDropped = "dropped"
)

// Consumer 会员卡事件消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{Container: c}
}

// Register 注册任务处理函数
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskMembershipStatusNotify, c.handleMembershipStatusNotify)
}

// handleMembershipStatusNotify 投递会员卡状态通知
// 载荷损坏时不再重试，发送失败时返回错误交给队列退避重试
func (c *Consumer) handleMembershipStatusNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || task == nil {
		return nil
	}
	payload, err := queue.ParseMembershipStatusNotifyPayload(task)
	if err != nil {
		logger.Warnw("worker_membership_status_notify_unmarshal_failed", "error", err)
		c.Metrics.RecordNotifyDispatched("unknown", notifyOutcomeDropped)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	log := logger.SW(
		"membership_id", payload.MembershipID,
		"customer_id", payload.CustomerID,
		"status", payload.Status,
	)
	if payload.MembershipID == 0 || payload.CustomerID == 0 {
		log.Debugw("worker_membership_status_notify_skip_invalid_payload")
		c.Metrics.RecordNotifyDispatched(payload.Status, notifyOutcomeSkipped)
		return nil
	}
	if c.NotificationService == nil {
		log.Warnw("worker_membership_status_notify_service_unavailable")
		c.Metrics.RecordNotifyDispatched(payload.Status, notifyOutcomeSkipped)
		return nil
	}

	err = c.NotificationService.Dispatch(ctx, payload)
	switch {
	case err == nil:
		c.Metrics.RecordNotifyDispatched(payload.Status, notifyOutcomeSent)
		return nil
	case errors.Is(err, service.ErrNotificationSendFailed):
		retried, _ := asynq.GetRetryCount(ctx)
		log.Warnw("worker_membership_status_notify_dispatch_failed", "retry", retried, "error", err)
		c.Metrics.RecordNotifyDispatched(payload.Status, notifyOutcomeRetry)
		return err
	default:
		log.Errorw("worker_membership_status_notify_dispatch_error", "error", err)
		c.Metrics.RecordNotifyDispatched(payload.Status, notifyOutcomeRetry)
		return err
	}
}
