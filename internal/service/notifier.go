package service

import (
	"context"
	"time"

	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/metrics"
	"github.com/stamp-next/internal/queue"
)

// MembershipStatusEvent 会员卡状态变更事件
type MembershipStatusEvent struct {
	MembershipID     uint
	CustomerID       uint
	ProgramID        uint
	Status           string
	PreviousStatus   string
	CycleStampCount  int
	Threshold        int
	VoucherExpiresAt *time.Time
	OccurredAt       time.Time
}

// Notifier 状态变更通知（发后即忘，投递失败由实现自行吞掉）
type Notifier interface {
	NotifyStatusChange(ctx context.Context, event MembershipStatusEvent)
}

// NopNotifier 空实现
type NopNotifier struct{}

// NotifyStatusChange 忽略事件
func (NopNotifier) NotifyStatusChange(context.Context, MembershipStatusEvent) {}

// QueueNotifier 通过异步队列投递状态变更通知
type QueueNotifier struct {
	client  *queue.Client
	metrics *metrics.Collector
}

// NewQueueNotifier 创建队列通知器
func NewQueueNotifier(client *queue.Client, m *metrics.Collector) *QueueNotifier {
	return &QueueNotifier{client: client, metrics: m}
}

// NotifyStatusChange 入队通知任务，失败只记录日志
func (n *QueueNotifier) NotifyStatusChange(_ context.Context, event MembershipStatusEvent) {
	if n == nil || n.client == nil || !n.client.Enabled() {
		logger.Debugw("membership_notify_skip_queue_disabled",
			"membership_id", event.MembershipID,
			"status", event.Status,
		)
		return
	}
	err := n.client.EnqueueMembershipStatusNotify(queue.MembershipStatusNotifyPayload{
		MembershipID:     event.MembershipID,
		CustomerID:       event.CustomerID,
		ProgramID:        event.ProgramID,
		Status:           event.Status,
		PreviousStatus:   event.PreviousStatus,
		CycleStampCount:  event.CycleStampCount,
		CycleThreshold:   event.Threshold,
		VoucherExpiresAt: event.VoucherExpiresAt,
		OccurredAt:       event.OccurredAt,
	})
	if err != nil {
		n.metrics.RecordNotifyEnqueueFailed()
		logger.Warnw("membership_notify_enqueue_failed",
			"membership_id", event.MembershipID,
			"status", event.Status,
			"error", err,
		)
	}
}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return NopNotifier{}
	}
	return n
}
