package service

import (
	"context"
	"time"

	"github.com/stamp-next/internal/cache"
	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/metrics"
	"github.com/stamp-next/internal/models"
)

// membershipEffects 事务提交后的副作用：缓存失效、状态通知与指标
type membershipEffects struct {
	notifier Notifier
	metrics  *metrics.Collector
}

func newMembershipEffects(notifier Notifier, m *metrics.Collector) *membershipEffects {
	return &membershipEffects{notifier: notifierOrNop(notifier), metrics: m}
}

// invalidate 以已提交的版本号标记缓存失效
func (e *membershipEffects) invalidate(ctx context.Context, m *models.Membership) {
	if m == nil {
		return
	}
	if err := cache.InvalidateMembershipSnapshot(ctx, m.ID, m.Version); err != nil {
		logger.Warnw("membership_cache_invalidate_failed",
			"membership_id", m.ID,
			"version", m.Version,
			"error", err,
		)
	}
}

func (e *membershipEffects) notify(ctx context.Context, m *models.Membership, previous, status string, at time.Time) {
	if m == nil {
		return
	}
	e.notifier.NotifyStatusChange(ctx, MembershipStatusEvent{
		MembershipID:     m.ID,
		CustomerID:       m.CustomerID,
		ProgramID:        m.ProgramID,
		Status:           status,
		PreviousStatus:   previous,
		CycleStampCount:  m.CycleStampCount,
		Threshold:        m.CycleThreshold,
		VoucherExpiresAt: copyTime(m.VoucherExpiresAt),
		OccurredAt:       at,
	})
}
