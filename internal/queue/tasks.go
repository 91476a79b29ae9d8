package queue

import (
	"encoding/json"
	"time"

	"github.com/stamp-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskMembershipStatusNotify 会员卡状态变更通知任务
	TaskMembershipStatusNotify = constants.TaskMembershipStatusNotify
)

// MembershipStatusNotifyPayload 会员卡状态变更通知任务载荷
type MembershipStatusNotifyPayload struct {
	MembershipID     uint       `json:"membership_id"`
	CustomerID       uint       `json:"customer_id"`
	ProgramID        uint       `json:"program_id"`
	Status           string     `json:"status"`
	PreviousStatus   string     `json:"previous_status"`
	CycleStampCount  int        `json:"cycle_stamp_count"`
	CycleThreshold   int        `json:"cycle_threshold"`
	VoucherExpiresAt *time.Time `json:"voucher_expires_at,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// NewMembershipStatusNotifyTask 创建会员卡状态变更通知任务
func NewMembershipStatusNotifyTask(payload MembershipStatusNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMembershipStatusNotify, body), nil
}

// ParseMembershipStatusNotifyPayload 解析会员卡状态变更通知任务载荷
func ParseMembershipStatusNotifyPayload(task *asynq.Task) (MembershipStatusNotifyPayload, error) {
	var payload MembershipStatusNotifyPayload
	if task == nil {
		return payload, nil
	}
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}
