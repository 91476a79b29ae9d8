package queue

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/stamp-next/internal/config"
	"github.com/stamp-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 状态通知队列名称
	CriticalQueue = constants.QueueCritical

	notifyMaxRetry  = 5
	notifyRetention = 24 * time.Hour
)

// Client 会员卡事件投递客户端，队列关闭时所有投递静默跳过
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{client: asynq.NewClient(redisOpt(cfg))}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// EnqueueMembershipStatusNotify 推送会员卡状态变更通知任务
// 同一会员卡同一时刻的同一状态只入队一次，重复投递视为成功
func (c *Client) EnqueueMembershipStatusNotify(payload MembershipStatusNotifyPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewMembershipStatusNotifyTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{
		asynq.Queue(CriticalQueue),
		asynq.MaxRetry(notifyMaxRetry),
		asynq.Retention(notifyRetention),
		asynq.TaskID(MembershipStatusTaskID(payload)),
	}, opts...)
	_, err = c.client.Enqueue(task, options...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// MembershipStatusTaskID 状态通知任务的幂等标识
func MembershipStatusTaskID(payload MembershipStatusNotifyPayload) string {
	return fmt.Sprintf("%s:%d:%s:%d",
		TaskMembershipStatusNotify,
		payload.MembershipID,
		strings.ToLower(strings.TrimSpace(payload.Status)),
		payload.OccurredAt.UTC().UnixNano(),
	)
}

// BuildServerConfig 生成队列服务配置，critical 队列未配置权重时按默认权重补齐
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	concurrency := 10
	queues := map[string]int{DefaultQueue: 1, CriticalQueue: 2}
	if cfg != nil {
		if cfg.Concurrency > 0 {
			concurrency = cfg.Concurrency
		}
		if len(cfg.Queues) > 0 {
			queues = make(map[string]int, len(cfg.Queues)+1)
			for name, weight := range cfg.Queues {
				if weight > 0 {
					queues[name] = weight
				}
			}
			if _, ok := queues[CriticalQueue]; !ok {
				queues[CriticalQueue] = 2
			}
		}
	}
	return redisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func redisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}
	if cfg == nil {
		return opt
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	opt.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	return opt
}
