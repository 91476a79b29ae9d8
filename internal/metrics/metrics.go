package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stamp"

// Collector 指标收集器
// 所有方法均允许 nil 接收者，未启用指标时调用方无需判空
type Collector struct {
	registry *prometheus.Registry

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 业务指标
	scansTotal          *prometheus.CounterVec
	tokensIssuedTotal   *prometheus.CounterVec
	tokensPurgedTotal   prometheus.Counter
	vouchersMintedTotal prometheus.Counter
	redemptionsTotal    *prometheus.CounterVec
	conflictRetries     *prometheus.CounterVec
	notifyEnqueueFailed prometheus.Counter
	notifyDispatched    *prometheus.CounterVec
}

// New 创建指标收集器（独立 Registry）
func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Collector{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		scansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Scan attempts by kind and outcome reason",
			},
			[]string{"kind", "outcome"},
		),
		tokensIssuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "qr_tokens_issued_total",
				Help:      "QR tokens issued by purpose",
			},
			[]string{"purpose"},
		),
		tokensPurgedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "qr_tokens_purged_total",
				Help:      "Dead QR tokens removed by housekeeping",
			},
		),
		vouchersMintedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vouchers_minted_total",
				Help:      "Vouchers minted when a cycle reaches its threshold",
			},
		),
		redemptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "voucher_redemptions_total",
				Help:      "Successful voucher redemptions by channel",
			},
			[]string{"channel"},
		),
		conflictRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "membership_conflict_retries_total",
				Help:      "Concurrency conflicts retried on a membership transaction",
			},
			[]string{"operation"},
		),
		notifyEnqueueFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notify_enqueue_failed_total",
				Help:      "Status notifications that could not be enqueued",
			},
		),
		notifyDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dispatched_total",
				Help:      "Membership status notifications handled by the worker",
			},
			[]string{"status", "outcome"},
		),
	}
}

// Handler 返回 /metrics 处理器
func (m *Collector) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层 Registry
func (m *Collector) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP 记录 HTTP 请求
func (m *Collector) ObserveHTTP(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if path == "" {
		path = "unmatched"
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordScan 记录扫码结果，outcome 为 ok 或错误原因码
func (m *Collector) RecordScan(kind, outcome string) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordTokenIssued 记录令牌签发
func (m *Collector) RecordTokenIssued(purpose string) {
	if m == nil {
		return
	}
	m.tokensIssuedTotal.WithLabelValues(purpose).Inc()
}

// RecordTokensPurged 记录清理的令牌数量
func (m *Collector) RecordTokensPurged(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.tokensPurgedTotal.Add(float64(count))
}

// RecordVoucherMinted 记录兑换码生成
func (m *Collector) RecordVoucherMinted() {
	if m == nil {
		return
	}
	m.vouchersMintedTotal.Inc()
}

// RecordRedemption 记录核销成功
func (m *Collector) RecordRedemption(channel string) {
	if m == nil {
		return
	}
	m.redemptionsTotal.WithLabelValues(channel).Inc()
}

// RecordConflictRetry 记录并发冲突重试
func (m *Collector) RecordConflictRetry(operation string) {
	if m == nil {
		return
	}
	m.conflictRetries.WithLabelValues(operation).Inc()
}

// RecordNotifyEnqueueFailed 记录通知入队失败
func (m *Collector) RecordNotifyEnqueueFailed() {
	if m == nil {
		return
	}
	m.notifyEnqueueFailed.Inc()
}

// RecordNotifyDispatched 记录通知消费结果（sent / skipped / retry / dropped）
func (m *Collector) RecordNotifyDispatched(status, outcome string) {
	if m == nil {
		return
	}
	m.notifyDispatched.WithLabelValues(status, outcome).Inc()
}
