package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		RequestDuration, RequestTotal,
		TaskTotal, TaskErrorTotal,
		ResolveConfidence, SegmentFallbackTotal,
		MemoryBackend, MemoryQueryDuration,
		SummaryTotal, RateLimitWaitSeconds,
	)
}

// RequestDuration 一次 orchestrate 请求的耗时（秒，按入口）
var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "greenmcp_request_duration_seconds",
		Help:    "orchestrate 请求耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint"}, // chat | ask
)

// RequestTotal 请求总数（按入口）
var RequestTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "greenmcp_request_total",
		Help: "请求总数（按入口）",
	},
	[]string{"endpoint"}, // chat | ask
)

// TaskTotal 子任务总数（按目标与结果）
var TaskTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "greenmcp_task_total",
		Help: "子任务总数（按目标与结果）",
	},
	[]string{"agent", "status"}, // ok | error | denied | unregistered
)

// TaskErrorTotal 子任务错误总数
var TaskErrorTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "greenmcp_task_error_total",
		Help: "子任务错误总数",
	},
	[]string{"agent"},
)

// ResolveConfidence 路由决策置信度分布
var ResolveConfidence = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "greenmcp_resolve_confidence",
		Help:    "示例匹配路由的置信度分布",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	},
)

// SegmentFallbackTotal 分句降级为正则的次数
var SegmentFallbackTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "greenmcp_segment_fallback_total",
		Help: "LLM 分句失败、启用正则降级的次数",
	},
)

// MemoryBackend 当前记忆后端（semantic=1 / fallback=0）
var MemoryBackend = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "greenmcp_memory_backend",
		Help: "记忆后端类型（值恒为 1，label 区分）",
	},
	[]string{"backend"}, // semantic | fallback
)

// MemoryQueryDuration 记忆相似检索耗时（秒）
var MemoryQueryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "greenmcp_memory_query_duration_seconds",
		Help:    "记忆相似检索耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"backend"},
)

// SummaryTotal 滚动摘要生成次数（按结果）
var SummaryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "greenmcp_summary_total",
		Help: "滚动摘要生成次数（按结果）",
	},
	[]string{"status"}, // ok | error | skipped
)

// RateLimitWaitSeconds 限流等待耗时（秒）
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "greenmcp_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind", "provider"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
