// metrics/metrics.go
// Prometheus 指标：流程结果、fan-out 耗时、会话清理

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "frostsign"

// Collector 聚合者使用的指标集合；nil Collector 的所有方法都是空操作
type Collector struct {
	flows   *prometheus.CounterVec
	fanout  *prometheus.HistogramVec
	evicted prometheus.Counter
}

// NewCollector 创建指标并注册到 reg（reg 为 nil 时不注册）
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_total",
			Help:      "DKG and signing flows by result.",
		}, []string{"flow", "result"}),
		fanout: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_seconds",
			Help:      "Latency of one fan-out step across all signers.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"step"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Signing sessions removed by the TTL sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.flows, c.fanout, c.evicted)
	}
	return c
}

// ObserveFlow 记录一次完整流程
func (c *Collector) ObserveFlow(flow string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.flows.WithLabelValues(flow, result).Inc()
}

// ObserveFanOut 记录一步 fan-out 的耗时
func (c *Collector) ObserveFanOut(step string, d time.Duration) {
	if c == nil {
		return
	}
	c.fanout.WithLabelValues(step).Observe(d.Seconds())
}

// AddEvicted 累加被清理的会话数
func (c *Collector) AddEvicted(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.evicted.Add(float64(n))
}
