// Package metrics provides Prometheus metrics for the trade executor
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PrivateCalls 按方法与结果（ok/benign/fatal）统计私有请求。
	PrivateCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_private_calls_total",
			Help: "Private API calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// RateLimitCooldowns 统计限流冷却次数。
	RateLimitCooldowns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "executor_rate_limit_cooldowns_total",
			Help: "Rate limit cooldown sleeps",
		},
	)

	// TransportRetries 统计传输层失败后的重试次数。
	TransportRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "executor_transport_retries_total",
			Help: "Transport-level retries",
		},
	)

	// CredentialReloads 统计凭证重载次数。
	CredentialReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "executor_credential_reloads_total",
			Help: "Credential reloads triggered by missing result responses",
		},
	)

	// OrdersTotal 按终态统计订单。
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_total",
			Help: "Orders by terminal status",
		},
		[]string{"status"},
	)

	// SignalsTotal 按决策统计收到的信号。
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_signals_total",
			Help: "Signals by resulting decision (hold|up|down)",
		},
		[]string{"decision"},
	)

	// PositionGauge 当前有符号仓位方向。
	PositionGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_position",
			Help: "Current signed position (-1 short, 0 flat, 1 long)",
		},
	)

	// VolumeGauge 当前持仓量。
	VolumeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_volume",
			Help: "Current open position volume",
		},
	)
)

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
