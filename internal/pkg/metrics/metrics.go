package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	AccessAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_access_attempts_total",
			Help: "Total number of gallery access attempts by flow and result.",
		},
		[]string{"service", "flow", "result"},
	)

	SessionsIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_sessions_issued_total",
			Help: "Total number of viewing sessions issued or rotated.",
		},
		[]string{"service", "flow"},
	)

	GuardBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_guard_blocks_total",
			Help: "Total number of IP blocks written by the brute-force guard.",
		},
		[]string{"service", "reason"},
	)

	AuditWriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_audit_write_failures_total",
			Help: "Total number of audit events that could not be written to a sink.",
		},
		[]string{"service", "sink"},
	)

	SweepDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_sweep_deleted_total",
			Help: "Rows removed or deactivated by scheduled sweeps.",
		},
		[]string{"service", "job"},
	)
)

var serviceName = "gallery-access"

// MustRegister 设置 service 标签并注册到默认 registry，只能在启动时调用一次
// 未注册时计数器照常工作，只是不会被 /metrics 导出
func MustRegister(service string) {
	serviceName = service
	prometheus.MustRegister(
		AccessAttemptsTotal,
		SessionsIssuedTotal,
		GuardBlocksTotal,
		AuditWriteFailuresTotal,
		SweepDeletedTotal,
	)
}

func ObserveAccess(flow, result string) {
	AccessAttemptsTotal.WithLabelValues(serviceName, flow, result).Inc()
}

func ObserveSessionIssued(flow string) {
	SessionsIssuedTotal.WithLabelValues(serviceName, flow).Inc()
}

func ObserveBlock(reason string) {
	GuardBlocksTotal.WithLabelValues(serviceName, reason).Inc()
}

func ObserveAuditFailure(sink string) {
	AuditWriteFailuresTotal.WithLabelValues(serviceName, sink).Inc()
}

func ObserveSweep(job string, n int64) {
	if n > 0 {
		SweepDeletedTotal.WithLabelValues(serviceName, job).Add(float64(n))
	}
}
