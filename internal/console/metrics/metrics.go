// Package metrics defines Prometheus metrics for the console auth subsystem.
//
// Metric naming follows Prometheus conventions:
//   - console_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SigninsTotal counts signin attempts by outcome and credential provenance.
	SigninsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_auth_signins_total",
			Help: "Total signin attempts by outcome and provenance.",
		},
		[]string{"outcome", "provenance"},
	)

	// SigninDurationSeconds is a histogram of signin handling time, dominated
	// by bcrypt verification.
	SigninDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_auth_signin_duration_seconds",
			Help:    "Duration of signin handling in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	// GateRejectionsTotal counts authorization gate rejections by reason.
	GateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_auth_gate_rejections_total",
			Help: "Total requests rejected by the authorization gate.",
		},
		[]string{"reason"},
	)

	// TokensIssuedTotal counts session tokens issued by provenance.
	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_auth_tokens_issued_total",
			Help: "Total session tokens issued.",
		},
		[]string{"provenance"},
	)
)

func init() {
	prometheus.MustRegister(
		SigninsTotal,
		SigninDurationSeconds,
		GateRejectionsTotal,
		TokensIssuedTotal,
	)
}

// RecordSignin records a completed signin attempt.
func RecordSignin(outcome, provenance string, duration time.Duration) {
	if provenance == "" {
		provenance = "unknown"
	}
	SigninsTotal.WithLabelValues(outcome, provenance).Inc()
	SigninDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordGateRejection records a single gate rejection.
func RecordGateRejection(reason string) {
	GateRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordTokenIssued records a single issued token.
func RecordTokenIssued(provenance string) {
	TokensIssuedTotal.WithLabelValues(provenance).Inc()
}
