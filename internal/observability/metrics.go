package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "app_verification_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"path", "method", "status"},
	)

	// ChallengesIssued tracks issued verification challenges
	ChallengesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_verification_challenges_issued_total",
			Help: "Number of verification challenges issued",
		},
		[]string{"status"},
	)

	// VerificationOutcomes tracks verify attempts by outcome and entry point
	VerificationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_verification_outcomes_total",
			Help: "Number of verification attempts by outcome",
		},
		[]string{"method", "outcome"},
	)

	// ChallengesReaped tracks expired challenges removed by the reaper
	ChallengesReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "app_verification_challenges_reaped_total",
			Help: "Number of expired challenges removed",
		},
	)

	// MailDispatch tracks outbound verification mail by kind and result
	MailDispatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_verification_mail_dispatch_total",
			Help: "Number of verification emails dispatched",
		},
		[]string{"kind", "status"},
	)

	// RateLimitRejections tracks requests rejected by a rate limiter
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_verification_rate_limit_rejections_total",
			Help: "Number of requests rejected by rate limiting",
		},
		[]string{"limiter"},
	)

	// DatabaseOperations tracks database operations
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_verification_database_operations_total",
			Help: "Number of database operations",
		},
		[]string{"operation", "status"},
	)

	// ActiveConnections tracks active connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_verification_active_connections",
			Help: "Number of active connections",
		},
	)
)
