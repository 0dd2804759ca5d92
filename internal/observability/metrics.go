package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	claimCounter            *prometheus.CounterVec
	handoffCounter          *prometheus.CounterVec
	escrowCounter           *prometheus.CounterVec
	withdrawalCounter       *prometheus.CounterVec
	withdrawalQueueGauge    prometheus.Gauge
	ledgerMismatchCounter   *prometheus.CounterVec
	notificationFailCounter *prometheus.CounterVec
	idempotencyCounter      *prometheus.CounterVec
	payoutCounter           *prometheus.CounterVec
	workerRunCounter        *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "role", "status"})

		claimCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matching_claims_total",
			Help: "Claim attempts on announcements by outcome",
		}, []string{"outcome"})

		handoffCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handoff_confirmations_total",
			Help: "Handoff code confirmations by outcome",
		}, []string{"outcome"})

		escrowCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_transitions_total",
			Help: "Escrow payment transitions",
		}, []string{"status"})

		withdrawalCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawal_transitions_total",
			Help: "Withdrawal request transitions",
		}, []string{"status"})

		withdrawalQueueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "withdrawal_review_queue_size",
			Help: "Withdrawal requests waiting for an admin decision, as of the last queue read",
		})

		ledgerMismatchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_reconciliation_mismatch_total",
			Help: "Wallets whose balance diverged from their transaction history",
		}, []string{"currency"})

		notificationFailCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notifications that could not be dispatched",
		}, []string{"event"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		payoutCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_rail_calls_total",
			Help: "Payout rail calls by result",
		}, []string{"result"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			claimCounter,
			handoffCounter,
			escrowCounter,
			withdrawalCounter,
			withdrawalQueueGauge,
			ledgerMismatchCounter,
			notificationFailCounter,
			idempotencyCounter,
			payoutCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, route, role string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, route, role, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementClaim(outcome string) {
	if claimCounter == nil {
		return
	}
	claimCounter.WithLabelValues(outcome).Inc()
}

func IncrementHandoff(outcome string) {
	if handoffCounter == nil {
		return
	}
	handoffCounter.WithLabelValues(outcome).Inc()
}

func IncrementEscrowTransition(status string) {
	if escrowCounter == nil {
		return
	}
	escrowCounter.WithLabelValues(status).Inc()
}

func IncrementWithdrawalTransition(status string) {
	if withdrawalCounter == nil {
		return
	}
	withdrawalCounter.WithLabelValues(status).Inc()
}

func SetWithdrawalQueueSize(size int) {
	if withdrawalQueueGauge == nil {
		return
	}
	withdrawalQueueGauge.Set(float64(size))
}

func IncrementLedgerMismatch(currency string) {
	if ledgerMismatchCounter == nil {
		return
	}
	ledgerMismatchCounter.WithLabelValues(currency).Inc()
}

func IncrementNotificationFailure(event string) {
	if notificationFailCounter == nil {
		return
	}
	notificationFailCounter.WithLabelValues(event).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementPayoutCall(result string) {
	if payoutCounter == nil {
		return
	}
	payoutCounter.WithLabelValues(result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
