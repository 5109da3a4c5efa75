// Package metrics — счётчики Prometheus для HTTP-слоя, леджера и промо-акций.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry — реестр метрик приложения.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "betdesk",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "betdesk",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "betdesk",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})

	// LedgerTransactions — записанные транзакции по статусу при создании.
	LedgerTransactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "betdesk",
		Subsystem: "ledger",
		Name:      "transactions_total",
		Help:      "Total number of recorded ledger transactions by initial status.",
	}, []string{"status"})

	// LedgerConfirmations — применённые к балансам транзакции.
	LedgerConfirmations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "betdesk",
		Subsystem: "ledger",
		Name:      "confirmations_total",
		Help:      "Total number of transactions whose balance effect was applied.",
	})

	// AccountsProvisioned — счета, созданные по шагу промо-акции.
	AccountsProvisioned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "betdesk",
		Subsystem: "promotions",
		Name:      "accounts_provisioned_total",
		Help:      "Total number of accounts provisioned from promotion progress.",
	})

	// PromotionsCompleted — переходы прогресса в 100%.
	PromotionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "betdesk",
		Subsystem: "promotions",
		Name:      "completed_total",
		Help:      "Total number of user promotion completions.",
	})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		LedgerTransactions,
		LedgerConfirmations,
		AccountsProvisioned,
		PromotionsCompleted,
	)
}

// Handler отдаёт метрики в формате Prometheus.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncInFlight / DecInFlight — учёт запросов в обработке.
func IncInFlight() { httpInFlight.Inc() }
func DecInFlight() { httpInFlight.Dec() }

// ObserveHTTP записывает завершённый запрос.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
