// Package metrics defines and registers all custom Prometheus metrics for the
// WeewooCAD account service. It is the single source of truth for metric
// names, labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accounts"

// Result label values shared by the lifecycle counters.
const (
	ResultSuccess = "success"
)

// ── Lifecycle metrics ─────────────────────────────────────────────────────────

// RegistrationsTotal counts registration attempts.
// Label:
//   - result: "success", or the failure reason (e.g. "duplicate", "invalid_email")
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration attempts, by result.",
	},
	[]string{"result"},
)

// ConfirmationsTotal counts email confirmation attempts.
// Label:
//   - result: "success", "token_invalid", "token_expired", ...
var ConfirmationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "confirmations_total",
		Help:      "Total number of email confirmation attempts, by result.",
	},
	[]string{"result"},
)

// LoginsTotal counts credential checks.
// Label:
//   - result: "success", "not_found", "not_confirmed", "invalid_credential", ...
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// ResendsTotal counts verification resend requests.
// Label:
//   - result: "success", "not_found", "already_confirmed", ...
var ResendsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resends_total",
		Help:      "Total number of verification resend requests, by result.",
	},
	[]string{"result"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsTotal counts verification message deliveries.
// Label:
//   - result: "sent", "failed", "duplicate" (already sent, skipped) or "dropped" (queue full)
var NotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of verification notifications, by result.",
	},
	[]string{"result"},
)

// NotificationQueueDepth tracks the number of messages waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var NotificationQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notification_queue_depth",
		Help:      "Current number of verification messages pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// NotificationDuration measures how long a single delivery takes.
var NotificationDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "notification_duration_seconds",
		Help:      "Duration of a verification notification delivery attempt.",
		Buckets:   prometheus.DefBuckets,
	},
)
