package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics
type Metrics struct {
	Transitions       *prometheus.CounterVec
	QRTokensIssued    prometheus.Counter
	QRScanFailures    *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	PointsCredited    prometheus.Counter
	QRTokensSwept     prometheus.Counter
	OperationDuration *prometheus.HistogramVec
}

// NewMetrics creates new prometheus metrics registered on reg
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pickup_transitions_total",
			Help:      "Lifecycle operations by operation and result",
		}, []string{"operation", "result"}),
		QRTokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qr_tokens_issued_total",
			Help:      "The total number of issued QR tokens",
		}),
		QRScanFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qr_scan_failures_total",
			Help:      "Rejected QR scans by reason",
		}, []string{"reason"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by event, channel and result",
		}, []string{"event", "channel", "result"}),
		PointsCredited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_credited_total",
			Help:      "The total number of bonus points credited to donors",
		}),
		QRTokensSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qr_tokens_swept_total",
			Help:      "Active QR tokens expired by the background sweep",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time taken by lifecycle operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}
