package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1500, 2000, 3000, 5000, 10000, 30000, 60000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets},
			m.Args,
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description},
			m.Args,
		)
	}
	return metric
}

// Business counters. Registered once at package init; services increment
// them directly so the counters survive even when the HTTP middleware is
// disabled (e.g. metrics_addr unset).
var (
	OrdersSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_settled_total",
			Help: "Orders settled, partitioned by payment method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	RewardsGranted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_rewards_granted_total",
			Help: "Referral rewards granted, partitioned by reward kind.",
		},
		[]string{"kind"},
	)
	QuotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Quota consumption attempts rejected, partitioned by usage kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(OrdersSettled, RewardsGranted, QuotaRejections)
}
