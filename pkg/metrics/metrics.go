package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ModeLabel    = "mode"
	OutcomeLabel = "outcome"
	KindLabel    = "kind"
	ReasonLabel  = "reason"
	PoolLabel    = "pool"
	SourceLabel  = "source"

	InterestingPool = "interesting"
	SanitizerPool   = "sanitizer"

	Executed  = "executed"
	Predicted = "predicted"
)

// To add new metrics:
// 1. Register new metrics in Register() below.
// 2. Update them where the fuzz loops make the corresponding decision.
var (
	roundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satfuzz_rounds_total",
			Help: "Fuzz rounds by outcome",
		},
		[]string{ModeLabel, OutcomeLabel},
	)

	subjectDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satfuzz_subject_duration_seconds",
			Help:    "Wall-clock duration of completed subject runs",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	poolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "satfuzz_pool_size",
			Help: "Number of retained inputs per corpus pool",
		},
		[]string{PoolLabel},
	)

	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satfuzz_evictions_total",
			Help: "Sanitizer pool evictions by reason",
		},
		[]string{ReasonLabel},
	)

	findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satfuzz_findings_total",
			Help: "Sanitizer findings observed, by kind",
		},
		[]string{KindLabel},
	)

	coveredLines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satfuzz_covered_lines",
			Help: "Lines with a nonzero count in the latest coverage snapshot",
		},
	)

	followUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satfuzz_follow_ups_total",
			Help: "Metamorphic follow-ups persisted, by whether they were executed",
		},
		[]string{SourceLabel},
	)

	violationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satfuzz_violations_total",
			Help: "Executed follow-ups whose verdict contradicted the predicted relation",
		},
	)
)

func Register() {
	prometheus.MustRegister(roundsTotal)
	prometheus.MustRegister(subjectDuration)
	prometheus.MustRegister(poolSize)
	prometheus.MustRegister(evictionsTotal)
	prometheus.MustRegister(findingsTotal)
	prometheus.MustRegister(coveredLines)
	prometheus.MustRegister(followUpsTotal)
	prometheus.MustRegister(violationsTotal)
}

func EmitRound(mode, outcome string) {
	roundsTotal.WithLabelValues(mode, outcome).Inc()
}

func ObserveSubjectDuration(seconds float64) {
	subjectDuration.Observe(seconds)
}

func SetPoolSize(pool string, n int) {
	poolSize.WithLabelValues(pool).Set(float64(n))
}

func EmitEviction(reason string) {
	evictionsTotal.WithLabelValues(reason).Inc()
}

func EmitFinding(kind string) {
	findingsTotal.WithLabelValues(kind).Inc()
}

func SetCoveredLines(n int) {
	coveredLines.Set(float64(n))
}

func EmitFollowUp(source string) {
	followUpsTotal.WithLabelValues(source).Inc()
}

func EmitViolation() {
	violationsTotal.Inc()
}
