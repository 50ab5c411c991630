package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vjranagit/tsengine/pkg/storage"
)

const (
	// OutcomeSuccess labels transformations that produced a series.
	OutcomeSuccess = "success"
	// OutcomeRejected labels requests refused for bad input (arity, mode, parameters, name).
	OutcomeRejected = "rejected"
	// OutcomeError labels failures outside the engine, such as storage errors.
	OutcomeError = "error"
)

var (
	transformationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tsengine",
			Name:      "transformations_total",
			Help:      "Total number of transformation requests, partitioned by transformation and outcome.",
		},
		[]string{"transformation", "outcome"},
	)

	transformationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tsengine",
			Name:      "transformation_seconds",
			Help:      "Transformation latency in seconds, including source loading and persistence.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"transformation"},
	)

	transformationOutputSamples = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tsengine",
			Name:      "transformation_output_samples",
			Help:      "Number of samples in each derived series.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"transformation"},
	)
)

// CacheReporter is implemented by stores that keep a series cache
type CacheReporter interface {
	CacheStats() storage.CacheStats
}

// Register attaches tsengine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	return register(reg,
		transformationsTotal,
		transformationDurationSeconds,
		transformationOutputSamples,
	)
}

// RegisterStorage exports gauges read from store on every scrape: the number
// of stored series and, when store caches series, cache occupancy and hit ratio.
func RegisterStorage(reg prometheus.Registerer, store storage.Storage) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "tsengine",
			Name:      "stored_series",
			Help:      "Number of live series across all datasets.",
		}, func() float64 { return float64(store.SeriesCount()) }),
	}

	if cache, ok := store.(CacheReporter); ok {
		collectors = append(collectors,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "tsengine",
				Subsystem: "series_cache",
				Name:      "entries",
				Help:      "Number of series held in the read cache.",
			}, func() float64 { return float64(cache.CacheStats().Size) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "tsengine",
				Subsystem: "series_cache",
				Name:      "expired_entries",
				Help:      "Cached series past their TTL that have not been evicted yet.",
			}, func() float64 { return float64(cache.CacheStats().Expired) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "tsengine",
				Subsystem: "series_cache",
				Name:      "hit_ratio",
				Help:      "Share of series reads answered from the cache since startup.",
			}, func() float64 { return cache.CacheStats().HitRatio() }),
		)
	}
	return register(reg, collectors...)
}

func register(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveTransformation records one transformation request. samples is only
// observed for successful requests.
func ObserveTransformation(name string, duration time.Duration, outcome string, samples int) {
	switch outcome {
	case OutcomeSuccess, OutcomeRejected:
	default:
		outcome = OutcomeError
	}
	transformationsTotal.WithLabelValues(name, outcome).Inc()

	if duration < 0 {
		duration = 0
	}
	transformationDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())

	if outcome == OutcomeSuccess {
		transformationOutputSamples.WithLabelValues(name).Observe(float64(samples))
	}
}
