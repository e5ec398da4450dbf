package metacache

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "metasync"
	metricsSubsystem = "metadata_cache"
)

type metrics struct {
	Files        prometheus.Gauge
	Missing      prometheus.Gauge
	Downloaded   prometheus.Gauge
	Evicted      prometheus.Counter
	SyncDuration prometheus.Histogram
}

func newMetrics() metrics {
	return metrics{
		Files: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "files",
			Help:      "Number of metadata files listed in backup storage.",
		}),
		Missing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "missing",
			Help:      "Number of metadata files missing from the local cache in the last sync.",
		}),
		Downloaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "downloaded",
			Help:      "Number of metadata files downloaded so far in the last sync.",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "evicted_total",
			Help:      "Total stale metadata files deleted from the local cache.",
		}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sync_duration_seconds",
			Help:      "Time spent syncing and loading the metadata cache.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}
}

// Metrics returns the collectors of the syncer for registration.
func (s *Syncer) Metrics() []prometheus.Collector {
	return []prometheus.Collector{
		s.metrics.Files,
		s.metrics.Missing,
		s.metrics.Downloaded,
		s.metrics.Evicted,
		s.metrics.SyncDuration,
	}
}
