// Package metrics exports share and sweep telemetry to Prometheus.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for share and sweep operations.
type Observer interface {
	RecordUpload(duration time.Duration, files int, sizeBytes int64, err error)
	RecordList(duration time.Duration, err error)
	RecordFetch(duration time.Duration, err error)
	RecordSweep(duration time.Duration, scanned, deleted, failed int, err error)
}

// Nop discards all observations.
type Nop struct{}

func (Nop) RecordUpload(time.Duration, int, int64, error)   {}
func (Nop) RecordList(time.Duration, error)                 {}
func (Nop) RecordFetch(time.Duration, error)                {}
func (Nop) RecordSweep(time.Duration, int, int, int, error) {}

// PrometheusObserver exports operation metrics to Prometheus.
type PrometheusObserver struct {
	duration      *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	uploadedBytes prometheus.Counter
	uploadedFiles prometheus.Counter
	sweptObjects  *prometheus.CounterVec
}

// NewPrometheusObserver registers the collectors on reg (DefaultRegisterer when nil).
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "easyshare"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of share and sweep operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed share and sweep operations.",
		}, []string{"operation"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size written to object storage.",
		}),
		uploadedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_files_total",
			Help:      "Cumulative number of files written to object storage.",
		}),
		sweptObjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_objects_total",
			Help:      "Objects examined by the expiration sweep, by outcome.",
		}, []string{"outcome"}),
	}

	if err := register(reg, &o.duration); err != nil {
		return nil, err
	}
	if err := register(reg, &o.errors); err != nil {
		return nil, err
	}
	if err := register(reg, &o.uploadedBytes); err != nil {
		return nil, err
	}
	if err := register(reg, &o.uploadedFiles); err != nil {
		return nil, err
	}
	if err := register(reg, &o.sweptObjects); err != nil {
		return nil, err
	}
	return o, nil
}

// register adopts an already-registered collector of the same type so the
// observer can be constructed more than once per process.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return fmt.Errorf("register metric: %w", err)
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return fmt.Errorf("register metric: %w", err)
		}
		*c = existing
	}
	return nil
}

func (o *PrometheusObserver) RecordUpload(duration time.Duration, files int, sizeBytes int64, err error) {
	o.observe("upload", duration, err)
	if err == nil {
		o.uploadedFiles.Add(float64(files))
		o.uploadedBytes.Add(float64(sizeBytes))
	}
}

func (o *PrometheusObserver) RecordList(duration time.Duration, err error) {
	o.observe("list", duration, err)
}

func (o *PrometheusObserver) RecordFetch(duration time.Duration, err error) {
	o.observe("fetch", duration, err)
}

func (o *PrometheusObserver) RecordSweep(duration time.Duration, scanned, deleted, failed int, err error) {
	o.observe("sweep", duration, err)
	o.sweptObjects.WithLabelValues("kept").Add(float64(scanned - deleted - failed))
	o.sweptObjects.WithLabelValues("deleted").Add(float64(deleted))
	o.sweptObjects.WithLabelValues("failed").Add(float64(failed))
}

func (o *PrometheusObserver) observe(op string, duration time.Duration, err error) {
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(op).Inc()
	}
}

var (
	_ Observer = Nop{}
	_ Observer = (*PrometheusObserver)(nil)
)
