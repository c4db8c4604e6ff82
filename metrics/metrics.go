// Package metrics exposes Prometheus instrumentation for container decoding.
//
// A nil *Collector is valid and records nothing, so decoders can carry one
// unconditionally.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arloliu/mpegg/errs"
)

// Collector holds the decoder metrics.
type Collector struct {
	BoxesParsed    *prometheus.CounterVec
	BytesParsed    prometheus.Counter
	LookupMisses   *prometheus.CounterVec
	SizeMismatches prometheus.Counter
	ParseDuration  prometheus.Histogram
}

// NewCollector creates the metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		BoxesParsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mpegg_boxes_parsed_total",
				Help: "Total number of boxes parsed, by box key",
			},
			[]string{"key"},
		),
		BytesParsed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mpegg_bytes_parsed_total",
				Help: "Total number of box bytes parsed, headers included",
			},
		),
		LookupMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mpegg_lookup_misses_total",
				Help: "Total number of coordinate lookups absent from a dataset",
			},
			[]string{"kind"},
		),
		SizeMismatches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mpegg_size_mismatches_total",
				Help: "Total number of boxes whose parsed size disagreed with the declared size",
			},
		),
		ParseDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mpegg_parse_duration_seconds",
				Help:    "Time spent parsing one dataset group in seconds",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
			},
		),
	}
}

// ObserveBox records one parsed box of length bytes.
func (c *Collector) ObserveBox(key string, length uint64) {
	if c == nil {
		return
	}
	c.BoxesParsed.WithLabelValues(key).Inc()
	c.BytesParsed.Add(float64(length))
}

// ObserveParse records the duration of one dataset group parse.
func (c *Collector) ObserveParse(d time.Duration) {
	if c == nil {
		return
	}
	c.ParseDuration.Observe(d.Seconds())
}

// ObserveError classifies err and counts it as a lookup miss or a size
// mismatch. Other errors are ignored.
func (c *Collector) ObserveError(err error) {
	if c == nil || err == nil {
		return
	}
	if errors.Is(err, errs.ErrSizeMismatch) {
		c.SizeMismatches.Inc()
		return
	}
	if kind := MissKind(err); kind != "" {
		c.LookupMisses.WithLabelValues(kind).Inc()
	}
}

// MissKind returns the label used for a lookup miss, or "" when err is not one.
func MissKind(err error) string {
	switch {
	case errors.Is(err, errs.ErrDataClassNotFound):
		return "data_class"
	case errors.Is(err, errs.ErrSequenceNotAvailable):
		return "sequence"
	case errors.Is(err, errs.ErrDescriptorNotFound):
		return "descriptor"
	case errors.Is(err, errs.ErrAccessUnitNotFound):
		return "access_unit"
	case errors.Is(err, errs.ErrBlockNotPresent):
		return "block"
	default:
		return ""
	}
}
