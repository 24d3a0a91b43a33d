// Package metrics exposes the scheduling core's Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tutorbook/backend/internal/domain"
)

const namespace = "tutorbook"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	operations     *prometheus.CounterVec
	commitRetries  *prometheus.CounterVec
	slotGeneration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduling_operations_total",
				Help:      "Scheduling operations by operation and result.",
			},
			[]string{"op", "result"},
		),
		commitRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduling_commit_retries_total",
				Help:      "Per-provider transactions retried after a storage conflict.",
			},
			[]string{"op"},
		),
		slotGeneration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "slot_generation_seconds",
				Help:      "Time spent producing the free slots of one day.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"source"},
		),
	}
}

func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, Result(err)).Inc()
}

func (m *Metrics) IncCommitRetry(op string) {
	if m == nil {
		return
	}
	m.commitRetries.WithLabelValues(op).Inc()
}

// ObserveSlotGeneration records d under source "cache" or "storage".
func (m *Metrics) ObserveSlotGeneration(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.slotGeneration.WithLabelValues(source).Observe(d.Seconds())
}

// Result is the label value for err: "ok", a domain error kind, or "internal".
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return string(de.Kind)
	}
	return "internal"
}
