package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"course-agenda-server/internal/optimistic"
)

// MutationObserver exports coordinator transitions to Prometheus. It
// implements optimistic.Observer.
type MutationObserver struct {
	outcomes *prometheus.CounterVec
	rejected *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewMutationObserver registers the mutation metrics on reg (the default
// registerer when nil).
func NewMutationObserver(namespace string, reg prometheus.Registerer) (*MutationObserver, error) {
	if namespace == "" {
		namespace = "course_agenda"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &MutationObserver{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Optimistic mutations by coordinator, operation and outcome.",
		}, []string{"coordinator", "op", "outcome"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_rejected_total",
			Help:      "Mutations refused because the target already had one in flight.",
		}, []string{"coordinator", "op"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_persist_seconds",
			Help:      "Time spent in the remote write of an optimistic mutation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"coordinator", "op"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mutations_in_flight",
			Help:      "Mutations currently persisting.",
		}, []string{"coordinator"}),
	}

	collectors := []prometheus.Collector{o.outcomes, o.rejected, o.duration, o.inFlight}
	for i, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, fmt.Errorf("register mutation metric: %w", err)
			}
			switch i {
			case 0:
				o.outcomes = are.ExistingCollector.(*prometheus.CounterVec)
			case 1:
				o.rejected = are.ExistingCollector.(*prometheus.CounterVec)
			case 2:
				o.duration = are.ExistingCollector.(*prometheus.HistogramVec)
			case 3:
				o.inFlight = are.ExistingCollector.(*prometheus.GaugeVec)
			}
		}
	}
	return o, nil
}

func (o *MutationObserver) Observe(e optimistic.Event) {
	if o == nil {
		return
	}
	if e.Rejected {
		o.rejected.WithLabelValues(e.Coordinator, e.Op).Inc()
		return
	}

	switch e.Phase {
	case optimistic.PhasePersisting:
		o.inFlight.WithLabelValues(e.Coordinator).Inc()
	case optimistic.PhaseCommitted:
		o.inFlight.WithLabelValues(e.Coordinator).Dec()
		o.duration.WithLabelValues(e.Coordinator, e.Op).Observe(e.Elapsed.Seconds())
		o.outcomes.WithLabelValues(e.Coordinator, e.Op, "committed").Inc()
	case optimistic.PhaseRollingBack:
		o.inFlight.WithLabelValues(e.Coordinator).Dec()
		o.duration.WithLabelValues(e.Coordinator, e.Op).Observe(e.Elapsed.Seconds())
		o.outcomes.WithLabelValues(e.Coordinator, e.Op, "rolled_back").Inc()
	}
}
