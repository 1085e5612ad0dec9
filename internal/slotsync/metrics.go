package slotsync

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments updated from
// CalculateSlotAdjustment. A nil *Metrics is safe to use.
type Metrics struct {
	accumulatedShiftUs prometheus.Gauge
	adjustmentsTotal   prometheus.Counter
}

// NewMetrics registers the slot scheduler's instruments against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		accumulatedShiftUs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tdmamesh_slot_accumulated_shift_us",
			Help: "Total microseconds this node's slot start has been shifted since boot.",
		}),
		adjustmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tdmamesh_slot_adjustments_total",
			Help: "Number of rounds in which a positive slot shift was applied.",
		}),
	}
	reg.MustRegister(m.accumulatedShiftUs, m.adjustmentsTotal)
	return m
}

func (m *Metrics) setAccumulatedShift(us int64) {
	if m == nil {
		return
	}
	m.accumulatedShiftUs.Set(float64(us))
}

func (m *Metrics) incAdjustments() {
	if m == nil {
		return
	}
	m.adjustmentsTotal.Inc()
}
