package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveBooking("create", "created")
	m.ObserveBooking("create", "created")
	m.ObserveBooking("create", "conflict")
	m.ObservePayment("completed")
	m.ObserveTransition("cancelled")
	m.ObserveOpenSlotQuery()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("create", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("create", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.openSlotsRequested))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *SchedulingMetrics
	assert.NotPanics(t, func() {
		m.ObserveBooking("create", "created")
		m.ObserveTransition("cancelled")
		m.ObserveLockHeld("create", 0.1)
		m.ObservePayment("failed")
		m.ObserveOpenSlotQuery()
	})
}
