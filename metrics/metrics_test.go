// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopDefault(t *testing.T) {
	// meters created before initialization are usable no-ops
	counter := Counter("test_noop_counter")
	assert.NotPanics(t, func() { counter.Add(1) })

	gauge := Gauge("test_noop_gauge")
	assert.NotPanics(t, func() {
		gauge.Add(1)
		gauge.Set(5)
	})
}

func TestLazyLoadResolvesOnce(t *testing.T) {
	calls := 0
	lazy := LazyLoad(func() int {
		calls++
		return 42
	})

	assert.Equal(t, 42, lazy())
	assert.Equal(t, 42, lazy())
	assert.Equal(t, 1, calls)
}

func TestInitializePrometheusMetrics(t *testing.T) {
	InitializePrometheusMetrics()
	// repeated initialization keeps the same service
	first := service
	InitializePrometheusMetrics()
	assert.Same(t, first, service)

	counter := Counter("test_prom_counter")
	assert.NotPanics(t, func() { counter.Add(1) })

	vec := CounterVec("test_prom_counter_vec", []string{"label"})
	assert.NotPanics(t, func() {
		vec.AddWithLabel(1, map[string]string{"label": "a"})
	})

	histogram := Histogram("test_prom_histogram", BucketSimulationMs)
	assert.NotPanics(t, func() { histogram.Observe(25) })

	assert.NotNil(t, HTTPHandler())
}
