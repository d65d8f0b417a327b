// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineDriversInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "querygate_pipeline_drivers_in_use",
		Help: "Pipeline drivers currently assigned to allocated slots",
	})

	pipelineDriverRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "querygate_pipeline_driver_rejects_total",
		Help: "Total number of slot allocations refused because the driver pool was exhausted",
	})

	cpuLoad = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "querygate_cpu_load_smoothed",
		Help: "Smoothed 1-minute load average used by adaptive capacity",
	})
)

// SetPipelineDriversInUse sets the number of assigned pipeline drivers.
func SetPipelineDriversInUse(n int) {
	pipelineDriversInUse.Set(float64(n))
}

// IncPipelineDriverRejects counts one exhausted-pool refusal.
func IncPipelineDriverRejects() {
	pipelineDriverRejects.Inc()
}

// SetCPULoad records the smoothed CPU load.
func SetCPULoad(load float64) {
	cpuLoad.Set(load)
}
