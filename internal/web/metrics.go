package web

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stateDesc = prometheus.NewDesc(
		"gpio_pin_state",
		"The current debounced level of a watched GPIO pin.",
		[]string{"pin", "name"}, nil,
	)
	changesDesc = prometheus.NewDesc(
		"gpio_pin_state_changes",
		"The number of times a watched GPIO pin changed its state.",
		[]string{"pin", "name"}, nil,
	)
)

// pinCollector exports a snapshot of the watched pins on every scrape.
type pinCollector struct {
	pins PinService
}

func (c pinCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- stateDesc
	ch <- changesDesc
}

func (c pinCollector) Collect(ch chan<- prometheus.Metric) {
	for _, p := range c.pins.Snapshot() {
		id := strconv.Itoa(int(p.ID))
		state := 0.0
		if p.State {
			state = 1
		}
		ch <- prometheus.MustNewConstMetric(stateDesc, prometheus.GaugeValue, state, id, p.Label)
		ch <- prometheus.MustNewConstMetric(changesDesc, prometheus.CounterValue, float64(p.Changes), id, p.Label)
	}
}

// newMetricsHandler serves the pin metrics from a dedicated registry.
func newMetricsHandler(pins PinService) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(pinCollector{pins: pins})
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	s.metrics.ServeHTTP(w, r)
}
