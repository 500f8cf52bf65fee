// Package metrics exports decoded histogram frames as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cgxeiji/opcr2/histogram"
)

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics holds the gauges and counters updated from each frame.
type Metrics struct {
	PM             *prometheus.GaugeVec // labels: size=pm1|pm2.5|pm10
	Bin            *prometheus.GaugeVec // labels: bin
	Temperature    prometheus.Gauge
	Humidity       prometheus.Gauge
	FlowRate       prometheus.Gauge
	SamplingPeriod prometheus.Gauge
	Rejects        *prometheus.CounterVec // labels: reason=glitch|long

	Frames        prometheus.Counter
	NotReady      prometheus.Counter
	ChecksumFails prometheus.Counter
	ReadErrors    prometheus.Counter
}

var pmSizes = [histogram.NumPM]string{"pm1", "pm2.5", "pm10"}

// New registers and returns the frame metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opcr2_pm_ugm3",
			Help: "Particulate matter mass concentration in µg/m³.",
		}, []string{"size"}),
		Bin: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opcr2_bin_count",
			Help: "Particle count per bin over the last sampling period.",
		}, []string{"bin"}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opcr2_temperature_celsius",
			Help: "On-board temperature.",
		}),
		Humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opcr2_humidity_percent",
			Help: "On-board relative humidity.",
		}),
		FlowRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opcr2_sample_flow_rate_mls",
			Help: "Sample flow rate in mL/s.",
		}),
		SamplingPeriod: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opcr2_sampling_period_seconds",
			Help: "Length of the last sampling period.",
		}),
		Rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opcr2_rejected_particles_total",
			Help: "Particles rejected by the device.",
		}, []string{"reason"}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcr2_frames_total",
			Help: "Histogram frames read.",
		}),
		NotReady: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcr2_handshake_timeouts_total",
			Help: "Frames read without the device confirming it was ready.",
		}),
		ChecksumFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcr2_checksum_mismatches_total",
			Help: "Frames whose checksum did not match the payload.",
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opcr2_read_errors_total",
			Help: "Histogram reads that failed on the bus.",
		}),
	}

	reg.MustRegister(
		m.PM, m.Bin,
		m.Temperature, m.Humidity, m.FlowRate, m.SamplingPeriod,
		m.Rejects,
		m.Frames, m.NotReady, m.ChecksumFails, m.ReadErrors,
	)
	return m
}

// Observe updates the metrics from f. Measurements are only updated when the
// frame checksum is valid.
func (m *Metrics) Observe(f *histogram.Frame) {
	m.Frames.Inc()
	if !f.Ready {
		m.NotReady.Inc()
	}
	if !f.Valid() {
		m.ChecksumFails.Inc()
		return
	}

	for i, size := range pmSizes {
		m.PM.WithLabelValues(size).Set(float64(f.PM[i]))
	}
	for i, n := range f.Bins {
		m.Bin.WithLabelValues(strconv.Itoa(i)).Set(float64(n))
	}
	m.Temperature.Set(f.Temperature)
	m.Humidity.Set(f.Humidity)
	m.FlowRate.Set(float64(f.SampleFlowRate))
	m.SamplingPeriod.Set(float64(f.SamplingPeriod))
	m.Rejects.WithLabelValues("glitch").Add(float64(f.RejectGlitch))
	m.Rejects.WithLabelValues("long").Add(float64(f.RejectLong))
}
