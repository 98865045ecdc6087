// Package metrics exposes controller activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Collector turns controller events and state into Prometheus metrics on
// a private registry.
type Collector struct {
	registry *prometheus.Registry

	presses       *prometheus.CounterVec
	pumpRuns      *prometheus.CounterVec
	pumpSeconds   prometheus.Counter
	volumeChanges *prometheus.CounterVec
	saveFailures  prometheus.Counter
	pumpErrors    prometheus.Counter

	pumpRunning   prometheus.Gauge
	targetVolume  *prometheus.GaugeVec
	selectedMode  prometheus.Gauge
	mqttConnected prometheus.Gauge
	online        prometheus.Gauge
}

// New creates a Collector with all metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		presses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_button_presses_total",
			Help: "Debounced button presses by button and kind",
		}, []string{"button", "kind"}),
		pumpRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_pump_runs_total",
			Help: "Pump runs started, by mode",
		}, []string{"mode"}),
		pumpSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_pump_run_seconds_total",
			Help: "Total seconds the pump has run to completion",
		}),
		volumeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_volume_changes_total",
			Help: "Volume adjustments by mode and source",
		}, []string{"mode", "source"}),
		saveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_save_failures_total",
			Help: "Failed writes of the stored volumes",
		}),
		pumpErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_pump_errors_total",
			Help: "Relay write failures",
		}),
		pumpRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_pump_running",
			Help: "1 while the pump is on",
		}),
		targetVolume: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "irrigation_target_volume_ml",
			Help: "Configured volume per mode (ml)",
		}, []string{"mode"}),
		selectedMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_selected_mode",
			Help: "Selected mode (1-4, 0 = none)",
		}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_mqtt_connected",
			Help: "1 if the MQTT broker connection is up",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_network_online",
			Help: "1 if a network interface is up",
		}),
	}
	c.registry.MustRegister(
		c.presses, c.pumpRuns, c.pumpSeconds, c.volumeChanges, c.saveFailures, c.pumpErrors,
		c.pumpRunning, c.targetVolume, c.selectedMode, c.mqttConnected, c.online,
	)
	return c
}

// Observe counts a batch of events.
func (c *Collector) Observe(events []logic.Event) {
	for _, e := range events {
		switch e.Type {
		case logic.EventButtonPress:
			c.presses.WithLabelValues(e.Button.String(), string(e.Press)).Inc()
		case logic.EventPumpStarted:
			c.pumpRuns.WithLabelValues(modeLabel(e.Mode)).Inc()
		case logic.EventPumpFinished:
			c.pumpSeconds.Add(e.Duration.Seconds())
		case logic.EventVolumeChange:
			c.volumeChanges.WithLabelValues(modeLabel(e.Mode), string(e.Source)).Inc()
		case logic.EventSaveFailed:
			c.saveFailures.Inc()
		case logic.EventPumpError:
			c.pumpErrors.Inc()
		}
	}
}

// ObserveState sets the gauges from the latest controller state.
func (c *Collector) ObserveState(s logic.State, mqttConnected, online bool) {
	c.pumpRunning.Set(boolFloat(s.Pump == logic.PumpRunning))
	c.selectedMode.Set(float64(s.Selected.Number()))
	for m := logic.Mode1; m < logic.NumModes; m++ {
		c.targetVolume.WithLabelValues(modeLabel(m)).Set(float64(s.Volumes[m]))
	}
	c.mqttConnected.Set(boolFloat(mqttConnected))
	c.online.Set(boolFloat(online))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func modeLabel(m logic.Mode) string {
	return strconv.Itoa(m.Number())
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
