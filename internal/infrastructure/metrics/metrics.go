package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/tank-relay/internal/radio"
	"github.com/nerrad567/tank-relay/internal/telemetry"
)

const namespace = "tankrelay"

// Metrics holds the relay's Prometheus collectors on a private registry.
//
// It implements radio.Observer, publisher.PublishObserver and
// publisher.RegistrationObserver so it can be attached directly to the
// acquirer, loop and registry.
type Metrics struct {
	registry *prometheus.Registry

	framesTotal        *prometheus.CounterVec // result: valid/malformed/checksum
	framesWide         prometheus.Counter
	faultsTotal        prometheus.Counter
	reopensTotal       prometheus.Counter
	publishesTotal     *prometheus.CounterVec // quantity, status: ok/failed
	registrationsTotal *prometheus.CounterVec // status: ok/failed

	waterLevel   *prometheus.GaugeVec // sensor_id
	distance     *prometheus.GaugeVec // sensor_id
	vcc          *prometheus.GaugeVec // sensor_id
	lastObserved *prometheus.GaugeVec // sensor_id
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serial",
			Name:      "frames_total",
			Help:      "Lines received on the radio link, by validation result",
		}, []string{"result"}),

		framesWide: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serial",
			Name:      "frames_encoding_width_exceeded_total",
			Help:      "Accepted frames with a field wider than the sensor's signed 16-bit encoding",
		}),

		faultsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serial",
			Name:      "faults_total",
			Help:      "Serial channel faults",
		}),

		reopensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "serial",
			Name:      "reopens_total",
			Help:      "Serial channel reopens after a fault",
		}),

		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "state_publishes_total",
			Help:      "State messages published, by quantity and outcome",
		}, []string{"quantity", "status"}),

		registrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "registrations_total",
			Help:      "Discovery registrations, by outcome",
		}, []string{"status"}),

		waterLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "water_level_percent",
			Help:      "Latest water level percentage per sensor",
		}, []string{"sensor_id"}),

		distance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "distance_cm",
			Help:      "Latest measured distance per sensor",
		}, []string{"sensor_id"}),

		vcc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "vcc_raw",
			Help:      "Latest raw supply voltage value per sensor",
		}, []string{"sensor_id"}),

		lastObserved: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "last_observed_timestamp_seconds",
			Help:      "Unix time of the latest accepted frame per sensor",
		}, []string{"sensor_id"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.framesTotal,
		m.framesWide,
		m.faultsTotal,
		m.reopensTotal,
		m.publishesTotal,
		m.registrationsTotal,
		m.waterLevel,
		m.distance,
		m.vcc,
		m.lastObserved,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFrame counts a received line and, for accepted frames, updates the
// per-sensor gauges.
func (m *Metrics) ObserveFrame(result string, reading *telemetry.Reading, wide bool) {
	m.framesTotal.WithLabelValues(result).Inc()
	if result != radio.ResultValid || reading == nil {
		return
	}
	if wide {
		m.framesWide.Inc()
	}

	id := strconv.FormatUint(reading.SensorID, 10)
	m.waterLevel.WithLabelValues(id).Set(reading.WaterLevelPct)
	m.distance.WithLabelValues(id).Set(float64(reading.DistanceCM))
	m.vcc.WithLabelValues(id).Set(float64(reading.VCCRaw))
	if !reading.ObservedAt.IsZero() {
		m.lastObserved.WithLabelValues(id).Set(float64(reading.ObservedAt.Unix()))
	}
}

// ObserveFault counts a serial channel fault.
func (m *Metrics) ObserveFault(error) {
	m.faultsTotal.Inc()
}

// ObserveReopen counts a serial channel reopen.
func (m *Metrics) ObserveReopen() {
	m.reopensTotal.Inc()
}

// ObservePublish counts one state publish.
func (m *Metrics) ObservePublish(_ uint64, quantity string, err error) {
	m.publishesTotal.WithLabelValues(quantity, status(err)).Inc()
}

// ObserveRegistration counts one discovery registration attempt.
func (m *Metrics) ObserveRegistration(_ uint64, err error) {
	m.registrationsTotal.WithLabelValues(status(err)).Inc()
}

// Counter reports a current count. *telemetry.Store and
// *publisher.Registry satisfy it.
type Counter interface {
	Len() int
}

// TrackSensors exports the number of known and connected sensors, read at
// scrape time. Call it once.
func (m *Metrics) TrackSensors(known, connected Counter) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors_known",
			Help:      "Sensors with a reading in the store",
		}, func() float64 { return float64(known.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors_connected",
			Help:      "Sensors with an open broker session",
		}, func() float64 { return float64(connected.Len()) }),
	)
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
