// Package metrics exposes a run's domain events as Prometheus metrics.
//
// A Collector subscribes to a trace.Log and owns a private registry, so
// concurrent runs in a sweep never share series. The registry can be written
// to a node-exporter textfile after the run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/imp-sim/imp-sim/sim/trace"
)

const namespace = "imp"

// Collector turns trace records into Prometheus series.
type Collector struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	units         *prometheus.CounterVec
	shortfall     *prometheus.CounterVec
	stock         *prometheus.GaugeVec
	patients      *prometheus.GaugeVec
	shipmentUnits prometheus.Histogram
	clock         prometheus.Gauge
}

// NewCollector creates a Collector whose series carry the given run labels.
func NewCollector(runID, scenario string) *Collector {
	labels := prometheus.Labels{"run_id": runID, "scenario": scenario}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "events_total",
			Help:        "Domain events by kind and location.",
			ConstLabels: labels,
		}, []string{"kind", "location"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "units_total",
			Help:        "Units moved by event kind and location.",
			ConstLabels: labels,
		}, []string{"kind", "location"}),
		shortfall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "shortfall_units_total",
			Help:        "Units a site could not supply when dosing was due.",
			ConstLabels: labels,
		}, []string{"site"}),
		stock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "stock_level_units",
			Help:        "Last observed stock level per location.",
			ConstLabels: labels,
		}, []string{"location"}),
		patients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "active_patients",
			Help:        "Patients currently on treatment per site.",
			ConstLabels: labels,
		}, []string{"site"}),
		shipmentUnits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "shipment_units",
			Help:        "Units per delivered shipment.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
		}),
		clock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "clock_ticks",
			Help:        "Simulation time of the last observed event.",
			ConstLabels: labels,
		}),
	}
	c.registry.MustRegister(c.events, c.units, c.shortfall, c.stock, c.patients, c.shipmentUnits, c.clock)
	return c
}

// Observe implements trace.Observer.
func (c *Collector) Observe(r trace.Record) {
	kind := string(r.Kind)
	c.events.WithLabelValues(kind, r.Location).Inc()
	if r.Quantity > 0 {
		c.units.WithLabelValues(kind, r.Location).Add(float64(r.Quantity))
	}
	if r.Level != nil {
		if trace.IsPatientKind(r.Kind) {
			c.patients.WithLabelValues(r.Location).Set(float64(*r.Level))
		} else {
			c.stock.WithLabelValues(r.Location).Set(float64(*r.Level))
		}
	}
	switch r.Kind {
	case trace.KindUnmetDemand:
		c.shortfall.WithLabelValues(r.Location).Add(float64(r.Shortfall))
	case trace.KindShipmentArrived:
		c.shipmentUnits.Observe(float64(r.Quantity))
	}
	c.clock.Set(float64(r.Time))
}

// Registry returns the collector's private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the current series in the Prometheus text format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
