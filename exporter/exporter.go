package exporter

import (
	"github.com/prometheus/client_golang/prometheus"

	"thermobeacon-exporter/locations"
	"thermobeacon-exporter/store"
)

var (
	temperatureDesc = prometheus.NewDesc(
		"sensor_temperature_celsius",
		"Temperature from the device's most recent advertisement.",
		[]string{"address"}, nil,
	)
	humidityDesc = prometheus.NewDesc(
		"sensor_humidity_percent",
		"Relative humidity from the device's most recent advertisement.",
		[]string{"address"}, nil,
	)
	voltageDesc = prometheus.NewDesc(
		"sensor_voltage",
		"Battery voltage in millivolts from the device's most recent advertisement.",
		[]string{"address"}, nil,
	)
	uptimeDesc = prometheus.NewDesc(
		"sensor_uptime_seconds",
		"Device uptime in seconds, present only when the last frame carried it.",
		[]string{"address"}, nil,
	)
	locationDesc = prometheus.NewDesc(
		"sensor_location_info",
		"Static location metadata for a device, always 1.",
		[]string{"address", "location"}, nil,
	)
)

// Collector exposes the latest reading per device as gauges, sampled at scrape
// time. Devices present in the location table additionally get a constant
// sensor_location_info series, whether or not a reading exists yet.
type Collector struct {
	store     *store.Store
	locations *locations.Table
}

// New creates a Collector over the given store and location table.
func New(st *store.Store, table *locations.Table) *Collector {
	return &Collector{
		store:     st,
		locations: table,
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- temperatureDesc
	ch <- humidityDesc
	ch <- voltageDesc
	ch <- uptimeDesc
	ch <- locationDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for address, reading := range c.store.Snapshot() {
		ch <- prometheus.MustNewConstMetric(temperatureDesc, prometheus.GaugeValue,
			reading.TemperatureCelsius, address)
		ch <- prometheus.MustNewConstMetric(humidityDesc, prometheus.GaugeValue,
			reading.HumidityPercent, address)
		ch <- prometheus.MustNewConstMetric(voltageDesc, prometheus.GaugeValue,
			float64(reading.VoltageMillivolts), address)
		if reading.HasUptime {
			ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue,
				float64(reading.UptimeSeconds), address)
		}
	}

	for address, location := range c.locations.All() {
		ch <- prometheus.MustNewConstMetric(locationDesc, prometheus.GaugeValue,
			1, address, location)
	}
}
