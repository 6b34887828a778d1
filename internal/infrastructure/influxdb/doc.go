// Package influxdb provides the optional time-series sink for bandwidth history.
//
// Each telemetry tick carries the appliance's current up/down rates; when
// this integration is enabled they are batched into InfluxDB so the
// dashboard can chart long-term connection behaviour.
package influxdb
