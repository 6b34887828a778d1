package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteConnectionRates records the appliance's instantaneous bandwidth.
//
// Called once per telemetry tick when InfluxDB is enabled. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - rateDown: Downstream rate in bytes per second
//   - rateUp: Upstream rate in bytes per second
func (c *Client) WriteConnectionRates(rateDown, rateUp float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"connection_rates",
		map[string]string{
			"source": "boxpanel",
		},
		map[string]interface{}{
			"rate_down": rateDown,
			"rate_up":   rateUp,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
