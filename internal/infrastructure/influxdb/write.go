package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTelemetryField mirrors a single numeric telemetry field to InfluxDB.
//
// The bridge calls this for each numeric field of a persisted reading, so
// time-series dashboards can query per-field without unpacking JSON. The
// write is non-blocking; data is batched and sent asynchronously. Writes
// while disconnected are silently dropped: the SQLite row is the record,
// the mirror is best-effort.
//
// Parameters:
//   - gatewayID: Owning gateway identifier (tag)
//   - deviceID: Device identifier (tag)
//   - field: The telemetry field name (e.g., "temperature", "humidity")
//   - value: The numeric value
//   - at: The reading's timestamp
//
// Example:
//
//	client.WriteTelemetryField("gw-1", "thermo-01", "temperature", 21.5, reading.Timestamp)
func (c *Client) WriteTelemetryField(gatewayID, deviceID, field string, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"telemetry",
		map[string]string{
			"gateway_id": gatewayID,
			"device_id":  deviceID,
			"field":      field,
		},
		map[string]interface{}{
			"value": value,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}
