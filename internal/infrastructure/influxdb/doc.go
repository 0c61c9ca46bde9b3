// Package influxdb provides InfluxDB connectivity for FleetBridge.
//
// It wraps the official influxdb-client-go v2 library with FleetBridge
// patterns for connection management, telemetry mirroring, and health
// monitoring.
//
// # Purpose
//
// SQLite is the system of record for telemetry; this package maintains an
// optional time-series mirror of numeric telemetry fields so dashboards
// can query per-field without unpacking JSON payloads.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "fleetbridge",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteTelemetryField("gw-1", "thermo-01", "temperature", 21.5, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly. The
// mirror is best-effort: a failed write never affects the SQLite record.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). This reduces network overhead for high-frequency
// telemetry.
package influxdb
