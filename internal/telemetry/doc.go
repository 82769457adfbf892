// Package telemetry supplies vehicle sensor readings to the monitor.
//
// A Source returns a Frame (component → sensor → value) per Read. Two
// sources exist:
//   - Simulated draws readings around each component's healthy operating
//     point and randomly drifts components towards failure
//   - Prometheus scrapes the vehicle_sensor_value gauge from a text
//     exposition endpoint, labelled by component and sensor, with optional
//     apikey, bearer or basic auth
//
// New picks one from config.TelemetryConfig.
package telemetry
