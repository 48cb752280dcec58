// Package publisher republishes tank readings to Home Assistant over MQTT.
//
// # Components
//
//   - Registry: one broker session per sensor, created on first sight and
//     kept for the life of the process. The first successful GetOrCreate
//     publishes three retained discovery descriptors (water level, supply
//     voltage, distance).
//   - Loop: every interval, snapshots the telemetry.Store and publishes one
//     non-retained state message per quantity per sensor.
//   - HealthReporter: retained relay health on tankrelay/{site}/health.
//
// # Topics
//
//	homeassistant/sensor/tank_{id}/{quantity}/config    retained, once
//	homeassistant/sensor/tank_{id}/{quantity}/state     every cycle
//	homeassistant/sensor/tank_{id}/availability         online/offline (LWT)
//
// State payloads carry the sensor id and one value:
//
//	{"sensor_id":1,"water_level_percent":59.26}
//
// Delivery is best effort. A failed publish is logged and the next cycle
// sends fresh values.
package publisher
