// Package telemetry turns tank sensor frames into readings.
//
// A sensor transmits one line per measurement cycle:
//
//	sensor_id,distance,vcc,checksum
//
// where checksum is the exact sum of the first three fields. The package
// provides:
//
//   - ParseFrame / Frame.Validate: syntactic and checksum validation
//   - Calibration / ToPercent: distance to water-level conversion
//   - Store: the latest validated Reading per sensor, shared between the
//     acquisition and publication loops
//
// Nothing here does I/O.
package telemetry
