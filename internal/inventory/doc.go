// Package inventory keeps a persistent record of every sensor the relay
// has heard: first and last sighting, accepted frame count, the latest
// values and whether Home Assistant discovery succeeded.
//
// The inventory is informational. It is never used to seed the in-memory
// reading store, so a restart does not republish stale values.
package inventory
